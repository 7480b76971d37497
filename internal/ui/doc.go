// Package ui implements the interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI has two screens:
//  1. [ListsView] : Browse, create and delete todo lists
//  2. [DetailView] : One list, backed by a [reconcile.View], with members, presence and items
//
// The detail screen re-renders whenever the view signals a change on [reconcile.View.Changes]; the Model waits on
// that channel with a command and re-arms it after every signal, the same way a long-running task reports progress.
// Items being edited by someone else show their live description behind an "✎ editing…" marker.
//
// CRUD calls run as commands so the event loop never blocks on the network. Opening, drafting and cancelling a
// local edit are applied directly since they only touch the projection and send a best-effort frame.
package ui
