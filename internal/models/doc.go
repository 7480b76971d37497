// Package models defines the entities shared between the remote store client, the live channel and the view
// reconciler.
//
// The server owns every entity. The types here are wire DTOs plus a few derived helpers:
//   - [List] : a named collection with an author, the viewer's [RoleName], and (once loaded) members and items
//   - [Item] : a single todo entry belonging to one list
//   - [Member] : a user's role on a list, plus the volatile presence flag driven by the live channel
//   - [Session] : the signed-in user's credentials, persisted across runs
//
// [EffectiveMembers] and [IsShared] encode the membership rules the view relies on: the author is always present as
// a synthetic owner, and a list is shared once anyone besides the owner is a member.
package models
