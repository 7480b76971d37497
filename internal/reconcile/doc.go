// Package reconcile keeps one list's projection consistent while CRUD responses and live notifications arrive in
// any order.
//
// A [View] owns the list, its members and items, the per-item edit overlays and the list's live channel. Every
// state change goes through the view's mutex, so no two reconciliation steps run at once, but a notification
// can land while a CRUD call for the same item is still in flight.
//
// # Items
//
// Notifications carry ids only. A create or update is resolved by fetching the item by id:
//
//   - create: the fetched item is appended, or replaces an existing item with that id; a not-found fetch means
//     the notification was stale and is dropped
//   - update: the overlay is cleared and exactly one fetch is issued; the result replaces the item in place, and
//     a not-found result removes it
//   - delete: the item is filtered out by id, which is a no-op when it is already gone
//
// Deleted ids are remembered for the view's lifetime. Fetch results for them are discarded, so a create and a
// delete delivered out of order cannot bring an item back.
//
// # Edit Overlays
//
// Each item is Viewing, LocallyEditing or RemotelyEditing. Overlays are keyed by item id. The overlay reflects
// the edit event observed last; commits are last-writer-wins at the server.
//
// A local edit keeps its draft apart from the overlay. Channel events can show a collaborator's preview over it
// but never end it: the draft stays editable and submittable until it is committed, cancelled, or its item is
// deleted.
//
// # Teardown
//
// [View.Close] closes the channel and clears the projection. Fetches still in flight are discarded when they
// return.
package reconcile
