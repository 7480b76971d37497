// Package live implements the per-list notification channel.
//
// A [Channel] is a websocket connection to /ws/todo-list/{id}, authenticated with the access token as a query
// parameter. Frames are JSON objects tagged by "action"; [Parse] turns them into typed [Event] values and
// [Encode] renders outbound ones.
//
// The channel is advisory. Delivery, ordering and deduplication are not guaranteed, frames that fail to parse
// are logged and dropped, and an event that arrives while the buffer is full is dropped too. Consumers re-fetch
// authoritative state by id.
//
// # Reconnect
//
// With [Options.ReconnectAttempts] above zero, a dropped connection is redialed with a delay that doubles from
// [Options.ReconnectBase] up to [Options.ReconnectMax]. A successful dial resets the attempt count. When the
// attempts run out, or when reconnecting is disabled, [Channel.Events] is closed.
package live
