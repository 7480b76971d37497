// Package services implements the typed client for the todo-list REST API.
//
// # Client
//
// [Client] wraps every call in the same request path: JSON body, bearer credential from the injected
// [Credentials], a per-call deadline and error mapping. The endpoint methods are thin and live in users.go,
// lists.go and items.go.
//
// # Token Refresh
//
// A 401 whose detail is exactly "Token has expired" triggers one POST /api/users/refresh-token followed by one
// retry of the original call. Concurrent callers that hit the same expired token share a single refresh through
// [singleflight.Group]. A failed refresh clears the credentials and surfaces [shared.ErrRefreshFailed]; the
// client never refreshes twice for one call.
//
// # Error Handling
//
//   - [*APIError] : any other non-2xx response, carrying the server's detail message; matches [shared.ErrAPIRequest]
//   - [ErrNotFound] : 404, or the 200 null body the API returns for a missing item
//   - [shared.ErrTimeout] : the per-call deadline elapsed
//   - [shared.ErrRefreshFailed] : the refresh round trip failed and the session was cleared
package services
