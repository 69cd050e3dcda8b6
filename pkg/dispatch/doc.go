// Package dispatch routes requests to installed units by name.
//
// A request for /{name}/rest is forwarded to the unit registered as name
// with the path rewritten to /rest. GET requests call ServeGet and POST
// requests call ServePost. Any other method, and any name that is not
// registered, is left unhandled so the caller can render its own response.
//
// Adapters are cached per unit and rebuilt when the registry generation for
// that unit changes, so a replaced handler is picked up on the next request.
package dispatch
