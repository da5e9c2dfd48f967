// Package server captures the OAuth2 authorization code redirect on a loopback socket.
//
// # Redirect Listener
//
// After the user approves access in the browser, Spotify redirects to
//
//	GET /callback?code=<code>&state=<state> HTTP/1.1
//
// on the local redirect URI. The [Listener] binds that address, accepts connections strictly one at a
// time and reads only the request line: the request target's query string is parsed by name, so the
// order of parameters and any extra parameters do not matter.
//
//   - A request carrying both code and state is answered with 200 OK and ends the listener.
//   - Anything else (undecodable bytes, no request target, missing parameters, an error= redirect)
//     is answered with 400 Bad Request, logged, and the listener keeps waiting.
//
// The listener has no timeout of its own. Callers bound the wait with the context passed to
// [Listener.Accept] or [Listen].
//
// # Errors
//
//   - [ErrListenerBind] : the loopback address could not be bound (fatal, not retried)
//   - [ErrMalformedCallback] : wrapped by [CallbackError] for every rejected request
package server
