// Package server provides HTTP routing, middleware, and OAuth handling for the CLI and the dashboard.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first).
// [RequestLogger] and [Recoverer] are the stock middleware used by the dashboard.
//
// The [BasicRouter] implementation registers method patterns on an [http.ServeMux].
//
// # OAuth Callback Handler
//
// [OAuthHandler] implements the OAuth2 authorization code callback.
//
// The handler validates the state parameter, exchanges the authorization code for tokens,
// and sends the result through a channel. It only processes one callback.
//
// `toptally spotify auth` starts a temporary server on the configured host and port, opens the browser,
// waits for the callback and shuts down after receiving the token.
//
// # Serving
//
// [Serve] runs a handler until its context is cancelled and then shuts down gracefully.
// The dashboard in internal/web is served this way by `toptally serve`.
package server
