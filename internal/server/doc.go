// Package server provides HTTP routing, middleware, OAuth callback handling, and the JSON API.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
//
// # OAuth Callback Handler
//
// [OAuthHandler] implements the OAuth2 authorization code callback flow.
//
// The handler validates the state parameter (CSRF protection), exchanges the authorization code for tokens,
// and sends the result through a channel. PKCE providers forward their verifier through exchange options.
//
// It only processes one callback to prevent replay attacks.
//
// When the user runs authentication commands, a temporary HTTP server starts on the configured redirect port,
// handles the callback, and shuts down after receiving the OAuth token.
//
// # JSON API
//
// [APIHandler] serves the long-running server surface:
//   - GET /health : service connection status
//   - GET /api/playlists?service= : playlist listing for one provider
//   - POST /api/transfer : synchronous transfer, responds with the full result
//   - GET /api/progress?user= : polling snapshot for an in-flight transfer
//
// Transfers are request-scoped; the progress endpoint reads the shared
// [tasks.ProgressStore] so another client can observe a running transfer.
package server
