// Package services defines the [Service] interface for music streaming providers and implements it for Spotify, Tidal, and Qobuz.
//
// # Service Interface
//
// All providers implement a common capability set (playlist listing, paginated
// track listing, track search, playlist creation, track append, token
// validity), enabling the transfer engine to drive any source/destination pair
// without provider-specific branches.
//
// # Token Lifecycle
//
// Each adapter owns a [TokenManager] holding one [Credentials] record for the
// session. Token refresh is lazy: [TokenManager.ValidToken] refreshes only
// when the stored expiry is within a five-minute look-ahead window, using the
// provider token endpoint with Basic authorization. A credential without an
// expiry timestamp is treated as perpetually valid (Qobuz issues such tokens).
// A failed refresh leaves the stale record untouched; the caller must
// re-authenticate.
//
// # Search Tiers
//
// Each adapter owns its provider-specific search fallback. The primary call
// uses the sanitized "<artist> <title>" query from [shared.BuildSearchQuery];
// when the primary call fails at the HTTP level the adapter falls back to a
// broader surface with the unsanitized names (Tidal topHits, Spotify
// unfiltered search). The first candidate wins; adapters expose only a single
// identifier or [shared.ErrTrackNotFound].
//
// # Rate Limiting
//
// Outbound API calls pass through a per-adapter [rate.Limiter] so that long
// transfers stay within third-party limits even though the orchestrator is
// already strictly sequential.
//
// # Error Handling
//
// Adapters use typed errors from the shared package:
//   - [shared.ErrNotAuthenticated] : no usable access token for the session
//   - [shared.ErrRefreshFailed] : token endpoint rejected the refresh
//   - [shared.ErrAPIRequest] : HTTP request failed
//   - [shared.ErrTrackNotFound] : search produced no usable candidate
//   - [shared.ErrPlaylistCreate] : provider rejected the playlist payload
package services
