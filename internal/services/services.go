package services

import (
	"context"
	"errors"

	"github.com/desertthunder/crossfade/internal/shared"
)

// Playlist type tags distinguish ordinary playlists from the provider's
// "liked/saved tracks" library, which most providers expose through a
// different endpoint shape.
const (
	PlaylistTypeStandard = "playlist"
	PlaylistTypeLiked    = "liked"

	// LikedPlaylistID is the pseudo-identifier for the liked-songs library.
	LikedPlaylistID = "liked"
)

// Service defines the capability set every music provider adapter satisfies.
// The transfer engine drives any (source, destination) pair through this
// interface alone.
type Service interface {
	// Name returns the display name of the provider (e.g., "Spotify").
	Name() string

	// Authenticate populates the session credential record. Providers accept
	// either OAuth artifacts ("access_token", "refresh_token", "expires_in",
	// "auth_code") or login credentials ("email", "password") depending on
	// their scheme.
	Authenticate(ctx context.Context, credentials map[string]string) error

	// IsAuthenticated reports whether the session holds a usable token.
	IsAuthenticated(ctx context.Context) bool

	// ValidToken returns a currently valid access token, refreshing lazily
	// when the stored expiry is near. Returns shared.ErrNotAuthenticated or
	// shared.ErrRefreshFailed when no valid token can be produced.
	ValidToken(ctx context.Context) (string, error)

	// GetPlaylists retrieves all playlists for the authenticated user,
	// including the liked-songs pseudo-playlist where the provider has one.
	GetPlaylists(ctx context.Context) ([]Playlist, error)

	// GetPlaylistTracks retrieves the playlist name and its full flattened
	// track list, paging transparently through the provider's pagination
	// scheme and filtering null/deleted entries. playlistType selects the
	// liked-songs path when set to PlaylistTypeLiked.
	GetPlaylistTracks(ctx context.Context, playlistID, playlistType string) (string, []Track, error)

	// SearchTrack resolves a (title, artist) pair to a single provider track
	// identifier, applying the adapter's tiered fallback. Returns
	// shared.ErrTrackNotFound when no usable candidate exists.
	SearchTrack(ctx context.Context, title, artist string) (string, error)

	// CreatePlaylist creates a new playlist and returns its identifier.
	// Always creates; never dedupes by name.
	CreatePlaylist(ctx context.Context, name, description string) (string, error)

	// AddTrackToPlaylist appends a single track. A non-nil error means the
	// append did not happen; the caller decides whether to record or retry.
	AddTrackToPlaylist(ctx context.Context, playlistID, trackID string) error
}

// Playlist represents playlist metadata from any provider.
type Playlist struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	TrackCount int    `json:"tracks"`
	Type       string `json:"type"` // PlaylistTypeStandard or PlaylistTypeLiked
}

// Track represents a source-side track identity pending resolution on the
// destination provider. Never mutated after the listing call produces it.
type Track struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

// Label renders the track as "Title - Artist" for progress display and
// not-found reporting.
func (t Track) Label() string {
	return t.Title + " - " + t.Artist
}

// isAPIError reports whether err is an HTTP-level failure rather than an
// empty result set. Adapters retry on a broader surface only for the former.
func isAPIError(err error) bool {
	return errors.Is(err, shared.ErrAPIRequest)
}
