// Spotify API implementation of [Service]
//
// Response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/crossfade/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"
)

// SpotifyUser represents the authenticated user's profile.
type SpotifyUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Country     string `json:"country"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Artists []SpotifyArtist `json:"artists"`
}

// spotifyPlaylistItem wraps a track within a playlist or library context.
// Track is a pointer: deleted/unavailable entries arrive as null.
type spotifyPlaylistItem struct {
	Track *SpotifyTrack `json:"track"`
}

// spotifyPaginatedItems is the paginated envelope for track listings.
type spotifyPaginatedItems struct {
	Items []spotifyPlaylistItem `json:"items"`
	Total int                   `json:"total"`
	Next  *string               `json:"next"`
}

type spotifyTrackCount struct {
	Total int `json:"total"`
}

// SpotifySimplePlaylist represents a playlist object in list responses.
type SpotifySimplePlaylist struct {
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Tracks spotifyTrackCount `json:"tracks"`
}

// spotifyPaginatedPlaylists is the paginated envelope for playlist listings.
type spotifyPaginatedPlaylists struct {
	Items []SpotifySimplePlaylist `json:"items"`
	Next  *string                 `json:"next"`
}

// SpotifyService implements [Service] for the Spotify Web API.
//
// Authorization-code exchange goes through [oauth2.Config]; steady-state token
// refresh goes through the [TokenManager] so that the lazy-refresh contract
// (look-ahead window, stale record kept on failure) is explicit.
type SpotifyService struct {
	config     *oauth2.Config
	tokens     *TokenManager
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
}

// NewSpotifyService creates a Spotify service from the configured OAuth2
// client credentials.
func NewSpotifyService(cfg shared.SpotifyConfig) (*SpotifyService, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("%w: missing spotify client_id", shared.ErrMissingCredentials)
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: missing spotify client_secret", shared.ErrMissingCredentials)
	}

	redirectURI := cfg.RedirectURI
	if redirectURI == "" {
		redirectURI = "http://localhost:3000/callback"
	}

	config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes: []string{
			"playlist-read-private",
			"playlist-read-collaborative",
			"playlist-modify-public",
			"playlist-modify-private",
			"user-library-read",
		},
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}

	refreshForm := func(refreshToken string) url.Values {
		return url.Values{
			"grant_type":    {"refresh_token"},
			"refresh_token": {refreshToken},
		}
	}

	return &SpotifyService{
		config:     config,
		tokens:     NewTokenManager(cfg.ClientID, cfg.ClientSecret, spotifyTokenURL, refreshForm),
		httpClient: http.DefaultClient,
		limiter:    rate.NewLimiter(rate.Every(100*time.Millisecond), 5),
		baseURL:    spotifyBaseURL,
	}, nil
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// OAuthConfig exposes the OAuth2 config for the callback server.
func (s *SpotifyService) OAuthConfig() *oauth2.Config {
	return s.config
}

// GetAuthURL returns the OAuth2 authorization URL for user login.
func (s *SpotifyService) GetAuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// ExchangeOptions returns extra options for the code exchange. Spotify does
// not use PKCE here, so there are none.
func (s *SpotifyService) ExchangeOptions() []oauth2.AuthCodeOption {
	return nil
}

// Authenticate populates the session credential record.
//
// Accepts either an "auth_code" (exchanged at the token endpoint) or a
// pre-obtained "access_token" with optional "refresh_token" and "expires_in".
// On success the owner id is resolved via /me for later playlist creation.
func (s *SpotifyService) Authenticate(ctx context.Context, credentials map[string]string) error {
	if code, ok := credentials["auth_code"]; ok && code != "" {
		token, err := s.config.Exchange(ctx, code)
		if err != nil {
			return fmt.Errorf("%w: failed to exchange auth code: %v", shared.ErrAuthFailed, err)
		}
		s.tokens.SetCredentials(Credentials{
			AccessToken:  token.AccessToken,
			RefreshToken: token.RefreshToken,
			ExpiresAt:    token.Expiry,
		})
		return s.resolveOwner(ctx)
	}

	if accessToken, ok := credentials["access_token"]; ok && accessToken != "" {
		creds := Credentials{
			AccessToken:  accessToken,
			RefreshToken: credentials["refresh_token"],
		}
		if raw := credentials["expires_in"]; raw != "" {
			if seconds, err := strconv.Atoi(raw); err == nil {
				creds.ExpiresAt = time.Now().Add(time.Duration(seconds) * time.Second)
			}
		}
		s.tokens.SetCredentials(creds)
		return s.resolveOwner(ctx)
	}

	return fmt.Errorf("%w: missing auth_code or access_token", shared.ErrMissingCredentials)
}

// Restore replaces the session credential record with a persisted one.
func (s *SpotifyService) Restore(creds Credentials) {
	s.tokens.SetCredentials(creds)
}

// Credentials returns a copy of the current session credential record.
func (s *SpotifyService) Credentials() Credentials {
	return s.tokens.Credentials()
}

// Disconnect destroys the session credential record.
func (s *SpotifyService) Disconnect() {
	s.tokens.Clear()
}

func (s *SpotifyService) IsAuthenticated(ctx context.Context) bool {
	_, err := s.ValidToken(ctx)
	return err == nil
}

func (s *SpotifyService) ValidToken(ctx context.Context) (string, error) {
	return s.tokens.ValidToken(ctx)
}

// resolveOwner fetches /me and records the user id on the credential record.
func (s *SpotifyService) resolveOwner(ctx context.Context) error {
	var user SpotifyUser
	if err := s.doRequest(ctx, http.MethodGet, "/me", nil, &user); err != nil {
		return fmt.Errorf("%w: failed to resolve user profile: %v", shared.ErrAuthFailed, err)
	}

	creds := s.tokens.Credentials()
	creds.OwnerID = user.ID
	s.tokens.SetCredentials(creds)
	return nil
}

// doRequest performs an authenticated, rate-limited request against the
// Spotify API, JSON-encoding body when present and decoding into result.
func (s *SpotifyService) doRequest(ctx context.Context, method, endpoint string, body, result any) error {
	token, err := s.ValidToken(ctx)
	if err != nil {
		return err
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: spotify returned status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// GetPlaylists retrieves the user's playlists, prepending the liked-songs
// pseudo-playlist when the library is non-empty.
func (s *SpotifyService) GetPlaylists(ctx context.Context) ([]Playlist, error) {
	var playlists []Playlist
	limit := 50
	offset := 0

	for {
		endpoint := fmt.Sprintf("/me/playlists?limit=%d&offset=%d", limit, offset)

		var page spotifyPaginatedPlaylists
		if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, err
		}

		for _, sp := range page.Items {
			playlists = append(playlists, Playlist{
				ID:         sp.ID,
				Name:       sp.Name,
				TrackCount: sp.Tracks.Total,
				Type:       PlaylistTypeStandard,
			})
		}

		if page.Next == nil {
			break
		}
		offset += limit
	}

	var liked spotifyPaginatedItems
	if err := s.doRequest(ctx, http.MethodGet, "/me/tracks?limit=1", nil, &liked); err == nil && liked.Total > 0 {
		playlists = append([]Playlist{{
			ID:         LikedPlaylistID,
			Name:       "Liked Songs",
			TrackCount: liked.Total,
			Type:       PlaylistTypeLiked,
		}}, playlists...)
	}

	return playlists, nil
}

// GetPlaylistTracks retrieves all tracks for a playlist or the liked-songs
// library, flattening every page and dropping null track entries.
func (s *SpotifyService) GetPlaylistTracks(ctx context.Context, playlistID, playlistType string) (string, []Track, error) {
	if playlistID == LikedPlaylistID || playlistType == PlaylistTypeLiked {
		tracks, err := s.pageTracks(ctx, "/me/tracks", 50)
		if err != nil {
			return "", nil, err
		}
		return "Liked Songs (from Spotify)", tracks, nil
	}

	var playlist struct {
		Name string `json:"name"`
	}
	if err := s.doRequest(ctx, http.MethodGet, "/playlists/"+playlistID, nil, &playlist); err != nil {
		return "", nil, fmt.Errorf("%w: %v", shared.ErrPlaylistNotFound, err)
	}

	tracks, err := s.pageTracks(ctx, fmt.Sprintf("/playlists/%s/tracks", playlistID), 100)
	if err != nil {
		return "", nil, err
	}

	return playlist.Name, tracks, nil
}

// pageTracks walks an offset-paginated track listing until the provider
// signals no next page.
func (s *SpotifyService) pageTracks(ctx context.Context, basePath string, limit int) ([]Track, error) {
	var tracks []Track
	offset := 0

	for {
		endpoint := fmt.Sprintf("%s?limit=%d&offset=%d", basePath, limit, offset)

		var page spotifyPaginatedItems
		if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, err
		}

		for _, item := range page.Items {
			if item.Track == nil || item.Track.ID == "" {
				continue
			}

			track := Track{ID: item.Track.ID, Title: item.Track.Name}
			if len(item.Track.Artists) > 0 {
				track.Artist = item.Track.Artists[0].Name
			}
			tracks = append(tracks, track)
		}

		if page.Next == nil {
			break
		}
		offset += limit
	}

	return tracks, nil
}

// SearchTrack resolves a (title, artist) pair to a Spotify track id.
//
// The primary query is the sanitized "<artist> <title>" composition; when the
// primary call fails at the HTTP level the fallback reissues the raw,
// unsanitized names. The first candidate wins; there is no score threshold.
func (s *SpotifyService) SearchTrack(ctx context.Context, title, artist string) (string, error) {
	id, err := s.searchOnce(ctx, shared.BuildSearchQuery(title, artist))
	if err == nil {
		return id, nil
	}

	if isAPIError(err) {
		return s.searchOnce(ctx, strings.TrimSpace(artist+" "+title))
	}

	return "", err
}

func (s *SpotifyService) searchOnce(ctx context.Context, query string) (string, error) {
	endpoint := fmt.Sprintf("/search?q=%s&type=track&limit=1", url.QueryEscape(query))

	var response struct {
		Tracks struct {
			Items []SpotifyTrack `json:"items"`
		} `json:"tracks"`
	}

	if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		return "", err
	}

	if len(response.Tracks.Items) == 0 || response.Tracks.Items[0].ID == "" {
		return "", fmt.Errorf("%w: no results for %q", shared.ErrTrackNotFound, query)
	}

	return response.Tracks.Items[0].ID, nil
}

// CreatePlaylist creates a new private playlist under the session owner.
func (s *SpotifyService) CreatePlaylist(ctx context.Context, name, description string) (string, error) {
	owner := s.tokens.Credentials().OwnerID
	if owner == "" {
		if err := s.resolveOwner(ctx); err != nil {
			return "", err
		}
		owner = s.tokens.Credentials().OwnerID
	}

	body := map[string]any{
		"name":        name,
		"description": description,
		"public":      false,
	}

	var created struct {
		ID string `json:"id"`
	}

	endpoint := fmt.Sprintf("/users/%s/playlists", url.PathEscape(owner))
	if err := s.doRequest(ctx, http.MethodPost, endpoint, body, &created); err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrPlaylistCreate, err)
	}

	if created.ID == "" {
		return "", fmt.Errorf("%w: response contained no playlist id", shared.ErrPlaylistCreate)
	}

	return created.ID, nil
}

// AddTrackToPlaylist appends a single track by URI.
func (s *SpotifyService) AddTrackToPlaylist(ctx context.Context, playlistID, trackID string) error {
	body := map[string]any{
		"uris": []string{"spotify:track:" + trackID},
	}

	endpoint := fmt.Sprintf("/playlists/%s/tracks", playlistID)
	return s.doRequest(ctx, http.MethodPost, endpoint, body, nil)
}
