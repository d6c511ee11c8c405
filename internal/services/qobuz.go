// Qobuz API implementation of [Service]
//
// Qobuz has no OAuth flow: login exchanges email and MD5-hashed password for
// a non-expiring user auth token, sent on every call via X-User-Auth-Token
// alongside the registered X-App-Id. Numeric identifiers arrive as JSON
// numbers and are normalized to strings at the boundary.
package services

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/desertthunder/crossfade/internal/shared"
	"golang.org/x/time/rate"
)

const qobuzBaseURL = "https://www.qobuz.com/api.json/0.2"

// qobuzPlaylist represents a playlist in Qobuz list and detail responses.
type qobuzPlaylist struct {
	ID          json.Number `json:"id"`
	Name        string      `json:"name"`
	TracksCount int         `json:"tracks_count"`
	Tracks      struct {
		Items []qobuzTrack `json:"items"`
		Total int          `json:"total"`
	} `json:"tracks"`
}

// qobuzTrack represents a track; the primary artist lives under performer.
type qobuzTrack struct {
	ID        json.Number `json:"id"`
	Title     string      `json:"title"`
	Performer struct {
		Name string `json:"name"`
	} `json:"performer"`
}

// QobuzService implements [Service] for the Qobuz API.
type QobuzService struct {
	appID      string
	appSecret  string
	tokens     *TokenManager
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
}

// NewQobuzService creates a Qobuz service from the registered app id/secret.
func NewQobuzService(cfg shared.QobuzConfig) (*QobuzService, error) {
	if cfg.AppID == "" {
		return nil, fmt.Errorf("%w: missing qobuz app_id", shared.ErrMissingCredentials)
	}

	return &QobuzService{
		appID:      cfg.AppID,
		appSecret:  cfg.AppSecret,
		tokens:     NewTokenManager(cfg.AppID, cfg.AppSecret, "", nil),
		httpClient: http.DefaultClient,
		limiter:    rate.NewLimiter(rate.Every(200*time.Millisecond), 3),
		baseURL:    qobuzBaseURL,
	}, nil
}

func (s *QobuzService) Name() string {
	return "Qobuz"
}

// Authenticate logs in with "email" and "password" credentials. The password
// is MD5-hashed before transmission, matching the Qobuz login contract. The
// resulting token carries no expiry and is stored as perpetually valid.
func (s *QobuzService) Authenticate(ctx context.Context, credentials map[string]string) error {
	email := credentials["email"]
	password := credentials["password"]
	if email == "" || password == "" {
		return fmt.Errorf("%w: missing email or password", shared.ErrMissingCredentials)
	}

	hash := md5.Sum([]byte(password))

	form := url.Values{
		"email":    {email},
		"password": {hex.EncodeToString(hash[:])},
		"app_id":   {s.appID},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/user/login", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: failed to create request: %v", shared.ErrAuthFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-App-Id", s.appID)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: login returned status %d", shared.ErrInvalidCredentials, resp.StatusCode)
	}

	var login struct {
		UserAuthToken string `json:"user_auth_token"`
		User          struct {
			ID json.Number `json:"id"`
		} `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&login); err != nil {
		return fmt.Errorf("%w: failed to decode login response: %v", shared.ErrAuthFailed, err)
	}

	if login.UserAuthToken == "" {
		return fmt.Errorf("%w: login response contained no auth token", shared.ErrAuthFailed)
	}

	s.tokens.SetCredentials(Credentials{
		AccessToken: login.UserAuthToken,
		OwnerID:     login.User.ID.String(),
	})
	return nil
}

// Restore replaces the session credential record with a persisted one.
func (s *QobuzService) Restore(creds Credentials) {
	s.tokens.SetCredentials(creds)
}

// Credentials returns a copy of the current session credential record.
func (s *QobuzService) Credentials() Credentials {
	return s.tokens.Credentials()
}

// Disconnect destroys the session credential record.
func (s *QobuzService) Disconnect() {
	s.tokens.Clear()
}

func (s *QobuzService) IsAuthenticated(ctx context.Context) bool {
	_, err := s.ValidToken(ctx)
	return err == nil
}

func (s *QobuzService) ValidToken(ctx context.Context) (string, error) {
	return s.tokens.ValidToken(ctx)
}

// doRequest performs an authenticated, rate-limited request. GET parameters
// ride in the endpoint; POST bodies are form-encoded, matching the API.
func (s *QobuzService) doRequest(ctx context.Context, method, endpoint string, form url.Values, result any) error {
	token, err := s.ValidToken(ctx)
	if err != nil {
		return err
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	var bodyReader *strings.Reader
	if form != nil {
		bodyReader = strings.NewReader(form.Encode())
	} else {
		bodyReader = strings.NewReader("")
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+endpoint, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("X-App-Id", s.appID)
	req.Header.Set("X-User-Auth-Token", token)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: qobuz returned status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// GetPlaylists retrieves the user's playlists in large offset pages. Qobuz
// has no liked-songs pseudo-playlist surface here; favorites are a distinct
// catalog concept the listing does not cover.
func (s *QobuzService) GetPlaylists(ctx context.Context) ([]Playlist, error) {
	var playlists []Playlist
	limit := 500
	offset := 0

	for {
		endpoint := fmt.Sprintf("/playlist/getUserPlaylists?limit=%d&offset=%d", limit, offset)

		var page struct {
			Playlists struct {
				Items []qobuzPlaylist `json:"items"`
				Total int             `json:"total"`
			} `json:"playlists"`
		}
		if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, err
		}

		for _, qp := range page.Playlists.Items {
			playlists = append(playlists, Playlist{
				ID:         qp.ID.String(),
				Name:       qp.Name,
				TrackCount: qp.TracksCount,
				Type:       PlaylistTypeStandard,
			})
		}

		offset += len(page.Playlists.Items)
		if len(page.Playlists.Items) == 0 || offset >= page.Playlists.Total {
			break
		}
	}

	return playlists, nil
}

// GetPlaylistTracks retrieves the playlist name and every track through the
// extra=tracks detail endpoint, paging by offset until the reported total.
func (s *QobuzService) GetPlaylistTracks(ctx context.Context, playlistID, playlistType string) (string, []Track, error) {
	var name string
	var tracks []Track
	limit := 100
	offset := 0

	for {
		endpoint := fmt.Sprintf("/playlist/get?playlist_id=%s&extra=tracks&limit=%d&offset=%d",
			url.QueryEscape(playlistID), limit, offset)

		var playlist qobuzPlaylist
		if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &playlist); err != nil {
			return "", nil, fmt.Errorf("%w: %v", shared.ErrPlaylistNotFound, err)
		}

		name = playlist.Name

		for _, qt := range playlist.Tracks.Items {
			if qt.ID.String() == "" {
				continue
			}
			tracks = append(tracks, Track{
				ID:     qt.ID.String(),
				Title:  qt.Title,
				Artist: qt.Performer.Name,
			})
		}

		offset += len(playlist.Tracks.Items)
		if len(playlist.Tracks.Items) == 0 || offset >= playlist.Tracks.Total {
			break
		}
	}

	return name, tracks, nil
}

// SearchTrack resolves a (title, artist) pair to a Qobuz track id.
//
// Qobuz exposes a single search surface, so the fallback tier reissues the
// raw, unsanitized names against the same endpoint when the primary call
// fails at the HTTP level.
func (s *QobuzService) SearchTrack(ctx context.Context, title, artist string) (string, error) {
	id, err := s.searchOnce(ctx, shared.BuildSearchQuery(title, artist))
	if err == nil {
		return id, nil
	}

	if isAPIError(err) {
		return s.searchOnce(ctx, strings.TrimSpace(artist+" "+title))
	}

	return "", err
}

func (s *QobuzService) searchOnce(ctx context.Context, query string) (string, error) {
	endpoint := fmt.Sprintf("/track/search?query=%s&limit=1", url.QueryEscape(query))

	var response struct {
		Tracks struct {
			Items []qobuzTrack `json:"items"`
		} `json:"tracks"`
	}

	if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		return "", err
	}

	if len(response.Tracks.Items) == 0 || response.Tracks.Items[0].ID.String() == "" {
		return "", fmt.Errorf("%w: no results for %q", shared.ErrTrackNotFound, query)
	}

	return response.Tracks.Items[0].ID.String(), nil
}

// CreatePlaylist creates a new private playlist via the form endpoint.
func (s *QobuzService) CreatePlaylist(ctx context.Context, name, description string) (string, error) {
	form := url.Values{
		"name":        {name},
		"description": {description},
		"is_public":   {"false"},
	}

	var created struct {
		ID json.Number `json:"id"`
	}

	if err := s.doRequest(ctx, http.MethodPost, "/playlist/create", form, &created); err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrPlaylistCreate, err)
	}

	if created.ID.String() == "" {
		return "", fmt.Errorf("%w: response contained no playlist id", shared.ErrPlaylistCreate)
	}

	return created.ID.String(), nil
}

// AddTrackToPlaylist appends a single track via the form endpoint.
func (s *QobuzService) AddTrackToPlaylist(ctx context.Context, playlistID, trackID string) error {
	form := url.Values{
		"playlist_id":  {playlistID},
		"track_ids":    {trackID},
		"no_duplicate": {"false"},
	}

	return s.doRequest(ctx, http.MethodPost, "/playlist/addTracks", form, nil)
}
