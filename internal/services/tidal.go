// Tidal API v2 implementation of [Service]
//
// The v2 API speaks JSON:API (application/vnd.api+json): resources arrive as
// {data, included, links} envelopes and related resources are joined through
// relationship identifiers. Most catalog endpoints require a countryCode.
//
// https://developer.tidal.com/apiref
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/desertthunder/crossfade/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	tidalAuthURL  = "https://login.tidal.com/authorize"
	tidalTokenURL = "https://auth.tidal.com/v1/oauth2/token"
	tidalBaseURL  = "https://openapi.tidal.com/v2"
)

// tidalResourceID is a JSON:API resource identifier.
type tidalResourceID struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// tidalResource is a full JSON:API resource with the attribute subset the
// adapter reads. Unused attributes are left to the decoder to discard.
type tidalResource struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Attributes struct {
		Name          string `json:"name"`
		Title         string `json:"title"`
		NumberOfItems int    `json:"numberOfItems"`
	} `json:"attributes"`
	Relationships struct {
		Artists struct {
			Data []tidalResourceID `json:"data"`
		} `json:"artists"`
	} `json:"relationships"`
}

// tidalDocument is the JSON:API envelope. Data may be a single resource or a
// list depending on the endpoint, so it is captured raw and decoded per call.
type tidalDocument struct {
	Data     json.RawMessage `json:"data"`
	Included []tidalResource `json:"included"`
	Links    struct {
		Next string `json:"next"`
	} `json:"links"`
	Errors []tidalError `json:"errors"`
}

// tidalError is one entry of a JSON:API error document.
type tidalError struct {
	Status string `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func (e tidalError) String() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s %s: %s", e.Status, e.Title, e.Detail)
	}
	return fmt.Sprintf("%s %s", e.Status, e.Title)
}

// TidalService implements [Service] for the Tidal API v2.
//
// Tidal uses the authorization-code flow with PKCE. The verifier generated for
// GetAuthURL is held on the service until the matching Authenticate call
// exchanges the code.
type TidalService struct {
	config      *oauth2.Config
	tokens      *TokenManager
	httpClient  *http.Client
	limiter     *rate.Limiter
	baseURL     string
	countryCode string
	verifier    string
}

// NewTidalService creates a Tidal service from the configured OAuth2 client
// credentials and country code.
func NewTidalService(cfg shared.TidalConfig) (*TidalService, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("%w: missing tidal client_id", shared.ErrMissingCredentials)
	}

	redirectURI := cfg.RedirectURI
	if redirectURI == "" {
		redirectURI = "http://localhost:3000/callback"
	}

	countryCode := cfg.CountryCode
	if countryCode == "" {
		countryCode = "US"
	}

	config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       []string{"user.read", "playlists.read", "playlists.write", "collection.read"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  tidalAuthURL,
			TokenURL: tidalTokenURL,
		},
	}

	refreshForm := func(refreshToken string) url.Values {
		return url.Values{
			"grant_type":    {"refresh_token"},
			"refresh_token": {refreshToken},
			"client_id":     {cfg.ClientID},
		}
	}

	return &TidalService{
		config:      config,
		tokens:      NewTokenManager(cfg.ClientID, cfg.ClientSecret, tidalTokenURL, refreshForm),
		httpClient:  http.DefaultClient,
		limiter:     rate.NewLimiter(rate.Every(250*time.Millisecond), 3),
		baseURL:     tidalBaseURL,
		countryCode: countryCode,
	}, nil
}

func (s *TidalService) Name() string {
	return "Tidal"
}

// OAuthConfig exposes the OAuth2 config for the callback server.
func (s *TidalService) OAuthConfig() *oauth2.Config {
	return s.config
}

// GetAuthURL returns the PKCE authorization URL and remembers the generated
// verifier for the subsequent code exchange.
func (s *TidalService) GetAuthURL(state string) string {
	s.verifier = oauth2.GenerateVerifier()
	return s.config.AuthCodeURL(state, oauth2.S256ChallengeOption(s.verifier))
}

// ExchangeOptions returns the PKCE verifier option for the code exchange
// matching the most recent GetAuthURL call.
func (s *TidalService) ExchangeOptions() []oauth2.AuthCodeOption {
	if s.verifier == "" {
		return nil
	}
	return []oauth2.AuthCodeOption{oauth2.VerifierOption(s.verifier)}
}

// Authenticate populates the session credential record.
//
// Accepts an "auth_code" from the PKCE flow (an explicit "code_verifier"
// overrides the one remembered by GetAuthURL), or a pre-obtained
// "access_token" with optional "refresh_token".
func (s *TidalService) Authenticate(ctx context.Context, credentials map[string]string) error {
	if code, ok := credentials["auth_code"]; ok && code != "" {
		verifier := credentials["code_verifier"]
		if verifier == "" {
			verifier = s.verifier
		}
		if verifier == "" {
			return fmt.Errorf("%w: missing PKCE code verifier", shared.ErrMissingCredentials)
		}

		token, err := s.config.Exchange(ctx, code, oauth2.VerifierOption(verifier))
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
		s.tokens.SetCredentials(Credentials{
			AccessToken:  accessToken,
			RefreshToken: credentials["refresh_token"],
		})
		return s.resolveOwner(ctx)
	}

	return fmt.Errorf("%w: missing auth_code or access_token", shared.ErrMissingCredentials)
}

// Restore replaces the session credential record with a persisted one.
func (s *TidalService) Restore(creds Credentials) {
	s.tokens.SetCredentials(creds)
}

// Credentials returns a copy of the current session credential record.
func (s *TidalService) Credentials() Credentials {
	return s.tokens.Credentials()
}

// Disconnect destroys the session credential record.
func (s *TidalService) Disconnect() {
	s.tokens.Clear()
}

func (s *TidalService) IsAuthenticated(ctx context.Context) bool {
	_, err := s.ValidToken(ctx)
	return err == nil
}

func (s *TidalService) ValidToken(ctx context.Context) (string, error) {
	return s.tokens.ValidToken(ctx)
}

// resolveOwner fetches /users/me and records the numeric user id, required
// for playlist listing and creation.
func (s *TidalService) resolveOwner(ctx context.Context) error {
	doc, err := s.doRequest(ctx, http.MethodGet, "/users/me", nil)
	if err != nil {
		return fmt.Errorf("%w: failed to resolve user profile: %v", shared.ErrAuthFailed, err)
	}

	var user tidalResourceID
	if err := json.Unmarshal(doc.Data, &user); err != nil || user.ID == "" {
		return fmt.Errorf("%w: user profile response contained no id", shared.ErrAuthFailed)
	}

	creds := s.tokens.Credentials()
	creds.OwnerID = user.ID
	s.tokens.SetCredentials(creds)
	return nil
}

// doRequest performs an authenticated, rate-limited JSON:API request.
// Non-2xx responses surface the JSON:API error document when one is present.
func (s *TidalService) doRequest(ctx context.Context, method, endpoint string, body any) (*tidalDocument, error) {
	token, err := s.ValidToken(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.api+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/vnd.api+json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	var doc tidalDocument
	decodeErr := json.NewDecoder(resp.Body).Decode(&doc)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr == nil && len(doc.Errors) > 0 {
			return nil, fmt.Errorf("%w: tidal returned status %d (%s)", shared.ErrAPIRequest, resp.StatusCode, doc.Errors[0])
		}
		return nil, fmt.Errorf("%w: tidal returned status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	if decodeErr != nil && resp.StatusCode != http.StatusNoContent {
		return nil, fmt.Errorf("failed to decode response: %w", decodeErr)
	}

	return &doc, nil
}

// pageDocuments walks a JSON:API cursor-paginated endpoint until links.next
// is absent, invoking visit for every page.
func (s *TidalService) pageDocuments(ctx context.Context, endpoint string, visit func(*tidalDocument) error) error {
	for endpoint != "" {
		doc, err := s.doRequest(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}

		if err := visit(doc); err != nil {
			return err
		}

		endpoint = doc.Links.Next
	}
	return nil
}

// GetPlaylists retrieves the user's playlists via the owners filter. Tidal
// exposes no cheap count for the favorites library, so the liked
// pseudo-playlist is always offered.
func (s *TidalService) GetPlaylists(ctx context.Context) ([]Playlist, error) {
	owner := s.tokens.Credentials().OwnerID
	if owner == "" {
		if err := s.resolveOwner(ctx); err != nil {
			return nil, err
		}
		owner = s.tokens.Credentials().OwnerID
	}

	playlists := []Playlist{{
		ID:         LikedPlaylistID,
		Name:       "My Collection Tracks",
		TrackCount: -1,
		Type:       PlaylistTypeLiked,
	}}

	endpoint := fmt.Sprintf("/playlists?countryCode=%s&filter[owners.id]=%s", s.countryCode, url.QueryEscape(owner))
	err := s.pageDocuments(ctx, endpoint, func(doc *tidalDocument) error {
		var resources []tidalResource
		if err := json.Unmarshal(doc.Data, &resources); err != nil {
			return fmt.Errorf("failed to decode playlist page: %w", err)
		}

		for _, r := range resources {
			playlists = append(playlists, Playlist{
				ID:         r.ID,
				Name:       r.Attributes.Name,
				TrackCount: r.Attributes.NumberOfItems,
				Type:       PlaylistTypeStandard,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return playlists, nil
}

// GetPlaylistTracks retrieves the full track list of a playlist or the
// favorites library, joining artist names through the included resources.
func (s *TidalService) GetPlaylistTracks(ctx context.Context, playlistID, playlistType string) (string, []Track, error) {
	if playlistID == LikedPlaylistID || playlistType == PlaylistTypeLiked {
		endpoint := fmt.Sprintf("/userCollections/me/relationships/tracks?countryCode=%s&include=tracks,tracks.artists", s.countryCode)
		tracks, err := s.pageTracks(ctx, endpoint)
		if err != nil {
			return "", nil, err
		}
		return "My Collection Tracks (from Tidal)", tracks, nil
	}

	doc, err := s.doRequest(ctx, http.MethodGet, fmt.Sprintf("/playlists/%s?countryCode=%s", playlistID, s.countryCode), nil)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", shared.ErrPlaylistNotFound, err)
	}

	var playlist tidalResource
	if err := json.Unmarshal(doc.Data, &playlist); err != nil {
		return "", nil, fmt.Errorf("failed to decode playlist: %w", err)
	}

	endpoint := fmt.Sprintf("/playlists/%s/relationships/items?countryCode=%s&include=items,items.artists", playlistID, s.countryCode)
	tracks, err := s.pageTracks(ctx, endpoint)
	if err != nil {
		return "", nil, err
	}

	return playlist.Attributes.Name, tracks, nil
}

// pageTracks walks a track relationship listing, resolving each identifier
// against the included track and artist resources. Identifiers without a
// matching included track (regionally unavailable entries) are dropped.
func (s *TidalService) pageTracks(ctx context.Context, endpoint string) ([]Track, error) {
	var tracks []Track

	err := s.pageDocuments(ctx, endpoint, func(doc *tidalDocument) error {
		var refs []tidalResourceID
		if err := json.Unmarshal(doc.Data, &refs); err != nil {
			return fmt.Errorf("failed to decode track page: %w", err)
		}

		included := map[string]tidalResource{}
		artists := map[string]string{}
		for _, r := range doc.Included {
			switch r.Type {
			case "tracks":
				included[r.ID] = r
			case "artists":
				artists[r.ID] = r.Attributes.Name
			}
		}

		for _, ref := range refs {
			resource, ok := included[ref.ID]
			if !ok || resource.Attributes.Title == "" {
				continue
			}

			track := Track{ID: ref.ID, Title: resource.Attributes.Title}
			if refs := resource.Relationships.Artists.Data; len(refs) > 0 {
				track.Artist = artists[refs[0].ID]
			}
			tracks = append(tracks, track)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return tracks, nil
}

// SearchTrack resolves a (title, artist) pair to a Tidal track id.
//
// The primary call hits the tracks relationship of the search resource with
// the sanitized query. When that call fails at the HTTP level the fallback
// hits topHits with the raw, unsanitized names and takes the first track
// among the mixed result types.
func (s *TidalService) SearchTrack(ctx context.Context, title, artist string) (string, error) {
	query := shared.BuildSearchQuery(title, artist)
	endpoint := fmt.Sprintf("/searchResults/%s/relationships/tracks?countryCode=%s", url.PathEscape(query), s.countryCode)

	doc, err := s.doRequest(ctx, http.MethodGet, endpoint, nil)
	if err == nil {
		var refs []tidalResourceID
		if jsonErr := json.Unmarshal(doc.Data, &refs); jsonErr == nil && len(refs) > 0 {
			return refs[0].ID, nil
		}
		return "", fmt.Errorf("%w: no results for %q", shared.ErrTrackNotFound, query)
	}

	if !isAPIError(err) {
		return "", err
	}

	raw := strings.TrimSpace(artist + " " + title)
	endpoint = fmt.Sprintf("/searchResults/%s/relationships/topHits?countryCode=%s", url.PathEscape(raw), s.countryCode)

	doc, err = s.doRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}

	var refs []tidalResourceID
	if jsonErr := json.Unmarshal(doc.Data, &refs); jsonErr == nil {
		for _, ref := range refs {
			if ref.Type == "tracks" {
				return ref.ID, nil
			}
		}
	}

	return "", fmt.Errorf("%w: no results for %q", shared.ErrTrackNotFound, raw)
}

// CreatePlaylist creates a new private playlist via a JSON:API payload.
func (s *TidalService) CreatePlaylist(ctx context.Context, name, description string) (string, error) {
	body := map[string]any{
		"data": map[string]any{
			"type": "playlists",
			"attributes": map[string]any{
				"name":        name,
				"description": description,
				"privacy":     "PRIVATE",
			},
		},
	}

	doc, err := s.doRequest(ctx, http.MethodPost, "/playlists?countryCode="+s.countryCode, body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrPlaylistCreate, err)
	}

	var created tidalResourceID
	if err := json.Unmarshal(doc.Data, &created); err != nil || created.ID == "" {
		return "", fmt.Errorf("%w: response contained no playlist id", shared.ErrPlaylistCreate)
	}

	return created.ID, nil
}

// AddTrackToPlaylist appends a single track to the playlist items
// relationship.
func (s *TidalService) AddTrackToPlaylist(ctx context.Context, playlistID, trackID string) error {
	body := map[string]any{
		"data": []map[string]string{
			{"id": trackID, "type": "tracks"},
		},
	}

	endpoint := fmt.Sprintf("/playlists/%s/relationships/items?countryCode=%s", playlistID, s.countryCode)
	_, err := s.doRequest(ctx, http.MethodPost, endpoint, body)
	return err
}
