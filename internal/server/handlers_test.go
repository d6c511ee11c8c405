package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/crossfade/internal/services"
	"github.com/desertthunder/crossfade/internal/shared"
	"github.com/desertthunder/crossfade/internal/tasks"
)

type stubService struct {
	name      string
	authed    bool
	playlists []services.Playlist
	listErr   error
}

func (s *stubService) Name() string { return s.name }
func (s *stubService) Authenticate(ctx context.Context, credentials map[string]string) error {
	return nil
}
func (s *stubService) IsAuthenticated(ctx context.Context) bool { return s.authed }
func (s *stubService) ValidToken(ctx context.Context) (string, error) {
	if !s.authed {
		return "", shared.ErrNotAuthenticated
	}
	return "token", nil
}
func (s *stubService) GetPlaylists(ctx context.Context) ([]services.Playlist, error) {
	return s.playlists, s.listErr
}
func (s *stubService) GetPlaylistTracks(ctx context.Context, playlistID, playlistType string) (string, []services.Track, error) {
	return "", nil, nil
}
func (s *stubService) SearchTrack(ctx context.Context, title, artist string) (string, error) {
	return "", shared.ErrTrackNotFound
}
func (s *stubService) CreatePlaylist(ctx context.Context, name, description string) (string, error) {
	return "pl", nil
}
func (s *stubService) AddTrackToPlaylist(ctx context.Context, playlistID, trackID string) error {
	return nil
}

type stubEngine struct {
	result  *tasks.TransferResult
	err     error
	lastKey string
}

func (e *stubEngine) Transfer(ctx context.Context, source, dest services.Service, playlistID, playlistType, userKey string, progress chan<- tasks.ProgressUpdate) (*tasks.TransferResult, error) {
	e.lastKey = userKey
	return e.result, e.err
}

func newTestServer(t *testing.T, engine tasks.TransferEngine, store *tasks.ProgressStore) *httptest.Server {
	t.Helper()

	registry := map[string]services.Service{
		"Spotify": &stubService{
			name:   "Spotify",
			authed: true,
			playlists: []services.Playlist{
				{ID: "p1", Name: "Road Trip", TrackCount: 3, Type: services.PlaylistTypeStandard},
			},
		},
		"Tidal": &stubService{name: "Tidal"},
	}

	logger := log.New(io.Discard)
	handler := NewAPIHandler(registry, engine, store, logger)

	router := NewBasicRouter()
	router.Handler(handler)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func TestAPIHandlerHealth(t *testing.T) {
	server := newTestServer(t, &stubEngine{}, tasks.NewProgressStore())

	resp, err := http.Get(server.URL + "/health")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Status   string          `json:"status"`
		Services map[string]bool `json:"services"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("expected ok, got %q", body.Status)
	}
	if !body.Services["Spotify"] || body.Services["Tidal"] {
		t.Errorf("unexpected connection states: %v", body.Services)
	}
}

func TestAPIHandlerPlaylists(t *testing.T) {
	server := newTestServer(t, &stubEngine{}, tasks.NewProgressStore())

	t.Run("lists for a known service", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/api/playlists?service=Spotify")
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		var body struct {
			Service   string              `json:"service"`
			Playlists []services.Playlist `json:"playlists"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if len(body.Playlists) != 1 || body.Playlists[0].ID != "p1" {
			t.Errorf("unexpected playlists: %+v", body.Playlists)
		}
	})

	t.Run("unknown service is a 400", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/api/playlists?service=Napster")
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", resp.StatusCode)
		}
	})
}

func TestAPIHandlerTransfer(t *testing.T) {
	t.Run("synchronous transfer returns the result", func(t *testing.T) {
		engine := &stubEngine{
			result: &tasks.TransferResult{
				Success:     true,
				PlaylistID:  "dest-pl",
				TracksAdded: 2,
				TotalTracks: 3,
			},
		}
		server := newTestServer(t, engine, tasks.NewProgressStore())

		payload := `{"source":"Spotify","dest":"Tidal","playlist_id":"p1","user":"u-1"}`
		resp, err := http.Post(server.URL+"/api/transfer", "application/json", strings.NewReader(payload))
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}

		var body struct {
			User   string               `json:"user"`
			Result tasks.TransferResult `json:"result"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if body.User != "u-1" || engine.lastKey != "u-1" {
			t.Errorf("expected caller-provided user key forwarded, got %q / %q", body.User, engine.lastKey)
		}
		if !body.Result.Success || body.Result.TracksAdded != 2 {
			t.Errorf("unexpected result: %+v", body.Result)
		}
	})

	t.Run("generates a user key when absent", func(t *testing.T) {
		engine := &stubEngine{result: &tasks.TransferResult{}}
		server := newTestServer(t, engine, tasks.NewProgressStore())

		payload := `{"source":"Spotify","dest":"Tidal","playlist_id":"p1"}`
		resp, err := http.Post(server.URL+"/api/transfer", "application/json", strings.NewReader(payload))
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		if engine.lastKey == "" {
			t.Error("expected a generated user key")
		}
	})

	t.Run("missing playlist id is a 400", func(t *testing.T) {
		server := newTestServer(t, &stubEngine{}, tasks.NewProgressStore())

		resp, err := http.Post(server.URL+"/api/transfer", "application/json",
			strings.NewReader(`{"source":"Spotify","dest":"Tidal"}`))
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", resp.StatusCode)
		}
	})
}

func TestAPIHandlerProgress(t *testing.T) {
	store := tasks.NewProgressStore()
	store.Set("u-1", tasks.Snapshot{Percent: 40, Added: 4, Total: 10, CurrentTrack: "Song - Artist"})

	server := newTestServer(t, &stubEngine{}, store)

	t.Run("returns the live snapshot", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/api/progress?user=u-1")
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		var snap tasks.Snapshot
		if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if snap.Percent != 40 || snap.Added != 4 {
			t.Errorf("unexpected snapshot: %+v", snap)
		}
	})

	t.Run("unknown user yields the zero snapshot", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/api/progress?user=nobody")
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}

		var snap tasks.Snapshot
		if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if snap != (tasks.Snapshot{}) {
			t.Errorf("expected zero snapshot, got %+v", snap)
		}
	})
}
