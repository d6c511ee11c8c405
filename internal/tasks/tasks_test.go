package tasks

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/desertthunder/crossfade/internal/services"
	"github.com/desertthunder/crossfade/internal/shared"
)

// mockService implements services.Service with scriptable behavior.
type mockService struct {
	name            string
	playlistName    string
	tracks          []services.Track
	searchIDs       map[string]string // title -> destination track id
	createID        string
	createErr       error
	appendErr       map[string]error // track id -> append error
	tokenErrAfter   int              // fail ValidToken after N calls (0 = never)
	tokenCalls      int
	searchCalls     int
	appended        []string
}

func (m *mockService) Name() string { return m.name }

func (m *mockService) Authenticate(ctx context.Context, credentials map[string]string) error {
	return nil
}

func (m *mockService) IsAuthenticated(ctx context.Context) bool { return true }

func (m *mockService) ValidToken(ctx context.Context) (string, error) {
	m.tokenCalls++
	if m.tokenErrAfter > 0 && m.tokenCalls > m.tokenErrAfter {
		return "", shared.ErrRefreshFailed
	}
	return "token", nil
}

func (m *mockService) GetPlaylists(ctx context.Context) ([]services.Playlist, error) {
	return nil, nil
}

func (m *mockService) GetPlaylistTracks(ctx context.Context, playlistID, playlistType string) (string, []services.Track, error) {
	if m.playlistName == "" {
		return "", nil, shared.ErrPlaylistNotFound
	}
	return m.playlistName, m.tracks, nil
}

func (m *mockService) SearchTrack(ctx context.Context, title, artist string) (string, error) {
	m.searchCalls++
	if id, ok := m.searchIDs[title]; ok {
		return id, nil
	}
	return "", fmt.Errorf("%w: %s", shared.ErrTrackNotFound, title)
}

func (m *mockService) CreatePlaylist(ctx context.Context, name, description string) (string, error) {
	if m.createErr != nil {
		return "", m.createErr
	}
	return m.createID, nil
}

func (m *mockService) AddTrackToPlaylist(ctx context.Context, playlistID, trackID string) error {
	if err := m.appendErr[trackID]; err != nil {
		return err
	}
	m.appended = append(m.appended, trackID)
	return nil
}

// mapCache is an in-memory MatchCacher.
type mapCache struct {
	entries map[string]string
	puts    int
}

func (c *mapCache) key(service, title, artist string) string {
	return service + "|" + title + "|" + artist
}

func (c *mapCache) Get(ctx context.Context, service, title, artist string) (string, bool) {
	id, ok := c.entries[c.key(service, title, artist)]
	return id, ok
}

func (c *mapCache) Put(ctx context.Context, service, title, artist, trackID string) error {
	if c.entries == nil {
		c.entries = map[string]string{}
	}
	c.entries[c.key(service, title, artist)] = trackID
	c.puts++
	return nil
}

func sampleTracks(n int) []services.Track {
	tracks := make([]services.Track, n)
	for i := range tracks {
		tracks[i] = services.Track{
			ID:     fmt.Sprintf("src-%d", i),
			Title:  fmt.Sprintf("Song %d", i),
			Artist: "Artist",
		}
	}
	return tracks
}

func TestTransfer(t *testing.T) {
	ctx := context.Background()

	t.Run("partial match produces a partial result", func(t *testing.T) {
		source := &mockService{
			name:         "Spotify",
			playlistName: "Road Trip",
			tracks: []services.Track{
				{ID: "s1", Title: "First", Artist: "A"},
				{ID: "s2", Title: "Second", Artist: "B"},
				{ID: "s3", Title: "Third", Artist: "C"},
			},
		}
		dest := &mockService{
			name:     "Tidal",
			createID: "dest-pl",
			searchIDs: map[string]string{
				"First": "d1",
				"Third": "d3",
			},
		}

		store := NewProgressStore()
		engine := NewPlaylistEngine(store, nil)

		result, err := engine.Transfer(ctx, source, dest, "p1", services.PlaylistTypeStandard, "user-1", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !result.Success {
			t.Error("expected success when at least one track was added")
		}
		if result.TracksAdded != 2 || result.TracksFailed != 1 {
			t.Errorf("expected 2 added / 1 failed, got %d / %d", result.TracksAdded, result.TracksFailed)
		}
		if result.PlaylistID != "dest-pl" || result.PlaylistName != "Road Trip" {
			t.Errorf("unexpected result identity: %+v", result)
		}
		if len(result.NotFound) != 1 || result.NotFound[0] != "Second - B" {
			t.Errorf("expected the unmatched track in the sample, got %v", result.NotFound)
		}
		if got := dest.appended; len(got) != 2 || got[0] != "d1" || got[1] != "d3" {
			t.Errorf("expected source order preserved for appends, got %v", got)
		}

		snap := store.Get("user-1")
		if snap.Percent != 100 || !snap.Done || snap.Added != 2 {
			t.Errorf("expected completed snapshot, got %+v", snap)
		}
	})

	t.Run("append failure counts as failed but keeps going", func(t *testing.T) {
		source := &mockService{
			name:         "Spotify",
			playlistName: "Mix",
			tracks:       sampleTracks(3),
		}
		dest := &mockService{
			name:     "Qobuz",
			createID: "dest-pl",
			searchIDs: map[string]string{
				"Song 0": "d0",
				"Song 1": "d1",
				"Song 2": "d2",
			},
			appendErr: map[string]error{"d1": errors.New("rejected")},
		}

		engine := NewPlaylistEngine(NewProgressStore(), nil)

		result, err := engine.Transfer(ctx, source, dest, "p1", services.PlaylistTypeStandard, "user-1", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if result.TracksAdded != 2 || result.TracksFailed != 1 {
			t.Errorf("expected 2 added / 1 failed, got %d / %d", result.TracksAdded, result.TracksFailed)
		}
		// append failures are not missing matches, so the sample stays empty
		if len(result.NotFound) != 0 {
			t.Errorf("expected empty not-found sample, got %v", result.NotFound)
		}
	})

	t.Run("create failure aborts with the snapshot still at zero", func(t *testing.T) {
		source := &mockService{
			name:         "Spotify",
			playlistName: "Mix",
			tracks:       sampleTracks(5),
		}
		dest := &mockService{
			name:      "Tidal",
			createErr: shared.ErrPlaylistCreate,
		}

		store := NewProgressStore()
		engine := NewPlaylistEngine(store, nil)

		_, err := engine.Transfer(ctx, source, dest, "p1", services.PlaylistTypeStandard, "user-1", nil)
		if !errors.Is(err, shared.ErrPlaylistCreate) {
			t.Fatalf("expected ErrPlaylistCreate, got %v", err)
		}
		if dest.searchCalls != 0 {
			t.Errorf("expected no track work after failed create, got %d searches", dest.searchCalls)
		}
		if snap := store.Get("user-1"); snap != (Snapshot{}) {
			t.Errorf("expected zero snapshot after aborted transfer, got %+v", snap)
		}
	})

	t.Run("destination token is revalidated every twenty tracks", func(t *testing.T) {
		searchIDs := map[string]string{}
		for i := 0; i < 40; i++ {
			searchIDs[fmt.Sprintf("Song %d", i)] = fmt.Sprintf("d%d", i)
		}

		source := &mockService{
			name:         "Spotify",
			playlistName: "Long Mix",
			tracks:       sampleTracks(40),
		}
		dest := &mockService{
			name:      "Tidal",
			createID:  "dest-pl",
			searchIDs: searchIDs,
		}

		engine := NewPlaylistEngine(NewProgressStore(), nil)

		result, err := engine.Transfer(ctx, source, dest, "p1", services.PlaylistTypeStandard, "user-1", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.TracksAdded != 40 {
			t.Errorf("expected all tracks added, got %d", result.TracksAdded)
		}
		// checkpoints at track 1 and track 21
		if dest.tokenCalls != 2 {
			t.Errorf("expected 2 token checkpoints, got %d", dest.tokenCalls)
		}
	})

	t.Run("failed checkpoint aborts the loop", func(t *testing.T) {
		source := &mockService{
			name:         "Spotify",
			playlistName: "Long Mix",
			tracks:       sampleTracks(40),
		}
		dest := &mockService{
			name:          "Tidal",
			createID:      "dest-pl",
			searchIDs:     map[string]string{},
			tokenErrAfter: 1,
		}
		for i := 0; i < 40; i++ {
			dest.searchIDs[fmt.Sprintf("Song %d", i)] = fmt.Sprintf("d%d", i)
		}

		engine := NewPlaylistEngine(NewProgressStore(), nil)

		result, err := engine.Transfer(ctx, source, dest, "p1", services.PlaylistTypeStandard, "user-1", nil)
		if !errors.Is(err, shared.ErrRefreshFailed) {
			t.Fatalf("expected refresh failure surfaced, got %v", err)
		}
		if result == nil || len(dest.appended) != 20 {
			t.Errorf("expected exactly the first twenty tracks appended, got %d", len(dest.appended))
		}
	})

	t.Run("empty playlist completes without success", func(t *testing.T) {
		source := &mockService{name: "Spotify", playlistName: "Empty"}
		dest := &mockService{name: "Tidal", createID: "dest-pl"}

		store := NewProgressStore()
		engine := NewPlaylistEngine(store, nil)

		result, err := engine.Transfer(ctx, source, dest, "p1", services.PlaylistTypeStandard, "user-1", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Success {
			t.Error("expected zero-track transfer to not count as success")
		}
		if snap := store.Get("user-1"); snap.Percent != 100 || !snap.Done {
			t.Errorf("expected snapshot pinned at 100, got %+v", snap)
		}
	})

	t.Run("not-found sample is capped", func(t *testing.T) {
		source := &mockService{
			name:         "Spotify",
			playlistName: "Obscure",
			tracks:       sampleTracks(15),
		}
		dest := &mockService{name: "Tidal", createID: "dest-pl"}

		engine := NewPlaylistEngine(NewProgressStore(), nil)

		result, err := engine.Transfer(ctx, source, dest, "p1", services.PlaylistTypeStandard, "user-1", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.TracksFailed != 15 {
			t.Errorf("expected 15 failed, got %d", result.TracksFailed)
		}
		if len(result.NotFound) != notFoundSampleLimit {
			t.Errorf("expected sample capped at %d, got %d", notFoundSampleLimit, len(result.NotFound))
		}
	})

	t.Run("progress steps are monotonic", func(t *testing.T) {
		source := &mockService{
			name:         "Spotify",
			playlistName: "Mix",
			tracks:       sampleTracks(10),
		}
		dest := &mockService{name: "Tidal", createID: "dest-pl", searchIDs: map[string]string{}}
		for i := 0; i < 10; i++ {
			dest.searchIDs[fmt.Sprintf("Song %d", i)] = fmt.Sprintf("d%d", i)
		}

		progress := make(chan ProgressUpdate, 64)
		engine := NewPlaylistEngine(NewProgressStore(), nil)

		if _, err := engine.Transfer(ctx, source, dest, "p1", services.PlaylistTypeStandard, "user-1", progress); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		close(progress)

		lastStep := 0
		for update := range progress {
			if update.Phase != MatchTracks {
				continue
			}
			if update.Step <= lastStep {
				t.Fatalf("progress step went backwards: %d after %d", update.Step, lastStep)
			}
			lastStep = update.Step
		}
		if lastStep != 10 {
			t.Errorf("expected final step 10, got %d", lastStep)
		}
	})

	t.Run("match cache short-circuits the search", func(t *testing.T) {
		source := &mockService{
			name:         "Spotify",
			playlistName: "Mix",
			tracks: []services.Track{
				{ID: "s1", Title: "Known", Artist: "A"},
				{ID: "s2", Title: "Fresh", Artist: "B"},
			},
		}
		dest := &mockService{
			name:      "Tidal",
			createID:  "dest-pl",
			searchIDs: map[string]string{"Fresh": "d2"},
		}

		cache := &mapCache{entries: map[string]string{"Tidal|Known|A": "d1"}}
		engine := NewPlaylistEngine(NewProgressStore(), cache)

		result, err := engine.Transfer(ctx, source, dest, "p1", services.PlaylistTypeStandard, "user-1", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.TracksAdded != 2 {
			t.Errorf("expected both tracks added, got %d", result.TracksAdded)
		}
		if dest.searchCalls != 1 {
			t.Errorf("expected cached track to skip search, got %d calls", dest.searchCalls)
		}
		if cache.puts != 1 {
			t.Errorf("expected one cache write for the fresh match, got %d", cache.puts)
		}
	})
}
