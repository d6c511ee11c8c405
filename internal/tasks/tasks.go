// package tasks implements playlist transfer operations between music services.
//
// The core abstraction is TransferEngine, which orchestrates moving one playlist
// from a source service to a destination service. Operations emit progress
// updates via channels for non-blocking status reporting to CLI/UI layers and
// write polling snapshots to a ProgressStore for the HTTP layer.
package tasks

import (
	"context"
	"fmt"
	"math"

	"github.com/desertthunder/crossfade/internal/services"
	"github.com/desertthunder/crossfade/internal/shared"
)

const (
	// tokenCheckInterval is how many tracks pass between destination token
	// revalidations during the match loop.
	tokenCheckInterval = 20

	// notFoundSampleLimit caps the not-found sample carried on the result.
	notFoundSampleLimit = 10
)

// TransferResult contains all data from a full transfer operation.
//
// Success means at least one track landed on the destination; a playlist
// created with zero appended tracks is not a successful transfer.
type TransferResult struct {
	Success       bool     `json:"success"`
	PlaylistID    string   `json:"playlist_id"`
	PlaylistName  string   `json:"playlist_name"`
	SourceService string   `json:"source_service"`
	DestService   string   `json:"dest_service"`
	TotalTracks   int      `json:"total_tracks"`
	TracksAdded   int      `json:"tracks_added"`
	TracksFailed  int      `json:"tracks_failed"`
	NotFound      []string `json:"not_found,omitempty"` // sample of unmatched track labels, capped
}

// MatchCacher persists successful (service, title, artist) -> track id
// resolutions so repeated transfers skip the destination search call.
type MatchCacher interface {
	Get(ctx context.Context, service, title, artist string) (string, bool)
	Put(ctx context.Context, service, title, artist, trackID string) error
}

// TransferEngine defines operations for moving playlists between services.
type TransferEngine interface {
	// Transfer moves one playlist from source to dest: fetches the full track
	// list, creates the destination playlist, then matches and appends tracks
	// one at a time. userKey scopes the polling snapshots in the progress store.
	Transfer(ctx context.Context, source, dest services.Service, playlistID, playlistType, userKey string, progress chan<- ProgressUpdate) (*TransferResult, error)
}

// PlaylistEngine implements TransferEngine.
// Holds the shared progress store and an optional match cache.
type PlaylistEngine struct {
	store *ProgressStore
	cache MatchCacher
}

// NewPlaylistEngine creates a PlaylistEngine. cache may be nil, in which case
// every track goes through the destination search endpoint.
func NewPlaylistEngine(store *ProgressStore, cache MatchCacher) *PlaylistEngine {
	return &PlaylistEngine{store: store, cache: cache}
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func (e *PlaylistEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
		// Sent successfully
	default:
		// Channel full or closed, skip this update
	}
}

func (e *PlaylistEngine) setSnapshot(key string, snap Snapshot) {
	if e.store == nil || key == "" {
		return
	}
	e.store.Set(key, snap)
}

// Transfer performs a full source → destination playlist transfer.
//
// Fetch and create failures are fatal and abort before any track work, leaving
// the progress snapshot at zero. Per-track failures (no match found, append
// rejected) are recorded and skipped; the loop always runs to the end of the
// track list. Every tokenCheckInterval tracks the destination token is
// revalidated so long transfers survive token expiry mid-loop.
func (e *PlaylistEngine) Transfer(ctx context.Context, source, dest services.Service, playlistID, playlistType, userKey string, progress chan<- ProgressUpdate) (*TransferResult, error) {
	if source == nil || dest == nil {
		return nil, fmt.Errorf("%w: transfer requires a source and destination service", shared.ErrServiceUnavailable)
	}

	if e.store != nil && userKey != "" {
		e.store.Reset(userKey)
	}

	e.sendProgress(progress, fetchSourceUpdate(source.Name()))

	name, tracks, err := source.GetPlaylistTracks(ctx, playlistID, playlistType)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch source playlist: %w", err)
	}

	total := len(tracks)
	result := &TransferResult{
		PlaylistName:  name,
		SourceService: source.Name(),
		DestService:   dest.Name(),
		TotalTracks:   total,
	}

	e.sendProgress(progress, foundPlaylistUpdate(name, total))
	e.sendProgress(progress, createPlaylistUpdate(dest.Name(), name))

	description := fmt.Sprintf("Transferred from %s with crossfade", source.Name())
	destID, err := dest.CreatePlaylist(ctx, name, description)
	if err != nil {
		return nil, fmt.Errorf("failed to create destination playlist: %w", err)
	}
	result.PlaylistID = destID

	e.setSnapshot(userKey, Snapshot{Total: total})

	var notFound, appendFailed []services.Track
	added := 0

	for i, track := range tracks {
		if i%tokenCheckInterval == 0 {
			if _, err := dest.ValidToken(ctx); err != nil {
				return result, fmt.Errorf("destination token became invalid mid-transfer: %w", err)
			}
		}

		e.sendProgress(progress, matchTrackUpdate(i+1, total, track))

		trackID, cached := e.cachedMatch(ctx, dest.Name(), track)
		if !cached {
			trackID, err = dest.SearchTrack(ctx, track.Title, track.Artist)
			if err != nil {
				notFound = append(notFound, track)
				e.setSnapshot(userKey, trackSnapshot(i, total, added, track))
				continue
			}
			e.storeMatch(ctx, dest.Name(), track, trackID)
		}

		if err := dest.AddTrackToPlaylist(ctx, destID, trackID); err != nil {
			appendFailed = append(appendFailed, track)
		} else {
			added++
		}

		e.setSnapshot(userKey, trackSnapshot(i, total, added, track))
	}

	result.TracksAdded = added
	result.TracksFailed = len(notFound) + len(appendFailed)
	result.Success = added > 0

	for _, track := range notFound {
		if len(result.NotFound) == notFoundSampleLimit {
			break
		}
		result.NotFound = append(result.NotFound, track.Label())
	}

	// completion pins the snapshot at 100 even for empty playlists
	e.setSnapshot(userKey, Snapshot{Percent: 100, Added: added, Total: total, Done: true})
	e.sendProgress(progress, completeUpdate(result))

	return result, nil
}

// trackSnapshot builds the polling snapshot after track i (zero-based) has
// been processed. Percent rounds to the nearest integer and reaches 100 only
// on the final track.
func trackSnapshot(i, total, added int, track services.Track) Snapshot {
	percent := 0
	if total > 0 {
		percent = int(math.Round(100 * float64(i+1) / float64(total)))
	}
	return Snapshot{
		Percent:      percent,
		Added:        added,
		Total:        total,
		CurrentTrack: track.Label(),
	}
}

func (e *PlaylistEngine) cachedMatch(ctx context.Context, service string, track services.Track) (string, bool) {
	if e.cache == nil {
		return "", false
	}
	return e.cache.Get(ctx, service, track.Title, track.Artist)
}

// storeMatch caches a successful resolution. Cache write failures are not
// worth failing a transfer over.
func (e *PlaylistEngine) storeMatch(ctx context.Context, service string, track services.Track, trackID string) {
	if e.cache == nil {
		return
	}
	_ = e.cache.Put(ctx, service, track.Title, track.Artist, trackID)
}
