package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/desertthunder/crossfade/internal/formatter"
	"github.com/desertthunder/crossfade/internal/services"
	"github.com/desertthunder/crossfade/internal/shared"
	"github.com/desertthunder/crossfade/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Playlists lists playlists for the provider named by --service.
func (r *Runner) Playlists(ctx context.Context, cmd *cli.Command) error {
	svc, err := r.resolveService(cmd.String("service"))
	if err != nil {
		return err
	}

	r.logger.Infof("listing %v playlists", svc.Name())

	playlists, err := svc.GetPlaylists(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(playlists, cmd.Bool("pretty"))
	}

	r.writePlain("Found %d playlists on %s:\n\n", len(playlists), svc.Name())
	for i, p := range playlists {
		r.writePlain("%d. %s\n", i+1, p.Name)
		r.writePlain("   ID: %s\n", p.ID)
		if p.TrackCount >= 0 {
			r.writePlain("   Tracks: %d\n", p.TrackCount)
		}
		r.writePlain("\n")
	}

	return nil
}

// TransferRun runs a full source → destination playlist transfer.
func (r *Runner) TransferRun(ctx context.Context, cmd *cli.Command) error {
	sourceSvc, err := r.resolveService(cmd.String("source"))
	if err != nil {
		return err
	}
	destSvc, err := r.resolveService(cmd.String("dest"))
	if err != nil {
		return err
	}

	playlistID := cmd.String("id")
	playlistType := services.PlaylistTypeStandard
	if playlistID == services.LikedPlaylistID {
		playlistType = services.PlaylistTypeLiked
	}

	r.logger.Info("starting transfer", "source", sourceSvc.Name(), "dest", destSvc.Name(), "playlist", playlistID)
	r.writePlain("Starting playlist transfer...\n")
	r.writePlain("Source: %s\n", sourceSvc.Name())
	r.writePlain("Destination: %s\n\n", destSvc.Name())

	engine, closeEngine := r.newEngine()
	defer closeEngine()

	// Create progress channel and goroutine to handle updates
	progressCh := make(chan tasks.ProgressUpdate, 50)
	go func() {
		for update := range progressCh {
			switch update.Phase {
			case tasks.FetchSource:
				r.writePlain("📥 %s\n", update.Message)
			case tasks.CreatePlaylist:
				r.writePlain("\n📝 %s\n", update.Message)
			case tasks.MatchTracks:
				if update.Step == 1 {
					r.writePlain("\n🔍 Matching tracks...\n")
				}
				r.writePlain("   %s\n", update.Message)
			}
		}
	}()

	result, err := engine.Transfer(ctx, sourceSvc, destSvc, playlistID, playlistType, shared.GenerateID(), progressCh)
	close(progressCh)

	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(result, true)
	}

	r.writePlainln("")
	r.writePlainHeader("Transfer Complete!")
	r.writePlain("%s", formatter.ReportToText(result))

	if output := cmd.String("output"); output != "" {
		return r.writeReport(result, output, cmd.String("format"))
	}

	return nil
}

// writeReport renders the result in the requested format and writes it to path.
func (r *Runner) writeReport(result *tasks.TransferResult, path, format string) error {
	var data []byte
	var err error

	switch strings.ToLower(format) {
	case "csv":
		data, err = formatter.ReportToCSV(result)
	case "markdown", "md":
		data = formatter.ReportToMarkdown(result)
	case "text", "":
		data = formatter.ReportToText(result)
	default:
		return fmt.Errorf("%w: unknown report format '%s'", shared.ErrInvalidArgument, format)
	}
	if err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	r.writePlain("✓ Report written to %s\n", path)

	return nil
}
