package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/crossfade/internal/repositories"
	"github.com/desertthunder/crossfade/internal/services"
	"github.com/desertthunder/crossfade/internal/shared"
	"github.com/desertthunder/crossfade/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config      *shared.Config
	services    map[string]services.Service
	logger      *log.Logger
	output      io.Writer
	store       *tasks.ProgressStore
	sessionPath string
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config      *shared.Config
	Services    map[string]services.Service
	Logger      *log.Logger
	Output      io.Writer
	SessionPath string
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Services == nil {
		opts.Services = map[string]services.Service{}
	}
	if opts.SessionPath == "" {
		opts.SessionPath = services.DefaultSessionPath()
	}

	return &Runner{
		config:      opts.Config,
		services:    opts.Services,
		logger:      opts.Logger,
		output:      opts.Output,
		store:       tasks.NewProgressStore(),
		sessionPath: opts.SessionPath,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, playlistsCommand, transferCommand, cacheCommand, serveCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// resolveService resolves a provider flag value to its Service instance.
// Accepts lowercase names ("spotify", "tidal", "qobuz").
func (r *Runner) resolveService(name string) (services.Service, error) {
	for registered, svc := range r.services {
		if strings.EqualFold(registered, name) {
			return svc, nil
		}
	}
	return nil, fmt.Errorf("%w: unknown or unconfigured service '%s' (must be spotify, tidal, or qobuz)", shared.ErrInvalidArgument, name)
}

// openDatabase opens the match-cache database and applies pending migrations.
func (r *Runner) openDatabase() (*sql.DB, error) {
	path := r.config.Database.Path
	if path == "" {
		path = "crossfade.db"
	}

	db, err := shared.NewDatabase(path)
	if err != nil {
		return nil, err
	}
	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// newEngine builds a transfer engine backed by the match cache when the
// database is reachable; a cache failure degrades to uncached transfers.
func (r *Runner) newEngine() (*tasks.PlaylistEngine, func()) {
	db, err := r.openDatabase()
	if err != nil {
		r.logger.Warnf("match cache unavailable: %v", err)
		return tasks.NewPlaylistEngine(r.store, nil), func() {}
	}

	cache := repositories.NewMatchCacheRepository(db)
	return tasks.NewPlaylistEngine(r.store, cache), func() { db.Close() }
}

// persistSession saves a provider's credential record after authentication.
func (r *Runner) persistSession(svc services.Service) {
	holder, ok := svc.(interface{ Credentials() services.Credentials })
	if !ok {
		return
	}
	if err := services.SaveSession(r.sessionPath, svc.Name(), holder.Credentials()); err != nil {
		r.logger.Warnf("failed to persist session: %v", err)
	} else {
		r.logger.Infof("session saved to %v", r.sessionPath)
	}
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
