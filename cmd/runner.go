package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/echo/internal/paging"
	"github.com/desertthunder/echo/internal/repositories"
	"github.com/desertthunder/echo/internal/services"
	"github.com/desertthunder/echo/internal/shared"
	"github.com/desertthunder/echo/internal/tasks"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

const progressBuffer = 32

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	spotify    services.Service
	snapshots  *repositories.SnapshotRepository
	db         *sql.DB
	logger     *log.Logger
	output     io.Writer
	engine     *tasks.Engine
	mu         sync.Mutex // guards config writes from token refreshes
}

// RunnerOpts contains configuration options for creating a Runner.
//
// Zero fields are filled in from the configuration file when the CLI starts.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Spotify    services.Service
	Snapshots  *repositories.SnapshotRepository
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	r := &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		spotify:    opts.Spotify,
		snapshots:  opts.Snapshots,
		logger:     opts.Logger,
		output:     opts.Output,
	}
	if r.config != nil {
		r.engine = r.newEngine()
	}
	return r
}

func (r *Runner) newEngine() *tasks.Engine {
	api := r.config.Spotify
	return tasks.NewEngine(
		tasks.WithLogger(r.logger),
		tasks.WithLimits(paging.Limits{Page: api.PageLimit, Batch: api.BatchLimit}),
		tasks.WithFanOut(api.FanOut),
	)
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, playlistsCommand, loadCommand, compareCommand, findCommand, likedCommand, snapshotsCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// Before loads the configuration named by --config and builds whatever the caller did not inject.
func (r *Runner) Before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if cmd.Bool("trace") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}

	if r.config == nil {
		r.configPath = cmd.String("config")
		r.config = r.loadConfig(r.configPath)
	}
	if err := r.config.ApplyEnv(); err != nil {
		return ctx, err
	}
	if err := r.config.Spotify.Validate(); err != nil {
		return ctx, err
	}
	if r.engine == nil {
		r.engine = r.newEngine()
	}
	if r.spotify == nil {
		r.spotify = r.newSpotify(ctx)
	}
	return ctx, nil
}

// loadConfig reads path, falling back to defaults when the file is missing or unreadable.
func (r *Runner) loadConfig(path string) *shared.Config {
	if _, err := os.Stat(path); err != nil {
		r.logger.Debug("config file not found, using defaults", "path", path)
		return shared.DefaultConfig()
	}
	config, err := shared.LoadConfig(path)
	if err != nil {
		r.logger.Warn("failed to load config, using defaults", "error", err)
		return shared.DefaultConfig()
	}
	return config
}

// newSpotify builds the Spotify client from the configuration, or returns nil when credentials are missing.
func (r *Runner) newSpotify(ctx context.Context) services.Service {
	creds := r.config.Credentials.Spotify
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return nil
	}

	svc, err := services.NewSpotifyService(creds.Map(),
		services.WithRateLimit(r.config.Spotify.RequestsPerSecond),
		services.WithPageLimit(r.config.Spotify.PageLimit),
		services.WithBatchLimit(r.config.Spotify.BatchLimit),
		services.WithServiceLogger(r.logger),
	)
	if err != nil {
		r.logger.Warn("failed to create Spotify service", "error", err)
		return nil
	}

	if token := creds.Token(); token != nil {
		svc.AuthenticateToken(ctx, token)
	}
	svc.SetTokenRefreshCallback(func(token *oauth2.Token) {
		if err := r.saveTokens(token); err != nil {
			r.logger.Warn("failed to persist refreshed token", "error", err)
		}
	})
	return svc
}

// service returns the configured playlist service.
func (r *Runner) service() (services.Service, error) {
	if r.spotify == nil {
		return nil, fmt.Errorf("%w: Spotify client_id and client_secret must be set in %s", shared.ErrServiceUnavailable, r.configPath)
	}
	return r.spotify, nil
}

// repository returns the snapshot store, opening the configured database on first use.
func (r *Runner) repository(ctx context.Context) (*repositories.SnapshotRepository, error) {
	if r.snapshots != nil {
		return r.snapshots, nil
	}

	db, err := shared.OpenDatabase(ctx, r.config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	r.db = db
	r.snapshots = repositories.NewSnapshotRepository(db)
	return r.snapshots, nil
}

// Close releases the database opened by [Runner.repository].
func (r *Runner) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// saveTokens stores token in the configuration and writes it to the config file, if there is one.
func (r *Runner) saveTokens(token *oauth2.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.config == nil {
		return errors.New("config is nil")
	}
	if err := r.config.Credentials.Spotify.Update(token); err != nil {
		return fmt.Errorf("failed to update spotify configuration: %w", err)
	}
	if r.configPath == "" {
		return nil
	}
	if err := shared.SaveConfig(r.configPath, r.config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	r.logger.Debug("tokens saved", "path", r.configPath)
	return nil
}

// progress returns a channel for engine progress updates and a function that closes it once the
// operation has returned.
func (r *Runner) progress() (chan tasks.ProgressUpdate, func()) {
	ch := make(chan tasks.ProgressUpdate, progressBuffer)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for u := range ch {
			r.logger.Info(u.Message, "phase", u.Phase.String(), "step", u.Step, "of", u.Total)
		}
	}()

	return ch, func() {
		close(ch)
		<-done
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
