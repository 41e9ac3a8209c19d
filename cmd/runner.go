package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/scrob/internal/queue"
	"github.com/desertthunder/scrob/internal/repositories"
	"github.com/desertthunder/scrob/internal/services"
	"github.com/desertthunder/scrob/internal/session"
	"github.com/desertthunder/scrob/internal/shared"
	"github.com/desertthunder/scrob/internal/tasks"
	"github.com/urfave/cli/v3"
)

const daemonProbeTimeout = 500 * time.Millisecond

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Storage and the engine are opened lazily so commands that only touch config stay cheap.
type Runner struct {
	configPath string
	config     *shared.Config
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer

	db      *sql.DB
	queue   *queue.PendingQueue
	history *repositories.HistoryRepository
	session *session.Provider
	client  *services.Client
	engine  *tasks.SubmissionEngine
	events  chan tasks.Event
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	ConfigPath string
	Config     *shared.Config
	HTTPClient *http.Client
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
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 5 * time.Second}
	}

	return &Runner{
		configPath: opts.ConfigPath,
		config:     opts.Config,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, runCommand, watchCommand, statusCommand, queueCommand, nowPlayingCommand, authCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// SetLogger replaces the logger used by the runner and everything it opens afterwards.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

// loadConfig is the root command's Before hook. A config passed to [NewRunner] wins.
func (r *Runner) loadConfig(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if path := cmd.String("config"); path != "" {
		r.configPath = path
	}
	if r.config == nil {
		config, err := shared.LoadOrDefault(r.configPath)
		if err != nil {
			return ctx, err
		}
		r.config = config
	}

	if r.config.Log.File != "" {
		logger, err := shared.LoggerFromConfig(r.config.Log)
		if err != nil {
			return ctx, err
		}
		r.logger = logger
	} else if lvl, err := log.ParseLevel(r.config.Log.Level); err == nil {
		shared.SetLogLevel(r.logger, lvl)
	}
	if cmd.Bool("verbose") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}
	return ctx, nil
}

// openStore opens the database and loads the pending queue.
func (r *Runner) openStore() error {
	if r.queue != nil {
		return nil
	}
	if r.config == nil {
		return fmt.Errorf("%w: no configuration loaded", shared.ErrMissingConfig)
	}

	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return err
	}

	q := queue.New(repositories.NewEventRepository(db), r.logger)
	if err := q.Load(); err != nil {
		db.Close()
		return err
	}

	r.db = db
	r.queue = q
	r.history = repositories.NewHistoryRepository(db)
	return nil
}

// openClient loads the session and builds the signed transport.
func (r *Runner) openClient() error {
	if r.client != nil {
		return nil
	}
	if r.config == nil {
		return fmt.Errorf("%w: no configuration loaded", shared.ErrMissingConfig)
	}

	lastfm := r.config.Lastfm
	if lastfm.APIKey == "" || lastfm.APISecret == "" {
		return fmt.Errorf("%w: lastfm.api_key and lastfm.api_secret are required", shared.ErrMissingCredentials)
	}

	provider := session.NewProvider(lastfm, r.logger)
	if _, err := provider.Load(); err != nil {
		return err
	}
	drain(provider.Updated())

	r.session = provider
	r.client = services.NewClientFromConfig(lastfm, r.logger)
	r.client.SetSessionKey(provider.SessionKey())
	if !r.client.Authenticated() {
		r.logger.Warn("no session key configured; submissions will fail until 'scrob auth set' is run")
	}
	return nil
}

// openEngine wires the transport and engine over the opened store.
func (r *Runner) openEngine() error {
	if r.engine != nil {
		return nil
	}
	if err := r.openStore(); err != nil {
		return err
	}
	if err := r.openClient(); err != nil {
		return err
	}

	r.events = make(chan tasks.Event, 32)
	opts := tasks.OptionsFromConfig(r.config.Engine)
	opts.Events = r.events
	opts.History = r.history
	opts.Logger = r.logger
	r.engine = tasks.NewSubmissionEngine(r.queue, tasks.ClientRequests(r.client), opts)
	return nil
}

// reloadSession pushes the current session key into the transport and restarts the engine.
func (r *Runner) reloadSession() error {
	r.client.SetSessionKey(r.session.SessionKey())
	r.logger.Info("session updated, restarting engine", "username", r.session.Current().Username)
	return r.engine.Restart()
}

// Close stops the engine and releases the database.
func (r *Runner) Close() error {
	if r.engine != nil {
		if err := r.engine.Stop(); err != nil {
			r.logger.Warn("failed to stop engine", "error", err)
		}
	}
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *Runner) daemon() *services.DaemonClient {
	return services.NewDaemonClient(r.config.Server.Addr(), r.httpClient)
}

// daemonRunning reports whether a `scrob run` process answers on the configured address.
func (r *Runner) daemonRunning(ctx context.Context) bool {
	if r.config == nil || !r.config.Server.Enabled {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, daemonProbeTimeout)
	defer cancel()

	resp, err := r.daemon().Get(ctx, "/status")
	return err == nil && resp.OK()
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

func drain(ch <-chan struct{}) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}
