// Package app wires together all adapters and domain logic.
// It provides lifecycle management for the thoughts daemon: create, start, stop.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/corey/thoughts/internal/adapters/bbolt"
	"github.com/corey/thoughts/internal/adapters/chart"
	"github.com/corey/thoughts/internal/adapters/corpus"
	fsw "github.com/corey/thoughts/internal/adapters/fsnotify"
	"github.com/corey/thoughts/internal/adapters/inbox"
	"github.com/corey/thoughts/internal/adapters/socket"
	"github.com/corey/thoughts/internal/adapters/web"
	"github.com/corey/thoughts/internal/domain/ledger"
	"github.com/corey/thoughts/internal/domain/scan"
	"github.com/corey/thoughts/internal/ports"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// App is the running daemon: one ledger, one scan coordinator, and the
// surfaces that feed and query them.
type App struct {
	ProjectRoot string
	Paths       *Paths
	Settings    Settings
	Metrics     *Metrics

	Store     *bbolt.Store
	Engine    *ledger.Engine
	Source    *corpus.Source
	Scanner   *scan.Coordinator
	Renderer  ports.Renderer
	Inbox     *inbox.Tailer
	Server    *socket.Server
	WebServer *web.Server // nil when the dashboard is disabled

	log *zap.Logger

	// ctx scopes live ingestion; cancelled by Stop.
	ctx    context.Context
	cancel context.CancelFunc

	// writes is held shared by every ledger write outside a scan and
	// exclusively while a scan resets its segment, so a write that passed
	// the Scanning check can never land after the reset.
	writes sync.RWMutex

	mu       sync.Mutex
	learned  map[ports.AuthorID]string // display names seen on live messages
	lastScan *socket.RescanResult
	started  time.Time
	stopOnce sync.Once
}

// Config holds initialization parameters for the App.
type Config struct {
	ProjectRoot string
	ConfigPath  string // default: .thoughts/config.yaml
	SocketPath  string // default: socket.SocketPath(ProjectRoot)
	Logger      *zap.Logger
}

// New creates an App with all dependencies wired. Does not start services.
func New(cfg Config) (*App, error) {
	if cfg.ProjectRoot == "" {
		return nil, fmt.Errorf("project root required")
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	paths := NewPaths(cfg.ProjectRoot)
	if err := paths.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("create %s: %w", paths.Root, err)
	}
	if cfg.ConfigPath == "" {
		cfg.ConfigPath = paths.Config
	}
	if cfg.SocketPath == "" {
		cfg.SocketPath = socket.SocketPath(cfg.ProjectRoot)
	}

	settings, err := LoadSettings(cfg.ConfigPath, cfg.ProjectRoot, paths)
	if err != nil {
		return nil, err
	}

	store, err := bbolt.NewStore(paths.DB, log.Named("store"))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	if n, err := importLegacy(paths.Legacy, store); err != nil {
		log.Warn("legacy import failed", zap.String("path", paths.Legacy), zap.Error(err))
	} else if n > 0 {
		log.Info("imported legacy ledger", zap.String("path", paths.Legacy), zap.Int("authors", n))
	}

	watcher, err := fsw.NewWatcher()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	engine := ledger.NewEngine(store, log.Named("ledger"))
	source := corpus.New(settings.CorpusDir)

	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		ProjectRoot: cfg.ProjectRoot,
		Paths:       paths,
		Settings:    settings,
		Store:       store,
		Engine:      engine,
		Source:      source,
		Renderer:    chart.New(settings.PublishDir, nil),
		log:         log,
		ctx:         ctx,
		cancel:      cancel,
		learned:     make(map[ports.AuthorID]string),
	}
	a.Scanner = a.newScanner(source, settings.Pacing)
	a.Metrics = NewMetrics(func() bool { return a.Scanner.Scanning() })

	a.Inbox = inbox.New(inbox.Config{
		Path:     settings.Inbox,
		Watcher:  watcher,
		Callback: a.onLiveMessage,
		OnError: func(err error) {
			log.Warn("inbox line skipped", zap.Error(err))
		},
	})

	a.Server = socket.NewServer(a, cfg.SocketPath, log.Named("socket"))
	if settings.HTTPPort >= 0 {
		a.WebServer = web.NewServer(a, a.Metrics.Registry, paths.PortFile, log.Named("web"))
	}
	return a, nil
}

// Start begins the daemon (socket server + HTTP dashboard + inbox tail).
func (a *App) Start() error {
	a.mu.Lock()
	a.started = time.Now()
	a.mu.Unlock()

	if err := a.Server.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	if err := os.WriteFile(a.Paths.PIDFile, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		a.log.Warn("write pid file", zap.Error(err))
	}
	// HTTP dashboard is non-fatal if the port is unavailable.
	if a.WebServer != nil {
		port := a.Settings.HTTPPort
		if port == 0 {
			port = web.DefaultPort(a.ProjectRoot)
		}
		if err := a.WebServer.Start(port); err != nil {
			a.log.Warn("HTTP dashboard unavailable", zap.Error(err))
		} else {
			a.log.Info("dashboard listening", zap.String("url", a.WebServer.URL()))
		}
	}
	// Live ingestion is non-fatal too: rescans and manual adds still work.
	if err := a.Inbox.Start(); err != nil {
		a.log.Warn("inbox unavailable", zap.String("path", a.Settings.Inbox), zap.Error(err))
	}
	a.log.Info("daemon started",
		zap.String("socket", a.Server.Addr()),
		zap.String("corpus", a.Settings.CorpusDir),
		zap.String("inbox", a.Settings.Inbox))
	return nil
}

// Stop gracefully shuts down all services and closes the store. Idempotent.
func (a *App) Stop() error {
	var err error
	a.stopOnce.Do(func() {
		a.cancel()
		a.Inbox.Stop()
		if a.WebServer != nil {
			a.WebServer.Stop()
		}
		a.Server.Stop()
		a.Paths.CleanEphemeral()
		err = a.Store.Close()
		a.log.Info("daemon stopped")
	})
	return err
}

// Run starts the daemon and blocks until ctx is done or a client sends a
// shutdown request, then stops it.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(); err != nil {
		a.Stop()
		return err
	}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-ctx.Done():
			a.log.Info("shutdown signal")
		case <-a.Server.ShutdownCh():
			a.log.Info("remote shutdown requested")
		}
		return a.Stop()
	})
	g.Go(func() error {
		// First publication of the combined chart so the publish dir is never stale.
		if err := a.PublishAll(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("initial publish failed", zap.Error(err))
		}
		return nil
	})
	return g.Wait()
}

// DisplayName returns the configured name for id, then the last name seen on
// a live message, then a placeholder.
func (a *App) DisplayName(id ports.AuthorID) string {
	if n, ok := a.Settings.Names[id]; ok && n != "" {
		return n
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return chart.DisplayName(a.learned, id)
}

// names returns display names for every author in l.
func (a *App) names(l ports.Ledger) map[ports.AuthorID]string {
	out := make(map[ports.AuthorID]string, len(l))
	for _, id := range l.Authors() {
		out[id] = a.DisplayName(id)
	}
	return out
}

func (a *App) learnName(id ports.AuthorID, name string) {
	if name == "" {
		return
	}
	a.mu.Lock()
	a.learned[id] = name
	a.mu.Unlock()
}

func (a *App) uptime() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started.IsZero() {
		return "0s"
	}
	return time.Since(a.started).Round(time.Second).String()
}
