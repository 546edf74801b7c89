// Package app wires the local store, its persistence and its remote sync into a process
// serving the local API.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/putto11262002/roomsync/identity"
	"github.com/putto11262002/roomsync/internal/api"
	"github.com/putto11262002/roomsync/media"
	"github.com/putto11262002/roomsync/persist"
	"github.com/putto11262002/roomsync/remote"
	"github.com/putto11262002/roomsync/store"
	"github.com/putto11262002/roomsync/syncer"
	"github.com/spf13/afero"
)

type App struct {
	config  *Config
	context context.Context
	server  *http.Server
	logger  *slog.Logger

	db     *sql.DB
	redis  *redis.Client
	docs   remote.DocumentStore
	tokens *identity.TokenProvider
	outbox *syncer.Outbox
	store  *store.Store
	state  *persist.Manager
	api    *api.Api

	exit chan int

	cleanupFuncs []func(context.Context)

	persistCancel context.CancelFunc
	persistDone   chan struct{}
}

// NewLogger returns the text logger used by every component. Source locations are
// reduced to the file name.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level,
		AddSource: true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.SourceKey {
				source, _ := a.Value.Any().(*slog.Source)
				if source != nil {
					source.File = filepath.Base(source.File)
				}
			}
			return a
		},
	}))
}

// New builds the app. When ctx is nil the app runs until the process is signaled and
// when config is nil it is loaded with LoadConfig.
func New(ctx context.Context, config *Config) (*App, error) {
	var err error
	app := &App{
		exit:        make(chan int),
		persistDone: make(chan struct{}),
	}
	if ctx == nil {
		ctx, _ = signal.NotifyContext(
			context.Background(),
			syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
	}
	app.context = ctx

	if config == nil {
		config, err = LoadConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}
	if err := config.Validate(); err != nil {
		return nil, errors.New(FormatValidationErrors(err))
	}
	app.config = config

	app.logger = NewLogger(os.Stdout, config.Log.Level)

	if err := app.init(); err != nil {
		app.close(context.Background())
		return nil, err
	}
	return app, nil
}

func (app *App) init() error {
	var err error
	sqliteOptions := &persist.SQLiteOption{
		Mode:        "rwc",
		JournalMode: app.config.SQLite.JournalMode,
	}
	app.db, err = persist.OpenSQLite(app.config.SQLite.File, sqliteOptions)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	if app.config.Redis.URL != "" {
		opt, err := redis.ParseURL(app.config.Redis.URL)
		if err != nil {
			return fmt.Errorf("failed to parse redis url: %w", err)
		}
		app.redis = redis.NewClient(opt)
		pingCtx, cancel := context.WithTimeout(app.context, 5*time.Second)
		defer cancel()
		if err := app.redis.Ping(pingCtx).Err(); err != nil {
			// The outbox keeps retrying; the device works offline meanwhile.
			app.logger.Warn("redis unreachable", slog.String("addr", opt.Addr), slog.String("error", err.Error()))
		}
		app.docs = remote.NewRedisStore(app.redis, app.config.Redis.Prefix)
	} else {
		app.logger.Warn("no redis url configured, remote documents are kept in memory")
		app.docs = remote.NewMemoryStore()
	}

	osFs := afero.NewOsFs()
	storage, err := media.NewFSStorage(osFs, app.config.Media.Dir, app.config.Media.BaseURL)
	if err != nil {
		return fmt.Errorf("failed to open media storage: %w", err)
	}

	app.tokens = identity.NewTokenProvider(app.config.Auth.Secret, app.logger)
	if app.config.Auth.Token != "" {
		if _, err := app.tokens.SetToken(app.config.Auth.Token); err != nil {
			app.logger.Warn("configured token rejected", slog.String("error", err.Error()))
		}
	}

	app.outbox = syncer.NewOutbox(syncer.OutboxConfig{
		Size:       app.config.Outbox.Size,
		MaxRetries: app.config.Outbox.MaxRetries,
		Backoff:    app.config.Outbox.Backoff,
		MaxBackoff: app.config.Outbox.MaxBackoff,
		Timeout:    app.config.Outbox.Timeout,
	}, app.logger.With(slog.String("component", "outbox")))

	adapter := syncer.NewAdapter(app.docs, app.tokens, media.NewPromoter(storage, osFs), app.logger)
	app.store = store.New(adapter, app.outbox, app.tokens, store.Config{
		InviteLinkBase: app.config.Invite.LinkBase,
		QRCodeURL:      app.config.Invite.QRCodeURL,
		InviteTTL:      app.config.Invite.TTL,
	}, app.logger)

	policy := persist.Policy{
		MaxMessages:      app.config.Retention.MaxMessages,
		MaxContentLength: app.config.Retention.MaxContentLength,
	}
	app.state = persist.NewManager(persist.NewSQLiteStorage(app.db), app.store, policy,
		app.logger.With(slog.String("component", "persist")))
	if err := app.state.Load(app.context); err != nil {
		if errors.Is(err, persist.ErrUnsupportedVersion) {
			return fmt.Errorf("failed to load state: %w", err)
		}
		app.logger.Error("discarding unreadable state", slog.String("error", err.Error()))
	}

	app.api = api.New(app.store, app.tokens, api.Config{
		AllowedOrigins: app.config.AllowedOrigins,
		Media:          storage.Handler(),
	}, app.logger)

	app.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", app.config.Hostname, app.config.Port),
		Handler: app.api.Handler(),
		BaseContext: func(listener net.Listener) context.Context {
			return app.context
		},
	}
	return nil
}

// Store returns the local store of the app.
func (app *App) Store() *store.Store {
	return app.store
}

func (app *App) Handler() http.Handler {
	return app.api.Handler()
}

// run starts the background workers. Their cleanup is registered in shutdown order:
// in-flight requests, queued remote intents, the final save, then the connections.
func (app *App) run() {
	app.outbox.Start()

	persistCtx, cancel := context.WithCancel(context.Background())
	app.persistCancel = cancel
	go func() {
		defer close(app.persistDone)
		if err := app.state.Run(persistCtx); err != nil {
			app.logger.Error("failed to save state", slog.String("error", err.Error()))
		}
	}()

	app.AddCleanupFunc(func(ctx context.Context) {
		app.server.Shutdown(ctx)
	})
	app.AddCleanupFunc(func(ctx context.Context) {
		if err := app.outbox.Stop(ctx); err != nil {
			app.logger.Warn("outbox not drained", slog.String("error", err.Error()))
		}
	})
	app.AddCleanupFunc(func(ctx context.Context) {
		app.persistCancel()
		select {
		case <-app.persistDone:
		case <-ctx.Done():
		}
	})
	app.AddCleanupFunc(app.close)
}

// close releases the connections.
func (app *App) close(ctx context.Context) {
	if app.redis != nil {
		app.redis.Close()
	}
	if app.db != nil {
		app.db.Close()
	}
}

// shutdown runs the cleanup funcs in order, bounded by timeout.
func (app *App) shutdown(timeout time.Duration) int {
	closeCtx, closeCancel := context.WithTimeout(context.Background(), timeout)
	defer closeCancel()

	done := make(chan struct{})
	go func() {
		for _, f := range app.cleanupFuncs {
			f(closeCtx)
		}
		close(done)
	}()

	select {
	case <-done:
		app.logger.Info("app shutdown gracefully")
		return 0
	case <-closeCtx.Done():
		app.logger.Info("app shutdown timed out")
		return 1
	}
}

func (app *App) Start() {
	app.run()

	// listen for shutdown signal
	go func() {
		<-app.context.Done()
		app.exit <- app.shutdown(10 * time.Second)
	}()

	app.logger.Info(fmt.Sprintf("app running on: %s:%d", app.config.Hostname, app.config.Port))

	err := app.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		failed(1, "server error: %v\n", err)
	}

	code := <-app.exit
	if code != 0 {
		failed(code, "app exit with code: %d\n", code)
	} else {
		os.Exit(code)
	}

}

func (app *App) AddCleanupFunc(f func(context.Context)) {
	app.cleanupFuncs = append(app.cleanupFuncs, f)
}

func failed(code int, s string, args ...interface{}) {
	fmt.Printf(s, args...)
	os.Exit(code)
}
