package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/ericfisherdev/notevault/internal/adapter/driven/aesgcm"
	githubadapter "github.com/ericfisherdev/notevault/internal/adapter/driven/github"
	"github.com/ericfisherdev/notevault/internal/adapter/driven/notify"
	sqliteadapter "github.com/ericfisherdev/notevault/internal/adapter/driven/sqlite"
	httphandler "github.com/ericfisherdev/notevault/internal/adapter/driving/http"
	"github.com/ericfisherdev/notevault/internal/application"
	"github.com/ericfisherdev/notevault/internal/config"
	"github.com/ericfisherdev/notevault/internal/domain/port/driven"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on invalid env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(newLogger(cfg))
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"store_backend", cfg.StoreBackend,
		"notes_path", cfg.NotesPath,
		"encrypt_notes", cfg.EncryptNotes,
		"notifier", cfg.Notifier,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 4. Run migrations on writer connection.
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("migrations complete")

	// 5. Wire adapters.
	stateStore := sqliteadapter.NewStateRepo(db)
	pendingStore := sqliteadapter.NewPendingWriteRepo(db)
	credentialStore := sqliteadapter.NewCredentialRepo(db, cfg.SecretKey)
	if !credentialStore.Enabled() {
		slog.Warn("NOTEVAULT_SECRET_KEY not set, remote tokens supplied at runtime will not survive a restart")
	}

	notifier, err := newNotifier(cfg)
	if err != nil {
		return err
	}

	// 6. Create services. The store provider starts empty and is filled in
	// once the backend is resolved.
	stores := application.NewStoreProvider(nil, cfg.StoreBackend)
	gate := application.NewAccessGate(stateStore, cfg.Security, nil)
	sessions := application.NewSessionService(gate, nil)
	recovery := application.NewRecoveryService(gate, stateStore, notifier, cfg.RecoveryEmail, nil)
	notes := application.NewNoteService(stores, aesgcm.NewEngine(cfg.Security.KDFIterations), pendingStore, application.NoteServiceConfig{
		Path:           cfg.NotesPath,
		EncryptContent: cfg.EncryptNotes,
	})
	autosave := application.NewAutosaveService(notes, cfg.Security.AutosaveDebounce, nil)
	status := application.NewStatusService(gate, sessions, stores, notes)

	// 7. Resolve the document store. For the github backend a stored token
	// takes priority over the env var; without either the vault starts with
	// no store until a token is supplied through the API.
	var remote *application.RemoteService
	switch cfg.StoreBackend {
	case config.BackendGitHub:
		connector := &githubadapter.Connector{Owner: cfg.GitHubOwner, Repo: cfg.GitHubRepo, Branch: cfg.GitHubBranch}
		remote = application.NewRemoteService(connector, credentialStore, stores, notes)

		token := cfg.GitHubToken
		stored, err := remote.StoredToken(ctx)
		if err != nil {
			slog.Warn("stored remote token unreadable, falling back to env", "error", err)
		} else if stored != "" {
			token = stored
		}
		if token != "" {
			stores.Replace(githubadapter.NewClient(token, cfg.GitHubOwner, cfg.GitHubRepo, cfg.GitHubBranch), config.BackendGitHub)
			slog.Info("github store configured", "repository", cfg.GitHubOwner+"/"+cfg.GitHubRepo, "branch", cfg.GitHubBranch)
		} else {
			slog.Info("no github token configured, notes unavailable until one is provided via the API")
		}
	case config.BackendSQLite:
		stores.Replace(sqliteadapter.NewDocumentRepo(db), config.BackendSQLite)
		slog.Info("offline store configured", "path", cfg.DBPath)
	}

	// Locking stashes unsaved drafts as a pending write, then drops decrypted notes.
	sessions.OnLock(func(ctx context.Context) {
		autosave.Shutdown(ctx)
		notes.Forget()
	})

	// 8. Create HTTP handler and register API routes.
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := httphandler.NewMetrics(registry)

	apiHandler := httphandler.NewHandler(gate, sessions, recovery, notes, autosave, status, remote, metrics, slog.Default())
	mux := http.NewServeMux()
	httphandler.RegisterAPIRoutes(mux, apiHandler)

	// Apply middleware.
	handler := httphandler.ApplyMiddleware(mux, slog.Default(), metrics)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			stop()
		}
	}()

	// 9. Log startup complete.
	slog.Info("notevault started",
		"listen_addr", cfg.ListenAddr,
		"store_backend", cfg.StoreBackend,
		"store_configured", stores.HasStore(),
	)

	// 10. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 11. Graceful shutdown with 10s timeout: drain HTTP, then lock the vault
	// so pending drafts are written or stashed.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}
	sessions.LockAll(shutdownCtx)

	// 12. Log shutdown complete.
	slog.Info("shutdown complete")
	return nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func newNotifier(cfg *config.Config) (driven.Notifier, error) {
	if cfg.Notifier == config.NotifierEmailJS {
		return notify.NewEmailJS(notify.EmailJSConfig{
			ServiceID:  cfg.EmailJS.ServiceID,
			TemplateID: cfg.EmailJS.TemplateID,
			PublicKey:  cfg.EmailJS.PublicKey,
			PrivateKey: cfg.EmailJS.PrivateKey,
		}, nil)
	}
	slog.Warn("reset codes will be written to the server log; configure EmailJS for real delivery")
	return notify.NewLog(slog.Default()), nil
}
