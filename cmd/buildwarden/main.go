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

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	bitbucketadapter "github.com/buildwarden/buildwarden/internal/adapter/driven/bitbucket"
	gitadapter "github.com/buildwarden/buildwarden/internal/adapter/driven/git"
	jenkinsadapter "github.com/buildwarden/buildwarden/internal/adapter/driven/jenkins"
	"github.com/buildwarden/buildwarden/internal/adapter/driven/memory"
	"github.com/buildwarden/buildwarden/internal/adapter/driven/notify"
	slackadapter "github.com/buildwarden/buildwarden/internal/adapter/driven/slack"
	sqliteadapter "github.com/buildwarden/buildwarden/internal/adapter/driven/sqlite"
	httphandler "github.com/buildwarden/buildwarden/internal/adapter/driving/http"
	"github.com/buildwarden/buildwarden/internal/application"
	"github.com/buildwarden/buildwarden/internal/config"
	"github.com/buildwarden/buildwarden/internal/domain/port/driven"
	"github.com/buildwarden/buildwarden/internal/rules"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on missing required env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"rules_file", cfg.RulesFile,
		"git_remote", cfg.Git.RemoteURL,
		"channel", cfg.Channel,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open the history and pending-action stores. An empty DB path
	// selects the in-memory stores; state is then lost on restart.
	var historyStore driven.HistoryStore
	var pendingStore driven.PendingActionStore
	if cfg.DBPath != "" {
		db, err := sqliteadapter.NewDB(cfg.DBPath)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := db.Close(); closeErr != nil {
				slog.Error("error closing database", "error", closeErr)
			}
		}()
		if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
			return err
		}
		slog.Info("database opened", "path", cfg.DBPath)

		historyStore = sqliteadapter.NewHistoryRepo(db)
		pendingStore = sqliteadapter.NewPendingActionRepo(db)
	} else {
		slog.Info("no db path configured, using in-memory stores")
		historyStore = memory.NewHistoryStore()
		pendingStore = memory.NewPendingActionStore()
	}

	// 4. Load the rule table. An empty rules file selects the embedded
	// default ruleset. Parse errors are fatal at startup.
	var table *rules.Table
	if cfg.RulesFile != "" {
		table, err = rules.LoadFile(cfg.RulesFile)
		if err != nil {
			return err
		}
		slog.Info("rules loaded", "path", cfg.RulesFile)
	} else {
		table, err = rules.Default()
		if err != nil {
			return err
		}
		slog.Info("using default ruleset")
	}

	// 5. Wire the notifier: Slack when a token is configured, stdout
	// otherwise (suggestions are then visible but not confirmable).
	var notifier driven.Notifier
	if cfg.SlackToken != "" {
		notifier = slackadapter.NewNotifier(cfg.SlackToken)
		slog.Info("slack notifier configured")
	} else {
		notifier = notify.NewStdout()
		slog.Info("no slack token configured, logging notifications to stdout")
	}

	// 6. Wire the SCM adapters. Bitbucket and Jenkins are optional;
	// actions depending on them fail individually when unconfigured.
	gitService := gitadapter.NewService(cfg.Git, gitadapter.ExecRunner{})

	var host driven.SCMHost
	if cfg.Bitbucket.Configured() {
		host = bitbucketadapter.NewClient(cfg.Bitbucket)
		slog.Info("bitbucket client configured",
			"username", cfg.Bitbucket.RepoUsername,
			"slug", cfg.Bitbucket.RepoSlug,
		)
	}

	var trigger driven.BuildTrigger
	if cfg.Jenkins.Configured() {
		trigger = jenkinsadapter.NewClient(cfg.Jenkins)
		slog.Info("jenkins client configured", "base_url", cfg.Jenkins.BaseURL)
	}

	// 7. Wire the application services.
	remediation := application.NewRemediation(gitService, host, trigger, notifier, cfg.Channel, cfg.SCMLockTimeout)
	builder := application.NewContextBuilder(historyStore)
	engine := application.NewEngine(table)
	eventSvc := application.NewEventService(
		historyStore,
		pendingStore,
		notifier,
		remediation,
		builder,
		engine,
		cfg.Channel,
		cfg.FilterBranches,
		cfg.FilterRepos,
	)
	confirmationSvc := application.NewConfirmationService(pendingStore, remediation, notifier)

	// 8. Start the periodic sweeper when enabled. Sweeps cover the
	// configured branch filter; without one there is nothing to sweep.
	if cfg.SweepInterval > 0 && len(cfg.FilterBranches) > 0 {
		sweeper := application.NewSweeper(eventSvc, cfg.FilterBranches, cfg.SweepInterval)
		go sweeper.Start(ctx)
		slog.Info("sweeper started", "interval", cfg.SweepInterval, "branches", cfg.FilterBranches)
	}

	// 9. Create HTTP handler and start the server.
	apiHandler := httphandler.NewHandler(eventSvc, confirmationSvc, slog.Default())
	handler := httphandler.NewServeMux(apiHandler, slog.Default())

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
		}
	}()

	slog.Info("buildwarden started", "listen_addr", cfg.ListenAddr)

	// 10. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
