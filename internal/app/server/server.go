package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"permitflow/internal/domain/approval"
	"permitflow/internal/domain/audit"
	"permitflow/internal/domain/auth"
	"permitflow/internal/domain/balance"
	"permitflow/internal/domain/directory"
	"permitflow/internal/domain/notifications"
	"permitflow/internal/domain/permits"
	"permitflow/internal/domain/policy"
	"permitflow/internal/platform/blobstore"
	"permitflow/internal/platform/clock"
	"permitflow/internal/platform/config"
	"permitflow/internal/platform/crypto"
	"permitflow/internal/platform/db"
	"permitflow/internal/platform/email"
	"permitflow/internal/platform/jobs"
	"permitflow/internal/platform/metrics"
	"permitflow/internal/platform/querier"
	audithandler "permitflow/internal/transport/http/handlers/audit"
	notificationshandler "permitflow/internal/transport/http/handlers/notifications"
	permitshandler "permitflow/internal/transport/http/handlers/permits"
	"permitflow/internal/transport/http/middleware"
)

const shutdownTimeout = 30 * time.Second

// Run wires the service from the environment and serves until SIGINT or
// SIGTERM.
func Run() error {
	cfg := config.Load()
	setupLogging(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer pool.Close()

	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool, cfg.MigrationsDir); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
	}
	if cfg.RunSeed {
		if err := db.Seed(ctx, pool, cfg); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}

	policyCfg, err := PolicyConfig(cfg)
	if err != nil {
		return err
	}
	rules := policy.DefaultRegistry()
	loaded, err := policy.LoadRules(ctx, policy.NewStore(pool), rules)
	if err != nil {
		return fmt.Errorf("load permission types: %w", err)
	}
	slog.Info("permission types loaded", "stored", loaded, "total", len(rules.Rules()))

	docs, err := blobstore.New(cfg.DocumentDir, cfg.MaxUploadBytes)
	if err != nil {
		return fmt.Errorf("document store: %w", err)
	}
	sealer, err := crypto.NewSealer(cfg.DocumentEncryptionKey)
	if err != nil {
		return err
	}
	docs.Sealer = sealer
	if !sealer.Enabled() && cfg.Environment == "production" {
		slog.Warn("documents are stored unencrypted", "dir", cfg.DocumentDir)
	}

	var (
		clk       = clock.System{}
		tx        = querier.NewPoolTransactor(pool)
		collector = metrics.New()
		auditSvc  = audit.New(pool)
		users     = directory.NewStore(pool)
	)

	notifySvc := notifications.New(notifications.NewStore(pool), email.New(cfg), cfg.EmailFrom)
	dispatcher := notifications.NewDispatcher(notifySvc, collector, cfg.NotificationQueueSize)
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	ledger := balance.NewLedger(balance.NewStore(pool), tx, policy.NewAllowances(rules, policyCfg, users), auditSvc, clk)
	chain := approval.NewChain(approval.NewStore(pool), tx, auditSvc, clk, policyCfg.MinRejectComments)
	requests := permits.NewStore(pool)
	permitSvc := permits.NewService(permits.Deps{
		Store:  requests,
		Tx:     tx,
		Chain:  chain,
		Ledger: ledger,
		Validator: &policy.Validator{
			Rules:     rules,
			Config:    policyCfg,
			Requests:  requests,
			Documents: docs,
			Directory: users,
			Balances:  ledger,
			Clock:     clk,
		},
		Rules:     rules,
		Directory: users,
		Events:    dispatcher,
		Audit:     auditSvc,
		Metrics:   collector,
		Clock:     clk,
		Config:    policyCfg,
	})

	jobsSvc := jobs.New(jobs.Deps{
		Runs:       jobs.NewStore(pool),
		Ledger:     ledger,
		Users:      users,
		Reminders:  permitSvc,
		ResetTypes: rules.ResetEligible,
		Clock:      clk,
	}, jobs.Config{
		ResetSchedule:    cfg.BalanceResetSchedule,
		ReminderSchedule: cfg.ReminderSchedule,
		ReminderAfter:    cfg.ReminderAfter,
		Location:         policyCfg.Location,
	})
	if err := jobsSvc.Start(ctx); err != nil {
		return err
	}

	perms := auth.StaticPermissions{}
	router := NewRouter(RouterDeps{
		Config:  cfg,
		Metrics: collector,
		Perms:   perms,
		DB:      pool,
		Handlers: []RouteRegistrar{
			permitshandler.NewHandler(permitSvc, perms, docs, jobsSvc, middleware.NewIdempotencyStore(pool)),
			notificationshandler.NewHandler(notifySvc),
			audithandler.NewHandler(auditSvc, perms),
		},
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("permit server listening", "addr", cfg.Addr, "env", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		stop()
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", "err", err)
	}
	jobsSvc.Wait()
	dispatcher.Stop()
	slog.Info("server stopped")
	return nil
}

// PolicyConfig builds the scheduling rules from the environment settings.
func PolicyConfig(cfg config.Config) (policy.Config, error) {
	out := policy.DefaultConfig()
	var err error
	if out.WorkdayStart, err = policy.ParseClock(cfg.WorkdayStart); err != nil {
		return policy.Config{}, fmt.Errorf("WORKDAY_START: %w", err)
	}
	if out.WorkdayEnd, err = policy.ParseClock(cfg.WorkdayEnd); err != nil {
		return policy.Config{}, fmt.Errorf("WORKDAY_END: %w", err)
	}
	if out.WorkdayEnd <= out.WorkdayStart {
		return policy.Config{}, fmt.Errorf("WORKDAY_END must be after WORKDAY_START")
	}
	if out.WorkingDays, err = policy.ParseWorkingDays(cfg.WorkingDays); err != nil {
		return policy.Config{}, fmt.Errorf("WORKING_DAYS: %w", err)
	}
	if out.Location, err = cfg.Location(); err != nil {
		return policy.Config{}, fmt.Errorf("TIMEZONE: %w", err)
	}
	out.MinDuration = cfg.MinPermitDuration
	out.MaxDuration = cfg.MaxPermitDuration
	out.MinRejectComments = cfg.RejectCommentMinLength
	return out, nil
}

func setupLogging(cfg config.Config) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if cfg.Environment == "production" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
