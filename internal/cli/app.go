package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/vanderhaka/jarve-agency-sub002/internal/config"
	"github.com/vanderhaka/jarve-agency-sub002/internal/conversion"
	"github.com/vanderhaka/jarve-agency-sub002/internal/document"
	"github.com/vanderhaka/jarve-agency-sub002/internal/ledger"
	"github.com/vanderhaka/jarve-agency-sub002/internal/milestone"
	"github.com/vanderhaka/jarve-agency-sub002/internal/notify"
	"github.com/vanderhaka/jarve-agency-sub002/internal/payments"
	"github.com/vanderhaka/jarve-agency-sub002/internal/reconcile"
	"github.com/vanderhaka/jarve-agency-sub002/internal/store"
)

// app holds the engines built from one configuration.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	store  *store.Store

	conversion *conversion.Engine
	documents  *document.Engine
	milestones *milestone.Engine
	reconcile  *reconcile.Engine

	hasProvider bool
	closers     []io.Closer
}

// appOverrides replaces configured collaborators. Used by tests.
type appOverrides struct {
	provider reconcile.Provider
	notifier notify.Notifier
}

// loadConfig reads the config file named by --config.
func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return cfg, nil
}

// newLogger builds the process logger and installs it as the default.
// --verbose forces debug level. Every line carries the run id.
func newLogger(opts *RootOptions, cfg config.Config, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if opts.Verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	logger := slog.New(handler).With("run_id", opts.RunID())
	slog.SetDefault(logger)
	return logger
}

// openApp opens the database and wires every engine from cfg.
func openApp(cfg config.Config, logger *slog.Logger, ov appOverrides) (*app, error) {
	logger.Debug("opening database", "path", cfg.Database.Path)
	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	a := &app{cfg: cfg, logger: logger, store: st}

	notifier := ov.notifier
	if notifier == nil {
		notifier, err = a.newNotifier()
		if err != nil {
			_ = st.Close()
			return nil, WrapExitError(ExitCommandError, "failed to configure notifications", err)
		}
	}

	provider := ov.provider
	if provider == nil && cfg.Stripe.SecretKey != "" {
		provider = payments.NewClient(cfg.Stripe.APIBase, cfg.Stripe.SecretKey, payments.WithLogger(logger))
	}
	a.hasProvider = provider != nil

	a.conversion = conversion.New(st,
		conversion.WithLogger(logger),
		conversion.WithRequireSignedProposal(cfg.Conversion.RequireSignedProposal))
	a.documents = document.New(st,
		document.WithLogger(logger),
		document.WithNotifier(notifier))
	a.milestones = milestone.New(st,
		milestone.WithLogger(logger),
		milestone.WithGSTRate(cfg.GSTRate()),
		milestone.WithAutoInvoice(cfg.Billing.AutoInvoiceOnComplete))

	recOpts := []reconcile.Option{
		reconcile.WithLogger(logger),
		reconcile.WithNotifier(notifier),
		reconcile.WithGraceWindow(cfg.Reconcile.GraceWindow),
		reconcile.WithProviderTimeout(cfg.Reconcile.ProviderTimeout),
		reconcile.WithBatchLimit(cfg.Reconcile.BatchLimit),
	}
	if provider != nil {
		recOpts = append(recOpts, reconcile.WithProvider(provider))
	}
	if cfg.Xero.AccessToken != "" {
		recOpts = append(recOpts, reconcile.WithLedger(
			ledger.NewClient(cfg.Xero.APIBase, cfg.Xero.AccessToken, cfg.Xero.TenantID, cfg.Xero.AccountCode)))
	}
	a.reconcile = reconcile.New(st, recOpts...)

	return a, nil
}

func (a *app) newNotifier() (notify.Notifier, error) {
	if a.cfg.Redis.URL == "" {
		return notify.LogNotifier{Logger: a.logger}, nil
	}
	n, err := notify.NewRedisNotifier(a.cfg.Redis.URL, a.cfg.Redis.Channel)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, n)
	a.logger.Debug("publishing notifications to redis", "channel", a.cfg.Redis.Channel)
	return n, nil
}

// Close releases the notifier connections and the database.
func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	errs = append(errs, a.store.Close())
	return errors.Join(errs...)
}

// schemaVersion reports the applied migration level.
func (a *app) schemaVersion(ctx context.Context) (int, error) {
	return a.store.SchemaVersion(ctx)
}
