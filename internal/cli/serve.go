package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vanderhaka/jarve-agency-sub002/internal/httpapi"
	"github.com/vanderhaka/jarve-agency-sub002/internal/reconcile"
)

const shutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string

	// overrides replaces the configured provider and notifier (for testing).
	overrides appOverrides
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return newServeCommand(&ServeOptions{RootOptions: rootOpts})
}

func newServeCommand(opts *ServeOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the reconciliation scheduler",
		Long: `Start the HTTP API for conversion, documents, milestones and payments.

The database is created and migrated if it does not exist. When
reconcile.enabled is set and a payment provider is configured, a
background sweep runs every reconcile.interval.

Example:
  agencyops serve --config ./agencyops.yaml
  agencyops serve --addr 127.0.0.1:9090 --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides server.addr)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if opts.Addr != "" {
		cfg.Server.Addr = opts.Addr
	}
	logger := newLogger(opts.RootOptions, cfg, cmd.ErrOrStderr())

	a, err := openApp(cfg, logger, opts.overrides)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Error("error closing resources", "error", closeErr)
		}
	}()

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	// The scheduler must stop before the store is closed.
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	var scheduler *reconcile.Scheduler
	if cfg.Reconcile.Enabled && a.hasProvider {
		scheduler = reconcile.NewScheduler(a.reconcile, cfg.Reconcile.Interval, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			scheduler.Run(ctx)
		}()
		logger.Info("reconciliation scheduler started", "interval", cfg.Reconcile.Interval)
	} else {
		logger.Info("reconciliation scheduler disabled", "enabled", cfg.Reconcile.Enabled, "provider", a.hasProvider)
	}

	if cfg.Stripe.WebhookSecret == "" {
		logger.Warn("stripe.webhook_secret is not configured, webhook events will be refused")
	}

	router := httpapi.NewRouter(httpapi.Deps{
		Store:            a.store,
		Conversion:       a.conversion,
		Documents:        a.documents,
		Milestones:       a.milestones,
		Reconcile:        a.reconcile,
		Scheduler:        scheduler,
		WebhookSecret:    cfg.Stripe.WebhookSecret,
		WebhookTolerance: cfg.Stripe.WebhookTolerance,
		Logger:           logger,
	})

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}
	srv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()

	logger.Info("server starting", "addr", ln.Addr().String(), "db", cfg.Database.Path)
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", ln.Addr())
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitFailure, "server error", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "shutdown error", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}
