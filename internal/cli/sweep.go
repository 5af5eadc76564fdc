package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vanderhaka/jarve-agency-sub002/internal/reconcile"
)

// SweepOptions holds flags for the sweep command.
type SweepOptions struct {
	*RootOptions

	// overrides replaces the configured provider and notifier (for testing).
	overrides appOverrides
}

// NewSweepCommand creates the sweep command.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	return newSweepCommand(&SweepOptions{RootOptions: rootOpts})
}

func newSweepCommand(opts *SweepOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one payment reconciliation sweep",
		Long: `Check every invoice that has been processing longer than
reconcile.grace_window against the payment provider and record what changed.

Requires stripe.secret_key. Invoices whose check errors are counted as
failed and retried on the next sweep; they do not make the command fail.

Exit codes:
  0 - Sweep completed
  1 - Sweep could not run
  2 - Command error (bad config, no provider, etc.)

Example:
  agencyops sweep --config ./agencyops.yaml
  agencyops sweep --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(opts, cmd)
		},
	}

	return cmd
}

func runSweep(opts *SweepOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
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

	f := opts.formatter(cmd)
	res, err := a.reconcile.Sweep(cmd.Context())
	if errors.Is(err, reconcile.ErrNoProvider) {
		return WrapExitError(ExitCommandError, "stripe.secret_key is not configured", err)
	}
	if err != nil {
		return f.Outcome(err)
	}

	if opts.Format == "json" {
		return f.Success(res)
	}
	return f.Success(fmt.Sprintf("Checked %d invoice(s): %d paid, %d marked failed, %d pending, %d errored",
		res.Checked, res.Paid, res.MarkedFailed, res.Pending, res.Failed))
}
