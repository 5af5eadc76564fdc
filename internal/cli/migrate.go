package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// MigrateResult reports the state of the database after migration.
type MigrateResult struct {
	Path          string `json:"path"`
	SchemaVersion int    `json:"schema_version"`
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		Long: `Open the configured database, creating it if needed, and apply any
pending schema migrations. Safe to run repeatedly.

Example:
  agencyops migrate --config ./agencyops.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(rootOpts, cmd)
		},
	}

	return cmd
}

func runMigrate(opts *RootOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	logger := newLogger(opts, cfg, cmd.ErrOrStderr())

	a, err := openApp(cfg, logger, appOverrides{})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Error("error closing resources", "error", closeErr)
		}
	}()

	version, err := a.schemaVersion(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read schema version", err)
	}
	logger.Info("database ready", "path", cfg.Database.Path, "schema_version", version)

	f := opts.formatter(cmd)
	if opts.Format == "json" {
		return f.Success(MigrateResult{Path: cfg.Database.Path, SchemaVersion: version})
	}
	return f.Success(fmt.Sprintf("Database %s at schema version %d", cfg.Database.Path, version))
}
