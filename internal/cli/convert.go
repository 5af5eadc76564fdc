package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vanderhaka/jarve-agency-sub002/internal/conversion"
	"github.com/vanderhaka/jarve-agency-sub002/internal/domain"
)

// ConvertOptions holds flags for the convert command.
type ConvertOptions struct {
	*RootOptions
	ProjectName   string
	ProjectType   string
	ProjectStatus string
	AssignedTo    string
	Employee      string
}

// NewConvertCommand creates the convert command.
func NewConvertCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConvertOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "convert <lead-id>",
		Short: "Convert a lead into a client and a project",
		Long: `Convert a lead into a client and a project.

An existing client with the same email is reused. The project name defaults
to the lead's name.

Exit codes:
  0 - Lead converted
  1 - Conversion refused (not found, already converted, invalid input)
  2 - Command error (bad config, database cannot be opened)

Example:
  agencyops convert lead-42 --employee emp-1
  agencyops convert lead-42 --project-name "Website rebuild" --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ProjectName, "project-name", "", "project name (default: lead name)")
	cmd.Flags().StringVar(&opts.ProjectType, "project-type", "", "project type")
	cmd.Flags().StringVar(&opts.ProjectStatus, "project-status", "", "initial project status")
	cmd.Flags().StringVar(&opts.AssignedTo, "assigned-to", "", "employee id to assign the project to")
	cmd.Flags().StringVar(&opts.Employee, "employee", "", "acting employee id")

	return cmd
}

func runConvert(opts *ConvertOptions, leadID string, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	logger := newLogger(opts.RootOptions, cfg, cmd.ErrOrStderr())

	a, err := openApp(cfg, logger, appOverrides{})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Error("error closing resources", "error", closeErr)
		}
	}()

	f := opts.formatter(cmd)
	f.VerboseLog("converting lead %s", leadID)

	res, err := a.conversion.ConvertLead(cmd.Context(), leadID, conversion.Input{
		ProjectName:   opts.ProjectName,
		ProjectType:   opts.ProjectType,
		ProjectStatus: opts.ProjectStatus,
		AssignedTo:    domain.Ref(opts.AssignedTo),
	}, opts.Employee)
	if err != nil {
		return f.Outcome(err)
	}

	if opts.Format == "json" {
		return f.Success(res)
	}

	var b strings.Builder
	if res.LinkedExisting {
		fmt.Fprintf(&b, "Lead %s linked to existing client %s\n", leadID, res.ClientID)
	} else {
		fmt.Fprintf(&b, "Lead %s converted to new client %s\n", leadID, res.ClientID)
	}
	fmt.Fprintf(&b, "Project: %s", res.ProjectID)
	for _, se := range res.SideEffects {
		if se.Failed() {
			fmt.Fprintf(&b, "\nWarning: %s did not complete", se.Name)
		}
	}
	return f.Success(b.String())
}
