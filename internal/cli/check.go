package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/filefilter/internal/config"
	"github.com/hupe1980/filefilter/internal/filter"
	"github.com/hupe1980/filefilter/internal/output"
)

func newCheckCommand() *cobra.Command {
	opts := &chainOptions{}

	var format string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Resolve every filter of a chain without running it",
		Long: `Check looks up every filter of the chain (and the caller, if one is
configured) in the filter search path and prints the command each stage
would run. It exits with code 1 when a filter cannot be found.`,
		Args: noPositionalArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(cmd, opts, format)
		},
	}

	registerFilterFlags(cmd, opts)
	cmd.Flags().StringVarP(&format, "output", "o", "table", "output format: "+output.DefaultRegistry().AvailableFormats())

	return cmd
}

func runCheck(cmd *cobra.Command, opts *chainOptions, format string) error {
	cfg := config.FromContext(cmd.Context())

	render, err := output.DefaultRegistry().Renderer(format)
	if err != nil {
		return &ExitError{Code: ExitUsage, Err: err}
	}

	specs, err := opts.specs(cfg.Caller)
	if err != nil {
		return err
	}

	sp := filter.EnvSearchPath(cfg.FilterDir)
	report := &output.Report{Headers: []string{"Stage", "Filter", "Command", "Status"}}

	var missing int

	for i, spec := range specs {
		command, status := "-", "ok"

		args, lookupErr := filter.NewInvoker(spec, sp).Command()
		if lookupErr != nil {
			status = "not found"
			missing++
		} else {
			command = strings.Join(args, " ")
		}

		report.Rows = append(report.Rows, []string{strconv.Itoa(i + 1), spec.String(), command, status})
	}

	if err := render(cmd.OutOrStdout(), report); err != nil {
		return err
	}

	if missing > 0 {
		return &ExitError{
			Code: ExitFailure,
			Err:  fmt.Errorf("%d of %d filter(s) not found in search path %q", missing, len(specs), sp.String()),
		}
	}

	return nil
}
