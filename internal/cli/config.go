package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/filefilter/internal/config"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Config prints the configuration filefilter would run with, after
merging defaults, the config file, FF_* environment variables and flags,
as YAML. The output is a valid .filefilter.yaml.`,
		Args: noPositionalArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.FromContext(cmd.Context())

			if cfg.ConfigFile != "" {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "# config file: %s\n", cfg.ConfigFile)
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)

			if err := enc.Encode(cfg); err != nil {
				return fmt.Errorf("encoding config: %w", err)
			}

			return enc.Close()
		},
	}

	return cmd
}
