package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/galotfa/internal/cli/config"
)

// NewConfigCommand creates the config command.
func NewConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the configuration after merging defaults, the config file,
GALOTFA_ environment variables and flags, as galotfa.yaml content.`,
		Example: `  # Show the effective configuration
  galotfa config

  # Start a config file from the defaults
  galotfa config > galotfa.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := yaml.Marshal(config.Effective())
			if err != nil {
				return fmt.Errorf("failed to encode config: %w", err)
			}
			if used := config.GetConfigFileUsed(); used != "" {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "# loaded from %s\n", used)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}
