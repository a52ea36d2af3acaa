package cli

import (
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands
type RootOptions struct {
	ConfigPath string
}

// NewRootCommand creates the root command for the clover CLI
func NewRootCommand(version string) *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "clover",
		Short:         "Test case import reconciliation",
		Long:          "Deduplicates imported test cases against a project's pool and routes ambiguous matches to review.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to a TOML config file")

	cmd.AddCommand(NewServeCommand(opts, version))
	cmd.AddCommand(NewDedupeCommand(opts))

	return cmd
}
