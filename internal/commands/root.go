// Package commands wires the valuta CLI.
package commands

import (
	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X valuta/internal/commands.Version=...".
var Version = "dev"

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "valuta",
		Short:   "Currency exchange rates and conversion",
		Version: Version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newConvertCommand())
	rootCmd.AddCommand(newCodesCommand())
	rootCmd.AddCommand(newWatchCommand())

	return rootCmd
}
