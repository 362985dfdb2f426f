package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/thatjpcsguy/portman/internal/cmd"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "portman",
		Short: "Port manager for development environments",
		Long: `Portman allocates and tracks TCP ports for development services on a
per-project, per-branch basis, and exports them as shell environment
variables so several working copies can run their Docker services side
by side without port conflicts.`,
		Version: version,
	}

	// Add subcommands
	rootCmd.AddCommand(cmd.NewGetCmd())
	rootCmd.AddCommand(cmd.NewBookCmd())
	rootCmd.AddCommand(cmd.NewReleaseCmd())
	rootCmd.AddCommand(cmd.NewExportCmd())
	rootCmd.AddCommand(cmd.NewStatusCmd())
	rootCmd.AddCommand(cmd.NewListCmd())
	rootCmd.AddCommand(cmd.NewContextCmd())
	rootCmd.AddCommand(cmd.NewDiscoverCmd())
	rootCmd.AddCommand(cmd.NewPruneCmd())
	rootCmd.AddCommand(cmd.NewGCCmd())
	rootCmd.AddCommand(cmd.NewConfigCmd())
	rootCmd.AddCommand(cmd.NewInitCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
