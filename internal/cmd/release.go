package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// NewReleaseCmd creates the release command
func NewReleaseCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "release [service]",
		Short: "Release port allocation(s) for the current context",
		Long: `Releases the port allocated to a service, or every port for the current
context with --all.

Examples:
  portman release postgres
  portman release --all`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := openRegistry()
			if err != nil {
				return err
			}
			defer func() { _ = reg.Close() }()

			ctx, err := currentContext()
			if err != nil {
				return err
			}

			if all {
				count, err := reg.DeleteByContext(ctx.Hash)
				if err != nil {
					return err
				}
				fmt.Printf("%s\n", green(fmt.Sprintf("Released %d allocation(s)", count)))
				return nil
			}

			if len(args) == 0 {
				return errors.New("specify a service or use --all")
			}

			service := args[0]
			deleted, err := reg.DeleteByService(ctx.Hash, service)
			if err != nil {
				return err
			}
			if deleted {
				fmt.Printf("%s\n", green("Released "+service))
			} else {
				fmt.Printf("%s\n", yellow("No allocation found for "+service))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Release all ports for the current context")

	return cmd
}
