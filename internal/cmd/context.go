package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewContextCmd creates the context command
func NewContextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Show the current context",
		Long: `Shows how the current directory is identified: the context hash that keys
all allocations, plus the git remote and branch it was derived from (when
available).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := currentContext()
			if err != nil {
				return err
			}

			fmt.Printf("Context: %s\n", green(ctx.Hash))
			fmt.Printf("  %s %s\n", dim("Path:  "), ctx.Path)
			fmt.Printf("  %s %s\n", dim("Label: "), ctx.Label)
			if ctx.Remote != "" {
				fmt.Printf("  %s %s\n", dim("Remote:"), ctx.Remote)
			}
			if ctx.Branch != "" {
				fmt.Printf("  %s %s\n", dim("Branch:"), ctx.Branch)
			}
			return nil
		},
	}

	return cmd
}
