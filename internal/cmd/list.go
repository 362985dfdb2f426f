package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thatjpcsguy/portman/internal/registry"
)

// NewListCmd creates the list command
func NewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all allocations grouped by context",
		Long:  `Lists every port allocation in the registry, grouped by context.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := openRegistry()
			if err != nil {
				return err
			}
			defer func() { _ = reg.Close() }()

			allocations, err := reg.AllAllocations()
			if err != nil {
				return err
			}

			if len(allocations) == 0 {
				fmt.Println("No allocations found")
				return nil
			}

			grouped := make(map[string][]registry.Allocation)
			var order []string
			for _, alloc := range allocations {
				if _, seen := grouped[alloc.ContextHash]; !seen {
					order = append(order, alloc.ContextHash)
				}
				grouped[alloc.ContextHash] = append(grouped[alloc.ContextHash], alloc)
			}

			for _, hash := range order {
				group := grouped[hash]
				fmt.Printf("%s %s\n", green(group[0].ContextLabel), dim("("+hash+")"))
				fmt.Printf("  Path: %s\n", group[0].ContextPath)
				for _, alloc := range group {
					fmt.Printf("  %-18s %d\n", alloc.Service, alloc.Port)
				}
				fmt.Println()
			}

			return nil
		},
	}

	return cmd
}
