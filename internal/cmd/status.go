package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/thatjpcsguy/portman/internal/registry"
	"github.com/thatjpcsguy/portman/internal/sysports"
)

// NewStatusCmd creates the status command
func NewStatusCmd() *cobra.Command {
	var (
		all  bool
		live bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show port allocations",
		Long: `Shows port allocations for the current context, or for every context
with --all. With --live each port is checked against the system's
listening set.

Examples:
  portman status
  portman status --all
  portman status --all --live`,
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

			var allocations []registry.Allocation
			if all {
				allocations, err = reg.AllAllocations()
			} else {
				allocations, err = reg.AllocationsByContext(ctx.Hash)
			}
			if err != nil {
				return err
			}

			if len(allocations) == 0 {
				fmt.Printf("%s\n", yellow("No allocations found"))
				return nil
			}

			listening := map[int]struct{}{}
			if live {
				listening = sysports.New().ListeningPorts()
			}

			w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)

			header := "SERVICE\tPORT"
			if all {
				header = "CONTEXT\tLABEL\t" + header
			}
			if live {
				header += "\tSTATUS"
			}
			fmt.Fprintln(w, header)

			for _, alloc := range allocations {
				var row string
				if all {
					row = fmt.Sprintf("%s\t%s\t", shortHash(alloc.ContextHash), alloc.ContextLabel)
				}
				row += fmt.Sprintf("%s\t%d", alloc.Service, alloc.Port)
				if live {
					if _, ok := listening[alloc.Port]; ok {
						row += "\t" + green("LISTEN")
					} else {
						row += "\t" + dim("free")
					}
				}
				fmt.Fprintln(w, row)
			}

			return w.Flush()
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "Show all contexts, not just the current one")
	cmd.Flags().BoolVar(&live, "live", false, "Check whether ports are actually listening")

	return cmd
}

// shortHash abbreviates a context hash for display. Hashes are normally 12
// chars, but rows written by other tools may be shorter.
func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
