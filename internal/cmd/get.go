package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thatjpcsguy/portman/internal/allocator"
	"github.com/thatjpcsguy/portman/internal/discovery"
)

// NewGetCmd creates the get command
func NewGetCmd() *cobra.Command {
	var (
		quiet bool
		book  bool
	)

	cmd := &cobra.Command{
		Use:   "get <service>",
		Short: "Get the port for a service in the current context",
		Long: `Gets the allocated port for a service in the current context.

If no port is allocated yet and --book is set (the default), a port is
allocated automatically.

Examples:
  portman get postgres
  portman get redis -q
  PGPORT=$(portman get postgres -q)`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service := args[0]

			reg, err := openRegistry()
			if err != nil {
				return err
			}
			defer func() { _ = reg.Close() }()

			ctx, err := currentContext()
			if err != nil {
				return err
			}

			alloc, err := reg.GetAllocation(ctx.Hash, service)
			if err != nil {
				return err
			}

			var port int
			switch {
			case alloc != nil:
				if err := reg.TouchAllocation(alloc.ID); err != nil {
					return err
				}
				port = alloc.Port
			case book:
				port, err = allocator.New(reg).Allocate(allocator.Request{
					Service:      service,
					RangeKey:     discovery.InferServiceType(service, ""),
					ContextHash:  ctx.Hash,
					ContextPath:  ctx.Path,
					ContextLabel: ctx.Label,
					Source:       "manual",
				})
				if err != nil {
					return err
				}
			default:
				return fmt.Errorf("no port allocated for %q in current context", service)
			}

			if quiet {
				fmt.Println(port)
			} else {
				fmt.Printf("%s: %d\n", green(service), port)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Output only the port number")
	cmd.Flags().BoolVar(&book, "book", true, "Automatically book a port when none is allocated")

	return cmd
}
