package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/thatjpcsguy/portman/internal/allocator"
	"github.com/thatjpcsguy/portman/internal/discovery"
)

// NewExportCmd creates the export command
func NewExportCmd() *cobra.Command {
	var (
		auto        bool
		composeFile string
		format      string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export port allocations as environment variables",
		Long: `Exports the current context's port allocations as environment variables.

Designed for use with direnv:
  eval "$(portman export --auto)"

Examples:
  portman export
  portman export --auto
  portman export --auto --compose-file docker-compose.prod.yml
  portman export --format json`,
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

			if auto {
				alloc := allocator.New(reg)
				for _, svc := range discovery.Discover("", composeFile) {
					existing, err := reg.GetAllocation(ctx.Hash, svc.Name)
					if err != nil {
						return err
					}
					if existing != nil {
						if err := reg.TouchAllocation(existing.ID); err != nil {
							return err
						}
						continue
					}

					_, err = alloc.Allocate(allocator.Request{
						Service:       svc.Name,
						RangeKey:      discovery.InferServiceType(svc.Name, ""),
						ContextHash:   ctx.Hash,
						ContextPath:   ctx.Path,
						ContextLabel:  ctx.Label,
						ContainerPort: svc.ContainerPort,
						EnvVar:        svc.EnvVar,
						Source:        svc.Source,
					})
					var allocErr *allocator.AllocationError
					if errors.As(err, &allocErr) {
						// Exhaustion must not break the export output
						continue
					}
					if err != nil {
						return err
					}
				}
			}

			allocations, err := reg.AllocationsByContext(ctx.Hash)
			if err != nil {
				return err
			}

			switch format {
			case "json":
				vars := make(map[string]int, len(allocations))
				for i := range allocations {
					vars[allocations[i].EnvName()] = allocations[i].Port
				}
				out, err := json.MarshalIndent(vars, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(out))
			case "env":
				for i := range allocations {
					fmt.Printf("%s=%d\n", allocations[i].EnvName(), allocations[i].Port)
				}
			default: // shell
				for i := range allocations {
					fmt.Printf("export %s=%d\n", allocations[i].EnvName(), allocations[i].Port)
				}
				// Isolate compose projects per context
				fmt.Printf("export COMPOSE_PROJECT_NAME=%s\n", strings.ReplaceAll(ctx.Label, "/", "-"))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&auto, "auto", false, "Auto-discover and book services")
	cmd.Flags().StringVar(&composeFile, "compose-file", "", "Path to docker-compose file")
	cmd.Flags().StringVar(&format, "format", "shell", "Output format: shell, env, json")

	return cmd
}
