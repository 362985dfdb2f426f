package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thatjpcsguy/portman/internal/allocator"
	"github.com/thatjpcsguy/portman/internal/discovery"
	"github.com/thatjpcsguy/portman/internal/identity"
	"github.com/thatjpcsguy/portman/internal/registry"
)

// NewBookCmd creates the book command
func NewBookCmd() *cobra.Command {
	var (
		preferredPort int
		auto          bool
		composeFile   string
		quiet         bool
	)

	cmd := &cobra.Command{
		Use:   "book [service]",
		Short: "Book port(s) for service(s) in the current context",
		Long: `Books a port for a named service, or for every service discovered from a
docker-compose file with --auto.

Examples:
  portman book postgres
  portman book postgres --port 5433
  portman book --auto
  portman book --auto --compose-file docker-compose.prod.yml`,
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

			if auto {
				return bookAuto(reg, ctx, composeFile, quiet)
			}
			if len(args) == 1 {
				return bookService(reg, ctx, args[0], preferredPort, quiet)
			}
			return errors.New("specify a service or use --auto")
		},
	}

	cmd.Flags().IntVarP(&preferredPort, "port", "p", 0, "Preferred port")
	cmd.Flags().BoolVar(&auto, "auto", false, "Auto-discover services from docker-compose.yml")
	cmd.Flags().StringVarP(&composeFile, "compose-file", "f", "", "Path to docker-compose file")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Minimal output")

	return cmd
}

func bookAuto(reg *registry.Registry, ctx identity.Context, composeFile string, quiet bool) error {
	services := discovery.Discover("", composeFile)
	if len(services) == 0 {
		desc := composeFile
		if desc == "" {
			desc = "docker-compose.yml"
		}
		fmt.Printf("%s\n", yellow("No services discovered from "+desc))
		return nil
	}

	alloc := allocator.New(reg)

	for _, svc := range services {
		existing, err := reg.GetAllocation(ctx.Hash, svc.Name)
		if err != nil {
			return err
		}
		if existing != nil {
			if !quiet {
				fmt.Println(dim(fmt.Sprintf("%s: %d (already allocated)", svc.Name, existing.Port)))
			}
			continue
		}

		port, err := alloc.Allocate(allocator.Request{
			Service:       svc.Name,
			RangeKey:      discovery.InferServiceType(svc.Name, ""),
			ContextHash:   ctx.Hash,
			ContextPath:   ctx.Path,
			ContextLabel:  ctx.Label,
			ContainerPort: svc.ContainerPort,
			EnvVar:        svc.EnvVar,
			Source:        svc.Source,
		})
		if err != nil {
			fmt.Printf("%s %v\n", red("Error allocating "+svc.Name+":"), err)
			continue
		}

		if !quiet {
			fmt.Printf("%s: %d\n", green(svc.Name), port)
		}
	}

	return nil
}

func bookService(reg *registry.Registry, ctx identity.Context, service string, preferredPort int, quiet bool) error {
	existing, err := reg.GetAllocation(ctx.Hash, service)
	if err != nil {
		return err
	}
	if existing != nil {
		fmt.Printf("%s %d\n", yellow(service+" already allocated:"), existing.Port)
		return nil
	}

	port, err := allocator.New(reg).Allocate(allocator.Request{
		Service:       service,
		RangeKey:      discovery.InferServiceType(service, ""),
		ContextHash:   ctx.Hash,
		ContextPath:   ctx.Path,
		ContextLabel:  ctx.Label,
		PreferredPort: preferredPort,
		Source:        "manual",
	})
	if err != nil {
		return err
	}

	if quiet {
		fmt.Println(port)
	} else {
		fmt.Printf("%s: %d\n", green(service), port)
	}
	return nil
}
