package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/thatjpcsguy/portman/internal/discovery"
)

// NewDiscoverCmd creates the discover command
func NewDiscoverCmd() *cobra.Command {
	var composeFile string

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Show services discovered from docker-compose files",
		Long: `Shows the services that would be booked by 'portman book --auto',
without booking anything.

Examples:
  portman discover
  portman discover --compose-file docker-compose.prod.yml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			services := discovery.Discover("", composeFile)

			if len(services) == 0 {
				desc := composeFile
				if desc == "" {
					desc = "docker-compose.yml"
				}
				fmt.Printf("%s\n", yellow("No services discovered from "+desc))
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SERVICE\tCONTAINER PORT\tENV VAR\tSOURCE")
			for _, svc := range services {
				envVar := svc.EnvVar
				if envVar == "" {
					envVar = "-"
				}
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", svc.Name, svc.ContainerPort, envVar, filepath.Base(svc.Source))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&composeFile, "compose-file", "f", "", "Path to docker-compose file")

	return cmd
}
