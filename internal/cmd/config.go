package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewConfigCmd creates the config command
func NewConfigCmd() *cobra.Command {
	var (
		show     bool
		setRange string
	)

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage port range configuration",
		Long: `Shows or updates the per-service port ranges used by the allocator.

Examples:
  portman config --show
  portman config --set-range postgres:5500-5599`,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := openRegistry()
			if err != nil {
				return err
			}
			defer func() { _ = reg.Close() }()

			if show {
				ranges, err := reg.PortRanges()
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
				fmt.Fprintln(w, "SERVICE\tRANGE START\tRANGE END")
				for _, r := range ranges {
					fmt.Fprintf(w, "%s\t%d\t%d\n", r.Service, r.Start, r.End)
				}
				return w.Flush()
			}

			if setRange != "" {
				service, start, end, err := parseRangeSpec(setRange)
				if err != nil {
					return err
				}
				if err := reg.SetPortRange(service, start, end); err != nil {
					return err
				}
				fmt.Printf("%s\n", green(fmt.Sprintf("Set range for %s: %d-%d", service, start, end)))
				return nil
			}

			return errors.New("use --show or --set-range")
		},
	}

	cmd.Flags().BoolVar(&show, "show", false, "Show current configuration")
	cmd.Flags().StringVar(&setRange, "set-range", "", "Set a port range: service:start-end")

	return cmd
}

// parseRangeSpec parses "service:start-end"
func parseRangeSpec(spec string) (service string, start, end int, err error) {
	service, rangePart, found := strings.Cut(spec, ":")
	if !found || service == "" {
		return "", 0, 0, errors.New("format should be service:start-end")
	}

	startStr, endStr, found := strings.Cut(rangePart, "-")
	if !found {
		return "", 0, 0, errors.New("range should be start-end")
	}

	start, err = strconv.Atoi(startStr)
	if err != nil {
		return "", 0, 0, errors.New("ports must be integers")
	}
	end, err = strconv.Atoi(endStr)
	if err != nil {
		return "", 0, 0, errors.New("ports must be integers")
	}
	if start >= end {
		return "", 0, 0, errors.New("start must be less than end")
	}

	return service, start, end, nil
}
