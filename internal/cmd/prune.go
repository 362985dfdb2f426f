package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/thatjpcsguy/portman/internal/pruner"
)

// NewPruneCmd creates the prune command
func NewPruneCmd() *cobra.Command {
	var (
		dryRun    bool
		staleDays int
		force     bool
	)

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove orphaned port allocations",
		Long: `Removes allocations whose context path no longer exists on disk.
With --stale, allocations not accessed in the given number of days are
removed as well, regardless of path validity.

Examples:
  portman prune --dry-run
  portman prune
  portman prune --stale 30`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrune(dryRun, staleDays, force)
		},
	}

	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would be removed")
	cmd.Flags().IntVar(&staleDays, "stale", 0, "Also remove allocations not accessed in N days")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation")

	return cmd
}

// NewGCCmd creates the gc command, an alias for prune
func NewGCCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gc",
		Short: "Garbage collect orphaned allocations (alias for prune)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrune(false, 0, false)
		},
	}
}

func runPrune(dryRun bool, staleDays int, force bool) error {
	reg, err := openRegistry()
	if err != nil {
		return err
	}
	defer func() { _ = reg.Close() }()

	p := pruner.New(reg)

	// Classify first so the user sees what a real run would remove
	preview, err := p.Prune(true)
	if err != nil {
		return err
	}
	if staleDays > 0 {
		stale, err := p.PruneStale(staleDays, true)
		if err != nil {
			return err
		}
		preview.Removed = append(preview.Removed, stale.Removed...)
	}

	for _, msg := range preview.Errors {
		fmt.Printf("%s %s\n", red("Skipped:"), msg)
	}

	if len(preview.Removed) == 0 {
		fmt.Printf("%s\n", green("No orphaned allocations found"))
		return nil
	}

	fmt.Printf("%s\n", yellow(fmt.Sprintf("Would remove %d allocation(s):", len(preview.Removed))))
	for _, alloc := range preview.Removed {
		fmt.Printf("  - %s: %s (%d)\n", alloc.ContextLabel, alloc.Service, alloc.Port)
	}

	if dryRun {
		fmt.Printf("\n%s\n", dim("Run without --dry-run to remove."))
		return nil
	}

	if !force && !confirm("Proceed with deletion?") {
		fmt.Printf("%s\n", yellow("Cancelled"))
		return nil
	}

	result, err := p.Prune(false)
	if err != nil {
		return err
	}
	if staleDays > 0 {
		stale, err := p.PruneStale(staleDays, false)
		if err != nil {
			return err
		}
		result.Removed = append(result.Removed, stale.Removed...)
		result.Errors = append(result.Errors, stale.Errors...)
	}

	for _, msg := range result.Errors {
		fmt.Printf("%s %s\n", red("Error:"), msg)
	}
	fmt.Printf("%s\n", green(fmt.Sprintf("Removed %d allocation(s)", len(result.Removed))))
	return nil
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N] ", prompt)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
