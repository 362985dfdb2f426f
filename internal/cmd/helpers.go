package cmd

import (
	"fmt"

	"github.com/fatih/color"

	"github.com/thatjpcsguy/portman/internal/identity"
	"github.com/thatjpcsguy/portman/internal/registry"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	dim    = color.New(color.Faint).SprintFunc()
)

// openRegistry opens the shared registry database
func openRegistry() (*registry.Registry, error) {
	reg, err := registry.New()
	if err != nil {
		return nil, fmt.Errorf("failed to open registry: %w", err)
	}
	return reg, nil
}

// currentContext identifies the working directory's context
func currentContext() (identity.Context, error) {
	ctx, err := identity.Identify("")
	if err != nil {
		return identity.Context{}, fmt.Errorf("failed to identify context: %w", err)
	}
	return ctx, nil
}
