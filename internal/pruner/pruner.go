// Package pruner reconciles the registry against live filesystem and git
// state, removing allocations whose context is gone.
package pruner

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/thatjpcsguy/portman/internal/identity"
	"github.com/thatjpcsguy/portman/internal/registry"
)

// Store is the slice of the registry the pruner needs
type Store interface {
	AllAllocations() ([]registry.Allocation, error)
	StaleAllocations(days int) ([]registry.Allocation, error)
	DeleteAllocation(id int64) error
}

// IdentifyFunc re-derives the context for a path
type IdentifyFunc func(path string) (identity.Context, error)

// Result reports the outcome of a prune run
type Result struct {
	Removed []registry.Allocation
	Kept    []registry.Allocation
	Errors  []string
}

// Pruner classifies and removes orphaned or stale allocations
type Pruner struct {
	store    Store
	identify IdentifyFunc
}

// New creates a pruner using the real context identifier
func New(store Store) *Pruner {
	return NewWithIdentify(store, identity.Identify)
}

// NewWithIdentify creates a pruner with a custom identify function
func NewWithIdentify(store Store, identify IdentifyFunc) *Pruner {
	return &Pruner{store: store, identify: identify}
}

// Prune removes allocations whose context path no longer exists. A path that
// still exists but re-identifies to a different hash is a live context under
// a new identity (e.g. a switched branch), not an orphan, and is kept. When
// identification fails the allocation is kept and the error recorded: never
// destroy data on an identification error.
func (p *Pruner) Prune(dryRun bool) (Result, error) {
	var result Result

	allocations, err := p.store.AllAllocations()
	if err != nil {
		return result, fmt.Errorf("failed to list allocations: %w", err)
	}

	for _, alloc := range allocations {
		orphan, classifyErr := p.isOrphan(alloc)
		if classifyErr != nil {
			result.Kept = append(result.Kept, alloc)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", alloc.ContextLabel, classifyErr))
			continue
		}

		if !orphan {
			result.Kept = append(result.Kept, alloc)
			continue
		}

		if !dryRun {
			if err := p.store.DeleteAllocation(alloc.ID); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", alloc.ContextLabel, err))
				continue
			}
		}
		result.Removed = append(result.Removed, alloc)
	}

	return result, nil
}

// PruneStale removes allocations not accessed in the last N days, regardless
// of whether their context path still exists
func (p *Pruner) PruneStale(days int, dryRun bool) (Result, error) {
	var result Result

	stale, err := p.store.StaleAllocations(days)
	if err != nil {
		return result, fmt.Errorf("failed to list stale allocations: %w", err)
	}

	for _, alloc := range stale {
		if !dryRun {
			if err := p.store.DeleteAllocation(alloc.ID); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", alloc.ContextLabel, err))
				continue
			}
		}
		result.Removed = append(result.Removed, alloc)
	}

	return result, nil
}

// isOrphan reports whether the allocation's context path is gone. Errors
// other than non-existence are surfaced so the caller can fail open.
func (p *Pruner) isOrphan(alloc registry.Allocation) (bool, error) {
	_, err := os.Stat(alloc.ContextPath)
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, err
	}

	// The path exists. Re-derive its identity so identification failures are
	// surfaced, but a changed hash is drift, not orphaning.
	if _, err := p.identify(alloc.ContextPath); err != nil {
		return false, err
	}

	return false, nil
}
