// Package allocator implements the port allocation algorithm: idempotent
// booking per (context, service), preferred-port handling, and range-based
// search with fallback to the default range.
package allocator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/thatjpcsguy/portman/internal/registry"
	"github.com/thatjpcsguy/portman/internal/sysports"
)

// Scanner reports port occupancy on the local machine
type Scanner interface {
	ListeningPorts() map[int]struct{}
	IsBindable(port int) bool
}

// AllocationError is returned when no port could be found in the searched
// ranges
type AllocationError struct {
	Service string
	Ranges  []registry.PortRange
}

func (e *AllocationError) Error() string {
	searched := make([]string, 0, len(e.Ranges))
	for _, r := range e.Ranges {
		searched = append(searched, fmt.Sprintf("%d-%d", r.Start, r.End))
	}
	return fmt.Sprintf("no available port for service %q (searched %s)",
		e.Service, strings.Join(searched, ", "))
}

// Request describes a booking. Service is the registry identity; RangeKey is
// the canonical service type used for range lookup and defaults to Service.
type Request struct {
	Service       string
	RangeKey      string
	ContextHash   string
	ContextPath   string
	ContextLabel  string
	PreferredPort int
	ContainerPort int
	EnvVar        string
	Source        string
}

// Allocator books ports with machine-wide uniqueness
type Allocator struct {
	reg *registry.Registry
	sys Scanner
}

// New creates an allocator backed by the live system port observer
func New(reg *registry.Registry) *Allocator {
	return NewWithScanner(reg, sysports.New())
}

// NewWithScanner creates an allocator with a custom port observer
func NewWithScanner(reg *registry.Registry, sys Scanner) *Allocator {
	return &Allocator{reg: reg, sys: sys}
}

// Allocate returns the port for a (context, service) pair, booking one if
// needed.
//
// An existing allocation is always returned unchanged, with only its access
// timestamp updated; the preferred port is ignored in that case. Otherwise
// the preferred port is tried first, then the service's range in ascending
// order, then the default range. Candidates are rejected when they appear in
// the registry, in the system's listening set, or fail a live bind probe.
func (a *Allocator) Allocate(req Request) (int, error) {
	service := registry.NormalizeService(req.Service)
	rangeKey := registry.NormalizeService(req.RangeKey)
	if rangeKey == "" {
		rangeKey = service
	}

	// Idempotency: an existing booking is never moved
	existing, err := a.reg.GetAllocation(req.ContextHash, service)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		if err := a.reg.TouchAllocation(existing.ID); err != nil {
			return 0, err
		}
		return existing.Port, nil
	}

	unavailable, err := a.unavailablePorts()
	if err != nil {
		return 0, err
	}

	if req.PreferredPort > 0 && a.available(req.PreferredPort, unavailable) {
		port, ok, err := a.book(req, service, req.PreferredPort, unavailable)
		if err != nil {
			return 0, err
		}
		if ok {
			return port, nil
		}
	}

	serviceRange, err := a.reg.GetPortRange(rangeKey)
	if err != nil {
		return 0, err
	}

	searched := []registry.PortRange{serviceRange}
	// Services without a dedicated range already resolved to the default
	// range; don't scan it twice
	if serviceRange.Service != "default" {
		defaultRange, err := a.reg.GetPortRange("default")
		if err != nil {
			return 0, err
		}
		searched = append(searched, defaultRange)
	}

	for _, pr := range searched {
		for port := pr.Start; port <= pr.End; port++ {
			if !a.available(port, unavailable) {
				continue
			}
			booked, ok, err := a.book(req, service, port, unavailable)
			if err != nil {
				return 0, err
			}
			if ok {
				return booked, nil
			}
			// Lost a race for this port; keep scanning
		}
	}

	return 0, &AllocationError{Service: service, Ranges: searched}
}

// book inserts the allocation row. A conflict means another process booked
// the port between our checks; the port is marked unavailable and the caller
// moves on to the next candidate.
func (a *Allocator) book(req Request, service string, port int, unavailable map[int]struct{}) (int, bool, error) {
	_, err := a.reg.CreateAllocation(registry.Allocation{
		ContextHash:   req.ContextHash,
		ContextPath:   req.ContextPath,
		ContextLabel:  req.ContextLabel,
		Service:       service,
		Port:          port,
		ContainerPort: req.ContainerPort,
		EnvVar:        req.EnvVar,
		Source:        req.Source,
	})
	if errors.Is(err, registry.ErrConflict) {
		// A concurrent identical invocation may have booked the pair itself
		existing, gerr := a.reg.GetAllocation(req.ContextHash, service)
		if gerr != nil {
			return 0, false, gerr
		}
		if existing != nil {
			return existing.Port, true, nil
		}
		unavailable[port] = struct{}{}
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return port, true, nil
}

// unavailablePorts combines registry allocations with the system's listening
// snapshot
func (a *Allocator) unavailablePorts() (map[int]struct{}, error) {
	ports, err := a.reg.AllAllocatedPorts()
	if err != nil {
		return nil, err
	}
	for port := range a.sys.ListeningPorts() {
		ports[port] = struct{}{}
	}
	return ports, nil
}

func (a *Allocator) available(port int, unavailable map[int]struct{}) bool {
	if _, taken := unavailable[port]; taken {
		return false
	}
	return a.sys.IsBindable(port)
}
