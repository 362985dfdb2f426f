package registry

import (
	"regexp"
	"strings"
	"time"
)

// Allocation represents a persisted (context, service) -> port binding
type Allocation struct {
	ID             int64
	ContextHash    string
	ContextPath    string
	ContextLabel   string
	Service        string
	Port           int
	ContainerPort  int // 0 when unknown
	EnvVar         string
	Source         string // "docker-compose.yml", "manual", ...
	CreatedAt      time.Time
	LastAccessedAt time.Time
}

var envVarSanitizer = regexp.MustCompile(`[^A-Z0-9_]`)

// EnvName returns the environment variable name for this allocation,
// deriving SERVICE_PORT when none was recorded.
func (a *Allocation) EnvName() string {
	if a.EnvVar != "" {
		return a.EnvVar
	}
	name := envVarSanitizer.ReplaceAllString(strings.ToUpper(a.Service), "_")
	return name + "_PORT"
}

// PortRange is the allocation window for a service
type PortRange struct {
	Service string
	Start   int
	End     int
}
