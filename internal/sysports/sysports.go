// Package sysports reports which TCP ports are occupied on the local host.
package sysports

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// System observes ports on the local machine
type System struct{}

// New creates a System observer
func New() *System {
	return &System{}
}

// ListeningPorts returns a best-effort snapshot of TCP ports in LISTEN state.
// It tries ss, then lsof, then netstat, and returns the first non-empty
// result. All failures degrade to an empty set.
func (s *System) ListeningPorts() map[int]struct{} {
	if ports := s.scanSS(); len(ports) > 0 {
		return ports
	}
	if ports := s.scanLsof(); len(ports) > 0 {
		return ports
	}
	if ports := s.scanNetstat(); len(ports) > 0 {
		return ports
	}
	return map[int]struct{}{}
}

// IsBindable attempts a real bind-and-release on loopback with address reuse
// enabled. The result is only valid for the instant of the probe and may race
// with concurrent binders.
func (s *System) IsBindable(port int) bool {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}

	listener, err := lc.Listen(context.Background(), "tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}
	_ = listener.Close()
	return true
}

// run executes an enumeration tool with a bounded timeout and returns its
// stdout, or "" on any failure
func run(timeout time.Duration, name string, args ...string) string {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	output, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return ""
	}
	return string(output)
}

// scanSS scans ports using ss (Linux, fastest)
func (s *System) scanSS() map[int]struct{} {
	// TCP, listening, numeric, no header
	return parsePorts(run(5*time.Second, "ss", "-tlnH"), "")
}

// scanLsof scans ports using lsof (macOS/Linux)
func (s *System) scanLsof() map[int]struct{} {
	out := run(10*time.Second, "lsof", "-iTCP", "-sTCP:LISTEN", "-P", "-n")
	// Skip the header line
	if _, rest, found := strings.Cut(out, "\n"); found {
		out = rest
	}
	return parsePorts(out, "")
}

// scanNetstat scans ports using netstat (universal, slowest)
func (s *System) scanNetstat() map[int]struct{} {
	return parsePorts(run(10*time.Second, "netstat", "-tln"), "LISTEN")
}

var localPortRe = regexp.MustCompile(`:(\d+)(?:\s|$)`)

// parsePorts extracts port numbers from enumeration tool output. Lines are
// skipped unless they contain filter (when non-empty).
func parsePorts(output, filter string) map[int]struct{} {
	ports := make(map[int]struct{})

	for _, line := range strings.Split(output, "\n") {
		if filter != "" && !strings.Contains(line, filter) {
			continue
		}
		match := localPortRe.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		port, err := strconv.Atoi(match[1])
		if err != nil || port < 1 || port > 65535 {
			continue
		}
		ports[port] = struct{}{}
	}

	return ports
}
