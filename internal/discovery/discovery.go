// Package discovery extracts port requests from docker-compose files.
package discovery

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Service is a compose service that needs a host port allocated
type Service struct {
	Name          string
	ContainerPort int
	EnvVar        string
	Source        string
}

var composeFileNames = []string{
	"docker-compose.yml",
	"docker-compose.yaml",
	"compose.yml",
	"compose.yaml",
}

// Discover returns the services requiring port allocation. With composeFile
// set only that file is parsed; otherwise dir is searched for the standard
// compose file names. Unreadable or malformed files yield no services.
func Discover(dir, composeFile string) []Service {
	if dir == "" {
		if cwd, err := os.Getwd(); err == nil {
			dir = cwd
		}
	}

	if composeFile != "" {
		path := composeFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		return parseComposeFile(path)
	}

	var services []Service
	for _, name := range composeFileNames {
		services = append(services, parseComposeFile(filepath.Join(dir, name))...)
	}
	return services
}

type composeDoc struct {
	Services map[string]composeService `yaml:"services"`
}

type composeService struct {
	Image string `yaml:"image"`
	Ports []any  `yaml:"ports"`
}

func parseComposeFile(path string) []Service {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var doc composeDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil
	}

	var services []Service
	for name, svc := range doc.Services {
		for _, portDef := range svc.Ports {
			parsed := parsePortDefinition(portDef, name)
			if parsed == nil {
				continue
			}
			parsed.Source = path
			services = append(services, *parsed)
		}
	}
	return services
}

var (
	// ${VAR}:5432 or $VAR:5432, optionally /tcp
	varPortRe = regexp.MustCompile(`^\$\{?(\w+)\}?:(\d+)(?:/\w+)?$`)
	// 5432 or 5432/tcp
	barePortRe = regexp.MustCompile(`^(\d+)(?:/\w+)?$`)
)

// parsePortDefinition decides whether a compose port entry needs allocation.
// Explicit host:container mappings are left alone.
func parsePortDefinition(portDef any, serviceName string) *Service {
	if long, ok := portDef.(map[string]any); ok {
		// Long format: {published: ..., target: ...}
		published, _ := long["published"].(string)
		if !strings.HasPrefix(published, "$") {
			return nil
		}
		envVar := strings.TrimRight(strings.TrimLeft(published, "${"), "}")
		return &Service{
			Name:          serviceName,
			ContainerPort: toInt(long["target"]),
			EnvVar:        envVar,
		}
	}

	portStr := fmt.Sprintf("%v", portDef)

	if m := varPortRe.FindStringSubmatch(portStr); m != nil {
		target, _ := strconv.Atoi(m[2])
		return &Service{
			Name:          serviceName,
			ContainerPort: target,
			EnvVar:        m[1],
		}
	}

	if m := barePortRe.FindStringSubmatch(portStr); m != nil {
		target, _ := strconv.Atoi(m[1])
		return &Service{
			Name:          serviceName,
			ContainerPort: target,
			EnvVar:        defaultEnvVar(serviceName),
		}
	}

	return nil
}

var envVarSanitizer = regexp.MustCompile(`[^A-Z0-9_]`)

func defaultEnvVar(serviceName string) string {
	return envVarSanitizer.ReplaceAllString(strings.ToUpper(serviceName), "_") + "_PORT"
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case string:
		parsed, _ := strconv.Atoi(n)
		return parsed
	default:
		return 0
	}
}

// serviceTypes maps name/image keywords to the range keys seeded in the
// registry
var serviceTypes = []struct {
	keywords []string
	key      string
}{
	{[]string{"postgres", "postgresql", "psql", "pg"}, "postgres"},
	{[]string{"mysql", "mariadb"}, "mysql"},
	{[]string{"redis"}, "redis"},
	{[]string{"mongodb", "mongo"}, "mongodb"},
	{[]string{"elasticsearch", "elastic"}, "elasticsearch"},
	{[]string{"meilisearch", "meili"}, "meilisearch"},
	{[]string{"rabbitmq", "rabbit"}, "rabbitmq"},
	{[]string{"kafka"}, "kafka"},
}

// InferServiceType maps a service name (and optionally its image) to the
// canonical key used for port range lookup
func InferServiceType(serviceName, image string) string {
	name := strings.ToLower(serviceName)
	image = strings.ToLower(image)

	for _, st := range serviceTypes {
		for _, keyword := range st.keywords {
			if strings.Contains(name, keyword) || (image != "" && strings.Contains(image, keyword)) {
				return st.key
			}
		}
	}
	return "default"
}
