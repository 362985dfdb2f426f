package registry

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/thatjpcsguy/portman/internal/paths"
)

var (
	// ErrConflict is returned when an insert violates the machine-wide port
	// uniqueness or the one-port-per-service-per-context constraint.
	ErrConflict = errors.New("allocation conflict")

	// ErrNoDefaultRange is returned when even the "default" port range is
	// missing from the registry.
	ErrNoDefaultRange = errors.New(`port range "default" is not configured; delete the registry database to re-seed it`)
)

// Registry manages port allocations and port range configuration
type Registry struct {
	db *sql.DB
}

// New creates or opens the registry database at its default location
func New() (*Registry, error) {
	dbPath, err := paths.DBPath()
	if err != nil {
		return nil, err
	}
	return Open(dbPath)
}

// Open creates or opens a registry database at the given path
func Open(path string) (*Registry, error) {
	// Busy timeout serializes concurrent invocations against the same file
	db, err := sql.Open("sqlite3", "file:"+path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	r := &Registry{db: db}

	if err := r.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return r, nil
}

// Close closes the database connection
func (r *Registry) Close() error {
	return r.db.Close()
}

// initSchema creates the tables if they don't exist and seeds the default
// port ranges
func (r *Registry) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);
	INSERT OR IGNORE INTO schema_version VALUES (1);

	CREATE TABLE IF NOT EXISTS allocations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		context_hash TEXT NOT NULL,
		context_path TEXT NOT NULL,
		context_label TEXT,
		service TEXT NOT NULL,
		port INTEGER NOT NULL UNIQUE,
		container_port INTEGER,
		env_var TEXT,
		source TEXT,
		created_at TEXT NOT NULL,
		last_accessed_at TEXT NOT NULL,
		UNIQUE(context_hash, service)
	);

	CREATE INDEX IF NOT EXISTS idx_allocations_context ON allocations(context_hash);
	CREATE INDEX IF NOT EXISTS idx_allocations_last_accessed ON allocations(last_accessed_at);

	CREATE TABLE IF NOT EXISTS port_ranges (
		service TEXT PRIMARY KEY,
		range_start INTEGER NOT NULL,
		range_end INTEGER NOT NULL
	);

	INSERT OR IGNORE INTO port_ranges VALUES ('postgres', 5432, 5499);
	INSERT OR IGNORE INTO port_ranges VALUES ('postgresql', 5432, 5499);
	INSERT OR IGNORE INTO port_ranges VALUES ('mysql', 3306, 3399);
	INSERT OR IGNORE INTO port_ranges VALUES ('mariadb', 3306, 3399);
	INSERT OR IGNORE INTO port_ranges VALUES ('redis', 6379, 6449);
	INSERT OR IGNORE INTO port_ranges VALUES ('mongodb', 27017, 27099);
	INSERT OR IGNORE INTO port_ranges VALUES ('mongo', 27017, 27099);
	INSERT OR IGNORE INTO port_ranges VALUES ('elasticsearch', 9200, 9299);
	INSERT OR IGNORE INTO port_ranges VALUES ('meilisearch', 7700, 7799);
	INSERT OR IGNORE INTO port_ranges VALUES ('rabbitmq', 5672, 5699);
	INSERT OR IGNORE INTO port_ranges VALUES ('kafka', 9092, 9099);
	INSERT OR IGNORE INTO port_ranges VALUES ('default', 10000, 19999);
	`

	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

const allocationCols = `id, context_hash, context_path, COALESCE(context_label, ''), service, port,
	COALESCE(container_port, 0), COALESCE(env_var, ''), COALESCE(source, ''), created_at, last_accessed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAllocation(row rowScanner) (*Allocation, error) {
	var a Allocation
	var createdAt, lastAccessedAt string

	err := row.Scan(
		&a.ID, &a.ContextHash, &a.ContextPath, &a.ContextLabel, &a.Service, &a.Port,
		&a.ContainerPort, &a.EnvVar, &a.Source, &createdAt, &lastAccessedAt,
	)
	if err != nil {
		return nil, err
	}

	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	a.LastAccessedAt, _ = time.Parse(time.RFC3339, lastAccessedAt)

	return &a, nil
}

// NormalizeService returns the canonical (lowercased, trimmed) form of a
// service name as stored in the registry.
func NormalizeService(service string) string {
	return strings.ToLower(strings.TrimSpace(service))
}

// CreateAllocation inserts a new allocation. It returns ErrConflict when the
// port is already taken or the (context, service) pair already has a port.
func (r *Registry) CreateAllocation(a Allocation) (*Allocation, error) {
	if a.Port < 1 || a.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", a.Port)
	}

	a.Service = NormalizeService(a.Service)
	now := time.Now().UTC()

	res, err := r.db.Exec(`
		INSERT INTO allocations (
			context_hash, context_path, context_label, service, port,
			container_port, env_var, source, created_at, last_accessed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ContextHash, a.ContextPath, a.ContextLabel, a.Service, a.Port,
		a.ContainerPort, a.EnvVar, a.Source,
		now.Format(time.RFC3339), now.Format(time.RFC3339))

	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return nil, fmt.Errorf("port %d or service %q already allocated: %w", a.Port, a.Service, ErrConflict)
		}
		return nil, fmt.Errorf("failed to insert allocation: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read allocation id: %w", err)
	}

	a.ID = id
	a.CreatedAt = now
	a.LastAccessedAt = now

	return &a, nil
}

// GetAllocation returns the allocation for a context and service, or nil if
// none exists
func (r *Registry) GetAllocation(contextHash, service string) (*Allocation, error) {
	row := r.db.QueryRow(`
		SELECT `+allocationCols+`
		FROM allocations
		WHERE context_hash = ? AND service = ?
	`, contextHash, NormalizeService(service))

	a, err := scanAllocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get allocation: %w", err)
	}

	return a, nil
}

// TouchAllocation updates the last accessed timestamp
func (r *Registry) TouchAllocation(id int64) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.db.Exec("UPDATE allocations SET last_accessed_at = ? WHERE id = ?", now, id)
	if err != nil {
		return fmt.Errorf("failed to touch allocation: %w", err)
	}
	return nil
}

// DeleteAllocation removes an allocation by id
func (r *Registry) DeleteAllocation(id int64) error {
	_, err := r.db.Exec("DELETE FROM allocations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete allocation: %w", err)
	}
	return nil
}

// DeleteByContext removes all allocations for a context and returns how many
// were deleted
func (r *Registry) DeleteByContext(contextHash string) (int64, error) {
	res, err := r.db.Exec("DELETE FROM allocations WHERE context_hash = ?", contextHash)
	if err != nil {
		return 0, fmt.Errorf("failed to delete allocations: %w", err)
	}
	count, _ := res.RowsAffected()
	return count, nil
}

// DeleteByService removes the allocation for a service in a context. Returns
// false when there was nothing to delete.
func (r *Registry) DeleteByService(contextHash, service string) (bool, error) {
	res, err := r.db.Exec(
		"DELETE FROM allocations WHERE context_hash = ? AND service = ?",
		contextHash, NormalizeService(service),
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete allocation: %w", err)
	}
	count, _ := res.RowsAffected()
	return count > 0, nil
}

func (r *Registry) queryAllocations(query string, args ...any) ([]Allocation, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query allocations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var allocations []Allocation
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return nil, err
		}
		allocations = append(allocations, *a)
	}

	return allocations, rows.Err()
}

// AllocationsByContext returns all allocations for a context, ordered by
// service
func (r *Registry) AllocationsByContext(contextHash string) ([]Allocation, error) {
	return r.queryAllocations(`
		SELECT `+allocationCols+`
		FROM allocations
		WHERE context_hash = ?
		ORDER BY service
	`, contextHash)
}

// AllAllocations returns every allocation in the registry
func (r *Registry) AllAllocations() ([]Allocation, error) {
	return r.queryAllocations(`
		SELECT ` + allocationCols + `
		FROM allocations
		ORDER BY context_label, service
	`)
}

// AllAllocatedPorts returns the set of every allocated port
func (r *Registry) AllAllocatedPorts() (map[int]struct{}, error) {
	rows, err := r.db.Query("SELECT port FROM allocations")
	if err != nil {
		return nil, fmt.Errorf("failed to query ports: %w", err)
	}
	defer func() { _ = rows.Close() }()

	ports := make(map[int]struct{})
	for rows.Next() {
		var port int
		if err := rows.Scan(&port); err != nil {
			return nil, err
		}
		ports[port] = struct{}{}
	}

	return ports, rows.Err()
}

// StaleAllocations returns allocations not accessed in the last N days
func (r *Registry) StaleAllocations(days int) ([]Allocation, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format(time.RFC3339)
	return r.queryAllocations(`
		SELECT `+allocationCols+`
		FROM allocations
		WHERE last_accessed_at < ?
		ORDER BY last_accessed_at
	`, cutoff)
}

// GetPortRange returns the port range for a service, falling back to the
// "default" range when the service has no dedicated entry
func (r *Registry) GetPortRange(service string) (PortRange, error) {
	service = NormalizeService(service)

	for _, key := range []string{service, "default"} {
		var pr PortRange
		err := r.db.QueryRow(
			"SELECT service, range_start, range_end FROM port_ranges WHERE service = ?",
			key,
		).Scan(&pr.Service, &pr.Start, &pr.End)

		if err == nil {
			return pr, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return PortRange{}, fmt.Errorf("failed to get port range: %w", err)
		}
	}

	return PortRange{}, ErrNoDefaultRange
}

// SetPortRange creates or updates the port range for a service
func (r *Registry) SetPortRange(service string, start, end int) error {
	if start < 1 || end > 65535 || start > end {
		return fmt.Errorf("invalid port range %d-%d", start, end)
	}

	_, err := r.db.Exec(`
		INSERT INTO port_ranges (service, range_start, range_end)
		VALUES (?, ?, ?)
		ON CONFLICT(service) DO UPDATE SET
			range_start = excluded.range_start,
			range_end = excluded.range_end
	`, NormalizeService(service), start, end)

	if err != nil {
		return fmt.Errorf("failed to set port range: %w", err)
	}
	return nil
}

// PortRanges returns all configured port ranges ordered by service
func (r *Registry) PortRanges() ([]PortRange, error) {
	rows, err := r.db.Query("SELECT service, range_start, range_end FROM port_ranges ORDER BY service")
	if err != nil {
		return nil, fmt.Errorf("failed to query port ranges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ranges []PortRange
	for rows.Next() {
		var pr PortRange
		if err := rows.Scan(&pr.Service, &pr.Start, &pr.End); err != nil {
			return nil, err
		}
		ranges = append(ranges, pr)
	}

	return ranges, rows.Err()
}
