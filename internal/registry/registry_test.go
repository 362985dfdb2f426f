package registry

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := Open(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func testAllocation(hash, service string, port int) Allocation {
	return Allocation{
		ContextHash:  hash,
		ContextPath:  "/home/dev/" + hash,
		ContextLabel: hash + "/main",
		Service:      service,
		Port:         port,
	}
}

func TestCreateAndGetAllocation(t *testing.T) {
	r := openTestRegistry(t)

	created, err := r.CreateAllocation(Allocation{
		ContextHash:   "abc123def456",
		ContextPath:   "/home/dev/widgets",
		ContextLabel:  "widgets/main",
		Service:       "Postgres",
		Port:          5432,
		ContainerPort: 5432,
		EnvVar:        "PG_PORT",
		Source:        "docker-compose.yml",
	})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Equal(t, "postgres", created.Service, "service names are case-normalized")
	assert.False(t, created.CreatedAt.IsZero())

	got, err := r.GetAllocation("abc123def456", "postgres")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, 5432, got.Port)
	assert.Equal(t, 5432, got.ContainerPort)
	assert.Equal(t, "PG_PORT", got.EnvVar)
	assert.Equal(t, "docker-compose.yml", got.Source)
	assert.Equal(t, "widgets/main", got.ContextLabel)

	// Lookup is case-insensitive too
	got, err = r.GetAllocation("abc123def456", "POSTGRES")
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestGetAllocationMissing(t *testing.T) {
	r := openTestRegistry(t)

	got, err := r.GetAllocation("nope", "postgres")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCreateAllocationPortConflict(t *testing.T) {
	r := openTestRegistry(t)

	_, err := r.CreateAllocation(testAllocation("ctx1", "postgres", 5432))
	require.NoError(t, err)

	_, err = r.CreateAllocation(testAllocation("ctx2", "redis", 5432))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestCreateAllocationServiceConflict(t *testing.T) {
	r := openTestRegistry(t)

	_, err := r.CreateAllocation(testAllocation("ctx1", "postgres", 5432))
	require.NoError(t, err)

	// Same (context, service) pair with a different port
	_, err = r.CreateAllocation(testAllocation("ctx1", "postgres", 5433))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestTouchAllocation(t *testing.T) {
	r := openTestRegistry(t)

	created, err := r.CreateAllocation(testAllocation("ctx1", "postgres", 5432))
	require.NoError(t, err)

	// Backdate the access timestamp, then touch
	old := time.Now().UTC().AddDate(0, 0, -40).Format(time.RFC3339)
	_, err = r.db.Exec("UPDATE allocations SET last_accessed_at = ? WHERE id = ?", old, created.ID)
	require.NoError(t, err)

	require.NoError(t, r.TouchAllocation(created.ID))

	got, err := r.GetAllocation("ctx1", "postgres")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), got.LastAccessedAt, time.Minute)
}

func TestDeleteAllocation(t *testing.T) {
	r := openTestRegistry(t)

	created, err := r.CreateAllocation(testAllocation("ctx1", "postgres", 5432))
	require.NoError(t, err)

	require.NoError(t, r.DeleteAllocation(created.ID))

	got, err := r.GetAllocation("ctx1", "postgres")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDeleteByService(t *testing.T) {
	r := openTestRegistry(t)

	_, err := r.CreateAllocation(testAllocation("ctx1", "postgres", 5432))
	require.NoError(t, err)

	deleted, err := r.DeleteByService("ctx1", "Postgres")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = r.DeleteByService("ctx1", "postgres")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestDeleteByContext(t *testing.T) {
	r := openTestRegistry(t)

	_, err := r.CreateAllocation(testAllocation("ctx1", "postgres", 5432))
	require.NoError(t, err)
	_, err = r.CreateAllocation(testAllocation("ctx1", "redis", 6379))
	require.NoError(t, err)
	_, err = r.CreateAllocation(testAllocation("ctx2", "postgres", 5433))
	require.NoError(t, err)

	count, err := r.DeleteByContext("ctx1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	remaining, err := r.AllAllocations()
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "ctx2", remaining[0].ContextHash)
}

func TestAllAllocatedPorts(t *testing.T) {
	r := openTestRegistry(t)

	_, err := r.CreateAllocation(testAllocation("ctx1", "postgres", 5432))
	require.NoError(t, err)
	_, err = r.CreateAllocation(testAllocation("ctx2", "redis", 6379))
	require.NoError(t, err)

	ports, err := r.AllAllocatedPorts()
	require.NoError(t, err)
	assert.Len(t, ports, 2)
	assert.Contains(t, ports, 5432)
	assert.Contains(t, ports, 6379)
}

func TestStaleAllocations(t *testing.T) {
	r := openTestRegistry(t)

	stale, err := r.CreateAllocation(testAllocation("old", "postgres", 5432))
	require.NoError(t, err)
	_, err = r.CreateAllocation(testAllocation("fresh", "redis", 6379))
	require.NoError(t, err)

	old := time.Now().UTC().AddDate(0, 0, -31).Format(time.RFC3339)
	_, err = r.db.Exec("UPDATE allocations SET last_accessed_at = ? WHERE id = ?", old, stale.ID)
	require.NoError(t, err)

	got, err := r.StaleAllocations(30)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "old", got[0].ContextHash)
}

func TestGetPortRange(t *testing.T) {
	r := openTestRegistry(t)

	pr, err := r.GetPortRange("postgres")
	require.NoError(t, err)
	assert.Equal(t, 5432, pr.Start)
	assert.Equal(t, 5499, pr.End)

	// Unknown services fall back to the default range
	pr, err = r.GetPortRange("frobnicator")
	require.NoError(t, err)
	assert.Equal(t, "default", pr.Service)
	assert.Equal(t, 10000, pr.Start)
	assert.Equal(t, 19999, pr.End)
}

func TestGetPortRangeNoDefault(t *testing.T) {
	r := openTestRegistry(t)

	_, err := r.db.Exec("DELETE FROM port_ranges")
	require.NoError(t, err)

	_, err = r.GetPortRange("frobnicator")
	assert.ErrorIs(t, err, ErrNoDefaultRange)
}

func TestSetPortRange(t *testing.T) {
	r := openTestRegistry(t)

	require.NoError(t, r.SetPortRange("postgres", 5500, 5599))

	pr, err := r.GetPortRange("postgres")
	require.NoError(t, err)
	assert.Equal(t, 5500, pr.Start)
	assert.Equal(t, 5599, pr.End)

	assert.Error(t, r.SetPortRange("postgres", 9000, 8000))
	assert.Error(t, r.SetPortRange("postgres", 0, 8000))
	assert.Error(t, r.SetPortRange("postgres", 60000, 70000))
}

func TestSchemaSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.db")

	r, err := Open(path)
	require.NoError(t, err)
	_, err = r.CreateAllocation(testAllocation("ctx1", "postgres", 5432))
	require.NoError(t, err)
	require.NoError(t, r.SetPortRange("postgres", 5500, 5599))
	require.NoError(t, r.Close())

	// Reopen: schema init must not clobber data or reset configured ranges
	r, err = Open(path)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	got, err := r.GetAllocation("ctx1", "postgres")
	require.NoError(t, err)
	require.NotNil(t, got)

	pr, err := r.GetPortRange("postgres")
	require.NoError(t, err)
	assert.Equal(t, 5500, pr.Start)
}

func TestEnvName(t *testing.T) {
	withVar := Allocation{Service: "postgres", EnvVar: "PG_PORT"}
	assert.Equal(t, "PG_PORT", withVar.EnvName())

	derived := Allocation{Service: "postgres"}
	assert.Equal(t, "POSTGRES_PORT", derived.EnvName())

	sanitized := Allocation{Service: "my-cache.v2"}
	assert.Equal(t, "MY_CACHE_V2_PORT", sanitized.EnvName())
}
