package allocator

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatjpcsguy/portman/internal/registry"
)

type fakeScanner struct {
	listening     map[int]struct{}
	unbindable    map[int]struct{}
	allUnbindable bool
}

func (f *fakeScanner) ListeningPorts() map[int]struct{} {
	if f.listening == nil {
		return map[int]struct{}{}
	}
	return f.listening
}

func (f *fakeScanner) IsBindable(port int) bool {
	if f.allUnbindable {
		return false
	}
	_, taken := f.unbindable[port]
	return !taken
}

func newTestAllocator(t *testing.T, sys Scanner) (*Allocator, *registry.Registry) {
	t.Helper()
	reg, err := registry.Open(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })
	if sys == nil {
		sys = &fakeScanner{}
	}
	return NewWithScanner(reg, sys), reg
}

func request(service, hash string) Request {
	return Request{
		Service:      service,
		ContextHash:  hash,
		ContextPath:  "/home/dev/" + hash,
		ContextLabel: hash + "/main",
		Source:       "manual",
	}
}

func TestAllocateInServiceRange(t *testing.T) {
	alloc, _ := newTestAllocator(t, nil)

	port, err := alloc.Allocate(request("postgres", "ctx1"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, port, 5432)
	assert.LessOrEqual(t, port, 5499)
}

func TestAllocateIdempotent(t *testing.T) {
	alloc, reg := newTestAllocator(t, nil)

	first, err := alloc.Allocate(request("postgres", "ctx1"))
	require.NoError(t, err)

	second, err := alloc.Allocate(request("postgres", "ctx1"))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	allocations, err := reg.AllAllocations()
	require.NoError(t, err)
	assert.Len(t, allocations, 1, "repeat booking must not create a second row")
}

func TestAllocateDifferentContexts(t *testing.T) {
	alloc, _ := newTestAllocator(t, nil)

	port1, err := alloc.Allocate(request("postgres", "ctx1"))
	require.NoError(t, err)

	port2, err := alloc.Allocate(request("postgres", "ctx2"))
	require.NoError(t, err)

	assert.NotEqual(t, port1, port2)
}

func TestAllocatePreferredPort(t *testing.T) {
	alloc, _ := newTestAllocator(t, nil)

	req := request("postgres", "ctx1")
	req.PreferredPort = 5450

	port, err := alloc.Allocate(req)
	require.NoError(t, err)
	assert.Equal(t, 5450, port)
}

func TestAllocatePreferredPortIgnoredOnRebooking(t *testing.T) {
	alloc, _ := newTestAllocator(t, nil)

	req := request("redis", "ctx1")
	req.PreferredPort = 7000

	first, err := alloc.Allocate(req)
	require.NoError(t, err)
	assert.Equal(t, 7000, first)

	// An existing booking is never moved
	req.PreferredPort = 7050
	second, err := alloc.Allocate(req)
	require.NoError(t, err)
	assert.Equal(t, 7000, second)
}

func TestAllocatePreferredPortUnavailable(t *testing.T) {
	alloc, reg := newTestAllocator(t, nil)

	_, err := reg.CreateAllocation(registry.Allocation{
		ContextHash: "other", ContextPath: "/other", ContextLabel: "other",
		Service: "redis", Port: 5450,
	})
	require.NoError(t, err)

	req := request("postgres", "ctx1")
	req.PreferredPort = 5450

	port, err := alloc.Allocate(req)
	require.NoError(t, err)
	assert.NotEqual(t, 5450, port)
	assert.GreaterOrEqual(t, port, 5432)
	assert.LessOrEqual(t, port, 5499)
}

func TestAllocateSkipsListeningPorts(t *testing.T) {
	sys := &fakeScanner{
		listening:  map[int]struct{}{5432: {}, 5433: {}, 5434: {}},
		unbindable: map[int]struct{}{5432: {}, 5433: {}, 5434: {}},
	}
	alloc, _ := newTestAllocator(t, sys)

	port, err := alloc.Allocate(request("postgres", "ctx1"))
	require.NoError(t, err)
	assert.Equal(t, 5435, port)
}

func TestAllocateSkipsUnbindablePorts(t *testing.T) {
	// Ports the enumeration missed but that fail a live bind probe
	sys := &fakeScanner{unbindable: map[int]struct{}{5432: {}, 5433: {}}}
	alloc, _ := newTestAllocator(t, sys)

	port, err := alloc.Allocate(request("postgres", "ctx1"))
	require.NoError(t, err)
	assert.Equal(t, 5434, port)
}

func TestAllocateFallbackToDefaultRange(t *testing.T) {
	alloc, reg := newTestAllocator(t, nil)
	require.NoError(t, reg.SetPortRange("test-service", 7000, 7002))

	for _, ctx := range []string{"ctx1", "ctx2", "ctx3"} {
		port, err := alloc.Allocate(request("test-service", ctx))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, port, 7000)
		assert.LessOrEqual(t, port, 7002)
	}

	// Range exhausted: next booking lands in the default range
	port, err := alloc.Allocate(request("test-service", "ctx4"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, port, 10000)
	assert.LessOrEqual(t, port, 19999)
}

func TestAllocateExhaustion(t *testing.T) {
	alloc, reg := newTestAllocator(t, &fakeScanner{allUnbindable: true})
	require.NoError(t, reg.SetPortRange("test-service", 7000, 7001))

	_, err := alloc.Allocate(request("test-service", "ctx1"))
	require.Error(t, err)

	var allocErr *AllocationError
	require.ErrorAs(t, err, &allocErr)
	assert.Equal(t, "test-service", allocErr.Service)
	assert.Contains(t, err.Error(), "7000-7001")
	assert.Contains(t, err.Error(), "10000-19999")

	allocations, err := reg.AllAllocations()
	require.NoError(t, err)
	assert.Empty(t, allocations, "failed allocation must leave no rows behind")
}

func TestAllocateNormalizesService(t *testing.T) {
	alloc, reg := newTestAllocator(t, nil)

	first, err := alloc.Allocate(request("Postgres", "ctx1"))
	require.NoError(t, err)

	second, err := alloc.Allocate(request("POSTGRES", "ctx1"))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	got, err := reg.GetAllocation("ctx1", "postgres")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "postgres", got.Service)
}

func TestAllocateRangeKey(t *testing.T) {
	alloc, _ := newTestAllocator(t, nil)

	// A compose service named "db" with an inferred postgres range key
	req := request("db", "ctx1")
	req.RangeKey = "postgres"

	port, err := alloc.Allocate(req)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, port, 5432)
	assert.LessOrEqual(t, port, 5499)
}

func TestAllocateUnknownServiceSearchesDefaultOnce(t *testing.T) {
	alloc, _ := newTestAllocator(t, &fakeScanner{allUnbindable: true})

	// No dedicated range: the lookup already resolves to the default range,
	// which must not be scanned (or reported) twice
	_, err := alloc.Allocate(request("frobnicator", "ctx1"))
	require.Error(t, err)

	var allocErr *AllocationError
	require.ErrorAs(t, err, &allocErr)
	assert.Len(t, allocErr.Ranges, 1)
	assert.Equal(t, 1, strings.Count(err.Error(), "10000-19999"))
}

func TestAllocateConcurrentContexts(t *testing.T) {
	alloc, reg := newTestAllocator(t, nil)
	require.NoError(t, reg.SetPortRange("test-service", 7000, 7099))

	// Concurrent invocations race for the same free ports; the uniqueness
	// constraints arbitrate and losers move on to the next candidate
	const workers = 40
	ports := make([]int, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ports[i], errs[i] = alloc.Allocate(request("test-service", fmt.Sprintf("ctx%02d", i)))
		}(i)
	}
	wg.Wait()

	seen := make(map[int]struct{}, workers)
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i], "worker %d", i)
		_, dup := seen[ports[i]]
		assert.False(t, dup, "port %d allocated twice", ports[i])
		seen[ports[i]] = struct{}{}
	}

	allocations, err := reg.AllAllocations()
	require.NoError(t, err)
	assert.Len(t, allocations, workers)
}

func TestAllocateReturnsRowBookedElsewhere(t *testing.T) {
	alloc, reg := newTestAllocator(t, nil)

	// A booking created by another invocation wins over any fresh search
	_, err := reg.CreateAllocation(registry.Allocation{
		ContextHash: "ctx1", ContextPath: "/p", ContextLabel: "l",
		Service: "postgres", Port: 5440,
	})
	require.NoError(t, err)

	port, err := alloc.Allocate(request("postgres", "ctx1"))
	require.NoError(t, err)
	assert.Equal(t, 5440, port)
}
