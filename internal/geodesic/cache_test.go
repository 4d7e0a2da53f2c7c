package geodesic

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mock for cache tests ---

type countingCalculator struct {
	calls  int
	err    error
	result DistanceBearing
}

func (m *countingCalculator) DistanceBearing(_, _ string, _ bool) (DistanceBearing, error) {
	m.calls++
	return m.result, m.err
}

func newCached(t *testing.T, inner Calculator, size int, opts ...Option) *CachedCalculator {
	t.Helper()
	c, err := NewCachedCalculator(inner, size, opts...)
	require.NoError(t, err)
	return c
}

// --- CachedCalculator tests ---

func TestCachedCalculator_Hit(t *testing.T) {
	inner := &countingCalculator{result: DistanceBearing{Distance: 1200, Bearing: 42.5}}
	cached := newCached(t, inner, 10)

	r1, err := cached.DistanceBearing("MH09me", "KM46", true)
	require.NoError(t, err)
	r2, err := cached.DistanceBearing("MH09me", "KM46", true)
	require.NoError(t, err)

	assert.Equal(t, r1, r2)
	assert.Equal(t, 1, inner.calls, "should only call inner once")
}

func TestCachedCalculator_KeyIncludesCenter(t *testing.T) {
	inner := &countingCalculator{}
	cached := newCached(t, inner, 10)

	_, _ = cached.DistanceBearing("MH09me", "KM46", true)
	_, _ = cached.DistanceBearing("MH09me", "KM46", false)
	_, _ = cached.DistanceBearing("KM46", "MH09me", true)

	assert.Equal(t, 3, inner.calls)
	assert.Equal(t, 3, cached.Len())
}

func TestCachedCalculator_ErrorsNotCached(t *testing.T) {
	inner := &countingCalculator{err: errors.New("bad locator")}
	cached := newCached(t, inner, 10)

	_, err := cached.DistanceBearing("PF01MAX", "KM46", true)
	require.Error(t, err)
	_, err = cached.DistanceBearing("PF01MAX", "KM46", true)
	require.Error(t, err)

	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, 0, cached.Len())
}

func TestCachedCalculator_Eviction(t *testing.T) {
	inner := &countingCalculator{}
	cached := newCached(t, inner, 2)

	_, _ = cached.DistanceBearing("AA00", "BB00", true)
	_, _ = cached.DistanceBearing("CC00", "DD00", true)
	// Touch the first pair so the second becomes least recently used.
	_, _ = cached.DistanceBearing("AA00", "BB00", true)
	_, _ = cached.DistanceBearing("EE00", "FF00", true) // evicts CC00-DD00

	assert.Equal(t, 3, inner.calls)

	_, _ = cached.DistanceBearing("AA00", "BB00", true)
	assert.Equal(t, 3, inner.calls, "recently used pair should survive eviction")

	_, _ = cached.DistanceBearing("CC00", "DD00", true)
	assert.Equal(t, 4, inner.calls, "least recently used pair should have been evicted")
}

func TestCachedCalculator_Observer(t *testing.T) {
	var hits, misses int
	cached := newCached(t, &countingCalculator{}, 10, WithObserver(func(hit bool) {
		if hit {
			hits++
		} else {
			misses++
		}
	}))

	_, _ = cached.DistanceBearing("JO93", "IN95", true)
	_, _ = cached.DistanceBearing("JO93", "IN95", true)
	_, _ = cached.DistanceBearing("JO93", "IN95", true)

	assert.Equal(t, 2, hits)
	assert.Equal(t, 1, misses)
}

func TestCachedCalculator_WrapsEllipsoidBitIdentical(t *testing.T) {
	cached := newCached(t, WGS84, DefaultCacheSize)

	direct, err := WGS84.DistanceBearing("KN28LH", "JO93", true)
	require.NoError(t, err)
	first, err := cached.DistanceBearing("KN28LH", "JO93", true)
	require.NoError(t, err)
	second, err := cached.DistanceBearing("KN28LH", "JO93", true)
	require.NoError(t, err)

	assert.Equal(t, direct, first)
	assert.Equal(t, first, second)
}

func TestNewCachedCalculator_InvalidSize(t *testing.T) {
	_, err := NewCachedCalculator(WGS84, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create geodesic cache")
}
