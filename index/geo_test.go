package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// spec §8 invariant 6: haversine distance is symmetric and zero iff
// the two points coincide.
func TestHaversineKM_SymmetricAndZeroAtCoincidence(t *testing.T) {
	d1 := HaversineKM(37.7749, -122.4194, 40.7128, -74.0060)
	d2 := HaversineKM(40.7128, -74.0060, 37.7749, -122.4194)
	assert.InDelta(t, d1, d2, 1e-9)

	self := HaversineKM(37.7749, -122.4194, 37.7749, -122.4194)
	assert.InDelta(t, 0, self, 1e-9)
}

func TestHaversineKM_KnownDistance(t *testing.T) {
	// San Francisco to New York, roughly 4130km great-circle.
	d := HaversineKM(37.7749, -122.4194, 40.7128, -74.0060)
	assert.InDelta(t, 4130, d, 50)
}

func TestGeoIndex_WithinRadiusFindsNearbyExcludesFar(t *testing.T) {
	g := NewGeoIndex()
	near := Handle{EventUID: "near"}
	far := Handle{EventUID: "far"}
	g.Insert(near, 37.7749, -122.4194)
	g.Insert(far, 40.7128, -74.0060)

	got := g.WithinRadius(37.7749, -122.4194, 50)
	require.Len(t, got, 1)
	assert.Equal(t, near, got[0].Handle)
}

func TestGeoIndex_RemoveDropsEntryFromQueries(t *testing.T) {
	g := NewGeoIndex()
	h := Handle{EventUID: "E1"}
	g.Insert(h, 10, 10)
	assert.Equal(t, 1, g.Size())

	removed := g.Remove(h)
	assert.True(t, removed)
	assert.Equal(t, 0, g.Size())
	assert.Empty(t, g.WithinRadius(10, 10, 1000))
}

func TestGeoIndex_RemoveAbsentReturnsFalse(t *testing.T) {
	g := NewGeoIndex()
	assert.False(t, g.Remove(Handle{EventUID: "ghost"}))
}

func TestGeoIndex_NearestOrderedSortsAscending(t *testing.T) {
	g := NewGeoIndex()
	far := Handle{EventUID: "far"}
	mid := Handle{EventUID: "mid"}
	near := Handle{EventUID: "near"}
	g.Insert(far, 40.7128, -74.0060)
	g.Insert(mid, 34.0522, -118.2437)
	g.Insert(near, 37.7849, -122.4094)

	got := g.NearestOrdered(37.7749, -122.4194)
	require.Len(t, got, 3)
	assert.Equal(t, near, got[0].Handle)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i].DistKM, got[i-1].DistKM)
	}
}

func TestGeoIndex_InsertReplacesExistingPoint(t *testing.T) {
	g := NewGeoIndex()
	h := Handle{EventUID: "E1"}
	g.Insert(h, 0, 0)
	g.Insert(h, 50, 50)
	assert.Equal(t, 1, g.Size())
	got := g.WithinRadius(0, 0, 10)
	assert.Empty(t, got)
}
