package query

import (
	"testing"
	"time"

	"github.com/icalstore/rcal/rcalerr"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_DefaultsLimitTZIDAndOrder(t *testing.T) {
	q, err := Parse("", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, defaultLimit, q.Limit)
	assert.Equal(t, defaultTZID, q.TZID)
	assert.Equal(t, OrderDTStart, q.OrderBy.Kind)
	assert.Nil(t, q.Filter)
}

func TestParse_XFromDefaultsToGT(t *testing.T) {
	q, err := Parse("X-FROM:20240101T000000Z", time.Time{})
	require.NoError(t, err)
	assert.True(t, q.From.Has)
	assert.Equal(t, OpGT, q.From.Op)
	assert.Equal(t, BoundDTStart, q.From.Prop)
}

func TestParse_XUntilDefaultsToLT(t *testing.T) {
	q, err := Parse("X-UNTIL:20240101T000000Z", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, OpLT, q.Until.Op)
}

func TestParse_XLimitAndOffset(t *testing.T) {
	q, err := Parse("X-LIMIT:10 X-OFFSET:5", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 10, q.Limit)
	assert.Equal(t, 5, q.Offset)
}

func TestParse_XDistinctRequiresUID(t *testing.T) {
	_, err := Parse("X-DISTINCT:EVENT", time.Time{})
	require.Error(t, err)
	assert.True(t, rcalerr.Is(err, rcalerr.Parse))

	q, err := Parse("X-DISTINCT:UID", time.Time{})
	require.NoError(t, err)
	assert.True(t, q.Distinct)
}

func TestParse_SimpleCategoriesLeaf(t *testing.T) {
	q, err := Parse("X-CATEGORIES:WORK,TRAVEL", time.Time{})
	require.NoError(t, err)
	leaf, ok := q.Filter.(*Leaf)
	require.True(t, ok)
	assert.Equal(t, LeafCategories, leaf.Kind)
	assert.Equal(t, []string{"WORK", "TRAVEL"}, leaf.Values)
	assert.Equal(t, OpOR, leaf.ValOp)
}

func TestParse_CategoriesOpANDParam(t *testing.T) {
	q, err := Parse("X-CATEGORIES;OP=AND:WORK,URGENT", time.Time{})
	require.NoError(t, err)
	leaf := q.Filter.(*Leaf)
	assert.Equal(t, OpAND, leaf.ValOp)
}

// spec §8 boundary: X-UID always ORs across values regardless of an OP param.
func TestParse_XUIDAlwaysORsRegardlessOfOpParam(t *testing.T) {
	q, err := Parse("X-UID;OP=AND:e1,e2", time.Time{})
	require.NoError(t, err)
	leaf := q.Filter.(*Leaf)
	assert.Equal(t, OpOR, leaf.ValOp)
}

func TestParse_XGeoDefaultRadius(t *testing.T) {
	q, err := Parse("X-GEO:37.7;-122.4", time.Time{})
	require.NoError(t, err)
	leaf := q.Filter.(*Leaf)
	assert.Equal(t, LeafGeo, leaf.Kind)
	assert.Equal(t, 10.0, leaf.RadiusKM)
}

func TestParse_XGeoExplicitDistanceKM(t *testing.T) {
	q, err := Parse("X-GEO;DIST=50KM:37.7;-122.4", time.Time{})
	require.NoError(t, err)
	leaf := q.Filter.(*Leaf)
	assert.InDelta(t, 50.0, leaf.RadiusKM, 1e-9)
}

func TestParse_XGeoExplicitDistanceMiles(t *testing.T) {
	q, err := Parse("X-GEO;DIST=10MI:37.7;-122.4", time.Time{})
	require.NoError(t, err)
	leaf := q.Filter.(*Leaf)
	assert.InDelta(t, 10*milesToKM, leaf.RadiusKM, 1e-9)
}

func TestParse_AndBindsTighterThanOr(t *testing.T) {
	q, err := Parse("X-CATEGORIES:A OR X-CATEGORIES:B AND X-CATEGORIES:C", time.Time{})
	require.NoError(t, err)
	or, ok := q.Filter.(*Or)
	require.True(t, ok)
	require.Len(t, or.Children, 2)
	_, isLeaf := or.Children[0].(*Leaf)
	assert.True(t, isLeaf)
	and, ok := or.Children[1].(*And)
	require.True(t, ok)
	assert.Len(t, and.Children, 2)
}

func TestParse_AdjacencyDefaultsToAnd(t *testing.T) {
	q, err := Parse("X-CATEGORIES:A X-CLASS:PUBLIC", time.Time{})
	require.NoError(t, err)
	and, ok := q.Filter.(*And)
	require.True(t, ok)
	assert.Len(t, and.Children, 2)
}

func TestParse_ParenthesesGroupExplicitly(t *testing.T) {
	q, err := Parse("(X-CATEGORIES:A OR X-CATEGORIES:B) AND X-CLASS:PUBLIC", time.Time{})
	require.NoError(t, err)
	and, ok := q.Filter.(*And)
	require.True(t, ok)
	require.Len(t, and.Children, 2)
	_, isOr := and.Children[0].(*Or)
	assert.True(t, isOr)
}

func TestParse_UnclosedParenIsParseError(t *testing.T) {
	_, err := Parse("(X-CATEGORIES:A", time.Time{})
	require.Error(t, err)
	assert.True(t, rcalerr.Is(err, rcalerr.Parse))
}

func TestParse_MalformedTokenMissingColon(t *testing.T) {
	_, err := Parse("X-CATEGORIES", time.Time{})
	require.Error(t, err)
	assert.True(t, rcalerr.Is(err, rcalerr.Parse))
}

func TestParse_UnknownPropertyIsParseError(t *testing.T) {
	_, err := Parse("X-BOGUS:foo", time.Time{})
	require.Error(t, err)
	assert.True(t, rcalerr.Is(err, rcalerr.Parse))
}

func TestParse_PastDeadlineReturnsParseTimeout(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	_, err := Parse("X-CATEGORIES:A", past)
	require.Error(t, err)
	assert.True(t, rcalerr.Is(err, rcalerr.ParseTimeout))
}

func TestMetrics_ParseTimeoutCounterIncrementsOnTimeout(t *testing.T) {
	before := testutil.ToFloat64(parseTimeoutTotal)

	past := time.Now().Add(-time.Hour)
	_, err := Parse("X-CATEGORIES:A", past)
	require.Error(t, err)

	assert.Equal(t, before+1, testutil.ToFloat64(parseTimeoutTotal))
}

func TestMetrics_ParseTotalCounterIncrementsOnEverySuccessfulParse(t *testing.T) {
	before := testutil.ToFloat64(parseTotal)

	_, err := Parse("X-CATEGORIES:A", time.Time{})
	require.NoError(t, err)

	assert.Equal(t, before+1, testutil.ToFloat64(parseTotal))
}

func TestParse_DefaultsAppliedForLimitAndGeoRadius(t *testing.T) {
	q, err := Parse("", time.Time{}, Defaults{Limit: 7, GeoRadiusKM: 42})
	require.NoError(t, err)
	assert.Equal(t, 7, q.Limit)
	assert.False(t, q.LimitExplicit)

	leaf, err := parseGeoLeaf(map[string]string{}, "1;2", 42)
	require.NoError(t, err)
	assert.Equal(t, 42.0, leaf.RadiusKM)
}

func TestParse_OrderByGeoDistRequiresLatLon(t *testing.T) {
	_, err := Parse("X-ORDER-BY:GEO-DIST-DTSTART", time.Time{})
	require.Error(t, err)

	q, err := Parse("X-ORDER-BY:GEO-DIST-DTSTART;37.7;-122.4", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, OrderGeoDistDTStart, q.OrderBy.Kind)
	assert.Equal(t, 37.7, q.OrderBy.Lat)
}
