package recur

import (
	"testing"
	"time"

	"github.com/icalstore/rcal/property"
	"github.com/icalstore/rcal/rcalerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustUTC(t *testing.T, s string) time.Time {
	t.Helper()
	tm, err := time.Parse("20060102T150405Z", s)
	require.NoError(t, err)
	return tm
}

// S1: DTSTART:20201231T170000Z, RRULE:FREQ=WEEKLY;BYDAY=MO,WE;COUNT=4
// must produce exactly the four listed instants.
func TestExpander_S1(t *testing.T) {
	sched := property.Schedule{
		DTStart: mustUTC(t, "20201231T170000Z"),
		RRules:  []string{"FREQ=WEEKLY;BYDAY=MO,WE;COUNT=4"},
	}
	e, err := New(sched, Bound{})
	require.NoError(t, err)

	got, err := Collect(e)
	require.NoError(t, err)

	want := []time.Time{
		mustUTC(t, "20201231T170000Z"),
		mustUTC(t, "20210104T170000Z"),
		mustUTC(t, "20210106T170000Z"),
		mustUTC(t, "20210111T170000Z"),
	}
	require.Len(t, got, len(want))
	for i := range want {
		assert.True(t, want[i].Equal(got[i]), "instant %d: want %s got %s", i, want[i], got[i])
	}
}

func TestExpander_NoRRuleIsIntrinsicallyBounded(t *testing.T) {
	sched := property.Schedule{DTStart: mustUTC(t, "20210101T000000Z")}
	e, err := New(sched, Bound{})
	require.NoError(t, err)
	got, err := Collect(e)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Equal(sched.DTStart))
}

func TestExpander_UnboundedWithoutCapIsRejected(t *testing.T) {
	sched := property.Schedule{
		DTStart: mustUTC(t, "20210101T000000Z"),
		RRules:  []string{"FREQ=DAILY"},
	}
	_, err := New(sched, Bound{})
	require.Error(t, err)
	assert.True(t, rcalerr.Is(err, rcalerr.UnboundedExpansion))
}

func TestExpander_UnboundedWithMaxCountIsAccepted(t *testing.T) {
	sched := property.Schedule{
		DTStart: mustUTC(t, "20210101T000000Z"),
		RRules:  []string{"FREQ=DAILY"},
	}
	e, err := New(sched, Bound{MaxCount: 5})
	require.NoError(t, err)
	got, err := Collect(e)
	require.NoError(t, err)
	assert.Len(t, got, 5)
}

func TestExpander_ExDateRemovesInstant(t *testing.T) {
	sched := property.Schedule{
		DTStart: mustUTC(t, "20201231T170000Z"),
		RRules:  []string{"FREQ=WEEKLY;BYDAY=MO,WE;COUNT=4"},
		ExDates: []time.Time{mustUTC(t, "20210106T170000Z")},
	}
	e, err := New(sched, Bound{})
	require.NoError(t, err)
	got, err := Collect(e)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for _, instant := range got {
		assert.False(t, instant.Equal(mustUTC(t, "20210106T170000Z")))
	}
}

func TestExpander_BoundUntilExcludesLater(t *testing.T) {
	sched := property.Schedule{
		DTStart: mustUTC(t, "20201231T170000Z"),
		RRules:  []string{"FREQ=WEEKLY;BYDAY=MO,WE;COUNT=4"},
	}
	e, err := New(sched, Bound{Until: mustUTC(t, "20210106T170000Z")})
	require.NoError(t, err)
	got, err := Collect(e)
	require.NoError(t, err)
	require.Len(t, got, 2)
}
