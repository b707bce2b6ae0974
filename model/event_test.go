package model

import (
	"testing"
	"time"

	"github.com/icalstore/rcal/property"
	"github.com/icalstore/rcal/rcalerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parsedWithDTStart(t *testing.T, dtstart time.Time) *property.ParsedProps {
	t.Helper()
	return &property.ParsedProps{
		HasDTStart: true,
		DTStart:    dtstart,
		Indexed:    property.NewIndexed(),
	}
}

func TestNewEvent_RequiresUID(t *testing.T) {
	parsed := parsedWithDTStart(t, time.Now())
	_, err := NewEvent("", parsed, time.Now())
	require.Error(t, err)
	assert.True(t, rcalerr.Is(err, rcalerr.Validation))
}

func TestNewEvent_RequiresDTStart(t *testing.T) {
	parsed := &property.ParsedProps{Indexed: property.NewIndexed()}
	_, err := NewEvent("E1", parsed, time.Now())
	require.Error(t, err)
	assert.True(t, rcalerr.Is(err, rcalerr.Validation))
}

func TestNewEvent_StampsLastModifiedWhenAbsent(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	parsed := parsedWithDTStart(t, now)
	ev, err := NewEvent("E1", parsed, now)
	require.NoError(t, err)
	assert.True(t, ev.LastModified.Equal(now))
}

// S6: EVT_SET with an older LAST-MODIFIED than the current record is
// refused; the prior state is retained.
func TestApplyUpdate_RefusesOlderLastModified(t *testing.T) {
	dtstart := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	parsed := parsedWithDTStart(t, dtstart)
	parsed.HasLastModified = true
	parsed.LastModified = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ev, err := NewEvent("E1", parsed, dtstart)
	require.NoError(t, err)

	older := &property.ParsedProps{
		HasDTStart:      true,
		DTStart:         dtstart,
		HasLastModified: true,
		LastModified:    time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		Indexed:         property.NewIndexed(),
	}
	accepted, err := ev.ApplyUpdate(older, dtstart)
	require.NoError(t, err)
	assert.False(t, accepted)
	assert.True(t, ev.LastModified.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestApplyUpdate_AcceptsSameLastModified(t *testing.T) {
	dtstart := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	stamp := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	parsed := parsedWithDTStart(t, dtstart)
	parsed.HasLastModified = true
	parsed.LastModified = stamp
	ev, err := NewEvent("E1", parsed, dtstart)
	require.NoError(t, err)

	same := parsedWithDTStart(t, dtstart)
	same.HasLastModified = true
	same.LastModified = stamp
	accepted, err := ev.ApplyUpdate(same, dtstart)
	require.NoError(t, err)
	assert.True(t, accepted)
}

func TestApplyUpdate_AcceptsNewerLastModified(t *testing.T) {
	dtstart := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	parsed := parsedWithDTStart(t, dtstart)
	parsed.HasLastModified = true
	parsed.LastModified = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ev, err := NewEvent("E1", parsed, dtstart)
	require.NoError(t, err)

	newer := parsedWithDTStart(t, dtstart)
	newer.HasLastModified = true
	newer.LastModified = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	accepted, err := ev.ApplyUpdate(newer, dtstart)
	require.NoError(t, err)
	assert.True(t, accepted)
	assert.True(t, ev.LastModified.Equal(newer.LastModified))
}
