package property

import (
	"testing"
	"time"

	"github.com/icalstore/rcal/rcalerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSchedule_RejectsDTEndAndDurationBothPresent(t *testing.T) {
	dtstart := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	_, err := NewSchedule(dtstart, "", dtstart.Add(time.Hour), true, time.Hour, true)
	require.Error(t, err)
	assert.True(t, rcalerr.Is(err, rcalerr.Validation))
}

func TestNewSchedule_DerivesDurationFromDTEnd(t *testing.T) {
	dtstart := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	dtend := time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC)
	s, err := NewSchedule(dtstart, "", dtend, true, 0, false)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, s.Duration)
	assert.True(t, s.DTEnd().Equal(dtend))
}

func TestNewSchedule_UsesExplicitDuration(t *testing.T) {
	dtstart := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	s, err := NewSchedule(dtstart, "", time.Time{}, false, 45*time.Minute, true)
	require.NoError(t, err)
	assert.Equal(t, 45*time.Minute, s.Duration)
	assert.True(t, s.DTEnd().Equal(dtstart.Add(45*time.Minute)))
}

func TestNewSchedule_ZeroDurationWhenNeitherPresent(t *testing.T) {
	dtstart := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	s, err := NewSchedule(dtstart, "", time.Time{}, false, 0, false)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), s.Duration)
	assert.True(t, s.DTEnd().Equal(dtstart))
}
