package model

import (
	"testing"
	"time"

	"github.com/icalstore/rcal/property"
	"github.com/icalstore/rcal/rcalerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOverride_RejectsDTStartMismatch(t *testing.T) {
	instant := time.Date(2024, 3, 4, 17, 0, 0, 0, time.UTC)
	mismatched := time.Date(2024, 3, 4, 18, 0, 0, 0, time.UTC)
	parsed := &property.ParsedProps{
		HasDTStart: true,
		DTStart:    mismatched,
		Indexed:    property.NewIndexed(),
	}
	_, err := NewOverride("E1", instant, parsed, time.Now())
	require.Error(t, err)
	assert.True(t, rcalerr.Is(err, rcalerr.Validation))
}

func TestNewOverride_AcceptsMatchingDTStart(t *testing.T) {
	instant := time.Date(2024, 3, 4, 17, 0, 0, 0, time.UTC)
	parsed := &property.ParsedProps{
		HasDTStart: true,
		DTStart:    instant,
		Indexed:    property.NewIndexed(),
	}
	ov, err := NewOverride("E1", instant, parsed, time.Now())
	require.NoError(t, err)
	assert.True(t, ov.Instant.Equal(instant))
}

func TestNewOverride_RejectsDTEndAndDurationBothPresent(t *testing.T) {
	instant := time.Date(2024, 3, 4, 17, 0, 0, 0, time.UTC)
	parsed := &property.ParsedProps{
		HasDTEnd:    true,
		DTEnd:       instant.Add(time.Hour),
		HasDuration: true,
		Duration:    time.Hour,
		Indexed:     property.NewIndexed(),
	}
	_, err := NewOverride("E1", instant, parsed, time.Now())
	require.Error(t, err)
	assert.True(t, rcalerr.Is(err, rcalerr.Validation))
}

func TestEffectiveDTStart_UsesOverrideWhenPresent(t *testing.T) {
	base := time.Date(2024, 3, 4, 17, 0, 0, 0, time.UTC)
	overridden := time.Date(2024, 3, 4, 18, 30, 0, 0, time.UTC)
	ov := &Override{HasDTStart: true, DTStart: overridden}
	assert.True(t, ov.EffectiveDTStart(base).Equal(overridden))
}

func TestEffectiveDTStart_FallsBackToInstantWhenAbsent(t *testing.T) {
	base := time.Date(2024, 3, 4, 17, 0, 0, 0, time.UTC)
	ov := &Override{}
	assert.True(t, ov.EffectiveDTStart(base).Equal(base))
}

func TestEffectiveDuration_UsesOverrideDurationWhenPresent(t *testing.T) {
	ov := &Override{HasDuration: true, Duration: 45 * time.Minute}
	got := ov.EffectiveDuration(time.Now(), time.Hour)
	assert.Equal(t, 45*time.Minute, got)
}

func TestEffectiveDuration_DerivesFromOverrideDTEnd(t *testing.T) {
	dtStartEff := time.Date(2024, 3, 4, 18, 0, 0, 0, time.UTC)
	dtEnd := dtStartEff.Add(2 * time.Hour)
	ov := &Override{HasDTEnd: true, DTEnd: dtEnd}
	got := ov.EffectiveDuration(dtStartEff, time.Hour)
	assert.Equal(t, 2*time.Hour, got)
}

func TestEffectiveDuration_FallsBackToBaseDuration(t *testing.T) {
	ov := &Override{}
	got := ov.EffectiveDuration(time.Now(), 90*time.Minute)
	assert.Equal(t, 90*time.Minute, got)
}
