package command

import (
	"testing"
	"time"

	"github.com/icalstore/rcal/model"
	"github.com/icalstore/rcal/property"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONSnapshotCodec_RoundTripsEventsAndOverrides(t *testing.T) {
	cal := model.NewCalendar("cal1")
	dtstart := time.Date(2024, 3, 4, 17, 0, 0, 0, time.UTC)
	ev, err := model.NewEvent("E1", &property.ParsedProps{
		HasDTStart:  true,
		DTStart:     dtstart,
		HasDuration: true,
		Duration:    time.Hour,
		Indexed: property.Indexed{
			Categories:    map[string]struct{}{"WORK": {}},
			HasCategories: true,
		},
	}, dtstart)
	require.NoError(t, err)

	instant := dtstart.Add(7 * 24 * time.Hour)
	ov, err := model.NewOverride("E1", instant, &property.ParsedProps{
		HasDTStart: true,
		DTStart:    instant,
		Indexed:    property.NewIndexed(),
	}, dtstart)
	require.NoError(t, err)
	ev.Overrides[instant] = ov
	cal.Events["E1"] = ev

	codec := JSONSnapshotCodec{}
	data, err := codec.Serialize(cal)
	require.NoError(t, err)

	got, err := codec.Deserialize(data)
	require.NoError(t, err)
	assert.Equal(t, "cal1", got.UID)
	require.Contains(t, got.Events, "E1")
	gotEv := got.Events["E1"]
	assert.True(t, gotEv.Schedule.DTStart.Equal(dtstart))
	_, hasWork := gotEv.Indexed.Categories["WORK"]
	assert.True(t, hasWork)
	require.Contains(t, gotEv.Overrides, instant)
}

func TestJSONSnapshotCodec_RejectsUnsupportedVersion(t *testing.T) {
	codec := JSONSnapshotCodec{}
	_, err := codec.Deserialize([]byte(`{"version":99,"calendar_uid":"x"}`))
	require.Error(t, err)
}

func TestJSONSnapshotCodec_RejectsMalformedJSON(t *testing.T) {
	codec := JSONSnapshotCodec{}
	_, err := codec.Deserialize([]byte(`not json`))
	require.Error(t, err)
}

func TestJSONSnapshotCodec_PreservesIndexesEnabledFlag(t *testing.T) {
	cal := model.NewCalendar("cal1")
	cal.IndexesEnabled = false
	codec := JSONSnapshotCodec{}
	data, err := codec.Serialize(cal)
	require.NoError(t, err)

	got, err := codec.Deserialize(data)
	require.NoError(t, err)
	assert.False(t, got.IndexesEnabled)
}
