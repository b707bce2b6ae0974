package command

import (
	"context"
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"github.com/icalstore/rcal/config"
	"github.com/icalstore/rcal/property"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturingNotifier struct {
	payloads []string
}

func (c *capturingNotifier) Notify(_ context.Context, _ string, payload string) error {
	c.payloads = append(c.payloads, payload)
	return nil
}

func eventProps(dtstart time.Time, cats ...string) []*ical.Prop {
	dt := ical.NewProp(property.NameDTStart)
	dt.SetDateTime(dtstart)
	props := []*ical.Prop{dt}
	if len(cats) > 0 {
		c := ical.NewProp(property.NameCategories)
		c.SetTextList(cats)
		props = append(props, c)
	}
	return props
}

func TestEngine_EvtSetGetDel(t *testing.T) {
	n := &capturingNotifier{}
	e := New("cal1", WithNotifier(n))
	dtstart := time.Date(2024, 3, 4, 17, 0, 0, 0, time.UTC)

	accepted, err := e.EvtSet(context.Background(), "E1", eventProps(dtstart, "WORK"), dtstart)
	require.NoError(t, err)
	assert.True(t, accepted)

	lines := e.EvtGet("E1")
	require.NotEmpty(t, lines)

	assert.Equal(t, []string{"E1"}, e.EvtList())

	deleted := e.EvtDel(context.Background(), "E1")
	assert.True(t, deleted)
	assert.Nil(t, e.EvtGet("E1"))
}

func TestEngine_EvtSetNotificationFormat(t *testing.T) {
	n := &capturingNotifier{}
	e := New("cal1", WithNotifier(n))
	dtstart := time.Date(2024, 3, 4, 17, 0, 0, 0, time.UTC)

	_, err := e.EvtSet(context.Background(), "E1", eventProps(dtstart), dtstart)
	require.NoError(t, err)
	require.Len(t, n.payloads, 1)
	assert.Equal(t, "evt_set:E1 LAST-MODIFIED:20240304T170000Z", n.payloads[0])
}

func TestEngine_EvtDelNotificationFormat(t *testing.T) {
	n := &capturingNotifier{}
	e := New("cal1", WithNotifier(n))
	dtstart := time.Date(2024, 3, 4, 17, 0, 0, 0, time.UTC)
	_, err := e.EvtSet(context.Background(), "E1", eventProps(dtstart), dtstart)
	require.NoError(t, err)

	e.EvtDel(context.Background(), "E1")
	require.Len(t, n.payloads, 2)
	assert.Equal(t, "evt_del:E1", n.payloads[1])
}

func TestEngine_EvtSetRefusedRegressionFiresNoNotification(t *testing.T) {
	n := &capturingNotifier{}
	e := New("cal1", WithNotifier(n))
	dtstart := time.Date(2024, 3, 4, 17, 0, 0, 0, time.UTC)

	props := eventProps(dtstart)
	lm := property.FormatLastModified(dtstart)
	props = append(props, lm)
	_, err := e.EvtSet(context.Background(), "E1", props, dtstart)
	require.NoError(t, err)
	require.Len(t, n.payloads, 1)

	staleProps := eventProps(dtstart)
	staleLM := property.FormatLastModified(dtstart.Add(-time.Hour))
	staleProps = append(staleProps, staleLM)
	accepted, err := e.EvtSet(context.Background(), "E1", staleProps, dtstart)
	require.NoError(t, err)
	assert.False(t, accepted)
	assert.Len(t, n.payloads, 1)
}

func TestEngine_EvoSetGetDelNotificationFormats(t *testing.T) {
	n := &capturingNotifier{}
	e := New("cal1", WithNotifier(n))
	dtstart := time.Date(2024, 3, 4, 17, 0, 0, 0, time.UTC)
	_, err := e.EvtSet(context.Background(), "E1", eventProps(dtstart), dtstart)
	require.NoError(t, err)

	instant := dtstart.Add(7 * 24 * time.Hour)
	ovProps := eventProps(instant)
	accepted, err := e.EvoSet(context.Background(), "E1", instant, ovProps, dtstart)
	require.NoError(t, err)
	assert.True(t, accepted)
	require.Len(t, n.payloads, 2)
	assert.Contains(t, n.payloads[1], "evo_set:E1:20240311T170000Z LAST-MODIFIED:")

	lines, err := e.EvoGet("E1", instant)
	require.NoError(t, err)
	require.NotEmpty(t, lines)

	deleted, err := e.EvoDel(context.Background(), "E1", instant)
	require.NoError(t, err)
	assert.True(t, deleted)
	require.Len(t, n.payloads, 3)
	assert.Equal(t, "evo_del:E1:20240311T170000Z", n.payloads[2])
}

func TestEngine_EvoListSorted(t *testing.T) {
	e := New("cal1")
	dtstart := time.Date(2024, 3, 4, 17, 0, 0, 0, time.UTC)
	_, err := e.EvtSet(context.Background(), "E1", eventProps(dtstart), dtstart)
	require.NoError(t, err)

	later := dtstart.Add(14 * 24 * time.Hour)
	earlier := dtstart.Add(7 * 24 * time.Hour)
	_, err = e.EvoSet(context.Background(), "E1", later, eventProps(later), dtstart)
	require.NoError(t, err)
	_, err = e.EvoSet(context.Background(), "E1", earlier, eventProps(earlier), dtstart)
	require.NoError(t, err)

	instants, err := e.EvoList("E1")
	require.NoError(t, err)
	require.Len(t, instants, 2)
	assert.True(t, instants[0].Equal(earlier))
	assert.True(t, instants[1].Equal(later))
}

func TestEngine_CalSetCalGetRoundTrip(t *testing.T) {
	n := &capturingNotifier{}
	e := New("cal1", WithNotifier(n))
	dtstart := time.Date(2024, 3, 4, 17, 0, 0, 0, time.UTC)
	_, err := e.EvtSet(context.Background(), "E1", eventProps(dtstart, "WORK"), dtstart)
	require.NoError(t, err)

	snap, err := e.CalGet()
	require.NoError(t, err)

	e2 := New("cal1")
	err = e2.CalSet(context.Background(), snap)
	require.NoError(t, err)
	assert.Equal(t, []string{"E1"}, e2.EvtList())
}

func TestEngine_CalDelResetsToEmpty(t *testing.T) {
	n := &capturingNotifier{}
	e := New("cal1", WithNotifier(n))
	dtstart := time.Date(2024, 3, 4, 17, 0, 0, 0, time.UTC)
	_, err := e.EvtSet(context.Background(), "E1", eventProps(dtstart), dtstart)
	require.NoError(t, err)

	e.CalDel(context.Background())
	assert.Empty(t, e.EvtList())
	assert.Contains(t, n.payloads, "cal_del")
}

func TestEngine_CalIdxDisableAndRebuildNotify(t *testing.T) {
	n := &capturingNotifier{}
	e := New("cal1", WithNotifier(n))
	e.CalIdxDisable(context.Background())
	e.CalIdxRebuild(context.Background())
	assert.Contains(t, n.payloads, "cal_idx_disable")
	assert.Contains(t, n.payloads, "cal_idx_rebuild")
}

func TestEngine_EvtPruneDeletesAndNotifies(t *testing.T) {
	n := &capturingNotifier{}
	e := New("cal1", WithNotifier(n))
	dtstart := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	props := eventProps(dtstart)
	rrule := ical.NewProp(property.NameRRule)
	rrule.Value = "FREQ=DAILY;COUNT=3"
	props = append(props, rrule)
	_, err := e.EvtSet(context.Background(), "BOUNDED", props, dtstart)
	require.NoError(t, err)

	pruned, err := e.EvtPrune(context.Background(), dtstart, dtstart.Add(10*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"BOUNDED"}, pruned)
	assert.Contains(t, n.payloads, "evt_del:BOUNDED")
}

func TestEngine_EviQueryAndEviListReturnRows(t *testing.T) {
	e := New("cal1")
	dtstart := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	_, err := e.EvtSet(context.Background(), "E1", eventProps(dtstart, "WORK"), dtstart)
	require.NoError(t, err)

	rows, err := e.EviQuery("X-CATEGORIES:WORK")
	require.NoError(t, err)
	require.Len(t, rows, 1)

	listRows, err := e.EviList("E1", "")
	require.NoError(t, err)
	require.Len(t, listRows, 1)
}

func TestEngine_EvtQueryReturnsMatchingEvents(t *testing.T) {
	e := New("cal1")
	dtstart := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	_, err := e.EvtSet(context.Background(), "E1", eventProps(dtstart, "WORK"), dtstart)
	require.NoError(t, err)
	_, err = e.EvtSet(context.Background(), "E2", eventProps(dtstart, "PERSONAL"), dtstart)
	require.NoError(t, err)

	rows, err := e.EvtQuery("X-CATEGORIES:WORK")
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestEngine_CloseIsSafeWithoutQueryCache(t *testing.T) {
	e := New("cal1", WithQueryCache(nil))
	e.Close()
}

// WithConfig's DefaultQueryLimit/DefaultGeoRadiusKM must actually bound
// the query evaluator, not just round-trip through config.Options.
func TestEngine_WithConfigAppliesDefaultQueryLimit(t *testing.T) {
	opts := config.Defaults()
	opts.DefaultQueryLimit = 2
	e := New("cal1", WithConfig(opts))

	dtstart := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	props := eventProps(dtstart)
	rrule := ical.NewProp(property.NameRRule)
	rrule.Value = "FREQ=DAILY;COUNT=5"
	props = append(props, rrule)
	_, err := e.EvtSet(context.Background(), "DAILY", props, dtstart)
	require.NoError(t, err)

	rows, err := e.EviQuery("")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestEngine_WithConfigAppliesDefaultGeoRadius(t *testing.T) {
	opts := config.Defaults()
	opts.DefaultGeoRadiusKM = 5000
	e := New("cal1", WithConfig(opts))

	dtstart := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	sf := ical.NewProp(property.NameGeo)
	sf.Value = "37.7749;-122.4194"
	props := append(eventProps(dtstart), sf)
	_, err := e.EvtSet(context.Background(), "SF", props, dtstart)
	require.NoError(t, err)

	// New York is ~4130km from San Francisco: within a 5000km default
	// radius but outside the package default of 10km.
	rows, err := e.EviQuery("X-GEO:40.7128;-74.0060")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
