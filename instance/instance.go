// Package instance implements the occurrence merger (C3): given a
// base Event, an optional Override, and an occurrence instant, it
// produces the fully materialized EventInstance view spec §3/§4.3
// describe. EventInstances are never stored; they're computed on
// demand by the query evaluator (package query), which serves both
// EVI_LIST and EVI_QUERY.
package instance

import (
	"time"

	"github.com/icalstore/rcal/model"
	"github.com/icalstore/rcal/property"
)

// EventInstance is the fully materialized view of one occurrence
// (spec §3 "EventInstance (derived)").
type EventInstance struct {
	UID          string
	RecurrenceID time.Time
	DTStart      time.Time
	DTEnd        time.Time
	Duration     time.Duration
	Indexed      property.Indexed
	Passive      []property.PassiveLine
}

// Merge produces the EventInstance for one occurrence of event at
// instant, layering override (which may be nil, meaning no override
// exists at this instant) over the base event (spec §4.3).
func Merge(event *model.Event, override *model.Override, instant time.Time) EventInstance {
	dtStartEff := override.EffectiveDTStart(instant)
	durationEff := override.EffectiveDuration(dtStartEff, event.Schedule.Duration)

	mergedIndexed := event.Indexed
	mergedPassive := event.Passive
	if override != nil {
		mergedIndexed = override.Indexed.MergeOver(event.Indexed)
		mergedPassive = property.MergePassive(event.Passive, override.Passive)
	}

	return EventInstance{
		UID:          event.UID,
		RecurrenceID: instant,
		DTStart:      dtStartEff,
		DTEnd:        dtStartEff.Add(durationEff),
		Duration:     durationEff,
		Indexed:      mergedIndexed,
		Passive:      mergedPassive,
	}
}
