// Package model defines the Calendar/Event/Override data model and its
// invariants (spec §3). It holds no indexing or query logic — those
// are packages index, store, query — so it can be imported freely by
// all of them without a cycle.
package model

import (
	"time"

	"github.com/icalstore/rcal/property"
	"github.com/icalstore/rcal/rcalerr"
)

// Event is identified by UID, unique within its calendar (spec §3).
type Event struct {
	UID string

	Schedule property.Schedule
	Indexed  property.Indexed
	Passive  []property.PassiveLine

	// Overrides maps occurrence instant (UTC, second precision) to
	// Override. Mutated only through the store package so index
	// maintenance stays coherent; model itself never indexes.
	Overrides map[time.Time]*Override

	LastModified time.Time
}

// NewEvent validates parsed properties and constructs an Event. now is
// used to stamp LAST-MODIFIED when absent from the input (spec §3).
func NewEvent(uid string, parsed *property.ParsedProps, now time.Time) (*Event, error) {
	const op = "model.NewEvent"
	if uid == "" {
		return nil, rcalerr.Newf(rcalerr.Validation, op, "event UID must not be empty")
	}
	if !parsed.HasDTStart {
		return nil, rcalerr.Newf(rcalerr.Validation, op, "DTSTART is required")
	}

	sched, err := property.NewSchedule(parsed.DTStart, parsed.DTStartTZID, parsed.DTEnd, parsed.HasDTEnd, parsed.Duration, parsed.HasDuration)
	if err != nil {
		return nil, err
	}
	sched.RRules = parsed.RRules
	sched.ExRules = parsed.ExRules
	sched.RDates = parsed.RDates
	sched.ExDates = parsed.ExDates

	lastModified := parsed.LastModified
	if !parsed.HasLastModified {
		lastModified = now
	}

	return &Event{
		UID:          uid,
		Schedule:     sched,
		Indexed:      parsed.Indexed,
		Passive:      parsed.Passive,
		Overrides:    make(map[time.Time]*Override),
		LastModified: lastModified,
	}, nil
}

// ApplyUpdate validates and merges a new version of the event's
// Schedule/Indexed/Passive/LastModified onto an existing Event,
// enforcing the LAST-MODIFIED monotonicity invariant (spec §3: "a
// newer LAST-MODIFIED on the existing record causes the write to be
// refused"). It returns (accepted, err). When accepted is false
// the write is a no-op per spec §7 policy: refused writes are
// non-errors, and e is left untouched.
func (e *Event) ApplyUpdate(parsed *property.ParsedProps, now time.Time) (accepted bool, err error) {
	const op = "model.Event.ApplyUpdate"
	if !parsed.HasDTStart {
		return false, rcalerr.Newf(rcalerr.Validation, op, "DTSTART is required")
	}
	sched, err := property.NewSchedule(parsed.DTStart, parsed.DTStartTZID, parsed.DTEnd, parsed.HasDTEnd, parsed.Duration, parsed.HasDuration)
	if err != nil {
		return false, err
	}

	lastModified := parsed.LastModified
	if !parsed.HasLastModified {
		lastModified = now
	}
	if lastModified.Before(e.LastModified) {
		return false, nil
	}

	sched.RRules = parsed.RRules
	sched.ExRules = parsed.ExRules
	sched.RDates = parsed.RDates
	sched.ExDates = parsed.ExDates

	e.Schedule = sched
	e.Indexed = parsed.Indexed
	e.Passive = parsed.Passive
	e.LastModified = lastModified
	return true, nil
}
