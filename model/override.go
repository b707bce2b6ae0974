package model

import (
	"time"

	"github.com/icalstore/rcal/property"
	"github.com/icalstore/rcal/rcalerr"
)

// Override is identified by its parent event's UID plus an occurrence
// instant (spec §3). Same property shape as an Event minus recurrence
// rules, which property.Parse(props, false) already forbids.
type Override struct {
	EventUID string
	Instant  time.Time

	// HasDTStart/DTStart: if present, shifts the occurrence's
	// effective start. Must equal Instant if present (spec §3, §7).
	HasDTStart bool
	DTStart    time.Time

	// Exactly one of HasDTEnd/HasDuration may be true.
	HasDTEnd bool
	DTEnd    time.Time
	HasDuration bool
	Duration    time.Duration

	Indexed property.Indexed
	Passive []property.PassiveLine

	LastModified time.Time
}

// NewOverride validates and constructs an Override for eventUID at
// instant from parsed properties (which must have been parsed with
// allowScheduleRules=false).
func NewOverride(eventUID string, instant time.Time, parsed *property.ParsedProps, now time.Time) (*Override, error) {
	const op = "model.NewOverride"
	ov := &Override{
		EventUID:    eventUID,
		Instant:     instant,
		HasDTEnd:    parsed.HasDTEnd,
		DTEnd:       parsed.DTEnd,
		HasDuration: parsed.HasDuration,
		Duration:    parsed.Duration,
		Indexed:     parsed.Indexed,
		Passive:     parsed.Passive,
	}
	if parsed.HasDTStart {
		if !parsed.DTStart.Equal(instant) {
			return nil, rcalerr.Newf(rcalerr.Validation, op, "override DTSTART %s does not equal occurrence instant %s", parsed.DTStart, instant)
		}
		ov.HasDTStart = true
		ov.DTStart = parsed.DTStart
	}
	if parsed.HasDTEnd && parsed.HasDuration {
		return nil, rcalerr.Newf(rcalerr.Validation, op, "both DTEND and DURATION present")
	}
	if parsed.HasLastModified {
		ov.LastModified = parsed.LastModified
	} else {
		ov.LastModified = now
	}
	return ov, nil
}

// EffectiveDTStart returns DTSTART_eff per spec §4.3: override.DTSTART
// if present, else the occurrence instant itself.
func (ov *Override) EffectiveDTStart(instant time.Time) time.Time {
	if ov != nil && ov.HasDTStart {
		return ov.DTStart
	}
	return instant
}

// EffectiveDuration returns DURATION_eff per spec §4.3:
// override.DURATION if present, else (override.DTEND - DTSTART_eff) if
// override.DTEND is present, else the base event's duration.
func (ov *Override) EffectiveDuration(dtStartEff time.Time, baseDuration time.Duration) time.Duration {
	if ov == nil {
		return baseDuration
	}
	if ov.HasDuration {
		return ov.Duration
	}
	if ov.HasDTEnd {
		return ov.DTEnd.Sub(dtStartEff)
	}
	return baseDuration
}
