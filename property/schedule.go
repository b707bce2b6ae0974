package property

import (
	"time"

	"github.com/emersion/go-ical"
	"github.com/icalstore/rcal/rcalerr"
)

// Schedule is the Schedule-kind property group of an Event (spec §3):
// one DTSTART, an optional DTEND or DURATION (never both), and the
// recurrence/exception rule and date sets the expander (C2) consumes.
// Overrides never carry a Schedule (RRULE/EXRULE/RDATE/EXDATE are
// forbidden there, spec §3/§7).
type Schedule struct {
	// DTStart is the event's anchor start instant, in its original zone.
	DTStart time.Time
	// DTStartTZID is the original TZID parameter, empty if DTStart was UTC/floating.
	DTStartTZID string

	// Duration is the effective event duration: DTEnd-DTStart when DTEnd
	// was supplied on input, the explicit DURATION value when that was
	// supplied, or zero. Exactly one of the two inputs may be present;
	// validated at construction time (NewSchedule).
	Duration time.Duration

	// RRules, ExRules are raw RFC 5545 recurrence-rule value strings
	// (e.g. "FREQ=WEEKLY;BYDAY=MO,WE;COUNT=4"); parsing into a
	// rrule.Set happens in package recur, not here, since rule parsing
	// needs DTStart/TZID context the expander owns.
	RRules  []string
	ExRules []string

	// RDates, ExDates are explicit recurrence/exception instants, UTC.
	RDates  []time.Time
	ExDates []time.Time
}

// NewSchedule validates and constructs a Schedule from decoded inputs.
// Exactly one of dtend/duration may be non-zero-valued; hasDTEnd and
// hasDuration disambiguate an explicit zero duration from "absent".
func NewSchedule(dtStart time.Time, dtStartTZID string, dtEnd time.Time, hasDTEnd bool, duration time.Duration, hasDuration bool) (Schedule, error) {
	if hasDTEnd && hasDuration {
		return Schedule{}, newErr(rcalerr.Validation, "property.NewSchedule", "both DTEND and DURATION present")
	}
	s := Schedule{DTStart: dtStart, DTStartTZID: dtStartTZID}
	switch {
	case hasDTEnd:
		s.Duration = dtEnd.Sub(dtStart)
	case hasDuration:
		s.Duration = duration
	default:
		s.Duration = 0
	}
	return s, nil
}

// DTEnd returns the effective end instant: DTStart + Duration.
func (s Schedule) DTEnd() time.Time {
	return s.DTStart.Add(s.Duration)
}

// ParseDTStart extracts a DTSTART property's instant and zone id.
// Floating and UTC times are both normalized to UTC for the
// engine's internal representation; DTStartTZID preserves the
// original zone so serialization can round-trip.
func ParseDTStart(p *ical.Prop) (t time.Time, tzid string, err error) {
	tzid = p.Params.Get(ical.ParamTimezoneID)
	loc := time.UTC
	if tzid != "" {
		if l, lerr := time.LoadLocation(tzid); lerr == nil {
			loc = l
		}
	}
	t, derr := p.DateTime(loc)
	if derr != nil {
		return time.Time{}, "", newErr(rcalerr.Parse, "property.ParseDTStart", "invalid DTSTART: %v", derr)
	}
	return t.UTC(), tzid, nil
}

// ParseDateList parses an RDATE/EXDATE property's comma-separated
// list of date-times into UTC instants.
func ParseDateList(p *ical.Prop) ([]time.Time, error) {
	values, err := p.TextList()
	if err != nil {
		return nil, newErr(rcalerr.Parse, "property.ParseDateList", "invalid date list: %v", err)
	}
	out := make([]time.Time, 0, len(values))
	for _, v := range values {
		tmp := ical.NewProp(p.Name)
		tmp.Value = v
		t, terr := tmp.DateTime(time.UTC)
		if terr != nil {
			return nil, newErr(rcalerr.Parse, "property.ParseDateList", "invalid instant %q: %v", v, terr)
		}
		out = append(out, t.UTC())
	}
	return out, nil
}
