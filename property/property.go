// Package property implements the typed iCalendar property model (C1):
// Schedule, Indexed, and Passive variants, each able to parse from and
// serialize back to the go-ical property line representation.
//
// The iCalendar textual grammar itself (tokenizing a BEGIN:VEVENT block
// into property lines) is treated as an external collaborator's
// responsibility per spec §1; this package consumes already-parsed
// *ical.Prop values (as github.com/emersion/go-ical produces) and is
// total over them: recognized names become typed Schedule/Indexed
// properties, X-prefixed (and otherwise unrecognized) names become
// Passive lines, and malformed recognized values fail with a Parse
// error.
package property

import "github.com/icalstore/rcal/rcalerr"

// Kind partitions properties the way spec §9's "polymorphism over
// property kinds" design note calls for: a tagged variant set rather
// than a class hierarchy. Parse sorts each property into the
// Schedule, Indexed or Passive fields of ParsedProps by its name; the
// Kind tag itself names those three variants and is not read elsewhere.
type Kind int

const (
	// KindSchedule covers DTSTART/DTEND/DURATION/RRULE/EXRULE/RDATE/EXDATE.
	KindSchedule Kind = iota + 1
	// KindIndexed covers CATEGORIES/RELATED-TO/LOCATION-TYPE/CLASS/GEO.
	KindIndexed
	// KindPassive covers every other property, preserved opaquely.
	KindPassive
)

func (k Kind) String() string {
	switch k {
	case KindSchedule:
		return "Schedule"
	case KindIndexed:
		return "Indexed"
	case KindPassive:
		return "Passive"
	default:
		return "Unknown"
	}
}

// Recognized property names (spec §3, §4.1, §4.4).
const (
	NameDTStart      = "DTSTART"
	NameDTEnd        = "DTEND"
	NameDuration     = "DURATION"
	NameRRule        = "RRULE"
	NameExRule       = "EXRULE"
	NameRDate        = "RDATE"
	NameExDate       = "EXDATE"
	NameCategories   = "CATEGORIES"
	NameRelatedTo    = "RELATED-TO"
	NameLocationType = "LOCATION-TYPE"
	NameClass        = "CLASS"
	NameGeo          = "GEO"
	NameLastModified = "LAST-MODIFIED"
	NameUID          = "UID"

	// ParamReltype is the RELATED-TO parameter naming the relationship kind.
	ParamReltype = "RELTYPE"
	// ParamTZID names the time zone of a Schedule date-time value.
	ParamTZID = "TZID"
	// ParamXMillis extends LAST-MODIFIED's second precision.
	ParamXMillis = "X-MILLIS"
	// DefaultReltype is the RELATED-TO reltype assumed when absent.
	DefaultReltype = "PARENT"
)

func newErr(kind rcalerr.Kind, op, format string, args ...any) *rcalerr.Error {
	return rcalerr.Newf(kind, op, format, args...)
}
