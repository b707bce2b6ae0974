package property

import (
	"time"

	"github.com/emersion/go-ical"
	"github.com/icalstore/rcal/rcalerr"
)

// ParsedProps is the total classification of one component's property
// lines (spec §4.1): every recognized Schedule/Indexed property
// extracted into typed fields, LAST-MODIFIED extracted separately,
// and everything else preserved as Passive lines.
//
// Presence flags (Has*) distinguish "absent, caller should inherit a
// default" from "present with a zero value" wherever spec §3/§4.3
// draws that distinction (DTEND/DURATION, CATEGORIES, etc.).
type ParsedProps struct {
	HasDTStart  bool
	DTStart     time.Time
	DTStartTZID string

	HasDTEnd bool
	DTEnd    time.Time

	HasDuration bool
	Duration    time.Duration

	RRules  []string
	ExRules []string
	RDates  []time.Time
	ExDates []time.Time

	Indexed Indexed
	Passive []PassiveLine

	HasLastModified bool
	LastModified    time.Time
}

// Parse classifies props. When allowScheduleRules is false (overrides,
// spec §3), any RRULE/EXRULE/RDATE/EXDATE line is a Validation error.
func Parse(props []*ical.Prop, allowScheduleRules bool) (*ParsedProps, error) {
	out := &ParsedProps{Indexed: NewIndexed()}

	for _, p := range props {
		switch p.Name {
		case NameDTStart:
			t, tzid, err := ParseDTStart(p)
			if err != nil {
				return nil, err
			}
			out.HasDTStart = true
			out.DTStart = t
			out.DTStartTZID = tzid

		case NameDTEnd:
			t, _, err := ParseDTStart(p)
			if err != nil {
				return nil, newErr(rcalerr.Parse, "property.Parse", "invalid DTEND: %v", err)
			}
			out.HasDTEnd = true
			out.DTEnd = t

		case NameDuration:
			d, err := p.Duration()
			if err != nil {
				return nil, newErr(rcalerr.Parse, "property.Parse", "invalid DURATION: %v", err)
			}
			out.HasDuration = true
			out.Duration = d

		case NameRRule:
			if !allowScheduleRules {
				return nil, newErr(rcalerr.Validation, "property.Parse", "RRULE forbidden on override")
			}
			out.RRules = append(out.RRules, p.Value)

		case NameExRule:
			if !allowScheduleRules {
				return nil, newErr(rcalerr.Validation, "property.Parse", "EXRULE forbidden on override")
			}
			out.ExRules = append(out.ExRules, p.Value)

		case NameRDate:
			if !allowScheduleRules {
				return nil, newErr(rcalerr.Validation, "property.Parse", "RDATE forbidden on override")
			}
			dates, err := ParseDateList(p)
			if err != nil {
				return nil, err
			}
			out.RDates = append(out.RDates, dates...)

		case NameExDate:
			if !allowScheduleRules {
				return nil, newErr(rcalerr.Validation, "property.Parse", "EXDATE forbidden on override")
			}
			dates, err := ParseDateList(p)
			if err != nil {
				return nil, err
			}
			out.ExDates = append(out.ExDates, dates...)

		case NameCategories:
			set, err := ParseCategories(p)
			if err != nil {
				return nil, err
			}
			out.Indexed.Categories = set
			out.Indexed.HasCategories = true

		case NameRelatedTo:
			rel, err := ParseRelatedTo(p)
			if err != nil {
				return nil, err
			}
			out.Indexed.RelatedTo = append(out.Indexed.RelatedTo, rel)
			out.Indexed.HasRelatedTo = true

		case NameLocationType:
			set, err := ParseCategories(p) // same comma-list grammar as CATEGORIES
			if err != nil {
				return nil, newErr(rcalerr.Parse, "property.Parse", "invalid LOCATION-TYPE: %v", err)
			}
			out.Indexed.LocationType = set
			out.Indexed.HasLocType = true

		case NameClass:
			out.Indexed.Class = p.Value
			out.Indexed.HasClass = true

		case NameGeo:
			g, err := ParseGeo(p)
			if err != nil {
				return nil, err
			}
			out.Indexed.Geo = &g
			out.Indexed.HasGeo = true

		case NameLastModified:
			t, err := ParseLastModified(p)
			if err != nil {
				return nil, err
			}
			out.HasLastModified = true
			out.LastModified = t

		default:
			out.Passive = append(out.Passive, FromProp(p))
		}
	}

	if out.HasDTEnd && out.HasDuration {
		return nil, newErr(rcalerr.Validation, "property.Parse", "both DTEND and DURATION present")
	}

	return out, nil
}
