package property

import (
	"github.com/emersion/go-ical"
)

// SerializeSchedule renders a Schedule back into property lines,
// choosing DTEND vs DURATION the way it was originally supplied is
// irrelevant here (the model only retains the effective Duration);
// the engine always re-serializes using DURATION, which is lossless.
func SerializeSchedule(s Schedule) []*ical.Prop {
	var out []*ical.Prop

	dtStart := ical.NewProp(NameDTStart)
	if s.DTStartTZID != "" {
		dtStart.Params.Set(ParamTZID, s.DTStartTZID)
	}
	dtStart.SetDateTime(s.DTStart)
	out = append(out, dtStart)

	if s.Duration != 0 {
		dur := ical.NewProp(NameDuration)
		dur.SetDuration(s.Duration)
		out = append(out, dur)
	}

	for _, r := range s.RRules {
		p := ical.NewProp(NameRRule)
		p.Value = r
		out = append(out, p)
	}
	for _, r := range s.ExRules {
		p := ical.NewProp(NameExRule)
		p.Value = r
		out = append(out, p)
	}
	for _, d := range s.RDates {
		p := ical.NewProp(NameRDate)
		p.SetDateTime(d)
		out = append(out, p)
	}
	for _, d := range s.ExDates {
		p := ical.NewProp(NameExDate)
		p.SetDateTime(d)
		out = append(out, p)
	}
	return out
}

// SerializeIndexed renders an Indexed property group back into
// property lines, in sorted/canonical form (spec §4.1, §8 invariant 5).
func SerializeIndexed(idx Indexed) []*ical.Prop {
	var out []*ical.Prop

	if idx.HasCategories {
		p := ical.NewProp(NameCategories)
		p.SetTextList(idx.SortedCategories())
		out = append(out, p)
	}
	if idx.HasRelatedTo {
		for _, r := range idx.SortedRelatedTo() {
			p := ical.NewProp(NameRelatedTo)
			if r.RelType != "" && r.RelType != DefaultReltype {
				p.Params.Set(ParamReltype, r.RelType)
			}
			p.Value = r.Value
			out = append(out, p)
		}
	}
	if idx.HasLocType {
		p := ical.NewProp(NameLocationType)
		p.SetTextList(idx.SortedLocationTypes())
		out = append(out, p)
	}
	if idx.HasClass {
		p := ical.NewProp(NameClass)
		p.Value = idx.Class
		out = append(out, p)
	}
	if idx.HasGeo && idx.Geo != nil {
		p := ical.NewProp(NameGeo)
		p.Value = FormatGeo(*idx.Geo)
		out = append(out, p)
	}
	return out
}

// SerializePassive renders passive lines back into property lines, in
// name-then-value order (spec §6).
func SerializePassive(lines []PassiveLine) []*ical.Prop {
	sorted := make([]PassiveLine, len(lines))
	copy(sorted, lines)
	SortPassiveLines(sorted)
	out := make([]*ical.Prop, 0, len(sorted))
	for _, l := range sorted {
		out = append(out, l.ToProp())
	}
	return out
}
