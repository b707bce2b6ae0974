// Package command implements the external command surface (spec §6):
// CAL_*/EVT_*/EVO_*/EVI_* logical operations, their result shapes,
// keyspace notifications, and the snapshot persistence hook. It is the
// thin layer a host key-value server's dispatch loop would call into;
// the host's own network protocol and command parsing are out of
// scope (spec §1) and not modeled here.
package command

import (
	"sort"
	"strings"

	"github.com/emersion/go-ical"
	"github.com/icalstore/rcal/instance"
	"github.com/icalstore/rcal/model"
	"github.com/icalstore/rcal/property"
)

// Line is one property line of a result-shape array: "properties
// sorted alphabetically by property name, then by parameters, for
// deterministic output" (spec §6).
type Line struct {
	Name   string
	Params map[string][]string
	Value  string
}

func linesFromProps(props []*ical.Prop) []Line {
	out := make([]Line, 0, len(props))
	for _, p := range props {
		params := make(map[string][]string, len(p.Params))
		for k, v := range p.Params {
			cp := make([]string, len(v))
			copy(cp, v)
			params[k] = cp
		}
		out = append(out, Line{Name: p.Name, Params: params, Value: p.Value})
	}
	return out
}

func paramsKey(params map[string][]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strings.Join(params[k], ","))
		b.WriteByte(';')
	}
	return b.String()
}

func sortLines(lines []Line) {
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].Name != lines[j].Name {
			return lines[i].Name < lines[j].Name
		}
		pi, pj := paramsKey(lines[i].Params), paramsKey(lines[j].Params)
		if pi != pj {
			return pi < pj
		}
		return lines[i].Value < lines[j].Value
	})
}

func uidLine(uid string) *ical.Prop {
	p := ical.NewProp(property.NameUID)
	p.Value = uid
	return p
}

// EventLines renders event as the sorted property-line array an
// EVT_GET-style result returns.
func EventLines(event *model.Event) []Line {
	var props []*ical.Prop
	props = append(props, property.SerializeSchedule(event.Schedule)...)
	props = append(props, property.SerializeIndexed(event.Indexed)...)
	props = append(props, property.SerializePassive(event.Passive)...)
	props = append(props, property.FormatLastModified(event.LastModified))
	props = append(props, uidLine(event.UID))

	lines := linesFromProps(props)
	sortLines(lines)
	return lines
}

// OverrideLines renders ov as the sorted property-line array an
// EVO_GET-style result returns.
func OverrideLines(ov *model.Override) []Line {
	var props []*ical.Prop

	if ov.HasDTStart {
		p := ical.NewProp(property.NameDTStart)
		p.SetDateTime(ov.DTStart)
		props = append(props, p)
	}
	if ov.HasDTEnd {
		p := ical.NewProp(property.NameDTEnd)
		p.SetDateTime(ov.DTEnd)
		props = append(props, p)
	}
	if ov.HasDuration {
		p := ical.NewProp(property.NameDuration)
		p.SetDuration(ov.Duration)
		props = append(props, p)
	}
	props = append(props, property.SerializeIndexed(ov.Indexed)...)
	props = append(props, property.SerializePassive(ov.Passive)...)
	props = append(props, property.FormatLastModified(ov.LastModified))
	props = append(props, uidLine(ov.EventUID))

	recID := ical.NewProp("RECURRENCE-ID")
	recID.SetDateTime(ov.Instant)
	props = append(props, recID)

	lines := linesFromProps(props)
	sortLines(lines)
	return lines
}

// InstanceLines renders a materialized EventInstance's full property
// set, the second element of an EVI_QUERY/EVI_LIST result row (spec
// §4.8 step 7, §6).
func InstanceLines(ei instance.EventInstance) []Line {
	var props []*ical.Prop

	dtStart := ical.NewProp(property.NameDTStart)
	dtStart.SetDateTime(ei.DTStart)
	props = append(props, dtStart)

	dur := ical.NewProp(property.NameDuration)
	dur.SetDuration(ei.Duration)
	props = append(props, dur)

	props = append(props, property.SerializeIndexed(ei.Indexed)...)
	props = append(props, property.SerializePassive(ei.Passive)...)
	props = append(props, uidLine(ei.UID))

	recID := ical.NewProp("RECURRENCE-ID")
	recID.SetDateTime(ei.RecurrenceID)
	props = append(props, recID)

	lines := linesFromProps(props)
	sortLines(lines)
	return lines
}
