package property

import (
	"sort"

	"github.com/emersion/go-ical"
)

// PassiveLine is an opaque preserved property line: never indexed,
// carried through unchanged (spec §3 "Passive properties").
type PassiveLine struct {
	Name   string
	Params map[string][]string
	Value  string
}

// FromProp converts a go-ical property into a PassiveLine, preserving
// parameters so re-serialization is byte-stable up to semantic
// equivalence (spec §4.1).
func FromProp(p *ical.Prop) PassiveLine {
	params := make(map[string][]string, len(p.Params))
	for k, v := range p.Params {
		cp := make([]string, len(v))
		copy(cp, v)
		params[k] = cp
	}
	return PassiveLine{Name: p.Name, Params: params, Value: p.Value}
}

// ToProp converts a PassiveLine back into a go-ical property.
func (l PassiveLine) ToProp() *ical.Prop {
	p := ical.NewProp(l.Name)
	for k, v := range l.Params {
		for _, val := range v {
			p.Params.Add(k, val)
		}
	}
	p.Value = l.Value
	return p
}

// SortPassiveLines orders passive lines by name then by value for
// deterministic result serialization (spec §6: "properties sorted
// alphabetically by property name, then by parameters").
func SortPassiveLines(lines []PassiveLine) {
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].Name != lines[j].Name {
			return lines[i].Name < lines[j].Name
		}
		return lines[i].Value < lines[j].Value
	})
}
