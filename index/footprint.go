package index

import (
	"github.com/icalstore/rcal/property"
)

// Kind names one of the inverted-index property kinds (spec §4.4).
type Kind string

const (
	KindCategories   Kind = "CATEGORIES"
	KindRelatedTo    Kind = "RELATED-TO"
	KindLocationType Kind = "LOCATION-TYPE"
	KindClass        Kind = "CLASS"
	KindUID          Kind = "UID"
)

// TermKey identifies one posting list: a (kind, term) pair.
type TermKey struct {
	Kind Kind
	Term string
}

// Footprint is the set of (term, scope) and geospatial entries an
// event or override contributes to the calendar indexes (GLOSSARY
// "Footprint"). Terms is keyed by TermKey so store's symmetric-
// difference diffing (spec §4.6) is a plain set comparison.
type Footprint struct {
	Terms map[TermKey]struct{}
	Geo   *property.GeoPoint // nil if this scope asserts no GEO
}

// ComputeFootprint extracts the term set (and optional GEO point) that
// uid contributes at idx. includeUID should be true only for the base
// event's own footprint: UID is event-scope, not overridable (spec §9
// Open Questions — resolved in DESIGN.md), so override footprints
// never contribute a UID term.
func ComputeFootprint(uid string, idx property.Indexed, includeUID bool) Footprint {
	terms := make(map[TermKey]struct{})
	if includeUID {
		terms[TermKey{Kind: KindUID, Term: uid}] = struct{}{}
	}
	if idx.HasCategories {
		for c := range idx.Categories {
			terms[TermKey{Kind: KindCategories, Term: c}] = struct{}{}
		}
	}
	if idx.HasRelatedTo {
		for _, r := range idx.RelatedTo {
			terms[TermKey{Kind: KindRelatedTo, Term: r.Term()}] = struct{}{}
		}
	}
	if idx.HasLocType {
		for l := range idx.LocationType {
			terms[TermKey{Kind: KindLocationType, Term: l}] = struct{}{}
		}
	}
	if idx.HasClass {
		terms[TermKey{Kind: KindClass, Term: idx.Class}] = struct{}{}
	}

	fp := Footprint{Terms: terms}
	if idx.HasGeo && idx.Geo != nil {
		g := *idx.Geo
		fp.Geo = &g
	}
	return fp
}

// Diff computes the symmetric difference between an old and new
// footprint: terms to add (present in next, absent in prev) and terms
// to remove (present in prev, absent in next), plus whether the GEO
// point changed (spec §4.6: "Computes the set of currently indexed
// (term, scope) tuples for the prior version, the set for the new
// version, and applies the symmetric difference").
type Diff struct {
	Add       []TermKey
	Remove    []TermKey
	GeoChanged bool
	NewGeo    *property.GeoPoint
}

func DiffFootprints(prev, next Footprint) Diff {
	var d Diff
	for tk := range next.Terms {
		if _, ok := prev.Terms[tk]; !ok {
			d.Add = append(d.Add, tk)
		}
	}
	for tk := range prev.Terms {
		if _, ok := next.Terms[tk]; !ok {
			d.Remove = append(d.Remove, tk)
		}
	}
	if !geoEqual(prev.Geo, next.Geo) {
		d.GeoChanged = true
		d.NewGeo = next.Geo
	}
	return d
}

func geoEqual(a, b *property.GeoPoint) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}
