package property

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/emersion/go-ical"
	"github.com/icalstore/rcal/rcalerr"
)

// RelatedTo is one RELATED-TO value, spec §3: reltype defaults to
// PARENT when the RELTYPE parameter is absent.
type RelatedTo struct {
	RelType string
	Value   string
}

// Term returns the inverted-index term for this relation (spec §4.4):
// reltype||value concatenation.
func (r RelatedTo) Term() string {
	rt := r.RelType
	if rt == "" {
		rt = DefaultReltype
	}
	return rt + "||" + r.Value
}

// GeoPoint is a decimal-degree latitude/longitude pair (spec §3 GEO).
type GeoPoint struct {
	Lat, Lon float64
}

// Indexed holds the Indexed-kind property group of an Event or
// Override (spec §3, §4.4): CATEGORIES, RELATED-TO, LOCATION-TYPE,
// CLASS, GEO. Each field uses a presence flag so overrides can
// distinguish "not specified, inherit from base" from "specified as
// empty" (spec §3: "CATEGORIES: with empty value => explicit empty set").
type Indexed struct {
	Categories     map[string]struct{}
	HasCategories  bool
	RelatedTo      []RelatedTo
	HasRelatedTo   bool
	LocationType   map[string]struct{}
	HasLocType     bool
	Class          string
	HasClass       bool
	Geo            *GeoPoint
	HasGeo         bool
}

// NewIndexed returns a zero-valued Indexed with no fields marked present.
func NewIndexed() Indexed {
	return Indexed{}
}

// SortedCategories returns CATEGORIES in sorted order, the
// testable normalization spec §4.1 calls out for byte-stable
// re-serialization.
func (idx Indexed) SortedCategories() []string {
	out := make([]string, 0, len(idx.Categories))
	for c := range idx.Categories {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// SortedLocationTypes returns LOCATION-TYPE in sorted order.
func (idx Indexed) SortedLocationTypes() []string {
	out := make([]string, 0, len(idx.LocationType))
	for c := range idx.LocationType {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// SortedRelatedTo returns RELATED-TO in canonical (reltype, value)
// lexicographic order, the ordering spec §8 invariant 5 requires for
// serializer round-trips.
func (idx Indexed) SortedRelatedTo() []RelatedTo {
	out := make([]RelatedTo, len(idx.RelatedTo))
	copy(out, idx.RelatedTo)
	sort.Slice(out, func(i, j int) bool {
		ri, rj := out[i], out[j]
		if ri.RelType != rj.RelType {
			return ri.RelType < rj.RelType
		}
		return ri.Value < rj.Value
	})
	return out
}

// ParseCategories parses a CATEGORIES property line into a set. An
// empty value yields an explicit empty set (HasCategories true, zero
// members) per spec §3/§8.
func ParseCategories(p *ical.Prop) (map[string]struct{}, error) {
	set := make(map[string]struct{})
	if strings.TrimSpace(p.Value) == "" {
		return set, nil
	}
	values, err := p.TextList()
	if err != nil {
		return nil, newErr(rcalerr.Parse, "property.ParseCategories", "invalid CATEGORIES: %v", err)
	}
	for _, v := range values {
		if v == "" {
			continue
		}
		set[v] = struct{}{}
	}
	return set, nil
}

// ParseRelatedTo parses a single RELATED-TO property line.
func ParseRelatedTo(p *ical.Prop) (RelatedTo, error) {
	reltype := p.Params.Get(ical.ParamRelationshipType)
	if reltype == "" {
		reltype = DefaultReltype
	}
	return RelatedTo{RelType: reltype, Value: p.Value}, nil
}

// ParseGeo parses a GEO property's "lat;lon" value.
func ParseGeo(p *ical.Prop) (GeoPoint, error) {
	parts := strings.SplitN(p.Value, ";", 2)
	if len(parts) != 2 {
		return GeoPoint{}, newErr(rcalerr.Parse, "property.ParseGeo", "invalid GEO value %q", p.Value)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return GeoPoint{}, newErr(rcalerr.Parse, "property.ParseGeo", "invalid GEO latitude: %v", err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return GeoPoint{}, newErr(rcalerr.Parse, "property.ParseGeo", "invalid GEO longitude: %v", err)
	}
	return GeoPoint{Lat: lat, Lon: lon}, nil
}

// FormatGeo renders a GeoPoint as "lat;lon" for serialization.
func FormatGeo(g GeoPoint) string {
	return fmt.Sprintf("%g;%g", g.Lat, g.Lon)
}
