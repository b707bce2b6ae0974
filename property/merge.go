package property

// MergeOver returns the effective Indexed set for an occurrence: each
// field from ov (the override, receiver) wins when present, otherwise
// the base's value is inherited (spec §4.3: "indexed/passive
// properties per-property override-wins-if-present").
func (ov Indexed) MergeOver(base Indexed) Indexed {
	out := base
	if ov.HasCategories {
		out.Categories = ov.Categories
		out.HasCategories = true
	}
	if ov.HasRelatedTo {
		out.RelatedTo = ov.RelatedTo
		out.HasRelatedTo = true
	}
	if ov.HasLocType {
		out.LocationType = ov.LocationType
		out.HasLocType = true
	}
	if ov.HasClass {
		out.Class = ov.Class
		out.HasClass = true
	}
	if ov.HasGeo {
		out.Geo = ov.Geo
		out.HasGeo = true
	}
	return out
}

// MergePassive merges passive lines: override lines replace base
// lines of the same property name, base lines not overridden pass
// through unchanged, preserving insertion-independent determinism via
// name-sorted serialization elsewhere.
func MergePassive(base, override []PassiveLine) []PassiveLine {
	overridden := make(map[string]bool, len(override))
	for _, l := range override {
		overridden[l.Name] = true
	}
	out := make([]PassiveLine, 0, len(base)+len(override))
	for _, l := range base {
		if !overridden[l.Name] {
			out = append(out, l)
		}
	}
	out = append(out, override...)
	return out
}
