package query

import (
	"fmt"
	"sort"
	"time"

	"github.com/icalstore/rcal/index"
	"github.com/icalstore/rcal/instance"
	"github.com/icalstore/rcal/property"
	"github.com/icalstore/rcal/rcalerr"
	"github.com/icalstore/rcal/recur"
	"github.com/icalstore/rcal/store"
)

// Projection is one ordering-key projection field (spec §4.8 step 7:
// "the ordering-key projection, e.g. DTSTART:…, X-GEO-DIST:…KM").
type Projection struct {
	Name  string
	Value string
}

// Row is one result row: the ordering projection plus the full
// materialized instance it was computed from.
type Row struct {
	UID          string
	RecurrenceID time.Time
	DTStart      time.Time
	HasGeoDist   bool
	GeoDistKM    float64
	Ordering     []Projection
	Instance     instance.EventInstance
}

// EvaluateInstances runs the full C8 algorithm against st, answering
// an EVI_QUERY/EVI_LIST-style request: candidate generation via the
// indexes, schedule expansion + override merge per candidate event,
// a precise per-instance verification pass, ordering, distinct,
// pagination, and projection (spec §4.8).
func EvaluateInstances(st *store.Store, q *Query) ([]Row, error) {
	uids := candidateEventUIDs(st, q.Filter)

	bound := recur.Bound{}
	explicitUntil := q.Until.Has && q.Until.Prop == BoundDTStart
	if q.From.Has && q.From.Prop == BoundDTStart {
		bound.From = q.From.Value
	}
	if explicitUntil {
		bound.Until = q.Until.Value
	}
	if q.Limit > 0 {
		bound.MaxCount = q.Offset + q.Limit
	}

	var rows []Row
	for _, uid := range uids {
		event, ok := st.GetEvent(uid)
		if !ok {
			continue
		}

		// spec §4.8: an unbounded recurrence queried without an
		// explicit X-LIMIT or X-UNTIL fails outright rather than
		// silently truncating at the default page size.
		if !explicitUntil && !q.LimitExplicit && !recur.IntrinsicallyBounded(event.Schedule) {
			return nil, rcalerr.Newf(rcalerr.UnboundedExpansion, "query.EvaluateInstances", "event %q has unbounded recurrence; supply X-LIMIT or X-UNTIL", uid)
		}

		exp, err := recur.New(event.Schedule, bound)
		if err != nil {
			return nil, err
		}
		occs, err := recur.Collect(exp)
		if err != nil {
			return nil, err
		}

		seen := make(map[time.Time]bool, len(occs)+len(event.Overrides))
		instants := make([]time.Time, 0, len(occs)+len(event.Overrides))
		for _, t := range occs {
			if !seen[t] {
				seen[t] = true
				instants = append(instants, t)
			}
		}
		for instant := range event.Overrides {
			if !seen[instant] {
				seen[instant] = true
				instants = append(instants, instant)
			}
		}
		sort.Slice(instants, func(i, j int) bool { return instants[i].Before(instants[j]) })

		for _, inst := range instants {
			ov := event.Overrides[inst]
			ei := instance.Merge(event, ov, inst)
			if !withinBound(ei, q) {
				continue
			}
			if q.Filter != nil && !matchFilter(q.Filter, ei.Indexed, ei.UID) {
				continue
			}
			rows = append(rows, buildRow(ei, q))
		}
	}

	return postProcess(rows, q), nil
}

// EvaluateEvents answers an EVT_QUERY-style request: one row per
// matching event, filtered and ordered against the event's own base
// properties (no override layering, no schedule expansion — EVT_QUERY
// operates at event granularity, EVI_QUERY at occurrence granularity).
func EvaluateEvents(st *store.Store, q *Query) ([]Row, error) {
	uids := candidateEventUIDs(st, q.Filter)

	var rows []Row
	for _, uid := range uids {
		event, ok := st.GetEvent(uid)
		if !ok {
			continue
		}
		if q.Filter != nil && !matchFilter(q.Filter, event.Indexed, uid) {
			continue
		}
		ei := instance.EventInstance{
			UID:          uid,
			RecurrenceID: event.Schedule.DTStart,
			DTStart:      event.Schedule.DTStart,
			DTEnd:        event.Schedule.DTEnd(),
			Duration:     event.Schedule.Duration,
			Indexed:      event.Indexed,
			Passive:      event.Passive,
		}
		if !withinBound(ei, q) {
			continue
		}
		rows = append(rows, buildRow(ei, q))
	}

	return postProcess(rows, q), nil
}

// candidateEventUIDs returns the coarse candidate set (spec §4.8 step
// 1): every event UID when filter is nil, otherwise the index-derived
// union/intersection the filter tree implies.
func candidateEventUIDs(st *store.Store, filter Node) []string {
	if filter == nil {
		return st.ListEventUIDs()
	}
	set := nodeCandidateSet(st, filter)
	out := make([]string, 0, len(set))
	for uid := range set {
		if _, ok := st.GetEvent(uid); ok {
			out = append(out, uid)
		}
	}
	sort.Strings(out)
	return out
}

func nodeCandidateSet(st *store.Store, node Node) map[string]struct{} {
	switch n := node.(type) {
	case *Leaf:
		return leafCandidateSet(st, n)
	case *And:
		var result map[string]struct{}
		for i, c := range n.Children {
			cs := nodeCandidateSet(st, c)
			if i == 0 {
				result = cs
			} else {
				result = intersectSets(result, cs)
			}
		}
		return result
	case *Or:
		result := make(map[string]struct{})
		for _, c := range n.Children {
			for uid := range nodeCandidateSet(st, c) {
				result[uid] = struct{}{}
			}
		}
		return result
	}
	return map[string]struct{}{}
}

func leafCandidateSet(st *store.Store, leaf *Leaf) map[string]struct{} {
	if leaf.Kind == LeafGeo {
		set := make(map[string]struct{})
		for _, hd := range st.Geo().WithinRadius(leaf.Lat, leaf.Lon, leaf.RadiusKM) {
			set[hd.Handle.EventUID] = struct{}{}
		}
		return set
	}
	if leaf.Kind == LeafUID {
		set := make(map[string]struct{}, len(leaf.Values))
		for _, v := range leaf.Values {
			set[v] = struct{}{}
		}
		return set
	}

	var kind index.Kind
	switch leaf.Kind {
	case LeafCategories:
		kind = index.KindCategories
	case LeafLocationType:
		kind = index.KindLocationType
	case LeafClass:
		kind = index.KindClass
	case LeafRelatedTo:
		kind = index.KindRelatedTo
	}

	var combined map[string]struct{}
	for i, v := range leaf.Values {
		term := v
		if leaf.Kind == LeafRelatedTo {
			rt := leaf.RelType
			if rt == "" {
				rt = property.DefaultReltype
			}
			term = rt + "||" + v
		}
		vs := make(map[string]struct{})
		for _, h := range st.Inverted().Lookup(index.TermKey{Kind: kind, Term: term}) {
			vs[h.EventUID] = struct{}{}
		}
		if i == 0 {
			combined = vs
		} else if leaf.ValOp == OpAND {
			combined = intersectSets(combined, vs)
		} else {
			for uid := range vs {
				combined[uid] = struct{}{}
			}
		}
	}
	if combined == nil {
		combined = make(map[string]struct{})
	}
	return combined
}

func intersectSets(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	small, big := a, b
	if len(b) < len(a) {
		small, big = b, a
	}
	for k := range small {
		if _, ok := big[k]; ok {
			out[k] = struct{}{}
		}
	}
	return out
}

// withinBound applies X-FROM/X-UNTIL precisely against the merged
// instance's effective DTSTART or DTEND, per the bound's PROP/OP.
func withinBound(ei instance.EventInstance, q *Query) bool {
	if q.From.Has && !boundHolds(ei, q.From) {
		return false
	}
	if q.Until.Has && !boundHolds(ei, q.Until) {
		return false
	}
	return true
}

func boundHolds(ei instance.EventInstance, b Bound) bool {
	t := ei.DTStart
	if b.Prop == BoundDTEnd {
		t = ei.DTEnd
	}
	switch b.Op {
	case OpGT:
		return t.After(b.Value)
	case OpGTE:
		return !t.Before(b.Value)
	case OpLT:
		return t.Before(b.Value)
	case OpLTE:
		return !t.After(b.Value)
	}
	return true
}

// matchFilter is the precise per-instance verification pass (spec
// §4.8 step 3).
func matchFilter(node Node, idx property.Indexed, uid string) bool {
	switch n := node.(type) {
	case *And:
		for _, c := range n.Children {
			if !matchFilter(c, idx, uid) {
				return false
			}
		}
		return true
	case *Or:
		for _, c := range n.Children {
			if matchFilter(c, idx, uid) {
				return true
			}
		}
		return false
	case *Leaf:
		return matchLeaf(n, idx, uid)
	}
	return true
}

func matchLeaf(l *Leaf, idx property.Indexed, uid string) bool {
	switch l.Kind {
	case LeafCategories:
		return matchSet(l.ValOp, l.Values, func(v string) bool {
			_, ok := idx.Categories[v]
			return ok
		})
	case LeafLocationType:
		return matchSet(l.ValOp, l.Values, func(v string) bool {
			_, ok := idx.LocationType[v]
			return ok
		})
	case LeafClass:
		return matchSet(l.ValOp, l.Values, func(v string) bool {
			return idx.HasClass && idx.Class == v
		})
	case LeafRelatedTo:
		rt := l.RelType
		if rt == "" {
			rt = property.DefaultReltype
		}
		return matchSet(l.ValOp, l.Values, func(v string) bool {
			for _, r := range idx.RelatedTo {
				effRT := r.RelType
				if effRT == "" {
					effRT = property.DefaultReltype
				}
				if effRT == rt && r.Value == v {
					return true
				}
			}
			return false
		})
	case LeafUID:
		for _, v := range l.Values {
			if v == uid {
				return true
			}
		}
		return false
	case LeafGeo:
		if !idx.HasGeo || idx.Geo == nil {
			return false
		}
		return index.HaversineKM(l.Lat, l.Lon, idx.Geo.Lat, idx.Geo.Lon) <= l.RadiusKM
	}
	return false
}

func matchSet(op ValueOp, values []string, present func(string) bool) bool {
	if len(values) == 0 {
		return true
	}
	if op == OpAND {
		for _, v := range values {
			if !present(v) {
				return false
			}
		}
		return true
	}
	for _, v := range values {
		if present(v) {
			return true
		}
	}
	return false
}

func buildRow(ei instance.EventInstance, q *Query) Row {
	row := Row{UID: ei.UID, RecurrenceID: ei.RecurrenceID, DTStart: ei.DTStart, Instance: ei}
	row.Ordering = append(row.Ordering, Projection{Name: "DTSTART", Value: formatInstant(ei.DTStart, q.TZID)})
	if q.OrderBy.Kind != OrderDTStart && ei.Indexed.HasGeo && ei.Indexed.Geo != nil {
		d := index.HaversineKM(q.OrderBy.Lat, q.OrderBy.Lon, ei.Indexed.Geo.Lat, ei.Indexed.Geo.Lon)
		row.HasGeoDist = true
		row.GeoDistKM = d
		row.Ordering = append(row.Ordering, Projection{Name: "X-GEO-DIST", Value: fmt.Sprintf("%.6fKM", d)})
	}
	return row
}

func formatInstant(t time.Time, tzid string) string {
	if tzid == "" || tzid == "UTC" {
		return t.UTC().Format("20060102T150405Z")
	}
	loc, err := time.LoadLocation(tzid)
	if err != nil {
		return t.UTC().Format("20060102T150405Z")
	}
	return t.In(loc).Format("20060102T150405")
}

// postProcess applies ordering, X-DISTINCT, X-OFFSET, and X-LIMIT
// (spec §4.8 steps 4-6).
func postProcess(rows []Row, q *Query) []Row {
	sort.SliceStable(rows, func(i, j int) bool { return less(rows[i], rows[j], q.OrderBy.Kind) })

	if q.Distinct {
		seen := make(map[string]bool, len(rows))
		out := rows[:0:0]
		for _, r := range rows {
			if !seen[r.UID] {
				seen[r.UID] = true
				out = append(out, r)
			}
		}
		rows = out
	}

	if q.Offset > 0 {
		if q.Offset >= len(rows) {
			return nil
		}
		rows = rows[q.Offset:]
	}
	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	return rows
}

func less(a, b Row, kind OrderKind) bool {
	switch kind {
	case OrderDTStartGeoDist:
		if !a.DTStart.Equal(b.DTStart) {
			return a.DTStart.Before(b.DTStart)
		}
		if lt, ok := geoLess(a, b); ok {
			return lt
		}
	case OrderGeoDistDTStart:
		if lt, ok := geoLess(a, b); ok {
			return lt
		}
		if !a.DTStart.Equal(b.DTStart) {
			return a.DTStart.Before(b.DTStart)
		}
	default:
		if !a.DTStart.Equal(b.DTStart) {
			return a.DTStart.Before(b.DTStart)
		}
	}
	if a.UID != b.UID {
		return a.UID < b.UID
	}
	return a.RecurrenceID.Before(b.RecurrenceID)
}

// geoLess reports (lessThan, decisive). Instances lacking GEO sort
// after those with GEO (spec §4.8 step 4).
func geoLess(a, b Row) (bool, bool) {
	if a.HasGeoDist && b.HasGeoDist {
		if a.GeoDistKM == b.GeoDistKM {
			return false, false
		}
		return a.GeoDistKM < b.GeoDistKM, true
	}
	if a.HasGeoDist && !b.HasGeoDist {
		return true, true
	}
	if !a.HasGeoDist && b.HasGeoDist {
		return false, true
	}
	return false, false
}
