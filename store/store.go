// Package store implements the calendar store (C6): the in-memory
// owner of one Calendar's events and overrides, responsible for
// keeping the inverted index (C4) and geospatial index (C5) in sync
// with every mutation via footprint diffing (spec §4.6).
//
// Store does not parse iCalendar property lines itself — callers
// (package command) run property.Parse first and hand Store the
// resulting *property.ParsedProps, the same separation the teacher
// draws between webdav.go's request decoding and caldav's Backend
// interface.
package store

import (
	"sync"
	"time"

	"github.com/icalstore/rcal/index"
	"github.com/icalstore/rcal/model"
	"github.com/icalstore/rcal/property"
	"github.com/icalstore/rcal/rcalerr"
	"github.com/icalstore/rcal/recur"
)

// Store owns one Calendar plus its derived indexes. All exported
// methods are safe for concurrent use; the host key-value layer is
// still expected to serialize commands against the same calendar key
// (spec §5), but Store's own bookkeeping never assumes that.
type Store struct {
	mu  sync.Mutex
	cal *model.Calendar
	inv *index.Inverted
	geo *index.GeoIndex
}

// New constructs an empty Store for a new calendar.
func New(calendarUID string) *Store {
	s := &Store{
		cal: model.NewCalendar(calendarUID),
		inv: index.NewInverted(),
		geo: index.NewGeoIndex(),
	}
	s.reportSizes()
	return s
}

// Open wraps an already-populated Calendar (e.g. deserialized from a
// snapshot) and rebuilds its derived indexes, unless the calendar was
// snapshotted with indexing disabled (spec §6 "implicit rebuild on
// deserialize unless indexes_enabled=false").
func Open(cal *model.Calendar) *Store {
	s := &Store{cal: cal, inv: index.NewInverted(), geo: index.NewGeoIndex()}
	if cal.IndexesEnabled {
		s.rebuildLocked()
	}
	s.reportSizes()
	return s
}

// Calendar returns the underlying Calendar. Callers must not mutate it
// directly; go through Store's methods so indexes stay coherent.
func (s *Store) Calendar() *model.Calendar {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cal
}

// Inverted exposes the inverted index for the query evaluator.
func (s *Store) Inverted() *index.Inverted {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inv
}

// Geo exposes the geospatial index for the query evaluator.
func (s *Store) Geo() *index.GeoIndex {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.geo
}

// GetEvent returns the event with uid, if any.
func (s *Store) GetEvent(uid string) (*model.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.cal.Events[uid]
	return e, ok
}

// ListEventUIDs returns every event UID currently in the calendar, in
// no particular order; callers needing deterministic order sort it.
func (s *Store) ListEventUIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.cal.Events))
	for uid := range s.cal.Events {
		out = append(out, uid)
	}
	return out
}

// UpsertEvent creates uid if absent, or applies parsed as an update if
// present (spec §4.6 "upsert_event"). accepted is false, with a nil
// error, when an existing event refuses the write because parsed's
// LAST-MODIFIED regresses (spec §3, §7) — a no-op, not a failure.
func (s *Store) UpsertEvent(uid string, parsed *property.ParsedProps, now time.Time) (created, accepted bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.cal.Events[uid]
	var prev index.Footprint
	if exists {
		prev = index.ComputeFootprint(uid, existing.Indexed, true)
		accepted, err = existing.ApplyUpdate(parsed, now)
		if err != nil || !accepted {
			return false, accepted, err
		}
		next := index.ComputeFootprint(uid, existing.Indexed, true)
		s.applyDiff(index.Handle{EventUID: uid, Scope: index.Base()}, prev, next)
		s.reportSizes()
		return false, true, nil
	}

	event, err := model.NewEvent(uid, parsed, now)
	if err != nil {
		return false, false, err
	}
	s.cal.Events[uid] = event
	next := index.ComputeFootprint(uid, event.Indexed, true)
	s.applyDiff(index.Handle{EventUID: uid, Scope: index.Base()}, index.Footprint{}, next)
	s.reportSizes()
	return true, true, nil
}

// DeleteEvent removes uid and every one of its overrides, retracting
// all of their index entries. Reports whether uid existed.
func (s *Store) DeleteEvent(uid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.cal.Events[uid]
	if !ok {
		return false
	}
	baseFP := index.ComputeFootprint(uid, event.Indexed, true)
	s.applyDiff(index.Handle{EventUID: uid, Scope: index.Base()}, baseFP, index.Footprint{})
	for instant, ov := range event.Overrides {
		ovFP := index.ComputeFootprint(uid, ov.Indexed, false)
		s.applyDiff(index.Handle{EventUID: uid, Scope: index.AtInstant(instant)}, ovFP, index.Footprint{})
	}
	delete(s.cal.Events, uid)
	s.reportSizes()
	return true
}

// UpsertOverride creates or replaces the override for uid at instant
// (spec §4.6 "upsert_override"). Returns rcalerr.NotFound if uid does
// not exist. accepted is false, nil error, on a LAST-MODIFIED
// regression, the same no-op-refusal policy as UpsertEvent.
func (s *Store) UpsertOverride(uid string, instant time.Time, parsed *property.ParsedProps, now time.Time) (created, accepted bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.cal.Events[uid]
	if !ok {
		return false, false, rcalerr.Newf(rcalerr.NotFound, "store.UpsertOverride", "no event %q", uid)
	}

	newOv, err := model.NewOverride(uid, instant, parsed, now)
	if err != nil {
		return false, false, err
	}

	existing, exists := event.Overrides[instant]
	if exists && newOv.LastModified.Before(existing.LastModified) {
		return false, false, nil
	}

	var prev index.Footprint
	if exists {
		prev = index.ComputeFootprint(uid, existing.Indexed, false)
	}
	event.Overrides[instant] = newOv
	next := index.ComputeFootprint(uid, newOv.Indexed, false)
	s.applyDiff(index.Handle{EventUID: uid, Scope: index.AtInstant(instant)}, prev, next)
	s.reportSizes()
	return !exists, true, nil
}

// DeleteOverride removes the override for uid at instant, if any.
func (s *Store) DeleteOverride(uid string, instant time.Time) (deleted bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.cal.Events[uid]
	if !ok {
		return false, rcalerr.Newf(rcalerr.NotFound, "store.DeleteOverride", "no event %q", uid)
	}
	ov, ok := event.Overrides[instant]
	if !ok {
		return false, nil
	}
	fp := index.ComputeFootprint(uid, ov.Indexed, false)
	s.applyDiff(index.Handle{EventUID: uid, Scope: index.AtInstant(instant)}, fp, index.Footprint{})
	delete(event.Overrides, instant)
	s.reportSizes()
	return true, nil
}

// PruneEvents deletes every event whose final occurrence instant falls
// in [from, until) (spec §9 Open Question, resolved in DESIGN.md:
// EVT_PRUNE bounds apply to an event's final/maximum occurrence, not
// its DTSTART). Events with no final occurrence — an unbounded
// recurrence with no COUNT/UNTIL — have no final instant to test
// against and are never pruned. Returns the UIDs deleted.
func (s *Store) PruneEvents(from, until time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pruned []string
	for uid, event := range s.cal.Events {
		last, ok, err := finalOccurrence(event.Schedule)
		if err != nil {
			return pruned, err
		}
		if !ok {
			continue
		}
		if !last.Before(from) && last.Before(until) {
			pruned = append(pruned, uid)
		}
	}
	for _, uid := range pruned {
		s.deleteEventLocked(uid)
	}
	if len(pruned) > 0 {
		s.reportSizes()
	}
	return pruned, nil
}

// PrunedOverride identifies one override deleted by PruneOverrides.
type PrunedOverride struct {
	EventUID string
	Instant  time.Time
}

// PruneOverrides deletes overrides whose instant falls in [from, until),
// optionally scoped to a single event UID (spec §4.6 "prune_overrides").
// Returns every override deleted.
func (s *Store) PruneOverrides(uidFilter string, from, until time.Time) ([]PrunedOverride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var events map[string]*model.Event
	if uidFilter != "" {
		event, ok := s.cal.Events[uidFilter]
		if !ok {
			return nil, rcalerr.Newf(rcalerr.NotFound, "store.PruneOverrides", "no event %q", uidFilter)
		}
		events = map[string]*model.Event{uidFilter: event}
	} else {
		events = s.cal.Events
	}

	var pruned []PrunedOverride
	for uid, event := range events {
		var doomed []time.Time
		for instant := range event.Overrides {
			if !instant.Before(from) && instant.Before(until) {
				doomed = append(doomed, instant)
			}
		}
		for _, instant := range doomed {
			ov := event.Overrides[instant]
			fp := index.ComputeFootprint(uid, ov.Indexed, false)
			s.applyDiff(index.Handle{EventUID: uid, Scope: index.AtInstant(instant)}, fp, index.Footprint{})
			delete(event.Overrides, instant)
			pruned = append(pruned, PrunedOverride{EventUID: uid, Instant: instant})
		}
	}
	if len(pruned) > 0 {
		s.reportSizes()
	}
	return pruned, nil
}

// DisableIndexes drops the inverted and geospatial indexes entirely
// (spec §4.6 "disable_indexes"). Queries that need them will have
// nothing to intersect against until RebuildIndexes runs.
func (s *Store) DisableIndexes() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cal.IndexesEnabled = false
	s.inv.Clear()
	s.geo.Clear()
	s.reportSizes()
}

// RebuildIndexes recomputes both indexes from scratch by scanning
// every event and override (spec §4.6 "rebuild_indexes").
func (s *Store) RebuildIndexes() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rebuildLocked()
	s.reportSizes()
}

func (s *Store) rebuildLocked() {
	s.inv.Clear()
	s.geo.Clear()
	s.cal.IndexesEnabled = true
	for uid, event := range s.cal.Events {
		fp := index.ComputeFootprint(uid, event.Indexed, true)
		s.applyDiff(index.Handle{EventUID: uid, Scope: index.Base()}, index.Footprint{}, fp)
		for instant, ov := range event.Overrides {
			ovFP := index.ComputeFootprint(uid, ov.Indexed, false)
			s.applyDiff(index.Handle{EventUID: uid, Scope: index.AtInstant(instant)}, index.Footprint{}, ovFP)
		}
	}
}

func (s *Store) deleteEventLocked(uid string) {
	event, ok := s.cal.Events[uid]
	if !ok {
		return
	}
	baseFP := index.ComputeFootprint(uid, event.Indexed, true)
	s.applyDiff(index.Handle{EventUID: uid, Scope: index.Base()}, baseFP, index.Footprint{})
	for instant, ov := range event.Overrides {
		ovFP := index.ComputeFootprint(uid, ov.Indexed, false)
		s.applyDiff(index.Handle{EventUID: uid, Scope: index.AtInstant(instant)}, ovFP, index.Footprint{})
	}
	delete(s.cal.Events, uid)
}

// applyDiff applies prev->next's symmetric-difference diff to the
// inverted and geo indexes for handle. A no-op when indexing is
// disabled: disable_indexes/rebuild_indexes are the only paths that
// touch the indexes in that state (spec §4.6).
func (s *Store) applyDiff(h index.Handle, prev, next index.Footprint) {
	if !s.cal.IndexesEnabled {
		return
	}
	d := index.DiffFootprints(prev, next)
	for _, tk := range d.Add {
		s.inv.Add(tk, h)
	}
	for _, tk := range d.Remove {
		s.inv.Remove(tk, h)
	}
	if d.GeoChanged {
		if d.NewGeo != nil {
			s.geo.Insert(h, d.NewGeo.Lat, d.NewGeo.Lon)
		} else {
			s.geo.Remove(h)
		}
	}
}

// finalOccurrence returns an intrinsically bounded schedule's last
// occurrence instant. ok is false for an unbounded schedule — it has
// no final instant to report, not an error.
func finalOccurrence(sched property.Schedule) (time.Time, bool, error) {
	exp, err := recur.New(sched, recur.Bound{})
	if err != nil {
		if rcalerr.Is(err, rcalerr.UnboundedExpansion) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	occs, err := recur.Collect(exp)
	if err != nil {
		return time.Time{}, false, err
	}
	if len(occs) == 0 {
		return time.Time{}, false, nil
	}
	return occs[len(occs)-1], true, nil
}
