// Package index implements the inverted index (C4) and geospatial
// index (C5): the calendar-wide and event-scoped structures that let
// the query evaluator (package query) answer boolean and distance
// filters without scanning every occurrence (spec §4.4, §4.5).
package index

import "time"

// Scope encodes whether a posting entry was contributed by the base
// event or by a specific override (spec §9 "index scope encoding": "a
// sentinel instant or a two-variant tag" — this package uses the
// latter, an explicit tag, to avoid any ambiguity with a real
// occurrence instant that happens to collide with a sentinel value).
type Scope struct {
	IsBase  bool
	Instant time.Time // meaningful only when !IsBase
}

// Base is the scope meaning "applies to every occurrence of this
// event except those overridden for this term" (spec §4.4).
func Base() Scope { return Scope{IsBase: true} }

// AtInstant is the scope meaning "asserted by the override at this
// exact occurrence instant".
func AtInstant(t time.Time) Scope { return Scope{IsBase: false, Instant: t.UTC()} }

// Handle identifies one posting-list member: an (event, scope) pair
// (spec §9: "indexes hold (event_uid, instant) handles rather than
// pointers so edits can safely remove entries").
type Handle struct {
	EventUID string
	Scope    Scope
}
