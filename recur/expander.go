// Package recur implements the schedule expander (C2): it turns a
// property.Schedule into a lazy, monotonically increasing sequence of
// occurrence start instants in UTC, the way spec §4.2 requires.
//
// Recurrence arithmetic itself is delegated to
// github.com/teambition/rrule-go (rrule.Set), the library the teacher
// (emersion/go-webdav) already depends on and the one
// sonroyaalmerol-ldap-dav/pkg/ical/recurrence.go and
// stevegt-timectl/rrule.go build the identical RRULE/EXRULE/RDATE/
// EXDATE union-minus-difference on top of. This package adds the
// pull-based, windowed enumeration spec §4.2/§9 call for: rrule-go's
// Set.Between is eager over a window, so unbounded schedules are
// walked one window at a time rather than materialized in full.
package recur

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/icalstore/rcal/property"
	"github.com/icalstore/rcal/rcalerr"
	"github.com/teambition/rrule-go"
)

// defaultWindow is the chunk size used to walk an open-ended rule set
// one slice at a time rather than materializing it all at once.
const defaultWindow = 366 * 24 * time.Hour

// maxWindows bounds how many windows Next will scan looking for the
// next occurrence before giving up with an Internal error — a guard
// against a pathological rule set that is technically bounded but
// sparse beyond any reasonable host patience (e.g. BYSETPOS picking
// one day a century).
const maxWindows = 10000

// Bound restricts enumeration (spec §4.2: "bounded enumeration (first
// N, or within [from, until])"). A zero Until means "no caller-supplied
// upper bound"; a zero MaxCount means "no caller-supplied count cap".
type Bound struct {
	From     time.Time
	Until    time.Time
	MaxCount int
}

// Expander is a pull-based, monotonically increasing sequence of
// occurrence instants (spec §9: "pull-based lazy sequence (next() ->
// Option<instant>) so callers can bound work").
type Expander struct {
	set   *rrule.Set
	bound Bound

	windowStart time.Time
	buffer      []time.Time
	bufIdx      int
	emitted     int
	lastEmitted time.Time
	hasEmitted  bool
	windowsScanned int
	done        bool

	// pendingDTStart holds sched.DTStart when RFC 5545 requires it to
	// be emitted as the first occurrence regardless of whether it
	// satisfies the RRULE's BYxxx filters (rrule-go, like
	// python-dateutil, only emits DTSTART when the rule matches it).
	pendingDTStart    time.Time
	hasPendingDTStart bool
}

// New builds an Expander over sched, restricted by bound. If the
// schedule has no RRULE at all, or every RRULE carries its own
// COUNT/UNTIL, the schedule is intrinsically bounded and enumeration
// proceeds even with a zero-valued bound. Otherwise, a caller must
// supply bound.Until or bound.MaxCount; failing to do so is
// rcalerr.UnboundedExpansion (spec §4.2: "Producing an unbounded
// cartesian with an unbounded query fails with UnboundedExpansion").
func New(sched property.Schedule, bound Bound) (*Expander, error) {
	dtstart := sched.DTStart.UTC()

	// DTSTART always counts as the first occurrence of the recurrence
	// set (RFC 5545 §3.8.5.3), even when it falls outside the RRULE's
	// own BYxxx filters. Inject it unless the caller's own [From,
	// Until) bound excludes it, or an EXRULE/EXDATE excludes it.
	inject := !bound.From.After(dtstart) && (bound.Until.IsZero() || dtstart.Before(bound.Until))
	if inject {
		excluded, err := dtstartExcluded(sched)
		if err != nil {
			return nil, err
		}
		inject = !excluded
	}

	// When DTSTART is injected ahead of the rule's own occurrences, it
	// counts toward that RRULE's COUNT=, so the rule itself must
	// produce one fewer occurrence.
	lines := buildLines(sched, inject)
	set, err := rrule.StrSliceToRRuleSet(lines)
	if err != nil {
		return nil, rcalerr.Newf(rcalerr.Parse, "recur.New", "invalid recurrence rule: %v", err)
	}
	set.DTStart(dtstart)

	if !IntrinsicallyBounded(sched) && bound.Until.IsZero() && bound.MaxCount <= 0 {
		return nil, rcalerr.Newf(rcalerr.UnboundedExpansion, "recur.New", "unbounded schedule requires X-UNTIL, X-LIMIT, or a caller bound")
	}

	start := dtstart
	if bound.From.After(start) {
		start = bound.From
	}

	e := &Expander{
		set:         set,
		bound:       bound,
		windowStart: start,
	}
	if inject {
		e.pendingDTStart = dtstart
		e.hasPendingDTStart = true
	}

	return e, nil
}

// dtstartExcluded reports whether sched's DTSTART is itself excluded by
// an EXDATE (exact match) or an EXRULE (matches one of its occurrences
// at that exact instant).
func dtstartExcluded(sched property.Schedule) (bool, error) {
	dtstart := sched.DTStart.UTC()
	for _, d := range sched.ExDates {
		if d.UTC().Equal(dtstart) {
			return true, nil
		}
	}
	if len(sched.ExRules) == 0 {
		return false, nil
	}
	lines := []string{"DTSTART:" + dtstart.Format("20060102T150405Z")}
	for _, r := range sched.ExRules {
		lines = append(lines, "RRULE:"+r)
	}
	set, err := rrule.StrSliceToRRuleSet(lines)
	if err != nil {
		return false, rcalerr.Newf(rcalerr.Parse, "recur.New", "invalid EXRULE: %v", err)
	}
	for _, o := range set.Between(dtstart, dtstart.Add(time.Second), true) {
		if o.Equal(dtstart) {
			return true, nil
		}
	}
	return false, nil
}

// IntrinsicallyBounded reports whether the schedule terminates on its
// own (no RRULE, or every RRULE carries COUNT= or UNTIL=), i.e.
// whether it can be fully enumerated without a caller-supplied bound.
func IntrinsicallyBounded(sched property.Schedule) bool {
	if len(sched.RRules) == 0 {
		return true
	}
	for _, r := range sched.RRules {
		upper := strings.ToUpper(r)
		if !strings.Contains(upper, "COUNT=") && !strings.Contains(upper, "UNTIL=") {
			return false
		}
	}
	return true
}

// buildLines renders sched into rrule-go's RFC 5545 line format.
// When decrementForDTStart is true, an injected DTSTART occurrence is
// about to be prepended ahead of these rules, so any explicit COUNT=
// on an RRULE is reduced by one to keep the total occurrence count
// correct; a rule whose COUNT would drop to zero contributes nothing
// beyond the injected DTSTART and is dropped entirely.
func buildLines(sched property.Schedule, decrementForDTStart bool) []string {
	lines := []string{"DTSTART:" + sched.DTStart.UTC().Format("20060102T150405Z")}
	for _, r := range sched.RRules {
		if decrementForDTStart {
			adjusted, drop := decrementRuleCount(r)
			if drop {
				continue
			}
			r = adjusted
		}
		lines = append(lines, "RRULE:"+r)
	}
	for _, r := range sched.ExRules {
		lines = append(lines, "EXRULE:"+r)
	}
	for _, d := range sched.RDates {
		lines = append(lines, "RDATE:"+d.UTC().Format("20060102T150405Z"))
	}
	for _, d := range sched.ExDates {
		lines = append(lines, "EXDATE:"+d.UTC().Format("20060102T150405Z"))
	}
	return lines
}

// decrementRuleCount reduces an explicit COUNT=N in rule by one. drop
// reports that N was 1 (or the rule is otherwise exhausted by the
// injected DTSTART alone), meaning the caller should omit the rule.
// If rule carries no COUNT=, it is returned unchanged.
func decrementRuleCount(rule string) (adjusted string, drop bool) {
	parts := strings.Split(rule, ";")
	for i, p := range parts {
		if !strings.HasPrefix(strings.ToUpper(p), "COUNT=") {
			continue
		}
		n, err := strconv.Atoi(p[len("COUNT="):])
		if err != nil {
			return rule, false
		}
		if n <= 1 {
			return "", true
		}
		parts[i] = "COUNT=" + strconv.Itoa(n-1)
		return strings.Join(parts, ";"), false
	}
	return rule, false
}

// Next returns the next occurrence instant, or ok=false once the
// schedule (or the bound) is exhausted.
func (e *Expander) Next() (time.Time, bool, error) {
	if e.done {
		return time.Time{}, false, nil
	}
	if e.bound.MaxCount > 0 && e.emitted >= e.bound.MaxCount {
		e.done = true
		return time.Time{}, false, nil
	}

	if e.hasPendingDTStart {
		e.hasPendingDTStart = false
		t := e.pendingDTStart
		e.emitted++
		e.lastEmitted = t
		e.hasEmitted = true
		return t, true, nil
	}

	for e.bufIdx >= len(e.buffer) {
		if !e.bound.Until.IsZero() && !e.windowStart.Before(e.bound.Until) {
			e.done = true
			return time.Time{}, false, nil
		}
		if e.windowsScanned >= maxWindows {
			e.done = true
			return time.Time{}, false, rcalerr.Newf(rcalerr.Internal, "recur.Expander.Next", "exceeded %d windows scanning for next occurrence", maxWindows)
		}
		e.windowsScanned++

		windowEnd := e.windowStart.Add(defaultWindow)
		if !e.bound.Until.IsZero() && windowEnd.After(e.bound.Until) {
			windowEnd = e.bound.Until
		}

		occs := e.set.Between(e.windowStart, windowEnd, true)
		e.buffer = e.buffer[:0]
		for _, t := range occs {
			if e.hasEmitted && !t.After(e.lastEmitted) {
				continue
			}
			if !e.bound.Until.IsZero() && !t.Before(e.bound.Until) {
				continue
			}
			e.buffer = append(e.buffer, t)
		}
		e.bufIdx = 0
		e.windowStart = windowEnd.Add(time.Nanosecond)

		if len(e.buffer) == 0 && !e.bound.Until.IsZero() && !windowEnd.Before(e.bound.Until) {
			e.done = true
			return time.Time{}, false, nil
		}
	}

	t := e.buffer[e.bufIdx]
	e.bufIdx++
	e.emitted++
	e.lastEmitted = t
	e.hasEmitted = true
	return t, true, nil
}

// Collect drains the expander into a slice, up to bound.MaxCount
// occurrences (or until exhausted). Intended for tests and small,
// known-bounded enumerations (e.g. EVI_LIST); evaluator code should
// prefer Next directly to avoid materializing large result sets.
func Collect(e *Expander) ([]time.Time, error) {
	var out []time.Time
	for {
		t, ok, err := e.Next()
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, t)
	}
}

// String implements fmt.Stringer for debugging.
func (e *Expander) String() string {
	return fmt.Sprintf("recur.Expander{emitted=%d, windowStart=%s}", e.emitted, e.windowStart)
}
