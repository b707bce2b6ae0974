package command

import (
	"context"
	"fmt"
	"time"

	"github.com/emersion/go-ical"
	"github.com/icalstore/rcal/config"
	"github.com/icalstore/rcal/property"
	"github.com/icalstore/rcal/query"
	"github.com/icalstore/rcal/rcalerr"
	"github.com/icalstore/rcal/store"
)

// notifyTimeLayout mirrors LAST-MODIFIED's wire format for the
// "LAST-MODIFIED:<ts>" suffix spec §6 specifies on evt_set/evo_set
// notifications.
const notifyTimeLayout = "20060102T150405Z"

// Engine is the command surface (spec §6) over one calendar's Store: it
// parses property lines, dispatches to Store, persists via a
// SnapshotCodec, and fires keyspace notifications on every accepted
// mutation. One Engine per calendar key, the same granularity the
// spec's "commands operate against a single calendar key" rule implies.
type Engine struct {
	key           string
	st            *store.Store
	notifier      Notifier
	codec         SnapshotCodec
	deadline      func() time.Time // ICAL_PARSER_TIMEOUT_MS deadline factory
	queryCache    *query.Cache
	queryDefaults query.Defaults // DefaultQueryLimit / DefaultGeoRadiusKM
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithNotifier overrides the default NopNotifier.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithSnapshotCodec overrides the default JSONSnapshotCodec.
func WithSnapshotCodec(c SnapshotCodec) Option {
	return func(e *Engine) { e.codec = c }
}

// WithParserDeadline overrides the parser cooperative-deadline factory,
// called once per query parse to compute "now + ICAL_PARSER_TIMEOUT_MS".
func WithParserDeadline(f func() time.Time) Option {
	return func(e *Engine) { e.deadline = f }
}

// WithConfig wires opts.ICALParserTimeoutMS into the parser deadline
// and opts.DefaultQueryLimit/DefaultGeoRadiusKM into every parsed
// query's X-LIMIT/X-GEO DIST= fallback, the usual way an Engine is
// configured outside of tests.
func WithConfig(opts config.Options) Option {
	timeout := opts.ParserTimeout()
	defaults := query.Defaults{Limit: opts.DefaultQueryLimit, GeoRadiusKM: opts.DefaultGeoRadiusKM}
	return func(e *Engine) {
		e.deadline = func() time.Time { return time.Now().Add(timeout) }
		e.queryDefaults = defaults
	}
}

// WithQueryCache overrides the default query-AST cache (or disables it
// entirely when c is nil), the same knob tests use to force every call
// through a real Parse.
func WithQueryCache(c *query.Cache) Option {
	return func(e *Engine) { e.queryCache = c }
}

// New constructs an Engine for a fresh, empty calendar named key.
func New(key string, opts ...Option) *Engine {
	// A fresh ristretto cache per Engine mirrors the cache's own model
	// of "a few hundred bytes of bookkeeping per key" — cheap enough
	// not to share across calendars, and it saves EviList/EviQuery from
	// re-parsing an identical query string a polling host repeats.
	qc, _ := query.NewCache()
	e := &Engine{
		key:        key,
		st:         store.New(key),
		notifier:   NopNotifier{},
		codec:      JSONSnapshotCodec{},
		deadline:   func() time.Time { return time.Time{} },
		queryCache: qc,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Open constructs an Engine from a previously serialized snapshot
// (spec §6 "cal_set" with a raw calendar blob, and the persistence
// hook's load path).
func Open(key string, snapshot []byte, opts ...Option) (*Engine, error) {
	e := New(key, opts...)
	cal, err := e.codec.Deserialize(snapshot)
	if err != nil {
		return nil, err
	}
	e.st = store.Open(cal)
	return e, nil
}

// Snapshot serializes the engine's calendar for persistence.
func (e *Engine) Snapshot() ([]byte, error) {
	return e.codec.Serialize(e.st.Calendar())
}

// Close releases the engine's query cache. Safe to call on an Engine
// built with WithQueryCache(nil).
func (e *Engine) Close() {
	if e.queryCache != nil {
		e.queryCache.Close()
	}
}

func (e *Engine) notify(ctx context.Context, payload string) {
	// Best-effort: a notification failure never unwinds the mutation
	// that triggered it (command/notifier.go).
	_ = e.notifier.Notify(ctx, e.key, payload)
}

func (e *Engine) parseQuery(raw string) (*query.Query, error) {
	if e.queryCache != nil {
		return e.queryCache.Parse(raw, e.deadline(), e.queryDefaults)
	}
	return query.Parse(raw, e.deadline(), e.queryDefaults)
}

// --- CAL_* ---------------------------------------------------------

// CalSet replaces the engine's calendar wholesale from a serialized
// snapshot (spec §6 "cal_set").
func (e *Engine) CalSet(ctx context.Context, snapshot []byte) error {
	cal, err := e.codec.Deserialize(snapshot)
	if err != nil {
		return err
	}
	cal.UID = e.key
	e.st = store.Open(cal)
	e.notify(ctx, "cal_set")
	return nil
}

// CalGet returns the engine's calendar serialized as a snapshot.
func (e *Engine) CalGet() ([]byte, error) {
	return e.Snapshot()
}

// CalDel discards the engine's calendar, resetting it to empty (spec
// §6 "cal_del").
func (e *Engine) CalDel(ctx context.Context) {
	e.st = store.New(e.key)
	e.notify(ctx, "cal_del")
}

// CalIdxDisable drops the derived indexes (spec §6 "cal_idx_disable").
func (e *Engine) CalIdxDisable(ctx context.Context) {
	e.st.DisableIndexes()
	e.notify(ctx, "cal_idx_disable")
}

// CalIdxRebuild recomputes the derived indexes from scratch (spec §6
// "cal_idx_rebuild").
func (e *Engine) CalIdxRebuild(ctx context.Context) {
	e.st.RebuildIndexes()
	e.notify(ctx, "cal_idx_rebuild")
}

// --- EVT_* -----------------------------------------------------------

// EvtSet upserts an event from its parsed property lines (spec §6
// "evt_set"). accepted is false with a nil error on a LAST-MODIFIED
// regression; the caller should treat that as a silent no-op, not a
// failure.
func (e *Engine) EvtSet(ctx context.Context, uid string, props []*ical.Prop, now time.Time) (accepted bool, err error) {
	const op = "command.Engine.EvtSet"
	parsed, err := property.Parse(props, true)
	if err != nil {
		return false, err
	}
	_, accepted, err = e.st.UpsertEvent(uid, parsed, now)
	if err != nil || !accepted {
		return accepted, err
	}
	event, ok := e.st.GetEvent(uid)
	if !ok {
		return false, rcalerr.Newf(rcalerr.Internal, op, "event %q missing immediately after upsert", uid)
	}
	e.notify(ctx, fmt.Sprintf("evt_set:%s LAST-MODIFIED:%s", uid, event.LastModified.UTC().Format(notifyTimeLayout)))
	return true, nil
}

// EvtGet returns the sorted property-line array for uid, or nil if
// uid does not exist.
func (e *Engine) EvtGet(uid string) []Line {
	event, ok := e.st.GetEvent(uid)
	if !ok {
		return nil
	}
	return EventLines(event)
}

// EvtDel deletes uid and every one of its overrides (spec §6
// "evt_del"). Reports whether uid existed.
func (e *Engine) EvtDel(ctx context.Context, uid string) bool {
	deleted := e.st.DeleteEvent(uid)
	if deleted {
		e.notify(ctx, fmt.Sprintf("evt_del:%s", uid))
	}
	return deleted
}

// EvtList returns every event UID in the calendar, sorted.
func (e *Engine) EvtList() []string {
	uids := e.st.ListEventUIDs()
	sortStrings(uids)
	return uids
}

// EvtPrune deletes every event whose final occurrence falls in
// [from, until) (spec §6 "evt_prune"). Returns the deleted UIDs.
func (e *Engine) EvtPrune(ctx context.Context, from, until time.Time) ([]string, error) {
	pruned, err := e.st.PruneEvents(from, until)
	if err != nil {
		return pruned, err
	}
	for _, uid := range pruned {
		e.notify(ctx, fmt.Sprintf("evt_del:%s", uid))
	}
	return pruned, nil
}

// EvtQuery runs an EVT_QUERY: event-granularity filter/order/paginate,
// returning each matching event's ordering projection alongside its
// full property-line rendering.
func (e *Engine) EvtQuery(raw string) ([]QueryRow, error) {
	q, err := e.parseQuery(raw)
	if err != nil {
		return nil, err
	}
	rows, err := query.EvaluateEvents(e.st, q)
	if err != nil {
		return nil, err
	}
	return renderRows(rows), nil
}

// --- EVO_* -----------------------------------------------------------

// EvoSet upserts the override for uid at instant (spec §6 "evo_set").
func (e *Engine) EvoSet(ctx context.Context, uid string, instant time.Time, props []*ical.Prop, now time.Time) (accepted bool, err error) {
	parsed, err := property.Parse(props, false)
	if err != nil {
		return false, err
	}
	_, accepted, err = e.st.UpsertOverride(uid, instant, parsed, now)
	if err != nil || !accepted {
		return accepted, err
	}
	event, _ := e.st.GetEvent(uid)
	ov := event.Overrides[instant]
	e.notify(ctx, fmt.Sprintf("evo_set:%s:%s LAST-MODIFIED:%s", uid, instant.UTC().Format(notifyTimeLayout), ov.LastModified.UTC().Format(notifyTimeLayout)))
	return true, nil
}

// EvoGet returns the sorted property-line array for uid's override at
// instant, or nil if absent.
func (e *Engine) EvoGet(uid string, instant time.Time) ([]Line, error) {
	event, ok := e.st.GetEvent(uid)
	if !ok {
		return nil, rcalerr.Newf(rcalerr.NotFound, "command.Engine.EvoGet", "no event %q", uid)
	}
	ov, ok := event.Overrides[instant]
	if !ok {
		return nil, nil
	}
	return OverrideLines(ov), nil
}

// EvoDel deletes uid's override at instant (spec §6 "evo_del").
func (e *Engine) EvoDel(ctx context.Context, uid string, instant time.Time) (bool, error) {
	deleted, err := e.st.DeleteOverride(uid, instant)
	if err != nil {
		return false, err
	}
	if deleted {
		e.notify(ctx, fmt.Sprintf("evo_del:%s:%s", uid, instant.UTC().Format(notifyTimeLayout)))
	}
	return deleted, nil
}

// EvoList returns every override instant for uid, sorted.
func (e *Engine) EvoList(uid string) ([]time.Time, error) {
	event, ok := e.st.GetEvent(uid)
	if !ok {
		return nil, rcalerr.Newf(rcalerr.NotFound, "command.Engine.EvoList", "no event %q", uid)
	}
	out := make([]time.Time, 0, len(event.Overrides))
	for instant := range event.Overrides {
		out = append(out, instant)
	}
	sortTimes(out)
	return out, nil
}

// EvoPrune deletes overrides whose instant falls in [from, until),
// optionally scoped to a single event UID (spec §6 "evo_prune").
// Returns the number deleted, notifying evo_del once per deletion (the
// same notification EvoDel fires).
func (e *Engine) EvoPrune(ctx context.Context, uidFilter string, from, until time.Time) (int, error) {
	pruned, err := e.st.PruneOverrides(uidFilter, from, until)
	if err != nil {
		return 0, err
	}
	for _, p := range pruned {
		e.notify(ctx, fmt.Sprintf("evo_del:%s:%s", p.EventUID, p.Instant.UTC().Format(notifyTimeLayout)))
	}
	return len(pruned), nil
}

// --- EVI_* -----------------------------------------------------------

// QueryRow is one EVT_QUERY/EVI_QUERY result row: the ordering-key
// projection plus the full materialized property-line rendering (spec
// §4.8 step 7, §6).
type QueryRow struct {
	Ordering []Projection
	Props    []Line
}

// Projection mirrors query.Projection for the command-layer result
// shape.
type Projection struct {
	Name  string
	Value string
}

func renderRows(rows []query.Row) []QueryRow {
	out := make([]QueryRow, 0, len(rows))
	for _, r := range rows {
		qr := QueryRow{Props: InstanceLines(r.Instance)}
		for _, p := range r.Ordering {
			qr.Ordering = append(qr.Ordering, Projection{Name: p.Name, Value: p.Value})
		}
		out = append(out, qr)
	}
	return out
}

// EviList materializes every occurrence instant for uid within the
// query's X-FROM/X-UNTIL window (EVI_LIST is EVI_QUERY restricted to a
// single event and no filter tree).
func (e *Engine) EviList(uid string, raw string) ([]QueryRow, error) {
	q, err := e.parseQuery(raw)
	if err != nil {
		return nil, err
	}
	q.Filter = restrictToUID(uid)
	rows, err := query.EvaluateInstances(e.st, q)
	if err != nil {
		return nil, err
	}
	return renderRows(rows), nil
}

// EviQuery runs the full EVI_QUERY algorithm: candidate generation,
// schedule expansion, override merge, precise filtering, ordering,
// distinct, and pagination (spec §4.8).
func (e *Engine) EviQuery(raw string) ([]QueryRow, error) {
	q, err := e.parseQuery(raw)
	if err != nil {
		return nil, err
	}
	rows, err := query.EvaluateInstances(e.st, q)
	if err != nil {
		return nil, err
	}
	return renderRows(rows), nil
}

// restrictToUID builds a single-UID filter leaf, letting EviList reuse
// the full EvaluateInstances pipeline instead of duplicating it.
func restrictToUID(uid string) *query.Leaf {
	return &query.Leaf{Kind: query.LeafUID, Values: []string{uid}}
}
