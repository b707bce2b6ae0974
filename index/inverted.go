package index

// Inverted is the term -> set-of-(event,occurrence) mapping (spec
// §4.4). Each Add/Remove is O(1); footprint-level diffing (O(number
// of terms) per event/override) happens one call-site up, in store.
type Inverted struct {
	postings map[TermKey]map[Handle]struct{}
}

// NewInverted constructs an empty Inverted index.
func NewInverted() *Inverted {
	return &Inverted{postings: make(map[TermKey]map[Handle]struct{})}
}

// Add inserts handle into tk's posting list.
func (inv *Inverted) Add(tk TermKey, h Handle) {
	set, ok := inv.postings[tk]
	if !ok {
		set = make(map[Handle]struct{})
		inv.postings[tk] = set
	}
	set[h] = struct{}{}
}

// Remove deletes handle from tk's posting list, pruning the list
// itself once empty so calendar-wide index entries only ever point at
// currently existing pairs (spec §3 invariant).
func (inv *Inverted) Remove(tk TermKey, h Handle) {
	set, ok := inv.postings[tk]
	if !ok {
		return
	}
	delete(set, h)
	if len(set) == 0 {
		delete(inv.postings, tk)
	}
}

// Lookup returns the handles currently posted under tk. The returned
// slice is a snapshot copy safe for the caller to hold across further
// index mutations.
func (inv *Inverted) Lookup(tk TermKey) []Handle {
	set, ok := inv.postings[tk]
	if !ok {
		return nil
	}
	out := make([]Handle, 0, len(set))
	for h := range set {
		out = append(out, h)
	}
	return out
}

// Has reports whether handle is currently posted under tk — the
// membership primitive the query evaluator's verification pass and
// spec §8 invariant 1 are phrased in terms of.
func (inv *Inverted) Has(tk TermKey, h Handle) bool {
	set, ok := inv.postings[tk]
	if !ok {
		return false
	}
	_, ok = set[h]
	return ok
}

// Size returns the total number of posted (term, handle) pairs, for
// metrics/diagnostics.
func (inv *Inverted) Size() int {
	n := 0
	for _, set := range inv.postings {
		n += len(set)
	}
	return n
}

// Clear removes every posting (spec §4.6 disable_indexes).
func (inv *Inverted) Clear() {
	inv.postings = make(map[TermKey]map[Handle]struct{})
}
