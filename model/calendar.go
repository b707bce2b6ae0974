package model

// Calendar is a keyed container of events (spec §3). Index
// maintenance is owned by package store; Calendar itself is a plain
// data holder so model has no dependency on index.
type Calendar struct {
	UID            string
	Events         map[string]*Event
	IndexesEnabled bool
}

// NewCalendar constructs an empty Calendar with indexing enabled.
func NewCalendar(uid string) *Calendar {
	return &Calendar{
		UID:            uid,
		Events:         make(map[string]*Event),
		IndexesEnabled: true,
	}
}
