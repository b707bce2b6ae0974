package index

import (
	"testing"
	"time"
)

func mustInstant(t *testing.T, s string) time.Time {
	t.Helper()
	tm, err := time.Parse("20060102T150405Z", s)
	if err != nil {
		t.Fatalf("parse instant %q: %v", s, err)
	}
	return tm
}
