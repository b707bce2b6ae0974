package property

import (
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatLastModified_AddsXMillisWhenSubSecond(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 250_000_000, time.UTC)
	p := FormatLastModified(ts)
	assert.Equal(t, "20240101T000000Z", p.Value)
	assert.Equal(t, "250", p.Params.Get(ParamXMillis))
}

func TestFormatLastModified_OmitsXMillisWhenWholeSecond(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := FormatLastModified(ts)
	assert.Empty(t, p.Params.Get(ParamXMillis))
}

func TestParseLastModified_RoundTripsWithMillis(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 250_000_000, time.UTC)
	p := FormatLastModified(ts)
	got, err := ParseLastModified(p)
	require.NoError(t, err)
	assert.True(t, ts.Equal(got))
}

func TestParseLastModified_RejectsNonUTCZulu(t *testing.T) {
	p := ical.NewProp(NameLastModified)
	p.Value = "2024-01-01 00:00:00"
	_, err := ParseLastModified(p)
	require.Error(t, err)
}
