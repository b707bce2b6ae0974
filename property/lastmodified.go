package property

import (
	"strconv"
	"time"

	"github.com/emersion/go-ical"
	"github.com/icalstore/rcal/rcalerr"
)

const lastModifiedLayout = "20060102T150405Z"

// ParseLastModified parses a LAST-MODIFIED property, which spec §4.1
// requires to be in UTC zulu form, optionally refined to millisecond
// precision by the X-MILLIS parameter.
func ParseLastModified(p *ical.Prop) (time.Time, error) {
	t, err := time.ParseInLocation(lastModifiedLayout, p.Value, time.UTC)
	if err != nil {
		return time.Time{}, newErr(rcalerr.Parse, "property.ParseLastModified", "LAST-MODIFIED must be UTC zulu: %v", err)
	}
	if ms := p.Params.Get(ParamXMillis); ms != "" {
		millis, merr := strconv.Atoi(ms)
		if merr != nil {
			return time.Time{}, newErr(rcalerr.Parse, "property.ParseLastModified", "invalid X-MILLIS: %v", merr)
		}
		t = t.Add(time.Duration(millis) * time.Millisecond)
	}
	return t, nil
}

// FormatLastModified renders a LAST-MODIFIED property, including an
// X-MILLIS parameter when the instant carries sub-second precision.
func FormatLastModified(t time.Time) *ical.Prop {
	p := ical.NewProp(NameLastModified)
	p.Value = t.UTC().Truncate(time.Second).Format(lastModifiedLayout)
	if ms := t.Nanosecond() / int(time.Millisecond); ms != 0 {
		p.Params.Set(ParamXMillis, strconv.Itoa(ms))
	}
	return p
}
