package rcalerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIs_MatchesWrappedKind(t *testing.T) {
	err := New(NotFound, "store.GetEvent", errors.New("no such event"))
	assert.True(t, Is(err, NotFound))
	assert.False(t, Is(err, Validation))
}

func TestIs_FalseForPlainError(t *testing.T) {
	assert.False(t, Is(errors.New("plain"), Internal))
}

func TestError_MessageIncludesOpAndKind(t *testing.T) {
	err := New(Parse, "query.Parse", errors.New("unexpected token"))
	assert.Equal(t, "rcal: query.Parse: Parse: unexpected token", err.Error())
}

func TestError_MessageOmitsCauseWhenNil(t *testing.T) {
	err := New(Internal, "store.rebuildLocked", nil)
	assert.Equal(t, "rcal: store.rebuildLocked: Internal", err.Error())
}

func TestNewf_FormatsCause(t *testing.T) {
	err := Newf(Validation, "model.NewEvent", "uid %q already exists", "E1")
	assert.Equal(t, `rcal: model.NewEvent: Validation: uid "E1" already exists`, err.Error())
}

func TestUnwrap_ExposesWrappedError(t *testing.T) {
	cause := errors.New("root cause")
	err := New(Internal, "op", cause)
	assert.ErrorIs(t, err, cause)
}

func TestKind_StringRoundTrip(t *testing.T) {
	cases := map[Kind]string{
		Parse:              "Parse",
		ParseTimeout:       "ParseTimeout",
		Validation:         "Validation",
		NotFound:           "NotFound",
		UnboundedExpansion: "UnboundedExpansion",
		Internal:           "Internal",
		Kind(99):           "Unknown",
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.String())
	}
}
