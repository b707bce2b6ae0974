package persistbadger

import (
	"context"
	"testing"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/icalstore/rcal/command"
	"github.com/icalstore/rcal/property"
	"github.com/emersion/go-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	opts := badger.DefaultOptions(t.TempDir()).WithLogger(nil)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestStore_SaveThenLoadRoundTrips(t *testing.T) {
	db := openTestDB(t)
	s := New(db, nil)

	eng := command.New("cal1")
	dtstart := time.Date(2024, 3, 4, 17, 0, 0, 0, time.UTC)
	dt := ical.NewProp(property.NameDTStart)
	dt.SetDateTime(dtstart)
	_, err := eng.EvtSet(context.Background(), "E1", []*ical.Prop{dt}, dtstart)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Save(ctx, "cal1", eng))

	loaded, err := s.Load(ctx, "cal1")
	require.NoError(t, err)
	assert.Equal(t, []string{"E1"}, loaded.EvtList())
}

func TestStore_LoadUnknownKeyReturnsErrNotFound(t *testing.T) {
	db := openTestDB(t)
	s := New(db, nil)

	_, err := s.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_DeleteRemovesSavedSnapshot(t *testing.T) {
	db := openTestDB(t)
	s := New(db, nil)
	ctx := context.Background()

	eng := command.New("cal1")
	require.NoError(t, s.Save(ctx, "cal1", eng))

	require.NoError(t, s.Delete(ctx, "cal1"))

	_, err := s.Load(ctx, "cal1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_DeleteAbsentKeyIsNotAnError(t *testing.T) {
	db := openTestDB(t)
	s := New(db, nil)

	err := s.Delete(context.Background(), "never-saved")
	assert.NoError(t, err)
}

func TestStore_ListKeysReturnsAllSaved(t *testing.T) {
	db := openTestDB(t)
	s := New(db, nil)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "cal1", command.New("cal1")))
	require.NoError(t, s.Save(ctx, "cal2", command.New("cal2")))

	keys, err := s.ListKeys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"cal1", "cal2"}, keys)
}
