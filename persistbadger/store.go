// Package persistbadger is the reference persistence hook for the
// engine's snapshot codec (spec §6, "persistence hooks" explicitly
// named as a host concern the core exposes an interface for but does
// not implement itself). It stores one serialized calendar snapshot
// per calendar key in a BadgerDB instance, the same key-prefix +
// Txn.Update/View pattern cartographus's BadgerSessionStore uses for
// its own durable state.
package persistbadger

import (
	"context"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/icalstore/rcal/command"
)

const calendarKeyPrefix = "rcal:cal:"

// ErrNotFound is returned by Load when key has never been saved.
var ErrNotFound = errors.New("persistbadger: calendar not found")

// Store persists calendar snapshots to a BadgerDB instance.
type Store struct {
	db    *badger.DB
	codec command.SnapshotCodec
}

// New wraps an already-opened *badger.DB. codec defaults to
// command.JSONSnapshotCodec{} when nil.
func New(db *badger.DB, codec command.SnapshotCodec) *Store {
	if codec == nil {
		codec = command.JSONSnapshotCodec{}
	}
	return &Store{db: db, codec: codec}
}

func dbKey(calendarKey string) []byte {
	return []byte(calendarKeyPrefix + calendarKey)
}

// Save serializes eng's calendar and writes it under calendarKey.
func (s *Store) Save(ctx context.Context, calendarKey string, eng *command.Engine) error {
	data, err := eng.Snapshot()
	if err != nil {
		return fmt.Errorf("persistbadger: snapshot: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(dbKey(calendarKey), data)
	})
}

// Load reads and deserializes the snapshot for calendarKey into a
// fresh Engine, applying opts. Returns ErrNotFound if calendarKey was
// never saved.
func (s *Store) Load(ctx context.Context, calendarKey string, opts ...command.Option) (*command.Engine, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(dbKey(calendarKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			data = append([]byte(nil), val...)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return command.Open(calendarKey, data, opts...)
}

// Delete removes calendarKey's saved snapshot, if any.
func (s *Store) Delete(ctx context.Context, calendarKey string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(dbKey(calendarKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// ListKeys returns every calendar key currently saved.
func (s *Store) ListKeys(ctx context.Context) ([]string, error) {
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(calendarKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			k := it.Item().KeyCopy(nil)
			keys = append(keys, string(k[len(calendarKeyPrefix):]))
		}
		return nil
	})
	return keys, err
}
