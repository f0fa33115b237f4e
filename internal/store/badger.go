// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ManuGH/jfplay/internal/domain/playback/model"
	"github.com/dgraph-io/badger/v4"
)

// BadgerStore keeps JSON records in an embedded Badger database.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens (or creates) the database at dir.
func NewBadgerStore(dir string) (*BadgerStore, error) {
	return openBadger(badger.DefaultOptions(dir).WithLogger(nil))
}

func openBadger(opts badger.Options) (*BadgerStore, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) get(key string, out any) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *BadgerStore) put(key string, v any) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), buf)
	})
}

func (s *BadgerStore) GetItemPlayback(_ context.Context, userID, itemID string) (*model.ItemPlayback, error) {
	var rec itemRecord
	found, err := s.get(itemKey(userID, itemID), &rec)
	if err != nil || !found {
		return nil, err
	}
	return rec.model()
}

func (s *BadgerStore) SaveItemPlayback(_ context.Context, p *model.ItemPlayback) error {
	if err := validateItem(p); err != nil {
		return err
	}
	return s.put(itemKey(p.UserID, p.ItemID), toItemRecord(p))
}

func (s *BadgerStore) DeleteItemPlayback(_ context.Context, userID, itemID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(itemKey(userID, itemID)))
	})
}

func (s *BadgerStore) GetLanguageChoice(_ context.Context, userID, seriesID string) (*model.PlaybackLanguageChoice, error) {
	var rec languageRecord
	found, err := s.get(seriesKey(userID, seriesID), &rec)
	if err != nil || !found {
		return nil, err
	}
	return rec.model(), nil
}

func (s *BadgerStore) SaveLanguageChoice(_ context.Context, c *model.PlaybackLanguageChoice) error {
	if err := validateChoice(c); err != nil {
		return err
	}
	return s.put(seriesKey(c.UserID, c.SeriesID), toLanguageRecord(c))
}

func (s *BadgerStore) Close() error { return s.db.Close() }
