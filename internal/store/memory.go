// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"sync"

	"github.com/ManuGH/jfplay/internal/domain/playback/model"
)

// MemoryStore keeps everything in maps. Values are copied in and out.
type MemoryStore struct {
	mu        sync.RWMutex
	items     map[string]*model.ItemPlayback
	languages map[string]model.PlaybackLanguageChoice
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:     make(map[string]*model.ItemPlayback),
		languages: make(map[string]model.PlaybackLanguageChoice),
	}
}

func (s *MemoryStore) GetItemPlayback(_ context.Context, userID, itemID string) (*model.ItemPlayback, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.items[itemKey(userID, itemID)].Clone(), nil
}

func (s *MemoryStore) SaveItemPlayback(_ context.Context, p *model.ItemPlayback) error {
	if err := validateItem(p); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[itemKey(p.UserID, p.ItemID)] = p.Clone()
	return nil
}

func (s *MemoryStore) DeleteItemPlayback(_ context.Context, userID, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, itemKey(userID, itemID))
	return nil
}

func (s *MemoryStore) GetLanguageChoice(_ context.Context, userID, seriesID string) (*model.PlaybackLanguageChoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.languages[seriesKey(userID, seriesID)]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *MemoryStore) SaveLanguageChoice(_ context.Context, c *model.PlaybackLanguageChoice) error {
	if err := validateChoice(c); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.languages[seriesKey(c.UserID, c.SeriesID)] = *c
	return nil
}

func (s *MemoryStore) Close() error { return nil }
