// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package app

import (
	"context"
	"sync"
)

// Queue is the ordered list of items given on the command line. It answers
// next-up lookups for the controller.
type Queue struct {
	mu    sync.RWMutex
	items []string
}

func NewQueue() *Queue { return &Queue{} }

// Set replaces the queue.
func (q *Queue) Set(items []string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append([]string(nil), items...)
}

// Items returns a copy of the queue.
func (q *Queue) Items() []string {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return append([]string(nil), q.items...)
}

// Next returns the item after itemID. Items not in the queue have no
// successor; for repeated ids the first occurrence wins.
func (q *Queue) Next(_ context.Context, itemID string) (string, bool, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	for i, id := range q.items {
		if id != itemID {
			continue
		}
		if i+1 < len(q.items) {
			return q.items[i+1], true, nil
		}
		break
	}
	return "", false, nil
}
