// Package store provides RunStore implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/charkitch/general-apportionment/lifecycle"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu    sync.RWMutex
	runs  map[string]lifecycle.Run
	order []string
}

func NewMemory() *Memory {
	return &Memory{runs: make(map[string]lifecycle.Run)}
}

// SaveRun adds a run. Append-only: an existing ID is rejected.
func (m *Memory) SaveRun(_ context.Context, run lifecycle.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.runs[run.ID]; exists {
		return fmt.Errorf("run %s already stored", run.ID)
	}
	m.runs[run.ID] = run
	m.order = append(m.order, run.ID)
	return nil
}

func (m *Memory) GetRun(_ context.Context, id string) (*lifecycle.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.runs[id]
	if !ok {
		return nil, &lifecycle.RunNotFoundError{RunID: id}
	}
	return &run, nil
}

// ListRuns returns summaries newest first. limit <= 0 means all.
func (m *Memory) ListRuns(_ context.Context, limit int) ([]lifecycle.RunSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summaries := make([]lifecycle.RunSummary, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		summaries = append(summaries, m.runs[m.order[i]].Summary())
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}
