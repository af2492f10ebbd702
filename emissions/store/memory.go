// Package store provides Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/emissions-engine/emissions"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements emissions.Store and emissions.ImportLog in memory.
type Memory struct {
	mu      sync.RWMutex
	records map[int]emissions.Record
	runs    []emissions.ImportRun
}

func NewMemory() *Memory {
	return &Memory{records: make(map[int]emissions.Record)}
}

func (m *Memory) List(_ context.Context) ([]emissions.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]emissions.Record, 0, len(m.records))
	for _, r := range m.records {
		result = append(result, r.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Year < result[j].Year })
	return result, nil
}

func (m *Memory) Get(_ context.Context, year int) (emissions.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.records[year]
	if !ok {
		return emissions.Record{}, fmt.Errorf("%w: year %d", emissions.ErrRecordNotFound, year)
	}
	return r.Clone(), nil
}

func (m *Memory) Put(_ context.Context, r emissions.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[r.Year] = r.Clone()
	return nil
}

// Replace moves the record at priorYear to r.Year.
func (m *Memory) Replace(_ context.Context, priorYear int, r emissions.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[priorYear]; !ok {
		return fmt.Errorf("%w: year %d", emissions.ErrRecordNotFound, priorYear)
	}
	delete(m.records, priorYear)
	m.records[r.Year] = r.Clone()
	return nil
}

func (m *Memory) Delete(_ context.Context, year int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[year]; !ok {
		return fmt.Errorf("%w: year %d", emissions.ErrRecordNotFound, year)
	}
	delete(m.records, year)
	return nil
}

// PutBatch upserts all records under one lock.
func (m *Memory) PutBatch(_ context.Context, records []emissions.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		m.records[r.Year] = r.Clone()
	}
	return nil
}

// ReplaceAll swaps the dataset. The new map is built before the old one is
// dropped, so readers never see a partial dataset.
func (m *Memory) ReplaceAll(_ context.Context, records []emissions.Record) error {
	next := make(map[int]emissions.Record, len(records))
	for _, r := range records {
		next[r.Year] = r.Clone()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = next
	return nil
}

// =============================================================================
// IMPORT LOG
// =============================================================================

func (m *Memory) SaveImportRun(_ context.Context, run emissions.ImportRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendRun(run)
	return nil
}

// PutBatchWithRun upserts records and logs run under one lock.
func (m *Memory) PutBatchWithRun(_ context.Context, records []emissions.Record, run emissions.ImportRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		m.records[r.Year] = r.Clone()
	}
	m.appendRun(run)
	return nil
}

// ReplaceAllWithRun swaps the dataset and logs run under one lock.
func (m *Memory) ReplaceAllWithRun(_ context.Context, records []emissions.Record, run emissions.ImportRun) error {
	next := make(map[int]emissions.Record, len(records))
	for _, r := range records {
		next[r.Year] = r.Clone()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = next
	m.appendRun(run)
	return nil
}

func (m *Memory) appendRun(run emissions.ImportRun) {
	run.CreatedYears = append([]int{}, run.CreatedYears...)
	run.UpdatedYears = append([]int{}, run.UpdatedYears...)
	m.runs = append(m.runs, run)
}

// ListImportRuns returns runs newest first.
func (m *Memory) ListImportRuns(_ context.Context, limit int) ([]emissions.ImportRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]emissions.ImportRun, 0, len(m.runs))
	for i := len(m.runs) - 1; i >= 0; i-- {
		if limit > 0 && len(result) == limit {
			break
		}
		result = append(result, m.runs[i])
	}
	return result, nil
}
