// Package results persists per-case comparison outcomes.
package results

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"
)

// ErrNotFound is returned when no result is recorded for a case.
var ErrNotFound = errors.New("result not found")

// CaseResult is the outcome of comparing one case across two sources.
type CaseResult struct {
	Case string

	// Dice is the Dice coefficient of the two label masks
	Dice float64

	// VolumeA and VolumeB are the label volumes in cm³
	VolumeA float64
	VolumeB float64

	// Voxel counts per overlap class
	Overlap int
	OnlyA   int
	OnlyB   int

	Aligned bool
	Window  string

	// Corrections lists the repairs applied while assembling the volumes
	Corrections []string

	// Error is set when the case failed and was skipped
	Error string

	RecordedAt time.Time
}

// Failed reports whether the case was skipped.
func (r CaseResult) Failed() bool { return r.Error != "" }

// Store records and lists case results. Recording a case twice replaces
// the earlier result.
type Store interface {
	Record(ctx context.Context, r CaseResult) error
	Get(ctx context.Context, name string) (CaseResult, error)
	List(ctx context.Context) ([]CaseResult, error)
	Close() error
}

// Memory is an in-process Store.
type Memory struct {
	mu      sync.RWMutex
	results map[string]CaseResult
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{results: make(map[string]CaseResult)}
}

func (m *Memory) Record(_ context.Context, r CaseResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.Corrections = slices.Clone(r.Corrections)
	if r.RecordedAt.IsZero() {
		r.RecordedAt = time.Now().UTC()
	}
	m.results[r.Case] = r
	return nil
}

func (m *Memory) Get(_ context.Context, name string) (CaseResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.results[name]
	if !ok {
		return CaseResult{}, ErrNotFound
	}
	r.Corrections = slices.Clone(r.Corrections)
	return r, nil
}

// List returns every result ordered by case name.
func (m *Memory) List(_ context.Context) ([]CaseResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]CaseResult, 0, len(m.results))
	for _, r := range m.results {
		r.Corrections = slices.Clone(r.Corrections)
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b CaseResult) int { return strings.Compare(a.Case, b.Case) })
	return out, nil
}

func (m *Memory) Close() error { return nil }
