// Package slicestore reads and writes slice series.
//
// A series is addressed by a reference string: a directory for the DICOM
// store, an arbitrary key for the in-memory store.
package slicestore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"dicomvolume/internal/models"
)

// ErrNotFound is returned when a reference holds no readable slices.
var ErrNotFound = errors.New("no slices found")

// Loader reads every slice of a series.
type Loader interface {
	Load(ctx context.Context, ref string) ([]*models.Slice, error)
}

// Saver writes a series.
type Saver interface {
	Save(ctx context.Context, ref string, sl []*models.Slice) error
}

// Lister names the series stored directly below a reference.
type Lister interface {
	List(ctx context.Context, ref string) ([]string, error)
}

// Store reads and writes series.
type Store interface {
	Loader
	Saver
	Lister
}

// Memory keeps series in memory. Slices are copied on the way in and out.
type Memory struct {
	mu     sync.RWMutex
	series map[string][]*models.Slice
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{series: make(map[string][]*models.Slice)}
}

// Load returns copies of the slices saved under ref.
func (m *Memory) Load(ctx context.Context, ref string) ([]*models.Slice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	sl, ok := m.series[ref]
	if !ok || len(sl) == 0 {
		return nil, fmt.Errorf("%s: %w", ref, ErrNotFound)
	}
	return cloneAll(sl), nil
}

// Save replaces the series under ref.
func (m *Memory) Save(ctx context.Context, ref string, sl []*models.Slice) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.series[ref] = cloneAll(sl)
	return nil
}

// Refs returns the stored references.
func (m *Memory) Refs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.series))
	for k := range m.series {
		out = append(out, k)
	}
	return out
}

// List returns the distinct first path elements of the references stored
// below ref, in natural order.
func (m *Memory) List(ctx context.Context, ref string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := filepath.Clean(ref) + string(filepath.Separator)
	seen := make(map[string]struct{})
	var out []string
	for _, k := range m.Refs() {
		rest, ok := strings.CutPrefix(filepath.Clean(k), prefix)
		if !ok {
			continue
		}
		name, _, _ := strings.Cut(rest, string(filepath.Separator))
		if _, dup := seen[name]; dup || name == "" {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	slices.SortFunc(out, NaturalCompare)
	return out, nil
}

func cloneAll(sl []*models.Slice) []*models.Slice {
	out := make([]*models.Slice, len(sl))
	for i, s := range sl {
		out[i] = s.Clone()
	}
	return out
}
