package slicestore

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/maruel/natural"
	"github.com/suyashkumar/dicom"

	"dicomvolume/internal/logging"
	"dicomvolume/internal/models"
)

// Dir reads and writes DICOM series stored as one file per slice under a directory.
type Dir struct {
	logger *slog.Logger
}

// NewDir returns a DICOM directory store.
func NewDir(logger *slog.Logger) *Dir {
	return &Dir{logger: logging.OrNop(logger)}
}

// Load reads every DICOM file below dir, in natural file name order.
// Files that cannot be parsed are skipped with a warning.
func (d *Dir) Load(ctx context.Context, dir string) ([]*models.Slice, error) {
	paths, err := Files(dir)
	if err != nil {
		return nil, err
	}

	var out []*models.Slice
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ds, err := dicom.ParseFile(p, nil)
		if err != nil {
			d.logger.Warn("skipping unreadable file", "path", p, "error", err)
			continue
		}
		s, err := FromDataset(ds, p)
		if err != nil {
			d.logger.Warn("skipping file", "path", p, "error", err)
			continue
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: %w", dir, ErrNotFound)
	}
	d.logger.Debug("loaded series", "dir", dir, "slices", len(out), "files", len(paths))
	return out, nil
}

// Save writes the slices to dir as 0000.dcm, 0001.dcm, ...
func (d *Dir) Save(ctx context.Context, dir string, sl []*models.Slice) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %v", dir, err)
	}
	for i, s := range sl {
		if err := ctx.Err(); err != nil {
			return err
		}
		ds, err := ToDataset(s)
		if err != nil {
			return fmt.Errorf("slice %d: %w", i, err)
		}
		path := filepath.Join(dir, fmt.Sprintf("%04d.dcm", i))
		if err := writeFile(path, ds); err != nil {
			return fmt.Errorf("failed to write %s: %v", path, err)
		}
	}
	d.logger.Debug("saved series", "dir", dir, "slices", len(sl))
	return nil
}

// List returns the names of the subdirectories of dir, in natural order.
func (d *Dir) List(_ context.Context, dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	slices.SortFunc(out, NaturalCompare)
	return out, nil
}

func writeFile(path string, ds dicom.Dataset) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := dicom.Write(f, ds); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Files lists the candidate slice files below dir in natural name order.
// DICOMDIR indexes and .txt files are ignored.
func Files(dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(path string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if e.IsDir() {
			return nil
		}
		name := e.Name()
		if strings.Contains(name, "DICOMDIR") || strings.EqualFold(filepath.Ext(name), ".txt") {
			return nil
		}
		out = append(out, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %v", dir, err)
	}
	slices.SortFunc(out, NaturalCompare)
	return out, nil
}

// NaturalCompare orders strings with embedded numbers by numeric value,
// so "slice2" sorts before "slice10".
func NaturalCompare(a, b string) int {
	switch {
	case natural.Less(a, b):
		return -1
	case natural.Less(b, a):
		return 1
	}
	return 0
}
