// Package report persists the gallery's metadata report and reconciles it
// with the output of each pipeline run.
package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/goccy/go-json"
	"github.com/otiai10/copy"
	"k8s.io/klog/v2"

	"github.com/mplewis/photolog/pkg/exif"
)

// Size is one rendered variant of a photo.
type Size struct {
	// Path is relative to the output root.
	Path   string `json:"path"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Entry is the report record for one original photo.
type Entry struct {
	exif.Metadata
	Albums []string `json:"albums"`
	Sizes  []Size   `json:"sizes"`
}

// Album is the report's view of an album descriptor.
type Album struct {
	Key  string `json:"key"`
	Name string `json:"name"`
	Desc string `json:"desc"`
}

// Report maps original (source-relative) paths to their entries.
type Report struct {
	Photos map[string]*Entry `json:"photos"`
	Albums []Album           `json:"albums"`
}

// New returns an empty report.
func New() *Report {
	return &Report{Photos: map[string]*Entry{}, Albums: []Album{}}
}

// Keys returns the original paths in sorted order.
func (r *Report) Keys() []string {
	keys := make([]string, 0, len(r.Photos))
	for k := range r.Photos {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Validate rejects structurally unusable reports.
func (r *Report) Validate() error {
	if r.Photos == nil {
		return errors.New("missing photos")
	}
	for k, e := range r.Photos {
		if k == "" {
			return errors.New("empty photo key")
		}
		if e == nil {
			return fmt.Errorf("%s: null entry", k)
		}
		for i, s := range e.Sizes {
			if s.Path == "" {
				return fmt.Errorf("%s: size %d has no path", k, i)
			}
			if s.Width <= 0 || s.Height <= 0 {
				return fmt.Errorf("%s: size %s has invalid dimensions %dx%d", k, s.Path, s.Width, s.Height)
			}
		}
	}
	for i, a := range r.Albums {
		if a.Key == "" {
			return fmt.Errorf("album %d has no key", i)
		}
	}
	return nil
}

// Load reads and validates the report at path. A missing file yields an
// error wrapping fs.ErrNotExist.
func Load(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	r := &Report{}
	if err := json.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report %s: %w", path, err)
	}
	if r.Albums == nil {
		r.Albums = []Album{}
	}
	return r, nil
}

// Save writes r to path, replacing any previous report atomically. With
// backup set, the previous report is first copied to path + ".bak".
func Save(path string, r *Report, backup bool) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	if backup {
		if _, err := os.Stat(path); err == nil {
			if err := copy.Copy(path, path+".bak"); err != nil {
				return fmt.Errorf("backup: %w", err)
			}
			klog.V(1).Infof("backed up %s", path)
		}
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
