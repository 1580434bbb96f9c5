// Package album discovers per-directory album descriptors under a source tree.
package album

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"

	"github.com/mplewis/photolog/pkg/conc"
)

// DescriptorFile is the name looked for in each top-level source directory.
const DescriptorFile = "metadata.yaml"

// Descriptor is the content of a metadata.yaml file.
type Descriptor struct {
	Name  string `yaml:"name"`
	Desc  string `yaml:"desc"`
	Order int    `yaml:"order"`
}

// Validate checks the fields a gallery needs.
func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return errors.New("name is required")
	}
	return nil
}

// Album is a descriptor keyed by its directory name.
type Album struct {
	Key string
	Descriptor
}

// Parse decodes and validates a descriptor payload.
func Parse(data []byte) (Descriptor, error) {
	var d Descriptor
	if len(bytes.TrimSpace(data)) == 0 {
		return d, errors.New("empty descriptor")
	}
	if err := yaml.Unmarshal(data, &d); err != nil {
		return d, fmt.Errorf("decode: %w", err)
	}
	if err := d.Validate(); err != nil {
		return d, err
	}
	return d, nil
}

// Discover loads every <srcDir>/*/metadata.yaml. Directories without a
// descriptor, or with one that fails to parse, are left out with a warning.
// The result is sorted by Order, then Key.
func Discover(ctx context.Context, r *conc.Runner, srcDir string) ([]Album, error) {
	paths, err := filepath.Glob(filepath.Join(srcDir, "*", DescriptorFile))
	if err != nil {
		return nil, fmt.Errorf("glob: %w", err)
	}

	tasks := make([]conc.Task[*Album], 0, len(paths))
	for _, p := range paths {
		tasks = append(tasks, func(context.Context) (*Album, error) {
			key := filepath.Base(filepath.Dir(p))
			data, err := os.ReadFile(p)
			if err != nil {
				klog.Warningf("album %q: read %s: %v", key, p, err)
				return nil, nil
			}
			d, err := Parse(data)
			if err != nil {
				klog.Warningf("album %q: %s: %v", key, p, err)
				return nil, nil
			}
			return &Album{Key: key, Descriptor: d}, nil
		})
	}

	found, err := conc.Run(ctx, r, "Read album metadata", tasks)
	if err != nil {
		return nil, err
	}

	albums := []Album{}
	for _, a := range found {
		if a != nil {
			albums = append(albums, *a)
		}
	}
	sort.Slice(albums, func(i, j int) bool {
		if albums[i].Order != albums[j].Order {
			return albums[i].Order < albums[j].Order
		}
		return albums[i].Key < albums[j].Key
	})
	return albums, nil
}

// Resolve returns the key of the album whose directory is the longest prefix
// of relPath, or "" when the photo belongs to no album.
func Resolve(relPath string, albums []Album) string {
	relPath = filepath.ToSlash(relPath)
	best := ""
	for _, a := range albums {
		if strings.HasPrefix(relPath, a.Key+"/") && len(a.Key) > len(best) {
			best = a.Key
		}
	}
	return best
}
