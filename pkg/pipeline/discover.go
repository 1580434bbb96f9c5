package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/karrick/godirwalk"
	"k8s.io/klog/v2"

	"github.com/mplewis/photolog/pkg/hash"
)

// hasExtension matches path against exts case-insensitively. exts have no dot.
func hasExtension(path string, exts []string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range exts {
		if strings.EqualFold(ext, strings.TrimPrefix(e, ".")) {
			return true
		}
	}
	return false
}

// Discover finds source images under root, skipping hidden files and
// directories. Results are sorted by relative path.
func Discover(root string, exts []string) ([]hash.FileRef, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}

	found := []hash.FileRef{}
	err := godirwalk.Walk(root, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if path != root && strings.HasPrefix(filepath.Base(path), ".") {
				return godirwalk.SkipThis
			}
			if de.IsDir() || !hasExtension(path, exts) {
				return nil
			}

			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			klog.V(2).Infof("found %s", path)
			found = append(found, hash.FileRef{AbsPath: path, RelPath: filepath.ToSlash(rel)})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	sort.Slice(found, func(i, j int) bool { return found[i].RelPath < found[j].RelPath })
	return found, nil
}
