package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/karrick/godirwalk"
	"k8s.io/klog/v2"

	"github.com/mplewis/photolog/pkg/metrics"
)

// outputExtensions are the files stale cleanup is allowed to remove.
var outputExtensions = []string{"jpg", "jpeg", "png"}

// removeStale deletes images under outDir whose output-relative path is not in
// desired. Hidden files, such as in-flight temporaries, are left alone.
func removeStale(outDir string, desired map[string]bool) ([]string, error) {
	if _, err := os.Stat(outDir); os.IsNotExist(err) {
		return nil, nil
	}

	stale := []string{}
	err := godirwalk.Walk(outDir, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if path != outDir && strings.HasPrefix(filepath.Base(path), ".") {
				return godirwalk.SkipThis
			}
			if de.IsDir() || !hasExtension(path, outputExtensions) {
				return nil
			}
			rel, err := filepath.Rel(outDir, path)
			if err != nil {
				return err
			}
			if !desired[filepath.ToSlash(rel)] {
				stale = append(stale, path)
			}
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", outDir, err)
	}

	for _, path := range stale {
		klog.Warningf("deleting unknown file: %s", path)
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("remove: %w", err)
		}
		metrics.StaleFilesDeletedTotal.Inc()
	}
	return stale, nil
}
