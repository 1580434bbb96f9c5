package report

import (
	"slices"
)

// Deletion is one row dropped from a previously persisted report.
type Deletion struct {
	// Key is the original path the row belonged to.
	Key string
	// Path is the variant path, or "" when the whole entry was dropped.
	Path string
}

func (d Deletion) String() string {
	if d.Path == "" {
		return d.Key
	}
	return d.Key + " -> " + d.Path
}

// Prune removes entries of old whose keys are not in validKeys and size rows
// whose paths are not in validPaths. old is modified in place.
func Prune(old *Report, validKeys map[string]bool, validPaths map[string]bool) []Deletion {
	deleted := []Deletion{}
	for _, k := range old.Keys() {
		e := old.Photos[k]
		if !validKeys[k] {
			deleted = append(deleted, Deletion{Key: k})
			for _, s := range e.Sizes {
				deleted = append(deleted, Deletion{Key: k, Path: s.Path})
			}
			delete(old.Photos, k)
			continue
		}

		kept := e.Sizes[:0]
		for _, s := range e.Sizes {
			if validPaths[s.Path] {
				kept = append(kept, s)
				continue
			}
			deleted = append(deleted, Deletion{Key: k, Path: s.Path})
		}
		e.Sizes = kept
	}
	return deleted
}

// Merge combines a freshly computed report with a pruned previous one. An
// entry recomputed in fresh replaces the old entry entirely, so its arrays
// never accumulate rows from earlier runs. Old entries not recomputed are
// carried over verbatim. The album list always comes from fresh.
func Merge(old *Report, fresh *Report) *Report {
	out := New()
	if old != nil {
		for k, e := range old.Photos {
			out.Photos[k] = e
		}
	}
	for k, e := range fresh.Photos {
		out.Photos[k] = e
	}
	out.Albums = slices.Clone(fresh.Albums)
	if out.Albums == nil {
		out.Albums = []Album{}
	}
	return out
}

// Reconcile prunes old against the keys and variant paths of fresh, then
// merges fresh into it. A nil old report is treated as empty.
func Reconcile(old *Report, fresh *Report) (*Report, []Deletion) {
	if old == nil {
		return Merge(nil, fresh), nil
	}

	validKeys := map[string]bool{}
	validPaths := map[string]bool{}
	for k, e := range fresh.Photos {
		validKeys[k] = true
		for _, s := range e.Sizes {
			validPaths[s.Path] = true
		}
	}

	deleted := Prune(old, validKeys, validPaths)
	return Merge(old, fresh), deleted
}
