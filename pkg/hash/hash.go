// Package hash fingerprints source files and names content-addressed outputs.
package hash

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"math/big"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/mplewis/photolog/pkg/conc"
)

// EncodeB36 renders b as a big-endian base-36 number using 0-9a-z.
func EncodeB36(b []byte) string {
	n := new(big.Int).SetBytes(b)
	if n.Sign() == 0 {
		return "0"
	}
	return n.Text(36)
}

// String returns the base-36 SHA-256 digest of s.
func String(s string) string {
	sum := sha256.Sum256([]byte(s))
	return EncodeB36(sum[:])
}

// Bytes returns the base-36 SHA-256 digest of d.
func Bytes(d []byte) string {
	sum := sha256.Sum256(d)
	return EncodeB36(sum[:])
}

// File returns the base-36 SHA-256 digest of the contents of path.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return EncodeB36(h.Sum(nil)), nil
}

// Truncate shortens a digest to n characters for use in filenames.
func Truncate(digest string, n int) string {
	if n <= 0 || n >= len(digest) {
		return digest
	}
	return digest[:n]
}

// FileRef identifies a source file by absolute and root-relative path.
type FileRef struct {
	AbsPath string
	RelPath string
}

// Stat is the part of a file's metadata that feeds the fast fingerprint.
type Stat struct {
	RelPath       string
	Size          int64
	ModTimeMillis int64
}

// Rows builds one "path:size:mtimeMillis" row per file, sorted.
func Rows(stats []Stat) []string {
	rows := make([]string, 0, len(stats))
	for _, s := range stats {
		rows = append(rows, strings.Join([]string{
			s.RelPath,
			strconv.FormatInt(s.Size, 10),
			strconv.FormatInt(s.ModTimeMillis, 10),
		}, ":"))
	}
	sort.Strings(rows)
	return rows
}

// Fingerprint hashes a set of file stats. Input order does not matter.
func Fingerprint(stats []Stat) string {
	return String(strings.Join(Rows(stats), "\n"))
}

// FastFiles stats every file on the runner and returns a fingerprint that
// changes whenever a file is added, removed, resized, or touched. A stat
// failure fails the whole computation.
func FastFiles(ctx context.Context, r *conc.Runner, files []FileRef) (string, error) {
	tasks := make([]conc.Task[Stat], 0, len(files))
	for _, f := range files {
		tasks = append(tasks, func(context.Context) (Stat, error) {
			fi, err := os.Stat(f.AbsPath)
			if err != nil {
				return Stat{}, fmt.Errorf("stat: %w", err)
			}
			return Stat{RelPath: f.RelPath, Size: fi.Size(), ModTimeMillis: fi.ModTime().UnixMilli()}, nil
		})
	}

	stats, err := conc.Run(ctx, r, "Checking for changed images", tasks)
	if err != nil {
		return "", err
	}
	return Fingerprint(stats), nil
}
