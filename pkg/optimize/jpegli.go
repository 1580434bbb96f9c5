package optimize

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"k8s.io/klog/v2"
)

// Jpegli shells out to ImageMagick for resizing, cjpegli for compression, and
// exiftool for metadata.
type Jpegli struct {
	Options
	Magick   string
	Cjpegli  string
	Exiftool string
}

// NewJpegli returns a Jpegli optimizer using binaries from $PATH.
func NewJpegli(o Options) *Jpegli {
	return &Jpegli{Options: o, Magick: "magick", Cjpegli: "cjpegli", Exiftool: "exiftool"}
}

// Check verifies that every required binary is installed.
func (jl *Jpegli) Check() error {
	for _, b := range []string{jl.Magick, jl.Cjpegli, jl.Exiftool} {
		if _, err := exec.LookPath(b); err != nil {
			return fmt.Errorf("%s not found: %w", b, err)
		}
	}
	return nil
}

// Optimize renders j unless its destination already exists.
func (jl *Jpegli) Optimize(ctx context.Context, j Job) (*Result, error) {
	if err := j.Size.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	if !jl.needsWork(j.Dst) {
		klog.V(1).Infof("%s exists, skipping", j.Dst)
		return finish(j, start, true)
	}

	if err := os.MkdirAll(filepath.Dir(j.Dst), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}

	resized, err := os.CreateTemp("", "photolog-resize-*.png")
	if err != nil {
		return nil, fmt.Errorf("temp: %w", err)
	}
	resized.Close()
	defer os.Remove(resized.Name())

	tmp := filepath.Join(filepath.Dir(j.Dst), ".tmp-"+filepath.Base(j.Dst))
	defer os.Remove(tmp)

	steps := [][]string{
		append([]string{jl.Magick}, magickArgs(j.Src, resized.Name(), j.Size)...),
		append([]string{jl.Cjpegli}, cjpegliArgs(resized.Name(), tmp, j.Quality, jl.ChromaSubsampling, jl.Progressive)...),
		append([]string{jl.Exiftool}, exiftoolArgs(j.Src, tmp, jl.PreserveMetadata)...),
	}
	for _, s := range steps {
		if err := run(ctx, s[0], s[1:]...); err != nil {
			return nil, err
		}
	}

	if err := os.Rename(tmp, j.Dst); err != nil {
		return nil, fmt.Errorf("rename: %w", err)
	}
	return finish(j, start, false)
}

// resizeGeometry builds an ImageMagick geometry that only ever shrinks.
func resizeGeometry(t TargetSize) string {
	switch {
	case t.MaxWidth > 0 && t.MaxHeight > 0:
		return fmt.Sprintf("%dx%d>", t.MaxWidth, t.MaxHeight)
	case t.MaxWidth > 0:
		return fmt.Sprintf("%d>", t.MaxWidth)
	default:
		return fmt.Sprintf("x%d>", t.MaxHeight)
	}
}

func magickArgs(src string, dst string, t TargetSize) []string {
	return []string{src, "-auto-orient", "-quality", "100", "-resize", resizeGeometry(t), dst}
}

func cjpegliArgs(src string, dst string, distance float64, chroma string, progressive bool) []string {
	if chroma == "" {
		chroma = "420"
	}
	p := "0"
	if progressive {
		p = "2"
	}
	return []string{
		"--distance=" + strconv.FormatFloat(distance, 'f', -1, 64),
		"--chroma_subsampling=" + chroma,
		"-p", p,
		src, dst,
	}
}

func exiftoolArgs(src string, dst string, preserve bool) []string {
	if preserve {
		return []string{"-tagsfromfile", src, "-all:all", "-orientation=", "-overwrite_original", dst}
	}
	return []string{"-all=", "-overwrite_original", dst}
}

func run(ctx context.Context, name string, args ...string) error {
	klog.V(2).Infof("exec: %s %s", name, strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %w, stderr: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
