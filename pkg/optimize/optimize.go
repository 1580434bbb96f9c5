// Package optimize resizes and compresses source photos into gallery variants.
package optimize

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"os"
	"time"

	_ "image/jpeg"
	_ "image/png"
)

// ErrNoTarget is returned for a TargetSize with neither dimension set.
var ErrNoTarget = errors.New("must provide max width, max height, or both")

// TargetSize bounds an output variant. Zero means unconstrained.
type TargetSize struct {
	MaxWidth  int
	MaxHeight int
}

// Validate checks that at least one dimension is set.
func (t TargetSize) Validate() error {
	if t.MaxWidth < 0 || t.MaxHeight < 0 {
		return fmt.Errorf("negative target %dx%d", t.MaxWidth, t.MaxHeight)
	}
	if t.MaxWidth == 0 && t.MaxHeight == 0 {
		return ErrNoTarget
	}
	return nil
}

// Fit returns the dimensions of a w x h image scaled to fit t, preserving
// aspect ratio. Images already inside the box keep their size.
func Fit(w, h int, t TargetSize) (int, int) {
	if w <= 0 || h <= 0 {
		return w, h
	}
	scale := 1.0
	if t.MaxWidth > 0 && w > t.MaxWidth {
		scale = float64(t.MaxWidth) / float64(w)
	}
	if t.MaxHeight > 0 && h > t.MaxHeight {
		scale = math.Min(scale, float64(t.MaxHeight)/float64(h))
	}
	if scale >= 1 {
		return w, h
	}
	nw := max(1, int(math.Round(float64(w)*scale)))
	nh := max(1, int(math.Round(float64(h)*scale)))
	return nw, nh
}

// JPEGQuality maps a butteraugli distance to a libjpeg quality setting using
// jpegli's distance/quality relation.
func JPEGQuality(distance float64) int {
	q := int(math.Round(100 - (distance-0.1)/0.09))
	return min(100, max(1, q))
}

// Job describes one source image rendered into one variant.
type Job struct {
	Src  string
	Dst  string
	Size TargetSize
	// Quality is a butteraugli distance. Lower is better; 1.0 is visually lossless.
	Quality float64
}

// Result describes the variant on disk after a job.
type Result struct {
	Width    int
	Height   int
	InBytes  int64
	OutBytes int64
	Elapsed  time.Duration
	Skipped  bool
}

// Ratio is output size over input size.
func (r *Result) Ratio() float64 {
	if r.InBytes == 0 {
		return 0
	}
	return float64(r.OutBytes) / float64(r.InBytes)
}

// Optimizer renders jobs. Implementations must treat an existing Dst as the
// finished result unless configured to reprocess.
type Optimizer interface {
	Optimize(ctx context.Context, j Job) (*Result, error)
}

// Options are shared by all backends.
type Options struct {
	// Reprocess re-encodes even when Dst already exists.
	Reprocess bool
	// PreserveMetadata copies source tags onto the output instead of stripping them.
	PreserveMetadata bool
	// ChromaSubsampling is passed to cjpegli, e.g. "420" or "444".
	ChromaSubsampling string
	// Progressive enables progressive JPEG encoding where supported.
	Progressive bool
}

// needsWork reports whether dst must be (re)generated.
func (o Options) needsWork(dst string) bool {
	if o.Reprocess {
		return true
	}
	_, err := os.Stat(dst)
	return err != nil
}

// dimensions reads the pixel size of an encoded image.
func dimensions(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	ic, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("unable to decode %s: %w", path, err)
	}
	return ic.Width, ic.Height, nil
}

// finish measures the job's source and output after encoding or skipping.
func finish(j Job, start time.Time, skipped bool) (*Result, error) {
	w, h, err := dimensions(j.Dst)
	if err != nil {
		return nil, err
	}
	in, err := os.Stat(j.Src)
	if err != nil {
		return nil, fmt.Errorf("stat: %w", err)
	}
	out, err := os.Stat(j.Dst)
	if err != nil {
		return nil, fmt.Errorf("stat: %w", err)
	}
	return &Result{
		Width:    w,
		Height:   h,
		InBytes:  in.Size(),
		OutBytes: out.Size(),
		Elapsed:  time.Since(start),
		Skipped:  skipped,
	}, nil
}
