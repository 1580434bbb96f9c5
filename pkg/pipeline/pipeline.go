// Package pipeline turns a tree of original photos into optimized gallery
// variants and a persisted metadata report, reusing prior work when nothing
// has changed.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"k8s.io/klog/v2"

	"github.com/mplewis/photolog/pkg/album"
	"github.com/mplewis/photolog/pkg/conc"
	"github.com/mplewis/photolog/pkg/exif"
	"github.com/mplewis/photolog/pkg/hash"
	"github.com/mplewis/photolog/pkg/metrics"
	"github.com/mplewis/photolog/pkg/optimize"
	"github.com/mplewis/photolog/pkg/report"
)

var (
	// ErrNoImages is returned when the source tree holds no images.
	ErrNoImages = errors.New("no source images found")
	// ErrMissingDate is returned for a photo without a capture date.
	ErrMissingDate = errors.New("missing capture date")
)

// Pipeline processes one source tree into one output tree. It remembers the
// last successful run so unchanged trees are not reprocessed.
type Pipeline struct {
	mu     sync.Mutex
	cfg    Config
	reader exif.Reader
	opt    optimize.Optimizer
	runner *conc.Runner

	fingerprint string
	cached      *Result
}

// New returns a Pipeline for cfg. A nil runner uses one worker per CPU
// without progress bars.
func New(cfg Config, reader exif.Reader, opt optimize.Optimizer, runner *conc.Runner) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if reader == nil || opt == nil {
		return nil, errors.New("metadata reader and optimizer are required")
	}
	if runner == nil {
		runner = &conc.Runner{}
	}
	return &Pipeline{cfg: cfg, reader: reader, opt: opt, runner: runner}, nil
}

// Config returns the validated configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Process brings the output tree and report up to date with the source tree.
// When the source tree is unchanged since the last successful call, the
// previous *Result is returned as-is. Calls are serialized.
func (p *Pipeline) Process(ctx context.Context) (*Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	res, hit, err := p.process(ctx)
	switch {
	case err != nil:
		metrics.RecordRun(metrics.ResultError, time.Since(start))
	case hit:
		metrics.RecordRun(metrics.ResultCacheHit, time.Since(start))
	default:
		metrics.RecordRun(metrics.ResultSuccess, time.Since(start))
		metrics.Photos.Set(float64(len(res.Photos)))
	}
	return res, err
}

func (p *Pipeline) process(ctx context.Context) (*Result, bool, error) {
	files, err := Discover(p.cfg.SourceDir, p.cfg.Extensions)
	if err != nil {
		return nil, false, err
	}
	if len(files) == 0 {
		return nil, false, fmt.Errorf("%s: %w", p.cfg.SourceDir, ErrNoImages)
	}

	fp, err := hash.FastFiles(ctx, p.runner, files)
	if err != nil {
		return nil, false, err
	}
	if p.cached != nil && fp == p.fingerprint {
		klog.Infof("%d images unchanged (fingerprint %s), using cached result", len(files), hash.Truncate(fp, 12))
		return p.cached, true, nil
	}
	klog.Infof("processing %d images (fingerprint %s)", len(files), hash.Truncate(fp, 12))

	photos, err := p.inspect(ctx, files)
	if err != nil {
		return nil, false, err
	}

	albums, err := album.Discover(ctx, p.runner, p.cfg.SourceDir)
	if err != nil {
		return nil, false, err
	}
	for _, ph := range photos {
		ph.Album = album.Resolve(ph.RelPath, albums)
	}

	if err := p.render(ctx, photos); err != nil {
		return nil, false, err
	}

	fresh, err := buildReport(photos, albums)
	if err != nil {
		return nil, false, err
	}

	merged, pruned, err := p.reconcile(fresh)
	if err != nil {
		return nil, false, err
	}

	sortPhotos(photos)
	res := &Result{Fingerprint: fp, Photos: photos, Albums: albums, Report: merged, Pruned: pruned}
	p.fingerprint = fp
	p.cached = res
	return res, false, nil
}

// inspect reads metadata and content hashes for every file.
func (p *Pipeline) inspect(ctx context.Context, files []hash.FileRef) ([]*Photo, error) {
	readTasks := make([]conc.Task[*exif.Metadata], 0, len(files))
	hashTasks := make([]conc.Task[string], 0, len(files))
	for _, f := range files {
		readTasks = append(readTasks, func(ctx context.Context) (*exif.Metadata, error) {
			m, err := p.reader.Read(ctx, f.AbsPath)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", f.RelPath, err)
			}
			if m == nil {
				return nil, fmt.Errorf("read %s: no metadata", f.RelPath)
			}
			return m, nil
		})
		hashTasks = append(hashTasks, func(context.Context) (string, error) {
			d, err := hash.File(f.AbsPath)
			if err != nil {
				return "", err
			}
			return hash.Truncate(d, p.cfg.HashLen), nil
		})
	}

	metas, err := conc.Run(ctx, p.runner, "Reading metadata", readTasks)
	if err != nil {
		return nil, err
	}
	digests, err := conc.Run(ctx, p.runner, "Hashing images", hashTasks)
	if err != nil {
		return nil, err
	}

	photos := make([]*Photo, 0, len(files))
	for i, f := range files {
		photos = append(photos, &Photo{
			RelPath:  f.RelPath,
			AbsPath:  f.AbsPath,
			Hash:     digests[i],
			Metadata: metas[i],
		})
	}
	return photos, nil
}

// render optimizes every (photo, profile) pair and fills in each photo's
// variants with the measured output dimensions. Photos with identical content
// share their outputs, so each destination is rendered once.
func (p *Pipeline) render(ctx context.Context, photos []*Photo) error {
	jobs := []optimize.Job{}
	index := map[string]int{}
	for _, ph := range photos {
		for _, pr := range p.cfg.Profiles {
			dst := filepath.Join(p.cfg.OutputDir, OutputName(ph.Hash, pr))
			if _, ok := index[dst]; ok {
				continue
			}
			index[dst] = len(jobs)
			jobs = append(jobs, optimize.Job{Src: ph.AbsPath, Dst: dst, Size: pr.Target(), Quality: p.cfg.quality(pr)})
		}
	}

	tasks := make([]conc.Task[*optimize.Result], 0, len(jobs))
	for _, j := range jobs {
		tasks = append(tasks, func(ctx context.Context) (*optimize.Result, error) {
			r, err := p.opt.Optimize(ctx, j)
			if err != nil {
				return nil, fmt.Errorf("optimize %s -> %s: %w", j.Src, j.Dst, err)
			}
			return r, nil
		})
	}

	results, err := conc.Run(ctx, p.runner, "Optimizing images", tasks)
	if err != nil {
		return err
	}
	logOptimizeReport(jobs, results)

	for _, ph := range photos {
		ph.Variants = make([]Variant, 0, len(p.cfg.Profiles))
		for _, pr := range p.cfg.Profiles {
			name := OutputName(ph.Hash, pr)
			r := results[index[filepath.Join(p.cfg.OutputDir, name)]]
			ph.Variants = append(ph.Variants, Variant{
				Profile:    pr.Name,
				Path:       name,
				PublicPath: publicPath(p.cfg.PublicPrefix, name),
				Width:      r.Width,
				Height:     r.Height,
				Thumbnail:  isThumbnail(pr, p.cfg.ThumbnailMaxWidth),
			})
		}
	}
	return nil
}

// reconcile removes stale outputs, merges fresh into the persisted report and
// writes the result. It returns the merged report and the rows pruned from
// the previous one.
func (p *Pipeline) reconcile(fresh *report.Report) (*report.Report, []report.Deletion, error) {
	if p.cfg.DeleteUnknown {
		desired := map[string]bool{}
		for _, e := range fresh.Photos {
			for _, s := range e.Sizes {
				desired[s.Path] = true
			}
		}
		stale, err := removeStale(p.cfg.OutputDir, desired)
		if err != nil {
			return nil, nil, fmt.Errorf("cleanup: %w", err)
		}
		if len(stale) > 0 {
			klog.Infof("deleted %d unknown files from %s", len(stale), p.cfg.OutputDir)
		}
	}

	old, err := report.Load(p.cfg.ReportPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("load report: %w", err)
		}
		klog.Infof("no existing report at %s, starting fresh", p.cfg.ReportPath)
		old = nil
	}

	merged, deleted := report.Reconcile(old, fresh)
	for _, d := range deleted {
		klog.Warningf("removed from report: %s", d)
	}
	metrics.ReportPrunedTotal.Add(float64(len(deleted)))

	if err := report.Save(p.cfg.ReportPath, merged, p.cfg.BackupReport); err != nil {
		return nil, nil, fmt.Errorf("save report: %w", err)
	}
	klog.Infof("wrote %d photos to %s", len(merged.Photos), p.cfg.ReportPath)
	return merged, deleted, nil
}
