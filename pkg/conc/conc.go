// Package conc runs batches of independent tasks on a bounded worker pool.
package conc

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/cheggaaa/pb/v3"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

var barTemplate pb.ProgressBarTemplate = `{{string . "prefix"}} {{bar . "[" "=" ">" " " "]"}} {{counters . }} {{percent . }} {{rtime . "%s"}}`

// Task is a single unit of work in a batch.
type Task[T any] func(ctx context.Context) (T, error)

// Runner holds the settings shared by every batch.
type Runner struct {
	// Workers is the maximum number of tasks in flight. 0 means one per CPU.
	Workers int
	// Progress is where progress bars are drawn. nil disables them.
	Progress io.Writer
}

// NewRunner returns a Runner that draws progress to stderr.
func NewRunner(workers int) *Runner {
	return &Runner{Workers: workers, Progress: os.Stderr}
}

// Limit returns the effective concurrency ceiling.
func (r *Runner) Limit() int {
	if r == nil || r.Workers <= 0 {
		// GOMAXPROCS follows container CPU limits
		return runtime.GOMAXPROCS(0)
	}
	return r.Workers
}

// Run executes tasks with at most r.Limit() in flight and returns their results
// in submission order. The first task error fails the batch; tasks already
// running are allowed to finish, and no new tasks are started.
func Run[T any](ctx context.Context, r *Runner, name string, tasks []Task[T]) ([]T, error) {
	start := time.Now()
	results := make([]T, len(tasks))

	var bar *pb.ProgressBar
	if r != nil && r.Progress != nil && len(tasks) > 0 {
		bar = barTemplate.New(len(tasks)).Set("prefix", name).SetWriter(r.Progress).Start()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.Limit())

	for i, t := range tasks {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			v, err := t(ctx)
			if err != nil {
				return err
			}
			results[i] = v
			if bar != nil {
				bar.Increment()
			}
			return nil
		})
	}

	err := g.Wait()
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	klog.Infof("%s complete for %d items in %.1fs", name, len(tasks), time.Since(start).Seconds())
	return results, nil
}
