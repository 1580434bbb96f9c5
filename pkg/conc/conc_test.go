package conc

import (
	"bytes"
	"context"
	"errors"
	"runtime"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunPreservesOrder(t *testing.T) {
	r := &Runner{Workers: 4}
	tasks := []Task[int]{}
	for i := 0; i < 20; i++ {
		tasks = append(tasks, func(context.Context) (int, error) {
			// later tasks finish first
			time.Sleep(time.Duration(20-i) * time.Millisecond)
			return i * i, nil
		})
	}

	got, err := Run(context.Background(), r, "square", tasks)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(got) != len(tasks) {
		t.Fatalf("got %d results, want %d", len(got), len(tasks))
	}
	for i, v := range got {
		if v != i*i {
			t.Errorf("result[%d] = %d, want %d", i, v, i*i)
		}
	}
}

func TestRunRespectsLimit(t *testing.T) {
	tests := []struct {
		name    string
		workers int
	}{
		{name: "single worker", workers: 1},
		{name: "three workers", workers: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var inFlight, peak atomic.Int32
			tasks := []Task[struct{}]{}
			for i := 0; i < 12; i++ {
				tasks = append(tasks, func(context.Context) (struct{}, error) {
					n := inFlight.Add(1)
					for {
						p := peak.Load()
						if n <= p || peak.CompareAndSwap(p, n) {
							break
						}
					}
					time.Sleep(5 * time.Millisecond)
					inFlight.Add(-1)
					return struct{}{}, nil
				})
			}

			if _, err := Run(context.Background(), &Runner{Workers: tt.workers}, "limit", tasks); err != nil {
				t.Fatalf("Run: %v", err)
			}
			if got := int(peak.Load()); got > tt.workers {
				t.Errorf("peak concurrency = %d, want <= %d", got, tt.workers)
			}
		})
	}
}

func TestRunFailsBatch(t *testing.T) {
	boom := errors.New("boom")
	tasks := []Task[string]{
		func(context.Context) (string, error) { return "ok", nil },
		func(context.Context) (string, error) { return "", boom },
		func(context.Context) (string, error) { return "ok", nil },
	}

	got, err := Run(context.Background(), &Runner{Workers: 2}, "fail", tasks)
	if !errors.Is(err, boom) {
		t.Fatalf("Run error = %v, want %v", err, boom)
	}
	if got != nil {
		t.Errorf("results = %v, want nil on failure", got)
	}
}

func TestRunEmpty(t *testing.T) {
	got, err := Run[int](context.Background(), &Runner{Progress: &bytes.Buffer{}}, "empty", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %v, want empty", got)
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tasks := []Task[int]{func(context.Context) (int, error) { return 1, nil }}
	if _, err := Run(ctx, &Runner{Workers: 1}, "cancelled", tasks); !errors.Is(err, context.Canceled) {
		t.Errorf("Run error = %v, want context.Canceled", err)
	}
}

func TestLimit(t *testing.T) {
	if got := (&Runner{}).Limit(); got != runtime.GOMAXPROCS(0) {
		t.Errorf("Limit() = %d, want %d", got, runtime.GOMAXPROCS(0))
	}
	if got := (&Runner{Workers: 7}).Limit(); got != 7 {
		t.Errorf("Limit() = %d, want 7", got)
	}
	var r *Runner
	if got := r.Limit(); got < 1 {
		t.Errorf("nil Runner Limit() = %d, want >= 1", got)
	}
}
