package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// Metrics are global, so tests compare before and after values.

func TestRecordRun(t *testing.T) {
	for _, result := range []string{ResultCacheHit, ResultSuccess, ResultError} {
		t.Run(result, func(t *testing.T) {
			before := testutil.ToFloat64(RunsTotal.WithLabelValues(result))
			RecordRun(result, 250*time.Millisecond)
			after := testutil.ToFloat64(RunsTotal.WithLabelValues(result))
			if after != before+1 {
				t.Errorf("runs{%s} = %v, want %v", result, after, before+1)
			}
		})
	}

	if testutil.ToFloat64(LastSuccessTimestamp) == 0 {
		t.Error("last success timestamp not set")
	}
}

func TestRecordVariant(t *testing.T) {
	optimized := testutil.ToFloat64(VariantsTotal.WithLabelValues("optimized"))
	skipped := testutil.ToFloat64(VariantsTotal.WithLabelValues("skipped"))
	bytes := testutil.ToFloat64(OutputBytesTotal)

	RecordVariant(false, 1024)
	RecordVariant(true, 4096)

	if got := testutil.ToFloat64(VariantsTotal.WithLabelValues("optimized")); got != optimized+1 {
		t.Errorf("optimized = %v, want %v", got, optimized+1)
	}
	if got := testutil.ToFloat64(VariantsTotal.WithLabelValues("skipped")); got != skipped+1 {
		t.Errorf("skipped = %v, want %v", got, skipped+1)
	}
	if got := testutil.ToFloat64(OutputBytesTotal); got != bytes+1024 {
		t.Errorf("output bytes = %v, want %v", got, bytes+1024)
	}
}
