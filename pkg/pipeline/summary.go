package pipeline

import (
	"github.com/dustin/go-humanize"
	"k8s.io/klog/v2"

	"github.com/mplewis/photolog/pkg/metrics"
	"github.com/mplewis/photolog/pkg/optimize"
)

// logOptimizeReport summarizes an optimize batch. jobs and results are parallel.
func logOptimizeReport(jobs []optimize.Job, results []*optimize.Result) {
	skipped := 0
	var written uint64
	for i, r := range results {
		metrics.RecordVariant(r.Skipped, r.OutBytes)
		if r.Skipped {
			skipped++
			continue
		}
		written += uint64(r.OutBytes)
		klog.V(1).Infof("%s -> %s: %s (%.1f%%) %.1fs",
			jobs[i].Src, jobs[i].Dst, humanize.Bytes(uint64(r.OutBytes)), r.Ratio()*100, r.Elapsed.Seconds())
	}
	klog.Infof("Optimized %d images (%d skipped), wrote %s", len(results)-skipped, skipped, humanize.Bytes(written))
}
