package hdrhistogram

import (
	"fmt"
	"io"
)

// OutputPercentileDistribution writes a textual percentile report to w,
// one reporting point per line from a PercentileIterator, followed by
// summary lines carrying mean/stddev/max/total-count/bucket-shape. A
// scalingRatio > 1 reports values divided by that ratio (e.g. converting
// nanoseconds to milliseconds) without altering the underlying counts.
func (h *Histogram) OutputPercentileDistribution(w io.Writer, ticksPerHalfDistance int, scalingRatio float64) error {
	if ticksPerHalfDistance <= 0 {
		ticksPerHalfDistance = 5
	}
	if scalingRatio <= 0 {
		scalingRatio = 1
	}

	if _, err := fmt.Fprintf(w, "%12s %14s %10s %14s\n\n", "Value", "Percentile", "TotalCount", "1/(1-Percentile)"); err != nil {
		return err
	}

	it := NewPercentileIterator(h, ticksPerHalfDistance)
	for it.Next() {
		value := float64(it.ValueIteratedTo) / scalingRatio
		percentile := it.PercentileLevelIteratedTo / 100.0

		inverse := "           inf"
		if percentile < 1.0 {
			inverse = fmt.Sprintf("%14.2f", 1/(1-percentile))
		}

		if _, err := fmt.Fprintf(w, "%12.3f %1.12f %10d %s\n", value, percentile, it.TotalCountToThisValue, inverse); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintf(w,
		"\n#[Mean = %.3f, StdDeviation = %.3f]\n#[Max = %.3f, Total count = %d]\n#[Buckets = %d, SubBuckets = %d]\n",
		h.GetMean()/scalingRatio, h.GetStdDeviation()/scalingRatio, float64(h.GetMax())/scalingRatio,
		h.totalCount, h.bucketCount, h.subBucketCount)
	return err
}
