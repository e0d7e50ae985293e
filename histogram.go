// Package hdrhistogram implements a High Dynamic Range histogram: a
// fixed-memory data structure that records non-negative integer values
// across a configurable dynamic range while guaranteeing a bounded
// relative error determined by a chosen number of significant decimal
// digits.
//
// Recording is O(1) and allocation-free on the fast path; queries
// (percentiles, mean, standard deviation) are O(countsArrayLength),
// independent of how many values were recorded. A Histogram is
// single-writer: concurrent record() calls from multiple goroutines are
// not supported by this package's contract. Coordinate writers by
// recording into one Histogram per goroutine and merging with Add.
package hdrhistogram

import (
	"math"
	"sort"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

var identitySeq uint64

func nextIdentity() uint64 {
	return atomic.AddUint64(&identitySeq, 1)
}

// config collects constructor Options before a Histogram is built.
type config struct {
	autoResize bool
	kind       Kind
}

func defaultConfig() *config {
	return &config{autoResize: false, kind: KindUint64}
}

// Option configures a Histogram at construction or decode time.
type Option func(*config)

// WithAutoResize enables or disables implicit growth when a recorded
// value exceeds the current highest trackable value. It is off by
// default: because New always takes an explicit highestTrackableValue,
// a caller that supplied one is assumed to mean it unless they opt in.
func WithAutoResize(enabled bool) Option {
	return func(c *config) { c.autoResize = enabled }
}

// WithCounterStore selects the counter width backing the histogram's
// counts array.
func WithCounterStore(kind Kind) Option {
	return func(c *config) { c.kind = kind }
}

// Histogram is a bucketed-counts HDR histogram. The embedded layout keeps
// the hot record()-path fields (unitMagnitude, subBucketMask,
// countsArrayLength, ...) contiguous with no indirection.
type Histogram struct {
	layout

	counts counterStore
	kind   Kind

	autoResize bool

	totalCount      uint64
	maxValue        uint64
	minNonZeroValue uint64

	startTimeStampMsec int64
	endTimeStampMsec   int64

	identity uint64
}

// New builds a Histogram that can discern values as small as
// lowestDiscernibleValue, track values up to highestTrackableValue
// without resizing, and hold significantFigures decimal digits of
// precision (0 to 5) across that range.
func New(lowestDiscernibleValue, highestTrackableValue, significantFigures int64, opts ...Option) (*Histogram, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	lay, err := newLayout(lowestDiscernibleValue, highestTrackableValue, significantFigures)
	if err != nil {
		return nil, err
	}

	return &Histogram{
		layout:          *lay,
		counts:          newCounterStore(cfg.kind, lay.countsArrayLength),
		kind:            cfg.kind,
		autoResize:      cfg.autoResize,
		minNonZeroValue: math.MaxUint64,
		identity:        nextIdentity(),
	}, nil
}

// Identity returns the process-local monotonically increasing identifier
// assigned to this histogram at construction. It is opaque to
// correctness and exists only for equality checks and log correlation.
func (h *Histogram) Identity() uint64 { return h.identity }

// LowestDiscernibleValue, HighestTrackableValue and SignificantFigures
// expose the configuration a histogram was built with.
func (h *Histogram) LowestDiscernibleValue() int64 { return h.lowestDiscernibleValue }
func (h *Histogram) HighestTrackableValue() int64  { return h.highestTrackableValue }
func (h *Histogram) SignificantFigures() int64     { return h.significantFigures }
func (h *Histogram) CountsArrayLength() int        { return h.countsArrayLength }
func (h *Histogram) BucketCount() int              { return h.bucketCount }
func (h *Histogram) SubBucketCount() int           { return h.subBucketCount }

// RecordValue records a single occurrence of v.
func (h *Histogram) RecordValue(v int64) error {
	return h.RecordValueWithCount(v, 1)
}

// RecordValueWithCount records count occurrences of v.
func (h *Histogram) RecordValueWithCount(v int64, count int64) error {
	if v < 0 {
		return &InvalidArgumentError{Field: "value", Reason: "must be non-negative"}
	}
	if count < 1 {
		return &InvalidArgumentError{Field: "count", Reason: "must be >= 1"}
	}

	idx := h.countsArrayIndex(uint64(v))
	if idx < 0 || idx >= h.countsArrayLength {
		if err := h.handleRecordException(uint64(count), v); err != nil {
			return err
		}
	} else if err := h.counts.addAt(idx, uint64(count)); err != nil {
		return err
	}

	h.updateMinAndMax(uint64(v))
	h.totalCount += uint64(count)
	return nil
}

// RecordValueWithExpectedInterval records v and, if expectedInterval > 0,
// synthesizes the samples coordinated omission would otherwise have
// hidden: v-E, v-2E, ... down to (but not below) E.
func (h *Histogram) RecordValueWithExpectedInterval(v, expectedInterval int64) error {
	return h.RecordValueWithCountAndExpectedInterval(v, 1, expectedInterval)
}

// RecordValueWithCountAndExpectedInterval is RecordValueWithExpectedInterval
// with an explicit count applied to both the real and the synthesized
// samples.
func (h *Histogram) RecordValueWithCountAndExpectedInterval(v, count, expectedInterval int64) error {
	if err := h.RecordValueWithCount(v, count); err != nil {
		return err
	}
	if expectedInterval <= 0 {
		return nil
	}
	for missing := v - expectedInterval; missing >= expectedInterval; missing -= expectedInterval {
		if err := h.RecordValueWithCount(missing, count); err != nil {
			return err
		}
	}
	return nil
}

func (h *Histogram) handleRecordException(count uint64, v int64) error {
	if !h.autoResize {
		return &OutOfRangeError{Value: v, HighestTrackableValue: h.highestTrackableValue}
	}
	if err := h.resize(v); err != nil {
		return err
	}
	idx := h.countsArrayIndex(uint64(v))
	return h.counts.addAt(idx, count)
}

func (h *Histogram) updateMinAndMax(v uint64) {
	if v > h.maxValue {
		h.maxValue = v + h.unitMagnitudeMask
	}
	if v != 0 && v < h.minNonZeroValue {
		h.minNonZeroValue = v &^ h.unitMagnitudeMask
	}
}

// resize grows the counts array (and, if necessary, the bucket count) so
// that newValue becomes trackable. L, D, subBucketCount and unitMagnitude
// never change, so existing counters keep their indices unchanged.
func (h *Histogram) resize(newValue int64) error {
	newHighest := h.highestTrackableValue
	for newHighest < newValue {
		doubled := newHighest * 2
		if doubled <= newHighest {
			newHighest = newValue
			break
		}
		newHighest = doubled
	}

	bucketCount := bucketsNeededToCover(newHighest, h.subBucketCount, h.unitMagnitude)
	newLen := (bucketCount + 1) * h.subBucketHalfCount

	newStore, err := h.counts.growTo(newLen)
	if err != nil {
		return err
	}

	oldHighest := h.highestTrackableValue
	oldLen := h.countsArrayLength

	h.counts = newStore
	h.bucketCount = bucketCount
	h.countsArrayLength = newLen
	h.highestTrackableValue = int64(h.highestEquivalentValue(h.valueFromIndex(newLen - 1)))

	logrus.WithFields(logrus.Fields{
		"identity":             h.identity,
		"oldHighestTrackable":  oldHighest,
		"newHighestTrackable":  h.highestTrackableValue,
		"oldCountsArrayLength": oldLen,
		"newCountsArrayLength": newLen,
	}).Debug("hdrhistogram: auto-resized to accommodate out-of-range value")

	return nil
}

// Reset clears every counter and every aggregate statistic while
// preserving the histogram's configuration (L, H, D, autoResize, kind).
func (h *Histogram) Reset() {
	h.counts.fillZero()
	h.totalCount = 0
	h.maxValue = 0
	h.minNonZeroValue = math.MaxUint64
	h.startTimeStampMsec = 0
	h.endTimeStampMsec = 0
}

// Copy returns a deep copy of h, including a fresh identity.
func (h *Histogram) Copy() *Histogram {
	return &Histogram{
		layout:             h.layout,
		counts:             h.counts.clone(),
		kind:               h.kind,
		autoResize:         h.autoResize,
		totalCount:         h.totalCount,
		maxValue:           h.maxValue,
		minNonZeroValue:    h.minNonZeroValue,
		startTimeStampMsec: h.startTimeStampMsec,
		endTimeStampMsec:   h.endTimeStampMsec,
		identity:           nextIdentity(),
	}
}

// CopyCorrectedForCoordinatedOmission returns a copy of h in which every
// recorded value has additionally been run through the coordinated
// omission correction for the given expected interval.
func (h *Histogram) CopyCorrectedForCoordinatedOmission(expectedInterval int64) (*Histogram, error) {
	cp := h.Copy()
	cp.Reset()
	cp.startTimeStampMsec = h.startTimeStampMsec
	cp.endTimeStampMsec = h.endTimeStampMsec

	it := NewRecordedValuesIterator(h)
	for it.Next() {
		if err := cp.RecordValueWithCountAndExpectedInterval(int64(it.ValueIteratedTo), int64(it.CountAtValueIteratedTo), expectedInterval); err != nil {
			return nil, err
		}
	}
	return cp, nil
}

// AddWhileCorrectingForCoordinatedOmission merges other into h, applying
// the coordinated omission correction to every value as it is replayed.
func (h *Histogram) AddWhileCorrectingForCoordinatedOmission(other *Histogram, expectedInterval int64) error {
	it := NewRecordedValuesIterator(other)
	for it.Next() {
		if err := h.RecordValueWithCountAndExpectedInterval(int64(it.ValueIteratedTo), int64(it.CountAtValueIteratedTo), expectedInterval); err != nil {
			return err
		}
	}
	return nil
}

// Add merges other's recorded values into h, growing h if autoResize is
// enabled and other's range exceeds h's.
func (h *Histogram) Add(other *Histogram) error {
	thisTopValue := h.highestEquivalentValue(h.valueFromIndex(h.countsArrayLength - 1))
	if other.maxValue > thisTopValue {
		if !h.autoResize {
			return &OutOfRangeError{Value: int64(other.maxValue), HighestTrackableValue: h.highestTrackableValue}
		}
		if err := h.resize(int64(other.maxValue)); err != nil {
			return err
		}
	}

	if h.sameShapeAs(&other.layout) && h.countsArrayLength == other.countsArrayLength {
		for i := 0; i < other.countsArrayLength; i++ {
			c := other.counts.get(i)
			if c == 0 {
				continue
			}
			if err := h.counts.addAt(i, c); err != nil {
				return err
			}
			h.totalCount += c
		}
	} else {
		it := NewRecordedValuesIterator(other)
		for it.Next() {
			if err := h.RecordValueWithCount(int64(it.ValueIteratedTo), int64(it.CountAtValueIteratedTo)); err != nil {
				return err
			}
		}
	}

	if other.maxValue > h.maxValue {
		h.maxValue = other.maxValue
	}
	if other.minNonZeroValue < h.minNonZeroValue {
		h.minNonZeroValue = other.minNonZeroValue
	}
	if h.startTimeStampMsec == 0 || (other.startTimeStampMsec != 0 && other.startTimeStampMsec < h.startTimeStampMsec) {
		h.startTimeStampMsec = other.startTimeStampMsec
	}
	if other.endTimeStampMsec > h.endTimeStampMsec {
		h.endTimeStampMsec = other.endTimeStampMsec
	}
	return nil
}

// Subtract removes other's recorded values from h. It validates every
// counter first and fails without mutating h if any resulting count
// would go negative.
func (h *Histogram) Subtract(other *Histogram) error {
	if !h.sameShapeAs(&other.layout) {
		return &InvalidArgumentError{Field: "other", Reason: "subtract requires an identically shaped histogram"}
	}
	if other.countsArrayLength > h.countsArrayLength {
		return &InvalidArgumentError{Field: "other", Reason: "other histogram's range exceeds the receiver's"}
	}

	for i := 0; i < other.countsArrayLength; i++ {
		oc := other.counts.get(i)
		if oc == 0 {
			continue
		}
		if h.counts.get(i) < oc {
			return &InvalidArgumentError{Field: "counts", Reason: "subtracting would drive a counter negative"}
		}
	}

	var removed uint64
	for i := 0; i < other.countsArrayLength; i++ {
		oc := other.counts.get(i)
		if oc == 0 {
			continue
		}
		cur := h.counts.get(i)
		if err := h.counts.set(i, cur-oc); err != nil {
			return err
		}
		removed += oc
	}
	h.totalCount -= removed
	return nil
}

// ValuesAreEquivalent reports whether a and b fall in the same counted
// bucket.
func (h *Histogram) ValuesAreEquivalent(a, b int64) bool {
	return h.valuesAreEquivalent(uint64(a), uint64(b))
}

// LowestEquivalentValue, HighestEquivalentValue, MedianEquivalentValue and
// SizeOfEquivalentValueRange expose the per-value bucket geometry.
func (h *Histogram) LowestEquivalentValue(v int64) int64 {
	return int64(h.lowestEquivalentValue(uint64(v)))
}

func (h *Histogram) HighestEquivalentValue(v int64) int64 {
	return int64(h.highestEquivalentValue(uint64(v)))
}

func (h *Histogram) MedianEquivalentValue(v int64) int64 {
	return int64(h.medianEquivalentValue(uint64(v)))
}

func (h *Histogram) SizeOfEquivalentValueRange(v int64) int64 {
	return int64(h.sizeOfEquivalentValueRange(uint64(v)))
}

// GetTotalCount returns the number of values recorded.
func (h *Histogram) GetTotalCount() uint64 { return h.totalCount }

// GetMin returns the smallest non-zero value recorded, or 0 if nothing
// has been recorded yet.
func (h *Histogram) GetMin() uint64 {
	if h.totalCount == 0 {
		return 0
	}
	return h.minNonZeroValue
}

// GetMax returns the largest value recorded, or 0 if nothing has been
// recorded yet.
func (h *Histogram) GetMax() uint64 {
	if h.totalCount == 0 {
		return 0
	}
	return h.maxValue
}

// GetMean returns the arithmetic mean of all recorded values, or 0 if
// nothing has been recorded.
func (h *Histogram) GetMean() float64 {
	if h.totalCount == 0 {
		return 0
	}
	var totalValue float64
	it := NewRecordedValuesIterator(h)
	for it.Next() {
		totalValue += float64(h.medianEquivalentValue(it.ValueIteratedTo)) * float64(it.CountAtValueIteratedTo)
	}
	return totalValue / float64(h.totalCount)
}

// GetStdDeviation returns the population standard deviation (no Bessel
// correction) of all recorded values, or 0 if nothing has been recorded.
func (h *Histogram) GetStdDeviation() float64 {
	if h.totalCount == 0 {
		return 0
	}
	mean := h.GetMean()
	var sumSquares float64
	it := NewRecordedValuesIterator(h)
	for it.Next() {
		dev := float64(h.medianEquivalentValue(it.ValueIteratedTo)) - mean
		sumSquares += dev * dev * float64(it.CountAtValueIteratedTo)
	}
	return math.Sqrt(sumSquares / float64(h.totalCount))
}

// ulp is the unit in the last place of x: the gap to the next larger
// double. It guards the percentile target against double-rounding at
// exact percentile boundaries.
func ulp(x float64) float64 {
	return math.Nextafter(x, math.Inf(1)) - x
}

// GetValueAtPercentile returns the highest value such that percentile
// percent of recorded values are <= it (lowest equivalent value when
// percentile is exactly 0). percentile is clamped to [0, 100].
func (h *Histogram) GetValueAtPercentile(percentile float64) uint64 {
	if h.totalCount == 0 {
		return 0
	}
	if percentile < 0 {
		percentile = 0
	}
	if percentile > 100 {
		percentile = 100
	}

	fp := (percentile / 100.0) * float64(h.totalCount)
	target := uint64(math.Ceil(fp - ulp(fp)))
	if target < 1 {
		target = 1
	}

	var totalToCurrent uint64
	for i := 0; i < h.countsArrayLength; i++ {
		totalToCurrent += h.counts.get(i)
		if totalToCurrent >= target {
			v := h.valueFromIndex(i)
			if percentile == 0 {
				return h.lowestEquivalentValue(v)
			}
			return h.highestEquivalentValue(v)
		}
	}
	return 0
}

// GetValueAtPercentiles answers every requested percentile from one
// O(countsArrayLength) pass instead of one pass per percentile.
func (h *Histogram) GetValueAtPercentiles(percentiles []float64) map[float64]uint64 {
	result := make(map[float64]uint64, len(percentiles))
	if h.totalCount == 0 {
		for _, p := range percentiles {
			result[p] = 0
		}
		return result
	}

	clamp := func(p float64) float64 {
		if p < 0 {
			return 0
		}
		if p > 100 {
			return 100
		}
		return p
	}

	unique := make(map[float64]struct{}, len(percentiles))
	for _, p := range percentiles {
		unique[clamp(p)] = struct{}{}
	}
	sorted := make([]float64, 0, len(unique))
	for p := range unique {
		sorted = append(sorted, p)
	}
	sort.Float64s(sorted)

	targets := make([]uint64, len(sorted))
	for j, p := range sorted {
		fp := (p / 100.0) * float64(h.totalCount)
		target := uint64(math.Ceil(fp - ulp(fp)))
		if target < 1 {
			target = 1
		}
		targets[j] = target
	}

	answers := make(map[float64]uint64, len(sorted))
	var totalToCurrent uint64
	j := 0
	for i := 0; i < h.countsArrayLength && j < len(sorted); i++ {
		totalToCurrent += h.counts.get(i)
		for j < len(sorted) && totalToCurrent >= targets[j] {
			v := h.valueFromIndex(i)
			if sorted[j] == 0 {
				answers[sorted[j]] = h.lowestEquivalentValue(v)
			} else {
				answers[sorted[j]] = h.highestEquivalentValue(v)
			}
			j++
		}
	}
	for ; j < len(sorted); j++ {
		answers[sorted[j]] = h.GetMax()
	}

	for _, p := range percentiles {
		result[p] = answers[clamp(p)]
	}
	return result
}
