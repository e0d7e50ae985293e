package hdrhistogram

import "math"

// RecordedValuesIterator is a lazy cursor over a Histogram's non-zero
// counters, ordered from lowest to highest value. It holds a non-owning
// back-reference to the histogram and must not outlive a Reset or resize
// of it. The cursor shape is advance-then-check rather than a channel or
// a callback: call Next until it returns false.
type RecordedValuesIterator struct {
	h     *Histogram
	index int

	totalCountToThisValue uint64

	ValueIteratedTo               uint64
	CountAtValueIteratedTo        uint64
	CountAddedInThisIterationStep uint64
	TotalCountToThisValue         uint64
}

// NewRecordedValuesIterator returns a cursor positioned before the first
// recorded value of h.
func NewRecordedValuesIterator(h *Histogram) *RecordedValuesIterator {
	return &RecordedValuesIterator{h: h, index: -1}
}

// HasNext reports whether any recorded value remains unvisited.
func (it *RecordedValuesIterator) HasNext() bool {
	return it.totalCountToThisValue < it.h.totalCount
}

// Next advances to the next non-zero counter, returning false once every
// recorded value has been visited.
func (it *RecordedValuesIterator) Next() bool {
	for it.index+1 < it.h.countsArrayLength {
		it.index++
		c := it.h.counts.get(it.index)
		if c == 0 {
			continue
		}
		it.CountAtValueIteratedTo = c
		it.CountAddedInThisIterationStep = c
		it.totalCountToThisValue += c
		it.TotalCountToThisValue = it.totalCountToThisValue
		it.ValueIteratedTo = it.h.highestEquivalentValue(it.h.valueFromIndex(it.index))
		return true
	}
	return false
}

// PercentileIterator is a lazy cursor over percentile reporting points
// whose resolution doubles every ticksPerHalfDistance steps as the
// percentile approaches 100. It emits one trailing point at exactly
// 100%.
type PercentileIterator struct {
	h                    *Histogram
	ticksPerHalfDistance int

	index                 int
	totalCountToThisValue uint64
	percentileToIterateTo float64
	reachedLast           bool

	ValueIteratedTo               uint64
	CountAtValueIteratedTo        uint64
	CountAddedInThisIterationStep uint64
	TotalCountToThisValue         uint64
	PercentileLevelIteratedTo     float64
}

// NewPercentileIterator returns a cursor positioned before the first
// reporting point of h. ticksPerHalfDistance must be >= 1.
func NewPercentileIterator(h *Histogram, ticksPerHalfDistance int) *PercentileIterator {
	if ticksPerHalfDistance < 1 {
		ticksPerHalfDistance = 1
	}
	return &PercentileIterator{h: h, index: -1, ticksPerHalfDistance: ticksPerHalfDistance}
}

// HasNext reports whether another reporting point remains.
func (it *PercentileIterator) HasNext() bool {
	return !it.reachedLast && it.h.totalCount > 0
}

func (it *PercentileIterator) incrementPercentile() {
	if it.percentileToIterateTo >= 100.0 {
		it.percentileToIterateTo = 100.0
		return
	}
	current := it.percentileToIterateTo
	halfDistance := math.Pow(2, math.Ceil(math.Log2(100.0/(100.0-current))))
	step := 50.0 / (halfDistance * float64(it.ticksPerHalfDistance))
	next := current + step
	if next > 100.0 {
		next = 100.0
	}
	it.percentileToIterateTo = next
}

// Next advances to the next reporting point, returning false once the
// trailing 100% point has been emitted.
func (it *PercentileIterator) Next() bool {
	if !it.HasNext() {
		return false
	}
	if it.totalCountToThisValue >= it.h.totalCount {
		// Every recorded value has been visited: emit the trailing 100%
		// point at the last reported value.
		it.CountAddedInThisIterationStep = 0
		it.PercentileLevelIteratedTo = 100.0
		it.reachedLast = true
		return true
	}
	var stepCount uint64
	for it.index+1 < it.h.countsArrayLength {
		it.index++
		c := it.h.counts.get(it.index)
		it.totalCountToThisValue += c
		stepCount += c

		currentPercentile := 100.0 * float64(it.totalCountToThisValue) / float64(it.h.totalCount)
		if currentPercentile >= it.percentileToIterateTo {
			it.ValueIteratedTo = it.h.highestEquivalentValue(it.h.valueFromIndex(it.index))
			it.CountAtValueIteratedTo = c
			it.CountAddedInThisIterationStep = stepCount
			it.TotalCountToThisValue = it.totalCountToThisValue
			it.PercentileLevelIteratedTo = it.percentileToIterateTo
			it.incrementPercentile()
			return true
		}
	}
	return false
}

// BucketStep is one reporting point of a LinearBucketValues or
// LogarithmicBucketValues scan.
type BucketStep struct {
	ValueIteratedTo               uint64
	CountAtValueIteratedTo        uint64
	CountAddedInThisIterationStep uint64
	TotalCountToThisValue         uint64
}

// LinearBucketValues buckets every recorded value into fixed-width
// linear steps of valueUnitsPerBucket, in one forward pass over the
// counts array. It supplements the percentile/recorded-values cursors
// with the fixed-step shape callers commonly want for charting.
func (h *Histogram) LinearBucketValues(valueUnitsPerBucket uint64) []BucketStep {
	if valueUnitsPerBucket == 0 {
		valueUnitsPerBucket = 1
	}
	var steps []BucketStep
	if h.totalCount == 0 {
		return steps
	}

	ceiling := valueUnitsPerBucket
	var runningTotal, stepCount uint64
	for i := 0; i < h.countsArrayLength; i++ {
		v := h.highestEquivalentValue(h.valueFromIndex(i))
		c := h.counts.get(i)
		for v >= ceiling {
			steps = append(steps, BucketStep{
				ValueIteratedTo:               ceiling - 1,
				CountAddedInThisIterationStep: stepCount,
				TotalCountToThisValue:         runningTotal,
			})
			stepCount = 0
			ceiling += valueUnitsPerBucket
		}
		runningTotal += c
		stepCount += c
	}
	steps = append(steps, BucketStep{
		ValueIteratedTo:               ceiling - 1,
		CountAtValueIteratedTo:        stepCount,
		CountAddedInThisIterationStep: stepCount,
		TotalCountToThisValue:         runningTotal,
	})
	return steps
}

// LogarithmicBucketValues is LinearBucketValues with a geometrically
// growing step: the first bucket ends at valueUnitsInFirstBucket, and
// each subsequent bucket's upper bound is logBase times the previous one
// (for 10 and 2.0 the buckets end at 10, 20, 40, 80, ...).
func (h *Histogram) LogarithmicBucketValues(valueUnitsInFirstBucket uint64, logBase float64) []BucketStep {
	if valueUnitsInFirstBucket == 0 {
		valueUnitsInFirstBucket = 1
	}
	if logBase <= 1.0 {
		logBase = 2.0
	}
	var steps []BucketStep
	if h.totalCount == 0 {
		return steps
	}

	ceiling := valueUnitsInFirstBucket
	var runningTotal, stepCount uint64
	for i := 0; i < h.countsArrayLength; i++ {
		v := h.highestEquivalentValue(h.valueFromIndex(i))
		c := h.counts.get(i)
		for v >= ceiling {
			steps = append(steps, BucketStep{
				ValueIteratedTo:               ceiling - 1,
				CountAddedInThisIterationStep: stepCount,
				TotalCountToThisValue:         runningTotal,
			})
			stepCount = 0
			next := uint64(math.Ceil(float64(ceiling) * logBase))
			if next <= ceiling {
				next = ceiling + 1
			}
			ceiling = next
		}
		runningTotal += c
		stepCount += c
	}
	steps = append(steps, BucketStep{
		ValueIteratedTo:               ceiling - 1,
		CountAtValueIteratedTo:        stepCount,
		CountAddedInThisIterationStep: stepCount,
		TotalCountToThisValue:         runningTotal,
	})
	return steps
}
