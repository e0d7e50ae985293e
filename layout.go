package hdrhistogram

import "math/bits"

// layout is the pure arithmetic side of a histogram: the geometric bucket
// shape derived from (lowestDiscernibleValue, highestTrackableValue,
// significantFigures) and the bijection between a recorded value and the
// counts-array index that tracks it. It carries no counters and no
// aggregate state, so it can be copied by value and shared freely.
//
// Fields are kept flat and contiguous (no pointers, no nested structs) so
// that embedding a layout in Histogram keeps the hot record() fields
// contiguous and directly ahead of the counts store reference.
type layout struct {
	lowestDiscernibleValue  int64
	highestTrackableValue   int64
	significantFigures      int64
	unitMagnitude           int
	unitMagnitudeMask       uint64
	subBucketCountMagnitude int
	subBucketCount          int
	subBucketHalfCount      int
	subBucketHalfCountMagn  int
	subBucketMask           uint64
	bucketCount             int
	countsArrayLength       int
}

const (
	minSignificantFigures = 0
	maxSignificantFigures = 5
)

var pow10 = [maxSignificantFigures + 1]int64{1, 10, 100, 1000, 10000, 100000}

func newLayout(lowestDiscernibleValue, highestTrackableValue, significantFigures int64) (*layout, error) {
	if lowestDiscernibleValue < 1 {
		return nil, &InvalidArgumentError{Field: "lowestDiscernibleValue", Reason: "must be >= 1"}
	}
	if highestTrackableValue < 2*lowestDiscernibleValue {
		return nil, &InvalidArgumentError{Field: "highestTrackableValue", Reason: "must be >= 2 * lowestDiscernibleValue"}
	}
	if significantFigures < minSignificantFigures || significantFigures > maxSignificantFigures {
		return nil, &InvalidArgumentError{Field: "significantFigures", Reason: "must be in [0, 5]"}
	}

	unitMagnitude := bits.Len64(uint64(lowestDiscernibleValue)) - 1
	unitMagnitudeMask := uint64(1)<<unitMagnitude - 1

	largestValueWithSingleUnitResolution := 2 * pow10[significantFigures]
	subBucketCountMagnitude := ceilLog2(uint64(largestValueWithSingleUnitResolution))
	subBucketCount := 1 << subBucketCountMagnitude
	subBucketHalfCount := subBucketCount >> 1
	subBucketHalfCountMagn := subBucketCountMagnitude - 1
	subBucketMask := uint64(subBucketCount-1) << unitMagnitude

	bucketCount := bucketsNeededToCover(highestTrackableValue, subBucketCount, unitMagnitude)
	countsArrayLength := (bucketCount + 1) * subBucketHalfCount

	return &layout{
		lowestDiscernibleValue:  lowestDiscernibleValue,
		highestTrackableValue:   highestTrackableValue,
		significantFigures:      significantFigures,
		unitMagnitude:           unitMagnitude,
		unitMagnitudeMask:       unitMagnitudeMask,
		subBucketCountMagnitude: subBucketCountMagnitude,
		subBucketCount:          subBucketCount,
		subBucketHalfCount:      subBucketHalfCount,
		subBucketHalfCountMagn:  subBucketHalfCountMagn,
		subBucketMask:           subBucketMask,
		bucketCount:             bucketCount,
		countsArrayLength:       countsArrayLength,
	}, nil
}

// ceilLog2 returns the smallest n such that 1<<n >= v, for v >= 1.
func ceilLog2(v uint64) int {
	if v <= 1 {
		return 0
	}
	return bits.Len64(v - 1)
}

// bucketsNeededToCover returns the smallest bucket count B>=1 such that
// subBucketCount*2^(B-1+unitMagnitude) > highestTrackableValue, clamping
// once doubling would overflow a 64-bit value.
func bucketsNeededToCover(highestTrackableValue int64, subBucketCount, unitMagnitude int) int {
	smallestUntrackable := uint64(subBucketCount) << unitMagnitude
	bucketsNeeded := 1
	for smallestUntrackable <= uint64(highestTrackableValue) {
		if smallestUntrackable > uint64(1)<<62 {
			bucketsNeeded++
			break
		}
		smallestUntrackable <<= 1
		bucketsNeeded++
	}
	return bucketsNeeded
}

func (l *layout) getBucketIndex(v uint64) int {
	pow2Ceiling := bits.Len64(v | l.subBucketMask)
	bucketIndex := pow2Ceiling - l.unitMagnitude - (l.subBucketHalfCountMagn + 1)
	if bucketIndex < 0 {
		bucketIndex = 0
	}
	return bucketIndex
}

func (l *layout) getSubBucketIndex(v uint64, bucketIndex int) int {
	return int(v >> uint(bucketIndex+l.unitMagnitude))
}

func (l *layout) calculateIndex(bucketIndex, subBucketIndex int) int {
	bucketBaseIndex := (bucketIndex + 1) << l.subBucketHalfCountMagn
	offsetInBucket := subBucketIndex - l.subBucketHalfCount
	return bucketBaseIndex + offsetInBucket
}

// countsArrayIndex maps a recorded value to the counter slot that tracks
// every value in its equivalent range. It is total for all v>=0; callers
// decide what to do when the result falls outside [0, countsArrayLength).
func (l *layout) countsArrayIndex(v uint64) int {
	bucketIndex := l.getBucketIndex(v)
	subBucketIndex := l.getSubBucketIndex(v, bucketIndex)
	return l.calculateIndex(bucketIndex, subBucketIndex)
}

// valueFromIndex is the inverse of countsArrayIndex on the in-range
// subdomain: countsArrayIndex(valueFromIndex(i)) == i for every valid i.
func (l *layout) valueFromIndex(i int) uint64 {
	bucketIndex := (i >> l.subBucketHalfCountMagn) - 1
	subBucketIndex := (i & (l.subBucketHalfCount - 1)) + l.subBucketHalfCount
	if bucketIndex < 0 {
		subBucketIndex -= l.subBucketHalfCount
		bucketIndex = 0
	}
	return uint64(subBucketIndex) << uint(bucketIndex+l.unitMagnitude)
}

func (l *layout) lowestEquivalentValue(v uint64) uint64 {
	return l.valueFromIndex(l.countsArrayIndex(v))
}

func (l *layout) sizeOfEquivalentValueRange(v uint64) uint64 {
	bucketIndex := l.getBucketIndex(v)
	return uint64(1) << uint(l.unitMagnitude+bucketIndex)
}

func (l *layout) highestEquivalentValue(v uint64) uint64 {
	return l.lowestEquivalentValue(v) + l.sizeOfEquivalentValueRange(v) - 1
}

func (l *layout) medianEquivalentValue(v uint64) uint64 {
	return l.lowestEquivalentValue(v) + l.sizeOfEquivalentValueRange(v)>>1
}

func (l *layout) valuesAreEquivalent(a, b uint64) bool {
	return l.lowestEquivalentValue(a) == l.lowestEquivalentValue(b)
}

func (l *layout) sameShapeAs(other *layout) bool {
	return l.unitMagnitude == other.unitMagnitude && l.subBucketCount == other.subBucketCount
}
