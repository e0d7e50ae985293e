package hdrhistogram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLayoutValidation(t *testing.T) {
	_, err := newLayout(0, 1000, 3)
	assert.Error(t, err, "lowestDiscernibleValue < 1 must be rejected")

	_, err = newLayout(1, 1, 3)
	assert.Error(t, err, "highestTrackableValue < 2*lowestDiscernibleValue must be rejected")

	_, err = newLayout(1, 1000, 6)
	assert.Error(t, err, "significantFigures > 5 must be rejected")

	_, err = newLayout(1, 1000, -1)
	assert.Error(t, err, "significantFigures < 0 must be rejected")

	lay, err := newLayout(1, 3600000000, 3)
	require.NoError(t, err)
	assert.Positive(t, lay.countsArrayLength)
	assert.Positive(t, lay.bucketCount)
}

func TestCeilLog2(t *testing.T) {
	cases := map[uint64]int{
		0:    0,
		1:    0,
		2:    1,
		3:    2,
		4:    2,
		5:    3,
		1023: 10,
		1024: 10,
		1025: 11,
	}
	for v, want := range cases {
		assert.Equal(t, want, ceilLog2(v), "ceilLog2(%d)", v)
	}
}

// Index round-trip: countsArrayIndex(valueFromIndex(i)) == i for every
// valid i (universal invariant #2).
func TestIndexRoundTrip(t *testing.T) {
	lay, err := newLayout(1, 3600000000, 3)
	require.NoError(t, err)

	for i := 0; i < lay.countsArrayLength; i++ {
		v := lay.valueFromIndex(i)
		got := lay.countsArrayIndex(v)
		assert.Equal(t, i, got, "round-trip mismatch at index %d (value %d)", i, v)
	}
}

// Equivalence closure: every u in [lowestEquivalentValue(v),
// highestEquivalentValue(v)] maps to the same index as v (invariant #1).
func TestEquivalenceClosure(t *testing.T) {
	lay, err := newLayout(1, 100000, 3)
	require.NoError(t, err)

	for _, v := range []uint64{1, 7, 42, 999, 12345, 99999} {
		idx := lay.countsArrayIndex(v)
		lo := lay.lowestEquivalentValue(v)
		hi := lay.highestEquivalentValue(v)
		for u := lo; u <= hi; u++ {
			assert.Equal(t, idx, lay.countsArrayIndex(u), "value %d in range of %d", u, v)
		}
	}
}

func TestValuesAreEquivalent(t *testing.T) {
	lay, err := newLayout(1, 100000, 3)
	require.NoError(t, err)

	assert.True(t, lay.valuesAreEquivalent(lay.lowestEquivalentValue(5000), lay.highestEquivalentValue(5000)))
	assert.False(t, lay.valuesAreEquivalent(1, 100000))
}

func TestSameShapeAs(t *testing.T) {
	a, err := newLayout(1, 100000, 3)
	require.NoError(t, err)
	b, err := newLayout(1, 200000, 3)
	require.NoError(t, err)
	c, err := newLayout(1, 100000, 2)
	require.NoError(t, err)

	assert.True(t, a.sameShapeAs(b), "different H with same unitMagnitude/subBucketCount is still the same shape")
	assert.False(t, a.sameShapeAs(c), "different significant figures changes subBucketCount")
}
