package hdrhistogram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDenseStoreBasic(t *testing.T) {
	s := newDenseStore[uint32](10)
	assert.Equal(t, 10, s.len())
	assert.Equal(t, uint64(0), s.get(3))

	require.NoError(t, s.incrementAt(3))
	require.NoError(t, s.addAt(3, 4))
	assert.Equal(t, uint64(5), s.get(3))

	require.NoError(t, s.set(7, 100))
	assert.Equal(t, uint64(100), s.get(7))

	s.fillZero()
	assert.Equal(t, uint64(0), s.get(3))
	assert.Equal(t, uint64(0), s.get(7))
}

func TestDenseStoreOverflow(t *testing.T) {
	s := newDenseStore[uint8](4)
	require.NoError(t, s.set(0, 255))

	err := s.incrementAt(0)
	assert.Error(t, err)
	var overflow *CounterOverflowError
	assert.ErrorAs(t, err, &overflow)
	assert.Equal(t, 0, overflow.Index)
	assert.Equal(t, uint64(255), overflow.Limit)

	err = s.set(1, 256)
	assert.Error(t, err)
}

func TestMaxCounterValue(t *testing.T) {
	assert.Equal(t, uint64(255), maxCounterValue[uint8]())
	assert.Equal(t, uint64(65535), maxCounterValue[uint16]())
	assert.Equal(t, uint64(4294967295), maxCounterValue[uint32]())
	assert.Equal(t, uint64(18446744073709551615), maxCounterValue[uint64]())
}

func TestDenseStoreGrowTo(t *testing.T) {
	s := newDenseStore[uint32](4)
	require.NoError(t, s.set(2, 9))

	grownAny, err := s.growTo(8)
	require.NoError(t, err)
	grown := grownAny.(*denseStore[uint32])
	assert.Equal(t, 8, grown.len())
	assert.Equal(t, uint64(9), grown.get(2))

	sameAny, err := s.growTo(2)
	require.NoError(t, err)
	assert.Same(t, s, sameAny, "growTo a smaller length must be a no-op returning the same store")
}

func TestDenseStoreClone(t *testing.T) {
	s := newDenseStore[uint16](4)
	require.NoError(t, s.set(1, 42))

	clone := s.clone()
	require.NoError(t, s.set(1, 0))

	assert.Equal(t, uint64(42), clone.get(1), "mutating the original must not affect the clone")
}

func TestPackedStoreBasic(t *testing.T) {
	s := newPackedStore(1000)
	assert.Equal(t, 1000, s.len())
	assert.Equal(t, uint64(0), s.get(500))

	require.NoError(t, s.incrementAt(500))
	assert.Equal(t, uint64(1), s.get(500))
	assert.Len(t, s.sparse, 1, "packed store must only materialize touched indices")

	require.NoError(t, s.set(500, 0))
	assert.Len(t, s.sparse, 0, "setting a counter back to zero must remove its sparse entry")
}

func TestPackedStoreGrowTo(t *testing.T) {
	s := newPackedStore(10)
	require.NoError(t, s.set(5, 3))

	grown, err := s.growTo(20)
	require.NoError(t, err)
	assert.Equal(t, 20, grown.len())
	assert.Equal(t, uint64(3), grown.get(5))
}

// Width independence (universal invariant #7) and packed ≡ dense
// (invariant #8): a sequence of adds produces identical results across
// the uint32, uint64 and packed stores, as long as no width overflows.
func TestCounterStoreWidthIndependence(t *testing.T) {
	length := 64
	stores := map[Kind]counterStore{
		KindUint32: newCounterStore(KindUint32, length),
		KindUint64: newCounterStore(KindUint64, length),
		KindPacked: newCounterStore(KindPacked, length),
	}

	for i := 0; i < length; i++ {
		for kind, s := range stores {
			require.NoError(t, s.addAt(i, uint64(i%7)), "kind %s", kind)
		}
	}

	for i := 0; i < length; i++ {
		want := stores[KindUint64].get(i)
		for kind, s := range stores {
			assert.Equal(t, want, s.get(i), "kind %s disagrees at index %d", kind, i)
		}
	}
}
