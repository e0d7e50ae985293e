package hdrhistogram

import (
	"bytes"
	"encoding/binary"
	"math"
)

// Binary payload layout: a big-endian fixed header followed by a varint
// body.
//
//	0  4  cookie (magic | format version | counter kind)
//	4  4  payloadLengthBytes
//	8  4  normalizingIndexOffset (always 0; shifted histograms are unsupported)
//	12 4  significantFigures
//	16 8  lowestDiscernibleValue
//	24 8  highestTrackableValue
//	32 8  integerToDoubleValueConversionRatio (IEEE-754 double bits; always 1.0)
//	40 .. zig-zag varint stream of counter values, index 0 to last non-zero;
//	      a negative decoded value is a run of that many zero counters.
const (
	codecMagic      uint32 = 0x48440000 // "HD", low 16 bits hold version|kind
	codecMagicMask  uint32 = 0xffff0000
	formatVersion   uint32 = 1
	headerSizeBytes        = 40
)

// Encode serializes h into a self-describing byte slice. The counter
// width/kind travels in the cookie so Decode can default to the same
// kind, though a caller may override it with WithCounterStore.
func (h *Histogram) Encode() ([]byte, error) {
	var body bytes.Buffer
	if err := writeCounts(&body, h.counts, lastNonZeroIndex(h.counts, h.countsArrayLength)); err != nil {
		return nil, err
	}

	total := headerSizeBytes + body.Len()
	buf := make([]byte, headerSizeBytes, total)

	// kind occupies bits 0-7, format version bits 8-15, magic the rest.
	cookie := codecMagic | uint32(h.kind) | formatVersion<<8

	binary.BigEndian.PutUint32(buf[0:4], cookie)
	binary.BigEndian.PutUint32(buf[4:8], uint32(total))
	binary.BigEndian.PutUint32(buf[8:12], 0)
	binary.BigEndian.PutUint32(buf[12:16], uint32(h.significantFigures))
	binary.BigEndian.PutUint64(buf[16:24], uint64(h.lowestDiscernibleValue))
	binary.BigEndian.PutUint64(buf[24:32], uint64(h.highestTrackableValue))
	binary.BigEndian.PutUint64(buf[32:40], math.Float64bits(1.0))

	buf = append(buf, body.Bytes()...)
	return buf, nil
}

// Decode reconstructs a Histogram from a payload produced by Encode.
// totalCount, minNonZeroValue and maxValue are recomputed from the
// decoded counters. Partial decoding is never exposed: any structural
// problem returns an error and a nil Histogram.
func Decode(data []byte, opts ...Option) (*Histogram, error) {
	if len(data) < headerSizeBytes {
		return nil, &MalformedPayloadError{Reason: "payload shorter than the fixed header"}
	}

	cookie := binary.BigEndian.Uint32(data[0:4])
	if cookie&codecMagicMask != codecMagic&codecMagicMask {
		return nil, &UnknownCookieError{Cookie: cookie}
	}
	version := (cookie >> 8) & 0xff
	kind := Kind(cookie & 0xff)
	if version != formatVersion {
		return nil, &MalformedPayloadError{Reason: "unsupported encoding version"}
	}

	payloadLength := binary.BigEndian.Uint32(data[4:8])
	if int(payloadLength) != len(data) {
		return nil, &LengthMismatchError{Declared: int(payloadLength), Actual: len(data)}
	}

	normalizingOffset := binary.BigEndian.Uint32(data[8:12])
	if normalizingOffset != 0 {
		return nil, &MalformedPayloadError{Reason: "non-zero normalizing index offset is not supported"}
	}

	significantFigures := int64(binary.BigEndian.Uint32(data[12:16]))
	lowest := int64(binary.BigEndian.Uint64(data[16:24]))
	highest := int64(binary.BigEndian.Uint64(data[24:32]))
	_ = binary.BigEndian.Uint64(data[32:40]) // integerToDoubleValueConversionRatio: informational only

	cfg := defaultConfig()
	cfg.kind = kind
	for _, opt := range opts {
		opt(cfg)
	}

	h, err := New(lowest, highest, significantFigures, WithAutoResize(cfg.autoResize), WithCounterStore(cfg.kind))
	if err != nil {
		return nil, err
	}

	body := bytes.NewReader(data[headerSizeBytes:])
	index := 0
	for body.Len() > 0 {
		v, err := binary.ReadVarint(body)
		if err != nil {
			return nil, &MalformedPayloadError{Reason: "corrupt varint in counter stream: " + err.Error()}
		}
		if v < 0 {
			index += int(-v)
			continue
		}
		if index >= h.countsArrayLength {
			return nil, &MalformedPayloadError{Reason: "counter index exceeds counts array length"}
		}
		if err := h.counts.set(index, uint64(v)); err != nil {
			return nil, err
		}
		h.totalCount += uint64(v)
		index++
	}

	h.maxValue = 0
	h.minNonZeroValue = math.MaxUint64
	for i := 0; i < h.countsArrayLength; i++ {
		if h.counts.get(i) == 0 {
			continue
		}
		h.updateMinAndMax(h.valueFromIndex(i))
	}

	return h, nil
}

func lastNonZeroIndex(store counterStore, length int) int {
	for i := length - 1; i >= 0; i-- {
		if store.get(i) != 0 {
			return i
		}
	}
	return -1
}

// writeCounts streams counter values from index 0 through lastIdx as
// zig-zag varints: a literal non-negative value is a counter, a negative
// value is the length of a run of zero counters to skip.
func writeCounts(w *bytes.Buffer, store counterStore, lastIdx int) error {
	if lastIdx < 0 {
		return nil
	}
	var zeroRun int64
	buf := make([]byte, binary.MaxVarintLen64)
	for i := 0; i <= lastIdx; i++ {
		c := store.get(i)
		if c == 0 {
			zeroRun++
			continue
		}
		if zeroRun > 0 {
			n := binary.PutVarint(buf, -zeroRun)
			w.Write(buf[:n])
			zeroRun = 0
		}
		n := binary.PutVarint(buf, int64(c))
		w.Write(buf[:n])
	}
	return nil
}
