package format

import (
	"fmt"

	"github.com/meigma/assetpack/internal/sizing"
)

// MaxEntries is the largest entry count SaneCount accepts (1M).
const MaxEntries = 1 << 20

// SaneCount checks a header-declared entry count before anything is
// allocated or iterated from it. It rejects:
//   - n <= 0
//   - n > MaxEntries
//   - n * minEntrySize overflowing uint64
//   - n * minEntrySize exceeding maxOffset
//
// n * minEntrySize == maxOffset is accepted.
func SaneCount(n int64, minEntrySize, maxOffset uint64) error {
	if n <= 0 {
		return fmt.Errorf("%w: entry count %d", ErrNotThisFormat, n)
	}
	return checkCount(n, minEntrySize, maxOffset)
}

// SaneCountOrEmpty is SaneCount for formats that allow zero entries.
func SaneCountOrEmpty(n int64, minEntrySize, maxOffset uint64) error {
	if n == 0 {
		return nil
	}
	return SaneCount(n, minEntrySize, maxOffset)
}

func checkCount(n int64, minEntrySize, maxOffset uint64) error {
	if n > MaxEntries {
		return fmt.Errorf("%w: entry count %d exceeds %d", ErrMalformedIndex, n, MaxEntries)
	}
	total, ok := sizing.MulUint64(uint64(n), minEntrySize)
	if !ok {
		return fmt.Errorf("%w: %d entries of %d bytes overflows", ErrMalformedIndex, n, minEntrySize)
	}
	if total > maxOffset {
		return fmt.Errorf("%w: %d entries of %d bytes exceed %d byte source", ErrMalformedIndex, n, minEntrySize, maxOffset)
	}
	return nil
}

// CheckPlacement rejects an entry whose byte range overflows or ends past
// maxOffset.
func CheckPlacement(e Entry, maxOffset uint64) error {
	end, ok := sizing.AddUint64(e.Offset, e.Size)
	if !ok {
		return fmt.Errorf("%w: offset %d + size %d overflows", ErrMalformedIndex, e.Offset, e.Size)
	}
	if end > maxOffset {
		return fmt.Errorf("%w: entry [%d, %d) beyond %d", ErrOutOfRange, e.Offset, end, maxOffset)
	}
	return nil
}

// DataStart validates the offset where entry data begins for a fixed-stride
// index: it must not overlap the index (header + count*stride) and must lie
// within the source.
func DataStart(dataOffset, headerSize uint64, count int64, stride, maxOffset uint64) error {
	if count < 0 {
		return fmt.Errorf("%w: entry count %d", ErrMalformedIndex, count)
	}
	indexSize, ok := sizing.MulUint64(uint64(count), stride)
	if !ok {
		return fmt.Errorf("%w: index size overflows", ErrMalformedIndex)
	}
	indexEnd, ok := sizing.AddUint64(headerSize, indexSize)
	if !ok {
		return fmt.Errorf("%w: index end overflows", ErrMalformedIndex)
	}
	if dataOffset < indexEnd {
		return fmt.Errorf("%w: data offset %#x inside index ending at %#x", ErrMalformedIndex, dataOffset, indexEnd)
	}
	if dataOffset > maxOffset {
		return fmt.Errorf("%w: data offset %#x beyond %d", ErrOutOfRange, dataOffset, maxOffset)
	}
	return nil
}
