package stream

import (
	"fmt"
	"io"

	"github.com/meigma/assetpack/internal/sizing"
	"github.com/meigma/assetpack/source"
)

// SliceSource exposes the region [start, start+length) of an inner source.
//
// A relative slice is addressed from zero. An absolute slice keeps the
// inner coordinates: valid offsets are [start, start+length) and Size
// reports start+length.
type SliceSource struct {
	inner    source.Source
	start    int64
	length   int64
	relative bool
}

// Slice returns a view of [start, start+length) of inner. It fails with
// source.ErrOutOfRange when the region does not lie inside inner.
func Slice(inner source.Source, start, length uint64, relative bool) (*SliceSource, error) {
	size := inner.Size()
	if size < 0 || !sizing.Within(start, length, uint64(size)) {
		return nil, fmt.Errorf("%w: slice [%d, +%d) of %d bytes", source.ErrOutOfRange, start, length, size)
	}
	return &SliceSource{
		inner:    inner,
		start:    int64(start),  //nolint:gosec // bounded by inner size above
		length:   int64(length), //nolint:gosec // bounded by inner size above
		relative: relative,
	}, nil
}

// ReadAt implements io.ReaderAt.
func (s *SliceSource) ReadAt(p []byte, off int64) (int, error) {
	rel := off
	if !s.relative {
		if off < s.start {
			return 0, fmt.Errorf("%w: offset %d before slice start %d", source.ErrOutOfRange, off, s.start)
		}
		rel = off - s.start
	}
	if rel < 0 {
		return 0, fmt.Errorf("read at %d: negative offset", off)
	}
	if rel >= s.length {
		return 0, io.EOF
	}
	want := p
	if remaining := s.length - rel; int64(len(want)) > remaining {
		want = want[:remaining]
	}
	n, err := s.inner.ReadAt(want, s.start+rel)
	if err == nil && n < len(p) {
		err = io.EOF
	}
	return n, err
}

// Size returns the slice length, or start+length for absolute slices.
func (s *SliceSource) Size() int64 {
	if s.relative {
		return s.length
	}
	return s.start + s.length
}

// SourceID identifies the sliced region.
func (s *SliceSource) SourceID() string {
	return fmt.Sprintf("%s|slice:%d+%d", s.inner.SourceID(), s.start, s.length)
}
