package stream

import (
	"fmt"
	"io"

	"github.com/meigma/assetpack/source"
)

// PrefixSource logically prepends fixed bytes ahead of an inner source.
// Inner offsets shift by the prefix length.
type PrefixSource struct {
	prefix []byte
	inner  source.Source
}

// Prefix returns a source reading prefix followed by inner.
// The prefix is copied.
func Prefix(prefix []byte, inner source.Source) *PrefixSource {
	return &PrefixSource{prefix: append([]byte(nil), prefix...), inner: inner}
}

// ReadAt implements io.ReaderAt.
func (s *PrefixSource) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("read at %d: negative offset", off)
	}
	if off >= s.Size() {
		return 0, io.EOF
	}
	plen := int64(len(s.prefix))
	n := 0
	if off < plen {
		n = copy(p, s.prefix[off:])
		if n == len(p) {
			return n, nil
		}
	}
	innerOff := off + int64(n) - plen
	m, err := s.inner.ReadAt(p[n:], innerOff)
	return n + m, err
}

// Size returns the prefix length plus the inner size.
func (s *PrefixSource) Size() int64 {
	return int64(len(s.prefix)) + s.inner.Size()
}

// SourceID identifies the prefixed stream.
func (s *PrefixSource) SourceID() string {
	return fmt.Sprintf("%s|prefix:%x", s.inner.SourceID(), s.prefix)
}
