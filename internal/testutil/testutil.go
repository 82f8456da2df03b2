// Package testutil builds in-memory sources and synthetic containers for
// tests.
package testutil

import (
	"fmt"
	"io"
	"sync/atomic"
)

// MockSource implements source.Source over a byte slice and counts reads.
type MockSource struct {
	data  []byte
	id    string
	reads atomic.Int64
}

// NewMockSource returns a source backed by the provided data.
func NewMockSource(data []byte) *MockSource {
	return &MockSource{data: data, id: fmt.Sprintf("mock:%p", &data)}
}

// ReadAt implements io.ReaderAt semantics over the backing slice.
func (m *MockSource) ReadAt(p []byte, off int64) (int, error) {
	m.reads.Add(1)
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Size returns the total size of the backing data.
func (m *MockSource) Size() int64 {
	return int64(len(m.data))
}

// SourceID returns an identifier unique to this mock.
func (m *MockSource) SourceID() string {
	return m.id
}

// Reads returns the number of ReadAt calls so far.
func (m *MockSource) Reads() int64 {
	return m.reads.Load()
}
