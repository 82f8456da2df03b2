// Package source provides random-access byte sources and the bounds-checked
// View that format probes read headers through.
//
// A Source is the physical file (or a transformed stream standing in for
// one). A View layers fixed-width reads, zero-terminated strings and a
// reservation window on top of a Source, and turns every read beyond the
// end of the source into an error wrapping ErrOutOfRange instead of a
// short read or a panic.
package source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/opencontainers/go-digest"
)

// ErrOutOfRange is returned when a read falls outside the source or outside
// a reserved window.
var ErrOutOfRange = errors.New("assetpack: read out of range")

// Source provides random access to the bytes of one asset file.
//
// Implementations must be safe for concurrent ReadAt calls.
// SourceID must return a stable identifier for the underlying content.
type Source interface {
	io.ReaderAt
	Size() int64
	SourceID() string
}

// Memory is an in-memory Source.
type Memory struct {
	data     []byte
	sourceID string
}

// Bytes returns a Source backed by data.
//
// The provided data is retained; callers must not modify it afterwards.
func Bytes(data []byte) *Memory {
	return &Memory{
		data:     data,
		sourceID: "mem:" + digest.FromBytes(data).Encoded(),
	}
}

// ReadAt implements io.ReaderAt semantics over the backing slice.
func (m *Memory) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("read at %d: negative offset", off)
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
func (m *Memory) Size() int64 {
	return int64(len(m.data))
}

// SourceID returns the content digest of the backing data.
func (m *Memory) SourceID() string {
	return m.sourceID
}

// File is a Source backed by an open *os.File.
type File struct {
	f        *os.File
	size     int64
	sourceID string
}

// OpenFile opens the file at path for random access.
// The caller must Close the returned File once every Container using it
// has been discarded.
func OpenFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if !info.Mode().IsRegular() {
		_ = f.Close()
		return nil, fmt.Errorf("open %s: not a regular file", path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return &File{
		f:        f,
		size:     info.Size(),
		sourceID: fmt.Sprintf("file:%s:%d:%d", abs, info.Size(), info.ModTime().UnixNano()),
	}, nil
}

// ReadAt implements io.ReaderAt.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	return f.f.ReadAt(p, off)
}

// Size returns the file size captured when the file was opened.
func (f *File) Size() int64 {
	return f.size
}

// SourceID identifies the file by absolute path, size and modification time.
func (f *File) SourceID() string {
	return f.sourceID
}

// Name returns the path the file was opened with.
func (f *File) Name() string {
	return f.f.Name()
}

// Close closes the underlying file.
func (f *File) Close() error {
	return f.f.Close()
}
