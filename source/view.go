package source

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/meigma/assetpack/internal/sizing"
)

// DefaultWindowSize is the largest reservation View buffers in memory (64KB).
// Larger reservations are granted but served directly from the Source.
const DefaultWindowSize = 64 << 10

// View is a bounds-checked, read-only view over a Source.
//
// All integer reads are little-endian unless the method name says
// otherwise. Reads outside [0, MaxOffset) return an error wrapping
// ErrOutOfRange; probes treat that as "not my format".
//
// A View is used by one probe at a time and is not safe for concurrent use.
// The underlying Source is.
type View struct {
	src        Source
	name       string
	size       uint64
	windowSize uint64
	window     []byte
	windowOff  uint64
}

// ViewOption configures a View.
type ViewOption func(*View)

// WithWindowSize sets the largest reservation buffered in memory.
// Values <= 0 disable buffering.
func WithWindowSize(n int) ViewOption {
	return func(v *View) {
		if n < 0 {
			n = 0
		}
		v.windowSize = uint64(n)
	}
}

// NewView creates a View over src. The name is used for extension matching
// and auto-numbered entry names; it may be empty.
func NewView(src Source, name string, opts ...ViewOption) *View {
	size := src.Size()
	if size < 0 {
		size = 0
	}
	v := &View{
		src:        src,
		name:       name,
		size:       uint64(size),
		windowSize: DefaultWindowSize,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Source returns the underlying Source.
func (v *View) Source() Source {
	return v.src
}

// Name returns the name the view was created with.
func (v *View) Name() string {
	return v.name
}

// Ext returns the lowercased extension of Name, including the leading dot.
func (v *View) Ext() string {
	return strings.ToLower(filepath.Ext(v.name))
}

// MaxOffset returns the physical length of the source.
func (v *View) MaxOffset() uint64 {
	return v.size
}

// Signature returns the first four bytes as a little-endian uint32,
// or 0 when the source is shorter than four bytes.
func (v *View) Signature() uint32 {
	sig, err := v.ReadU32(0)
	if err != nil {
		return 0
	}
	return sig
}

// Reserve asks whether n bytes are available starting at off and returns how
// many are. The reserved window is buffered (up to the configured window size)
// so that subsequent reads inside it do not touch the source.
//
// Reserve returns 0 when off is at or beyond MaxOffset.
func (v *View) Reserve(off, n uint64) uint64 {
	if off >= v.size {
		return 0
	}
	avail := min(n, v.size-off)
	if avail == 0 || avail > v.windowSize {
		return avail
	}
	if v.inWindow(off, avail) {
		return avail
	}
	buf := make([]byte, avail)
	if err := v.readSource(buf, off); err != nil {
		return 0
	}
	v.window = buf
	v.windowOff = off
	return avail
}

// ReadU8 reads one byte at off.
func (v *View) ReadU8(off uint64) (uint8, error) {
	var b [1]byte
	if err := v.read(b[:], off); err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadU16 reads a little-endian uint16 at off.
func (v *View) ReadU16(off uint64) (uint16, error) {
	var b [2]byte
	if err := v.read(b[:], off); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

// ReadU32 reads a little-endian uint32 at off.
func (v *View) ReadU32(off uint64) (uint32, error) {
	var b [4]byte
	if err := v.read(b[:], off); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

// ReadU32BE reads a big-endian uint32 at off.
func (v *View) ReadU32BE(off uint64) (uint32, error) {
	var b [4]byte
	if err := v.read(b[:], off); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

// ReadU64 reads a little-endian uint64 at off.
func (v *View) ReadU64(off uint64) (uint64, error) {
	var b [8]byte
	if err := v.read(b[:], off); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

// ReadBytes returns a copy of the n bytes at off.
func (v *View) ReadBytes(off, n uint64) ([]byte, error) {
	length, err := sizing.ToInt(n, ErrOutOfRange)
	if err != nil {
		return nil, err
	}
	if !sizing.Within(off, n, v.size) {
		return nil, outOfRange(off, n, v.size)
	}
	buf := make([]byte, length)
	if err := v.read(buf, off); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadString reads a string of at most maxLen bytes at off, stopping at the
// first zero byte. It never reads past the reservation it makes, so a name
// field at the very end of the file yields the bytes that exist rather than
// an error. It fails only when off itself is out of range.
func (v *View) ReadString(off, maxLen uint64) (string, error) {
	if maxLen == 0 {
		return "", nil
	}
	n := v.Reserve(off, maxLen)
	if n == 0 {
		return "", outOfRange(off, maxLen, v.size)
	}
	buf, err := v.ReadBytes(off, n)
	if err != nil {
		return "", err
	}
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	return string(buf), nil
}

func (v *View) inWindow(off, n uint64) bool {
	if v.window == nil || off < v.windowOff {
		return false
	}
	return sizing.Within(off-v.windowOff, n, uint64(len(v.window)))
}

func (v *View) read(p []byte, off uint64) error {
	n := uint64(len(p))
	if !sizing.Within(off, n, v.size) {
		return outOfRange(off, n, v.size)
	}
	if v.inWindow(off, n) {
		start := off - v.windowOff
		copy(p, v.window[start:start+n])
		return nil
	}
	return v.readSource(p, off)
}

func (v *View) readSource(p []byte, off uint64) error {
	pos, err := sizing.ToInt64(off, ErrOutOfRange)
	if err != nil {
		return err
	}
	n, err := v.src.ReadAt(p, pos)
	if n == len(p) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: short read at %d (%d of %d bytes)", ErrOutOfRange, off, n, len(p))
	}
	return fmt.Errorf("read at %d: %w", off, err)
}

func outOfRange(off, n, size uint64) error {
	return fmt.Errorf("%w: [%d, +%d) beyond %d", ErrOutOfRange, off, n, size)
}
