package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/pierrec/lz4/v4"

	"github.com/meigma/assetpack/format"
)

// Unpacker expands compressed entry payloads.
//
// An Unpacker is safe for concurrent use. The zero value works and shares a
// package-wide zstd decoder with default limits.
type Unpacker struct {
	zstd *ZstdDecoder
}

var sharedZstd = NewZstdDecoder(DefaultMaxDecoderMemory)

// NewUnpacker returns an Unpacker using dec for zstd frames. A nil dec
// selects a package-wide decoder with default limits.
func NewUnpacker(dec *ZstdDecoder) *Unpacker {
	return &Unpacker{zstd: dec}
}

// Unpack expands packed according to c and returns exactly size bytes.
//
// Output that is shorter or longer than size fails with format.ErrDecode.
func (u *Unpacker) Unpack(c format.Compression, packed []byte, size int) ([]byte, error) {
	if size < 0 {
		return nil, fmt.Errorf("%w: negative unpacked size %d", format.ErrDecode, size)
	}
	switch c {
	case format.CompressionNone:
		if len(packed) != size {
			return nil, fmt.Errorf("%w: stored size %d, want %d", format.ErrDecode, len(packed), size)
		}
		return packed, nil
	case format.CompressionZlib:
		return u.unpackZlib(packed, size)
	case format.CompressionZstd:
		return u.unpackZstd(packed, size)
	case format.CompressionLZ4:
		return unpackLZ4(packed, size)
	case format.CompressionLZSS:
		return DecodeLZSS(packed, size)
	default:
		return nil, fmt.Errorf("%w: unknown compression %d", format.ErrDecode, c)
	}
}

func (u *Unpacker) unpackZlib(packed []byte, size int) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(packed))
	if err != nil {
		return nil, fmt.Errorf("%w: zlib: %w", format.ErrDecode, err)
	}
	defer zr.Close()
	return readExact(zr, size, "zlib")
}

func (u *Unpacker) unpackZstd(packed []byte, size int) ([]byte, error) {
	dec := sharedZstd
	if u != nil && u.zstd != nil {
		dec = u.zstd
	}
	return dec.DecodeAll(packed, size)
}

func unpackLZ4(packed []byte, size int) ([]byte, error) {
	out := make([]byte, size)
	n, err := lz4.UncompressBlock(packed, out)
	if err != nil {
		return nil, fmt.Errorf("%w: lz4: %w", format.ErrDecode, err)
	}
	if n != size {
		return nil, fmt.Errorf("%w: lz4: produced %d bytes, want %d", format.ErrDecode, n, size)
	}
	return out, nil
}

// readExact reads size bytes from r and requires r to be exhausted after.
func readExact(r io.Reader, size int, name string) ([]byte, error) {
	out := make([]byte, size)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", format.ErrDecode, name, err)
	}
	var probe [1]byte
	n, err := r.Read(probe[:])
	if n > 0 {
		return nil, fmt.Errorf("%w: %s: %w", format.ErrDecode, name, errExtraData)
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %s: %w", format.ErrDecode, name, err)
	}
	return out, nil
}
