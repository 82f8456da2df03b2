package codec

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/meigma/assetpack/format"
)

// DefaultMaxDecoderMemory is the default zstd decoder memory limit (256 MiB).
const DefaultMaxDecoderMemory = 256 << 20

// ZstdDecoder decodes whole zstd frames whose content size is known up
// front. It is safe for concurrent use; the underlying decoder is created on
// first use and shared by all callers.
type ZstdDecoder struct {
	maxMemory   uint64
	concurrency int

	once sync.Once
	dec  *zstd.Decoder
	err  error
}

// ZstdOption configures a ZstdDecoder.
type ZstdOption func(*ZstdDecoder)

// WithDecoderConcurrency sets how many frames may be decoded at once
// (default: GOMAXPROCS). Values <= 0 select the default.
func WithDecoderConcurrency(n int) ZstdOption {
	return func(d *ZstdDecoder) {
		if n < 0 {
			n = 0
		}
		d.concurrency = n
	}
}

// NewZstdDecoder creates a decoder limited to maxMemory bytes per frame.
// If maxMemory is 0, the library default applies.
func NewZstdDecoder(maxMemory uint64, opts ...ZstdOption) *ZstdDecoder {
	d := &ZstdDecoder{maxMemory: maxMemory}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *ZstdDecoder) decoder() (*zstd.Decoder, error) {
	d.once.Do(func() {
		opts := []zstd.DOption{zstd.WithDecoderConcurrency(d.concurrency)}
		if d.maxMemory != 0 {
			opts = append(opts, zstd.WithDecoderMaxMemory(d.maxMemory))
		}
		d.dec, d.err = zstd.NewReader(nil, opts...)
	})
	return d.dec, d.err
}

// DecodeAll decodes packed and requires exactly size bytes of output.
//
// A frame header declaring a different content size is rejected before any
// output is allocated.
func (d *ZstdDecoder) DecodeAll(packed []byte, size int) ([]byte, error) {
	var h zstd.Header
	if err := h.Decode(packed); err != nil {
		return nil, fmt.Errorf("%w: zstd header: %w", format.ErrDecode, err)
	}
	if h.HasFCS && h.FrameContentSize != uint64(size) { //nolint:gosec // size is non-negative
		return nil, fmt.Errorf("%w: zstd: frame declares %d bytes, want %d", format.ErrDecode, h.FrameContentSize, size)
	}

	dec, err := d.decoder()
	if err != nil {
		return nil, fmt.Errorf("%w: zstd: %w", format.ErrDecode, err)
	}
	out, err := dec.DecodeAll(packed, make([]byte, 0, size))
	if err != nil {
		return nil, fmt.Errorf("%w: zstd: %w", format.ErrDecode, err)
	}
	if len(out) != size {
		return nil, fmt.Errorf("%w: zstd: produced %d bytes, want %d", format.ErrDecode, len(out), size)
	}
	return out, nil
}

// Close releases the decoder. The ZstdDecoder must not be used afterwards.
func (d *ZstdDecoder) Close() {
	if d.dec != nil {
		d.dec.Close()
	}
}
