package stream

import (
	"errors"
	"fmt"

	"github.com/meigma/assetpack/source"
)

// XorSource XORs every byte of an inner source with a repeating key.
// The key position is derived from the absolute offset, so reads at any
// offset and in any order return the same bytes.
type XorSource struct {
	inner source.Source
	key   []byte
}

// Xor returns a source whose bytes are inner's bytes XOR key.
func Xor(inner source.Source, key byte) *XorSource {
	return &XorSource{inner: inner, key: []byte{key}}
}

// XorKey returns a source whose byte at offset i is inner[i] XOR key[i%len(key)].
func XorKey(inner source.Source, key []byte) (*XorSource, error) {
	if len(key) == 0 {
		return nil, errors.New("xor: empty key")
	}
	return &XorSource{inner: inner, key: append([]byte(nil), key...)}, nil
}

// ReadAt implements io.ReaderAt.
func (x *XorSource) ReadAt(p []byte, off int64) (int, error) {
	n, err := x.inner.ReadAt(p, off)
	if n > 0 {
		klen := int64(len(x.key))
		k := off % klen
		for i := range p[:n] {
			p[i] ^= x.key[k]
			k++
			if k == klen {
				k = 0
			}
		}
	}
	return n, err
}

// Size returns the inner size.
func (x *XorSource) Size() int64 {
	return x.inner.Size()
}

// SourceID identifies the de-obfuscated stream.
func (x *XorSource) SourceID() string {
	return fmt.Sprintf("%s|xor:%x", x.inner.SourceID(), x.key)
}
