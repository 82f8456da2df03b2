// Package stream provides composable byte-stream transforms.
//
// Every transform wraps a source.Source and is itself a source.Source, so
// chains are built by value composition: Slice(Xor(file, k), off, n, true)
// presents one de-obfuscated entry as an independent zero-based stream
// without copying the file. Composition order matters and Apply preserves
// it exactly.
package stream

import (
	"fmt"

	"github.com/meigma/assetpack/source"
)

// Transform wraps a source in one decorator.
type Transform func(source.Source) (source.Source, error)

// Apply wraps src with each transform in order; ts[0] is innermost.
func Apply(src source.Source, ts ...Transform) (source.Source, error) {
	out := src
	for i, t := range ts {
		next, err := t(out)
		if err != nil {
			return nil, fmt.Errorf("transform %d: %w", i, err)
		}
		out = next
	}
	return out, nil
}

// WithXor returns a Transform applying Xor with key.
func WithXor(key byte) Transform {
	return func(src source.Source) (source.Source, error) {
		return Xor(src, key), nil
	}
}

// WithXorKey returns a Transform applying XorKey with key.
func WithXorKey(key []byte) Transform {
	return func(src source.Source) (source.Source, error) {
		return XorKey(src, key)
	}
}

// WithPrefix returns a Transform applying Prefix.
func WithPrefix(prefix []byte) Transform {
	return func(src source.Source) (source.Source, error) {
		return Prefix(prefix, src), nil
	}
}

// WithSlice returns a Transform applying Slice.
func WithSlice(start, length uint64, relative bool) Transform {
	return func(src source.Source) (source.Source, error) {
		return Slice(src, start, length, relative)
	}
}
