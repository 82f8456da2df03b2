package codec

import (
	"fmt"

	"github.com/meigma/assetpack/format"
)

const (
	lzssRingSize  = 4096
	lzssRingMask  = lzssRingSize - 1
	lzssRingStart = 0xFEE
	lzssMinMatch  = 3
)

// DecodeLZSS decodes a classic ring-buffer LZSS stream into size bytes.
//
// The 4KB ring starts zeroed with the write position at 0xFEE. Each control
// byte is read least significant bit first: a set bit is a literal byte, a
// clear bit is a two-byte pair holding a 12-bit ring position
// (b1 | (b2&0xF0)<<4) and a 4-bit length minus three (b2&0x0F).
func DecodeLZSS(src []byte, size int) ([]byte, error) {
	if size < 0 {
		return nil, fmt.Errorf("%w: negative size %d", format.ErrDecode, size)
	}
	var ring [lzssRingSize]byte
	pos := lzssRingStart
	out := make([]byte, 0, size)
	sp := 0

	for len(out) < size {
		if sp >= len(src) {
			return nil, truncated(len(out))
		}
		ctl := src[sp]
		sp++

		for bit := 0; bit < 8 && len(out) < size; bit++ {
			if ctl>>bit&1 == 1 {
				if sp >= len(src) {
					return nil, truncated(len(out))
				}
				b := src[sp]
				sp++
				out = append(out, b)
				ring[pos] = b
				pos = (pos + 1) & lzssRingMask
				continue
			}

			if sp+1 >= len(src) {
				return nil, truncated(len(out))
			}
			b1, b2 := int(src[sp]), int(src[sp+1])
			sp += 2
			offset := b1 | (b2&0xF0)<<4
			length := b2&0x0F + lzssMinMatch
			for j := 0; j < length && len(out) < size; j++ {
				b := ring[(offset+j)&lzssRingMask]
				out = append(out, b)
				ring[pos] = b
				pos = (pos + 1) & lzssRingMask
			}
		}
	}
	return out, nil
}
