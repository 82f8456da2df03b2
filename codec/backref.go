// Package codec implements the payload decoders shared by format modules:
// the bit-flag back-reference decoder used by compressed pixel formats, a
// ring-buffer LZSS decoder, and entry decompression for zlib, zstd and lz4.
//
// All decode failures wrap format.ErrDecode.
package codec

import (
	"errors"
	"fmt"
	"io"

	"github.com/meigma/assetpack/format"
)

// DecodeBackRef fills dst from a bit-flag back-reference stream.
//
// Control bytes are consumed most significant bit first. A set bit copies
// unit literal bytes from src. A clear bit reads one byte raw and copies
//
//	count  = ((raw & 0xF) + 1) * unit
//	offset = ((raw >> 4) + 1) * unit
//
// bytes starting offset bytes back in the output, one byte at a time so
// that overlapping copies repeat the pattern. unit is usually the pixel size.
//
// Decoding stops once dst is full; it returns the number of src bytes used.
func DecodeBackRef(src, dst []byte, unit int) (int, error) {
	if unit <= 0 {
		return 0, fmt.Errorf("%w: back-reference unit %d", format.ErrDecode, unit)
	}
	sp, dp := 0, 0
	var ctl, mask byte
	for dp < len(dst) {
		if mask == 0 {
			if sp >= len(src) {
				return sp, truncated(dp)
			}
			ctl = src[sp]
			sp++
			mask = 0x80
		}
		literal := ctl&mask != 0
		mask >>= 1

		if literal {
			n := min(unit, len(dst)-dp)
			if len(src)-sp < n {
				return sp, truncated(dp)
			}
			copy(dst[dp:dp+n], src[sp:sp+n])
			sp += n
			dp += n
			continue
		}

		if sp >= len(src) {
			return sp, truncated(dp)
		}
		raw := int(src[sp])
		sp++
		count := ((raw & 0xF) + 1) * unit
		offset := ((raw >> 4) + 1) * unit
		if offset > dp {
			return sp, fmt.Errorf("%w: back-reference %d bytes before output start at %d", format.ErrDecode, offset, dp)
		}
		count = min(count, len(dst)-dp)
		for range count {
			dst[dp] = dst[dp-offset]
			dp++
		}
	}
	return sp, nil
}

func truncated(at int) error {
	return fmt.Errorf("%w: input ended after %d output bytes: %w", format.ErrDecode, at, io.ErrUnexpectedEOF)
}

// errExtraData is returned when a stream holds more data than declared.
var errExtraData = errors.New("data beyond declared size")
