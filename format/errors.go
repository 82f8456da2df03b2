package format

import (
	"errors"

	"github.com/meigma/assetpack/source"
)

// Sentinel errors.
//
// A probe declines with an error wrapping ErrNotThisFormat, ErrOutOfRange
// or ErrMalformedIndex. All three mean "not mine" to the registry;
// ErrMalformedIndex is kept distinct so diagnostics can tell a corrupt file
// of the right format from a foreign file.
var (
	// ErrNotThisFormat is returned when a probe declines a source.
	ErrNotThisFormat = errors.New("assetpack: not this format")

	// ErrOutOfRange is returned when a read or an entry leaves the source.
	ErrOutOfRange = source.ErrOutOfRange

	// ErrMalformedIndex is returned when header values are internally
	// inconsistent (overflowing counts, data start inside the index).
	ErrMalformedIndex = errors.New("assetpack: malformed index")

	// ErrDecode is returned when payload decoding fails.
	ErrDecode = errors.New("assetpack: decode failed")

	// ErrUnsupportedWrite is returned by Encode on read-only modules and on
	// payloads the format cannot store losslessly.
	ErrUnsupportedWrite = errors.New("assetpack: unsupported write")
)

// IsDecline reports whether err is one of the probe decline reasons.
func IsDecline(err error) bool {
	return errors.Is(err, ErrNotThisFormat) ||
		errors.Is(err, ErrOutOfRange) ||
		errors.Is(err, ErrMalformedIndex)
}
