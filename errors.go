package assetpack

import (
	"errors"

	"github.com/meigma/assetpack/format"
	"github.com/meigma/assetpack/internal/extract"
)

// Errors returned by the registry and containers.
var (
	// ErrUnknownFormat is returned when no registered module accepts a source.
	ErrUnknownFormat = errors.New("assetpack: unknown format")

	// ErrRegistrySealed is returned when registering into a sealed registry.
	ErrRegistrySealed = errors.New("assetpack: registry is sealed")

	// ErrDuplicateTag is returned when a module tag is already registered.
	ErrDuplicateTag = errors.New("assetpack: duplicate module tag")

	// ErrUnknownModule is returned when a tag names no registered module of
	// the required kind.
	ErrUnknownModule = errors.New("assetpack: unknown module")

	// ErrInvalidModule is returned when registering a nil module, a module
	// without a tag, or one that implements no module capability.
	ErrInvalidModule = errors.New("assetpack: invalid module")

	// ErrEntryTooLarge is returned when an entry exceeds the configured
	// maximum entry size.
	ErrEntryTooLarge = errors.New("assetpack: entry too large")

	// ErrInvalidConfig is returned when a configuration fails validation.
	ErrInvalidConfig = errors.New("assetpack: invalid config")

	// ErrUnsafePath is returned by Extract for entry names that would leave
	// the destination directory.
	ErrUnsafePath = extract.ErrUnsafePath

	// ErrDuplicateEntry is returned by Extract when two selected entries
	// map to the same destination path.
	ErrDuplicateEntry = errors.New("assetpack: duplicate entry name")
)

// Errors re-exported from format.
var (
	// ErrNotThisFormat is returned when a probe declines a source.
	ErrNotThisFormat = format.ErrNotThisFormat

	// ErrOutOfRange is returned when a read or an entry leaves the source.
	ErrOutOfRange = format.ErrOutOfRange

	// ErrMalformedIndex is returned when header values are inconsistent.
	ErrMalformedIndex = format.ErrMalformedIndex

	// ErrDecode is returned when payload decoding fails.
	ErrDecode = format.ErrDecode

	// ErrUnsupportedWrite is returned when encoding is not possible.
	ErrUnsupportedWrite = format.ErrUnsupportedWrite
)
