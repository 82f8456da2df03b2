// Package format defines the contracts every asset format module implements
// and the validation primitives modules use before trusting header values.
//
// Container modules turn a source into a Directory of entries; image and
// audio modules decode a single resource. Modules are independent and
// mutually untrusting: a probe must decline foreign or corrupt input with an
// error rather than panic, and every entry it returns has passed
// CheckPlacement against the source it was probed on.
package format

import (
	"encoding/binary"

	"github.com/meigma/assetpack/source"
	"github.com/meigma/assetpack/stream"
)

// Descriptor is the static identity of a module.
type Descriptor struct {
	// Tag uniquely names the module within a registry.
	Tag string

	// Description is a human-readable summary.
	Description string

	// Signature is the leading four bytes as a little-endian uint32.
	// Zero means the format has no signature.
	Signature uint32

	// Extensions lists lowercased file extensions including the dot.
	Extensions []string

	// CanWrite reports whether Encode is supported.
	CanWrite bool
}

// Module is implemented by every format module.
type Module interface {
	Descriptor() Descriptor
}

// ContainerModule parses archives into directories.
type ContainerModule interface {
	Module

	// Probe interprets v as this format. It returns a Directory whose
	// entries all satisfy CheckPlacement against v.MaxOffset(), or an error
	// for which IsDecline reports true. It must not panic on malformed input.
	Probe(v *source.View) (*Directory, error)

	// Transforms returns the chain that materializes e from the container
	// source, innermost first. The final source must be exactly e.Size bytes.
	Transforms(e Entry) []stream.Transform
}

// ImageMeta is produced by an image module's metadata probe.
type ImageMeta struct {
	Width  uint32
	Height uint32
	BPP    uint8

	// DataOffset is where pixel data starts in the probed stream.
	DataOffset uint64
}

// AudioMeta is produced by an audio module's metadata probe.
type AudioMeta struct {
	SampleRate    uint32
	Channels      uint16
	BitsPerSample uint16
	DataOffset    uint64
	DataSize      uint64
}

// ImageModule decodes (and optionally encodes) one image resource.
type ImageModule interface {
	Module
	ProbeMetadata(src source.Source) (*ImageMeta, error)
	Decode(src source.Source, meta *ImageMeta) (*Pixels, error)
	Encode(px *Pixels) ([]byte, error)
}

// AudioModule decodes (and optionally encodes) one audio resource.
type AudioModule interface {
	Module
	ProbeMetadata(src source.Source) (*AudioMeta, error)
	Decode(src source.Source, meta *AudioMeta) (*Samples, error)
	Encode(s *Samples) ([]byte, error)
}

// DefaultTransforms slices e out of the container source.
func DefaultTransforms(e Entry) []stream.Transform {
	return []stream.Transform{stream.WithSlice(e.Offset, e.Size, true)}
}

// Magic packs a four-character signature into the little-endian uint32 that
// View.Signature returns for a file starting with it.
func Magic(s string) uint32 {
	var b [4]byte
	copy(b[:], s)
	return binary.LittleEndian.Uint32(b[:])
}
