// Package pcm reads and writes raw PCM audio behind a small header.
//
// Layout (little-endian):
//
//	0x00 magic       "PCM "
//	0x04 channels    u16
//	0x06 bits        u16  8 (unsigned) or 16 (signed)
//	0x08 sample_rate u32
//	0x0C data_size   u32
//	0x10 samples     [data_size]byte, interleaved
package pcm

import (
	"encoding/binary"
	"fmt"

	"github.com/meigma/assetpack/format"
	"github.com/meigma/assetpack/source"
)

// Tag is the registry tag of the module.
const Tag = "pcm"

// Signature is the leading magic of a PCM file.
var Signature = format.Magic("PCM ")

const (
	headerSize  = 0x10
	maxChannels = 8
)

// Module reads and writes PCM audio.
type Module struct{}

// New returns the pcm module.
func New() *Module {
	return &Module{}
}

// Descriptor implements format.Module.
func (*Module) Descriptor() format.Descriptor {
	return format.Descriptor{
		Tag:         Tag,
		Description: "raw interleaved PCM audio",
		Signature:   Signature,
		Extensions:  []string{".pcm"},
		CanWrite:    true,
	}
}

// ProbeMetadata implements format.AudioModule.
func (*Module) ProbeMetadata(src source.Source) (*format.AudioMeta, error) {
	v := source.NewView(src, "")
	if v.Signature() != Signature {
		return nil, fmt.Errorf("%w: missing PCM magic", format.ErrNotThisFormat)
	}
	if v.Reserve(0, headerSize) < headerSize {
		return nil, fmt.Errorf("%w: short header", format.ErrOutOfRange)
	}
	channels, err := v.ReadU16(4)
	if err != nil {
		return nil, err
	}
	bits, err := v.ReadU16(6)
	if err != nil {
		return nil, err
	}
	rate, err := v.ReadU32(8)
	if err != nil {
		return nil, err
	}
	size, err := v.ReadU32(12)
	if err != nil {
		return nil, err
	}

	if _, err := sampleFormat(bits); err != nil {
		return nil, err
	}
	if channels == 0 || channels > maxChannels || rate == 0 {
		return nil, fmt.Errorf("%w: %d channels at %d Hz", format.ErrMalformedIndex, channels, rate)
	}
	e := format.Entry{Offset: headerSize, Size: uint64(size)}
	if err := format.CheckPlacement(e, v.MaxOffset()); err != nil {
		return nil, err
	}
	return &format.AudioMeta{
		SampleRate:    rate,
		Channels:      channels,
		BitsPerSample: bits,
		DataOffset:    headerSize,
		DataSize:      uint64(size),
	}, nil
}

// Decode implements format.AudioModule.
func (m *Module) Decode(src source.Source, meta *format.AudioMeta) (*format.Samples, error) {
	if meta == nil {
		var err error
		if meta, err = m.ProbeMetadata(src); err != nil {
			return nil, fmt.Errorf("%w: %w", format.ErrDecode, err)
		}
	}
	sf, err := sampleFormat(meta.BitsPerSample)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", format.ErrDecode, err)
	}
	block := uint64(meta.Channels) * uint64(sf.BytesPerSample())
	if block == 0 || meta.DataSize%block != 0 {
		return nil, fmt.Errorf("%w: %d data bytes is not a whole number of %d-byte frames",
			format.ErrDecode, meta.DataSize, block)
	}

	data, err := source.NewView(src, "").ReadBytes(meta.DataOffset, meta.DataSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", format.ErrDecode, err)
	}
	return &format.Samples{
		SampleRate: meta.SampleRate,
		Channels:   meta.Channels,
		Format:     sf,
		Data:       data,
	}, nil
}

// Encode implements format.AudioModule.
func (*Module) Encode(s *format.Samples) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: no samples", format.ErrUnsupportedWrite)
	}
	var bits uint16
	switch s.Format {
	case format.SampleU8:
		bits = 8
	case format.SampleS16LE:
		bits = 16
	default:
		return nil, fmt.Errorf("%w: %s samples", format.ErrUnsupportedWrite, s.Format)
	}
	if s.Channels == 0 || s.Channels > maxChannels || s.SampleRate == 0 {
		return nil, fmt.Errorf("%w: %d channels at %d Hz", format.ErrUnsupportedWrite, s.Channels, s.SampleRate)
	}
	block := int(s.Channels) * s.Format.BytesPerSample()
	if len(s.Data)%block != 0 || uint64(len(s.Data)) > 0xFFFFFFFF {
		return nil, fmt.Errorf("%w: %d data bytes for %d-byte frames", format.ErrUnsupportedWrite, len(s.Data), block)
	}

	out := make([]byte, headerSize, headerSize+len(s.Data))
	copy(out, "PCM ")
	binary.LittleEndian.PutUint16(out[4:], s.Channels)
	binary.LittleEndian.PutUint16(out[6:], bits)
	binary.LittleEndian.PutUint32(out[8:], s.SampleRate)
	binary.LittleEndian.PutUint32(out[12:], uint32(len(s.Data))) //nolint:gosec // checked above
	return append(out, s.Data...), nil
}

func sampleFormat(bits uint16) (format.SampleFormat, error) {
	switch bits {
	case 8:
		return format.SampleU8, nil
	case 16:
		return format.SampleS16LE, nil
	default:
		return 0, fmt.Errorf("%w: %d bits per sample", format.ErrNotThisFormat, bits)
	}
}
