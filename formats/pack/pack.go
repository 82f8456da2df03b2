// Package pack implements the signed PACK archive, a fixed-stride container
// whose entries may be individually compressed.
//
// Layout (little-endian):
//
//	0x00 magic       "PACK"
//	0x04 count       u32
//	0x08 data_offset u32
//	0x0C reserved    u32
//	0x10 records     count * {
//	         name        [0x20]byte
//	         offset      u32
//	         size        u32  stored (packed) size
//	         unpacked    u32
//	         compression u8   0 none, 1 zlib, 2 zstd, 3 lz4, 4 lzss
//	         pad         [3]byte
//	     }
package pack

import (
	"fmt"

	"github.com/meigma/assetpack/format"
	"github.com/meigma/assetpack/source"
	"github.com/meigma/assetpack/stream"
)

// Tag is the registry tag of the module.
const Tag = "pack"

// Signature is the leading magic of a PACK file.
var Signature = format.Magic("PACK")

const (
	headerSize = 0x10
	stride     = 0x30
	nameLen    = 0x20
)

// Module probes PACK containers.
type Module struct{}

// New returns the pack module.
func New() *Module {
	return &Module{}
}

// Descriptor implements format.Module.
func (*Module) Descriptor() format.Descriptor {
	return format.Descriptor{
		Tag:         Tag,
		Description: "signed archive with per-entry compression",
		Signature:   Signature,
		Extensions:  []string{".pak"},
	}
}

// Probe implements format.ContainerModule.
func (*Module) Probe(v *source.View) (*format.Directory, error) {
	if v.Signature() != Signature {
		return nil, fmt.Errorf("%w: missing PACK magic", format.ErrNotThisFormat)
	}
	maxOffset := v.MaxOffset()
	count, err := v.ReadU32(4)
	if err != nil {
		return nil, err
	}
	dataOffset, err := v.ReadU32(8)
	if err != nil {
		return nil, err
	}

	n := int64(count)
	if err := format.SaneCountOrEmpty(n, stride, maxOffset); err != nil {
		return nil, err
	}
	if err := format.DataStart(uint64(dataOffset), headerSize, n, stride, maxOffset); err != nil {
		return nil, err
	}
	indexLen := uint64(count) * stride
	if v.Reserve(headerSize, indexLen) < indexLen {
		return nil, fmt.Errorf("%w: index of %d bytes", format.ErrOutOfRange, indexLen)
	}

	b := format.NewBuilder(maxOffset, int(count))
	for i := range uint64(count) {
		e, err := readRecord(v, headerSize+i*stride)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if e.Offset < uint64(dataOffset) {
			return nil, fmt.Errorf("%w: record %d at %#x precedes data start %#x",
				format.ErrMalformedIndex, i, e.Offset, dataOffset)
		}
		if err := format.CheckPlacement(e, maxOffset); err != nil {
			return nil, err
		}
		if e.Compression == format.CompressionNone {
			e.Kind = format.DetectKind(v, e.Offset, e.Size)
		}
		if err := b.Add(e); err != nil {
			return nil, err
		}
	}
	return b.Build(), nil
}

func readRecord(v *source.View, rec uint64) (format.Entry, error) {
	name, err := v.ReadString(rec, nameLen)
	if err != nil {
		return format.Entry{}, err
	}
	name = format.DecodeName(name)
	off, err := v.ReadU32(rec + nameLen)
	if err != nil {
		return format.Entry{}, err
	}
	size, err := v.ReadU32(rec + nameLen + 4)
	if err != nil {
		return format.Entry{}, err
	}
	unpacked, err := v.ReadU32(rec + nameLen + 8)
	if err != nil {
		return format.Entry{}, err
	}
	method, err := v.ReadU8(rec + nameLen + 12)
	if err != nil {
		return format.Entry{}, err
	}

	e := format.Entry{Name: name, Offset: uint64(off), Size: uint64(size)}
	c := format.Compression(method)
	switch c {
	case format.CompressionNone:
		if unpacked != 0 && unpacked != size {
			return format.Entry{}, fmt.Errorf("%w: stored entry declares %d unpacked bytes for %d stored",
				format.ErrMalformedIndex, unpacked, size)
		}
	case format.CompressionZlib, format.CompressionZstd, format.CompressionLZ4, format.CompressionLZSS:
		e.Compression = c
		e.UnpackedSize = uint64(unpacked)
	default:
		return format.Entry{}, fmt.Errorf("%w: unknown compression %d", format.ErrMalformedIndex, method)
	}
	return e, nil
}

// Transforms implements format.ContainerModule.
func (*Module) Transforms(e format.Entry) []stream.Transform {
	return format.DefaultTransforms(e)
}
