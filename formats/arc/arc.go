// Package arc implements a fixed-stride archive with no signature.
//
// Layout (little-endian):
//
//	0x00 count       u32
//	0x04 data_offset u32
//	0x08 records     count * { name [0x18]byte; offset u32; size u32 }
//
// Because the format has no magic, the probe leans entirely on structural
// checks: the data offset must sit between the end of the index and the
// end of the file, and every record must point at or after it.
package arc

import (
	"fmt"

	"github.com/meigma/assetpack/format"
	"github.com/meigma/assetpack/source"
	"github.com/meigma/assetpack/stream"
)

// Tag is the registry tag of the module.
const Tag = "arc"

const (
	headerSize = 8
	stride     = 0x20
	nameLen    = 0x18
)

// Module probes arc containers.
type Module struct{}

// New returns the arc module.
func New() *Module {
	return &Module{}
}

// Descriptor implements format.Module.
func (*Module) Descriptor() format.Descriptor {
	return format.Descriptor{
		Tag:         Tag,
		Description: "fixed-stride archive without signature",
		Extensions:  []string{".arc", ".dat"},
	}
}

// Probe implements format.ContainerModule.
func (*Module) Probe(v *source.View) (*format.Directory, error) {
	maxOffset := v.MaxOffset()
	count, err := v.ReadU32(0)
	if err != nil {
		return nil, err
	}
	dataOffset, err := v.ReadU32(4)
	if err != nil {
		return nil, err
	}

	n := int64(count)
	if err := format.SaneCount(n, stride, maxOffset); err != nil {
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
		rec := headerSize + i*stride
		name, err := v.ReadString(rec, nameLen)
		if err != nil {
			return nil, err
		}
		if name == "" {
			return nil, fmt.Errorf("%w: record %d has no name", format.ErrMalformedIndex, i)
		}
		name = format.DecodeName(name)
		off, err := v.ReadU32(rec + nameLen)
		if err != nil {
			return nil, err
		}
		size, err := v.ReadU32(rec + nameLen + 4)
		if err != nil {
			return nil, err
		}
		if off < dataOffset {
			return nil, fmt.Errorf("%w: record %d at %#x precedes data start %#x",
				format.ErrMalformedIndex, i, off, dataOffset)
		}

		e := format.Entry{Name: name, Offset: uint64(off), Size: uint64(size)}
		if err := format.CheckPlacement(e, maxOffset); err != nil {
			return nil, err
		}
		e.Kind = format.DetectKind(v, e.Offset, e.Size)
		if err := b.Add(e); err != nil {
			return nil, err
		}
	}
	return b.Build(), nil
}

// Transforms implements format.ContainerModule.
func (*Module) Transforms(e format.Entry) []stream.Transform {
	return format.DefaultTransforms(e)
}
