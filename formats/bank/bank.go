// Package bank implements the SBNK sound bank, a variable-stride container
// of length-prefixed records with no name table.
//
// Layout (little-endian):
//
//	0x00 magic   "SBNK"
//	0x04 version u32 (1)
//	0x08 records { size u32; data [size]byte } repeated to end of file
//
// Entries are named after the bank file with a four-digit ordinal and an
// extension chosen from the record's content.
package bank

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/meigma/assetpack/format"
	"github.com/meigma/assetpack/internal/sizing"
	"github.com/meigma/assetpack/source"
	"github.com/meigma/assetpack/stream"
)

// Tag is the registry tag of the module.
const Tag = "bank"

// Signature is the leading magic of a sound bank.
var Signature = format.Magic("SBNK")

const (
	headerSize = 8
	version    = 1
	prefixSize = 4
)

// Module probes sound banks.
type Module struct{}

// New returns the bank module.
func New() *Module {
	return &Module{}
}

// Descriptor implements format.Module.
func (*Module) Descriptor() format.Descriptor {
	return format.Descriptor{
		Tag:         Tag,
		Description: "length-prefixed sound bank",
		Signature:   Signature,
		Extensions:  []string{".bnk"},
	}
}

// Probe implements format.ContainerModule.
//
// The walk accepts any record whose size keeps it inside the file and
// requires the last record to end exactly at end of file.
func (*Module) Probe(v *source.View) (*format.Directory, error) {
	if v.Signature() != Signature {
		return nil, fmt.Errorf("%w: missing SBNK magic", format.ErrNotThisFormat)
	}
	ver, err := v.ReadU32(4)
	if err != nil {
		return nil, err
	}
	if ver != version {
		return nil, fmt.Errorf("%w: bank version %d", format.ErrNotThisFormat, ver)
	}

	maxOffset := v.MaxOffset()
	base := baseName(v.Name())
	b := format.NewBuilder(maxOffset, 0)
	cursor := uint64(headerSize)
	for cursor < maxOffset {
		if b.Len() >= format.MaxEntries {
			return nil, fmt.Errorf("%w: more than %d records", format.ErrMalformedIndex, format.MaxEntries)
		}
		size, err := v.ReadU32(cursor)
		if err != nil {
			return nil, fmt.Errorf("record %d size: %w", b.Len(), err)
		}
		cursor += prefixSize

		e := format.Entry{Offset: cursor, Size: uint64(size)}
		if err := format.CheckPlacement(e, maxOffset); err != nil {
			return nil, fmt.Errorf("record %d: %w", b.Len(), err)
		}
		kind, ext := format.Sniff(v, e.Offset, e.Size)
		e.Kind = kind
		e.Name = fmt.Sprintf("%s_%04d%s", base, b.Len(), ext)
		if err := b.Add(e); err != nil {
			return nil, err
		}

		next, ok := sizing.AddUint64(cursor, e.Size)
		if !ok {
			return nil, fmt.Errorf("%w: cursor overflow", format.ErrMalformedIndex)
		}
		cursor = next
	}
	return b.Build(), nil
}

// Transforms implements format.ContainerModule.
func (*Module) Transforms(e format.Entry) []stream.Transform {
	return format.DefaultTransforms(e)
}

func baseName(name string) string {
	base := filepath.Base(name)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." || base == string(filepath.Separator) {
		return Tag
	}
	return base
}
