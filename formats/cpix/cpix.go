// Package cpix decodes CPIX images: BGR or BGRA pixels packed with the
// bit-flag back-reference codec.
//
// Layout (little-endian):
//
//	0x00 magic       "CPIX"
//	0x04 width       u16
//	0x06 height      u16
//	0x08 bpp         u8   24 or 32
//	0x09 flags       u8   bit 0: rows stored bottom-up
//	0x0A reserved    u16
//	0x0C packed_size u32
//	0x10 payload     [packed_size]byte
//
// The codec unit is one pixel (bpp/8 bytes). The format is read-only.
package cpix

import (
	"fmt"

	"github.com/meigma/assetpack/codec"
	"github.com/meigma/assetpack/format"
	"github.com/meigma/assetpack/internal/sizing"
	"github.com/meigma/assetpack/source"
)

// Tag is the registry tag of the module.
const Tag = "cpix"

// Signature is the leading magic of a CPIX image.
var Signature = format.Magic("CPIX")

const (
	headerSize   = 0x10
	flagBottomUp = 0x01

	// maxExpansion bounds how many output bytes one payload byte can yield:
	// a reference byte copies at most 16 units.
	maxExpansion = 16
)

type header struct {
	width, height int
	bpp           uint8
	bottomUp      bool
	packedSize    uint64
}

// Module decodes CPIX images.
type Module struct{}

// New returns the cpix module.
func New() *Module {
	return &Module{}
}

// Descriptor implements format.Module.
func (*Module) Descriptor() format.Descriptor {
	return format.Descriptor{
		Tag:         Tag,
		Description: "back-reference compressed BGR/BGRA image",
		Signature:   Signature,
		Extensions:  []string{".cpx"},
	}
}

// ProbeMetadata implements format.ImageModule.
func (*Module) ProbeMetadata(src source.Source) (*format.ImageMeta, error) {
	h, err := readHeader(source.NewView(src, ""))
	if err != nil {
		return nil, err
	}
	return &format.ImageMeta{
		Width:      uint32(h.width),  //nolint:gosec // read from a u16
		Height:     uint32(h.height), //nolint:gosec // read from a u16
		BPP:        h.bpp,
		DataOffset: headerSize,
	}, nil
}

// Decode implements format.ImageModule. The result is PixelBGR24 or
// PixelBGRA32 with rows top-down.
func (*Module) Decode(src source.Source, meta *format.ImageMeta) (*format.Pixels, error) {
	v := source.NewView(src, "")
	h, err := readHeader(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", format.ErrDecode, err)
	}
	if meta != nil && (meta.Width != uint32(h.width) || meta.Height != uint32(h.height) || meta.BPP != h.bpp) { //nolint:gosec // read from a u16
		return nil, fmt.Errorf("%w: metadata does not match header", format.ErrDecode)
	}

	pixFormat := format.PixelBGR24
	if h.bpp == 32 {
		pixFormat = format.PixelBGRA32
	}
	unit := pixFormat.BytesPerPixel()
	// Bound the allocation by what the payload can produce.
	want := uint64(h.width) * uint64(h.height) * uint64(unit)
	if limit, ok := sizing.MulUint64(h.packedSize, maxExpansion*uint64(unit)); ok && want > limit {
		return nil, fmt.Errorf("%w: %d packed bytes cannot fill %dx%d", format.ErrDecode, h.packedSize, h.width, h.height)
	}
	px, err := format.NewPixels(h.width, h.height, pixFormat)
	if err != nil {
		return nil, err
	}

	payload, err := v.ReadBytes(headerSize, h.packedSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", format.ErrDecode, err)
	}
	if _, err := codec.DecodeBackRef(payload, px.Pix, unit); err != nil {
		return nil, err
	}
	if h.bottomUp {
		flipRows(px)
	}
	return px, nil
}

// Encode implements format.ImageModule. CPIX is read-only.
func (*Module) Encode(*format.Pixels) ([]byte, error) {
	return nil, fmt.Errorf("%w: %s is read-only", format.ErrUnsupportedWrite, Tag)
}

func readHeader(v *source.View) (header, error) {
	if v.Signature() != Signature {
		return header{}, fmt.Errorf("%w: missing CPIX magic", format.ErrNotThisFormat)
	}
	if v.Reserve(0, headerSize) < headerSize {
		return header{}, fmt.Errorf("%w: short header", format.ErrOutOfRange)
	}
	w, err := v.ReadU16(4)
	if err != nil {
		return header{}, err
	}
	hgt, err := v.ReadU16(6)
	if err != nil {
		return header{}, err
	}
	bpp, err := v.ReadU8(8)
	if err != nil {
		return header{}, err
	}
	flags, err := v.ReadU8(9)
	if err != nil {
		return header{}, err
	}
	packed, err := v.ReadU32(12)
	if err != nil {
		return header{}, err
	}

	if bpp != 24 && bpp != 32 {
		return header{}, fmt.Errorf("%w: unsupported bpp %d", format.ErrNotThisFormat, bpp)
	}
	if w == 0 || hgt == 0 {
		return header{}, fmt.Errorf("%w: empty image %dx%d", format.ErrMalformedIndex, w, hgt)
	}
	if !sizing.Within(headerSize, uint64(packed), v.MaxOffset()) {
		return header{}, fmt.Errorf("%w: payload of %d bytes beyond %d", format.ErrOutOfRange, packed, v.MaxOffset())
	}
	return header{
		width:      int(w),
		height:     int(hgt),
		bpp:        bpp,
		bottomUp:   flags&flagBottomUp != 0,
		packedSize: uint64(packed),
	}, nil
}

func flipRows(px *format.Pixels) {
	row := make([]byte, px.Stride)
	for top, bottom := 0, px.Height-1; top < bottom; top, bottom = top+1, bottom-1 {
		a := px.Pix[top*px.Stride : (top+1)*px.Stride]
		b := px.Pix[bottom*px.Stride : (bottom+1)*px.Stride]
		copy(row, a)
		copy(a, b)
		copy(b, row)
	}
}
