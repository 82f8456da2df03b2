// Package dib reads and writes headerless bitmaps: a BITMAPINFOHEADER and
// pixel data with the 14-byte BITMAPFILEHEADER stripped.
//
// Decoding synthesizes the missing file header with a prefix transform and
// hands the result to golang.org/x/image/bmp. Encoding runs the bmp encoder
// and strips the file header again, so only what that encoder writes
// (opaque 24-bit and 8-bit indexed) round-trips.
package dib

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"

	"golang.org/x/image/bmp"

	"github.com/meigma/assetpack/format"
	"github.com/meigma/assetpack/internal/sizing"
	"github.com/meigma/assetpack/source"
	"github.com/meigma/assetpack/stream"
)

// Tag is the registry tag of the module.
const Tag = "dib"

// Signature is the little-endian size of a BITMAPINFOHEADER, which is what a
// stored DIB starts with.
const Signature uint32 = infoHeaderLen

const (
	fileHeaderLen   = 14
	infoHeaderLen   = 40
	v4InfoHeaderLen = 108
	v5InfoHeaderLen = 124
)

type info struct {
	infoLen  uint32
	width    int32
	height   int32
	bpp      uint16
	palette  uint32
	pixStart uint64
}

// Module reads and writes headerless bitmaps.
type Module struct{}

// New returns the dib module.
func New() *Module {
	return &Module{}
}

// Descriptor implements format.Module.
func (*Module) Descriptor() format.Descriptor {
	return format.Descriptor{
		Tag:         Tag,
		Description: "bitmap without file header",
		Signature:   Signature,
		Extensions:  []string{".dib"},
		CanWrite:    true,
	}
}

// ProbeMetadata implements format.ImageModule.
func (*Module) ProbeMetadata(src source.Source) (*format.ImageMeta, error) {
	in, err := readInfo(source.NewView(src, ""))
	if err != nil {
		return nil, err
	}
	return &format.ImageMeta{
		Width:      uint32(in.width),       //nolint:gosec // checked positive
		Height:     uint32(abs(in.height)), //nolint:gosec // checked nonzero
		BPP:        uint8(in.bpp),          //nolint:gosec // 8, 24 or 32
		DataOffset: in.pixStart,
	}, nil
}

// Decode implements format.ImageModule. Indexed bitmaps decode to
// PixelIndexed8 with their palette; everything else to PixelRGBA32.
func (*Module) Decode(src source.Source, _ *format.ImageMeta) (*format.Pixels, error) {
	in, err := readInfo(source.NewView(src, ""))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", format.ErrDecode, err)
	}
	fileSize, ok := sizing.AddUint64(fileHeaderLen, uint64(src.Size())) //nolint:gosec // sizes are non-negative
	if !ok || fileSize > 0xFFFFFFFF {
		return nil, fmt.Errorf("%w: bitmap too large", format.ErrDecode)
	}
	// The bmp decoder allocates the whole image before reading pixels.
	pixBytes, ok := in.pixelBytes()
	if ok {
		pixBytes, ok = sizing.AddUint64(in.pixStart, pixBytes)
	}
	if !ok || pixBytes > uint64(src.Size()) { //nolint:gosec // sizes are non-negative
		return nil, fmt.Errorf("%w: %dx%d at %d bpp needs more than %d bytes", format.ErrDecode, in.width, abs(in.height), in.bpp, src.Size())
	}

	full := stream.Prefix(fileHeader(uint32(fileSize), uint32(fileHeaderLen+in.pixStart)), src) //nolint:gosec // bounded above
	img, err := bmp.Decode(io.NewSectionReader(full, 0, full.Size()))
	if err != nil {
		return nil, fmt.Errorf("%w: bmp: %w", format.ErrDecode, err)
	}

	if p, ok := img.(*image.Paletted); ok {
		b := p.Bounds()
		return &format.Pixels{
			Width:   b.Dx(),
			Height:  b.Dy(),
			Stride:  p.Stride,
			Format:  format.PixelIndexed8,
			Pix:     p.Pix,
			Palette: p.Palette,
		}, nil
	}
	return format.PixelsFromImage(img), nil
}

// Encode implements format.ImageModule. Indexed payloads with at most 256
// colors are written as 8-bit; opaque color payloads as 24-bit. Anything
// with transparency or in another layout fails with ErrUnsupportedWrite.
func (*Module) Encode(px *format.Pixels) ([]byte, error) {
	if err := px.Validate(); err != nil {
		return nil, err
	}
	if px.Width == 0 || px.Height == 0 {
		return nil, fmt.Errorf("%w: empty image", format.ErrUnsupportedWrite)
	}

	var img image.Image
	switch px.Format {
	case format.PixelIndexed8:
		if len(px.Palette) == 0 || len(px.Palette) > 256 {
			return nil, fmt.Errorf("%w: palette of %d colors", format.ErrUnsupportedWrite, len(px.Palette))
		}
		img = px.Image()
	case format.PixelBGR24, format.PixelBGRA32, format.PixelRGBA32:
		src := px.Image()
		rgba := image.NewRGBA(src.Bounds())
		draw.Draw(rgba, rgba.Rect, src, image.Point{}, draw.Src)
		if !rgba.Opaque() {
			return nil, fmt.Errorf("%w: %s cannot store transparency", format.ErrUnsupportedWrite, Tag)
		}
		img = rgba
	default:
		return nil, fmt.Errorf("%w: %s payload", format.ErrUnsupportedWrite, px.Format)
	}

	var buf bytes.Buffer
	if err := bmp.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("bmp encode: %w", err)
	}
	out := buf.Bytes()
	if len(out) < fileHeaderLen+infoHeaderLen || string(out[:2]) != "BM" {
		return nil, errors.New("bmp encode: unexpected output")
	}
	stored := out[fileHeaderLen:]
	if px.Format == format.PixelIndexed8 {
		// The encoder always writes 256 palette entries; keep the used ones.
		used := infoHeaderLen + 4*len(px.Palette)
		full := infoHeaderLen + 4*256
		if len(stored) < full {
			return nil, errors.New("bmp encode: short palette")
		}
		stored = append(stored[:used:used], stored[full:]...)
		binary.LittleEndian.PutUint32(stored[32:], uint32(len(px.Palette))) //nolint:gosec // at most 256
	}
	return stored, nil
}

func readInfo(v *source.View) (info, error) {
	infoLen, err := v.ReadU32(0)
	if err != nil {
		return info{}, err
	}
	switch infoLen {
	case infoHeaderLen, v4InfoHeaderLen, v5InfoHeaderLen:
	default:
		return info{}, fmt.Errorf("%w: info header size %d", format.ErrNotThisFormat, infoLen)
	}
	if v.Reserve(0, uint64(infoLen)) < uint64(infoLen) {
		return info{}, fmt.Errorf("%w: short info header", format.ErrOutOfRange)
	}

	raw, err := v.ReadBytes(0, infoHeaderLen)
	if err != nil {
		return info{}, err
	}
	in := info{
		infoLen: infoLen,
		width:   int32(binary.LittleEndian.Uint32(raw[4:])), //nolint:gosec // signed field
		height:  int32(binary.LittleEndian.Uint32(raw[8:])), //nolint:gosec // signed field
		bpp:     binary.LittleEndian.Uint16(raw[14:]),
	}
	planes := binary.LittleEndian.Uint16(raw[12:])
	colorsUsed := binary.LittleEndian.Uint32(raw[32:])

	if planes != 1 {
		return info{}, fmt.Errorf("%w: %d planes", format.ErrNotThisFormat, planes)
	}
	if in.width <= 0 || in.height == 0 {
		return info{}, fmt.Errorf("%w: dimensions %dx%d", format.ErrMalformedIndex, in.width, in.height)
	}
	switch in.bpp {
	case 8:
		in.palette = colorsUsed
		if in.palette == 0 {
			in.palette = 256
		}
		if in.palette > 256 {
			return info{}, fmt.Errorf("%w: %d palette entries", format.ErrMalformedIndex, in.palette)
		}
	case 24, 32:
	default:
		return info{}, fmt.Errorf("%w: %d bits per pixel", format.ErrNotThisFormat, in.bpp)
	}

	in.pixStart = uint64(infoLen) + uint64(in.palette)*4
	if in.pixStart > v.MaxOffset() {
		return info{}, fmt.Errorf("%w: pixel data at %d beyond %d", format.ErrOutOfRange, in.pixStart, v.MaxOffset())
	}
	return in, nil
}

// pixelBytes returns the size of the declared pixel rows, each padded to
// four bytes.
func (in info) pixelBytes() (uint64, bool) {
	bits, ok := sizing.MulUint64(uint64(in.width), uint64(in.bpp)) //nolint:gosec // width checked positive
	if !ok {
		return 0, false
	}
	return sizing.MulUint64((bits+31)/32*4, uint64(abs(in.height))) //nolint:gosec // abs is non-negative
}

// fileHeader builds the BITMAPFILEHEADER a stored DIB lacks.
func fileHeader(fileSize, pixOffset uint32) []byte {
	h := make([]byte, fileHeaderLen)
	copy(h, "BM")
	binary.LittleEndian.PutUint32(h[2:], fileSize)
	binary.LittleEndian.PutUint32(h[10:], pixOffset)
	return h
}

func abs(n int32) int64 {
	if n < 0 {
		return -int64(n)
	}
	return int64(n)
}
