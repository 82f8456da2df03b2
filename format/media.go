package format

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/meigma/assetpack/internal/sizing"
)

// PixelFormat describes the layout of one pixel in Pixels.Pix.
type PixelFormat uint8

const (
	PixelGray8 PixelFormat = iota
	PixelIndexed8
	PixelBGR24
	PixelBGRA32
	PixelRGBA32
)

// BytesPerPixel returns the pixel size in bytes.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case PixelGray8, PixelIndexed8:
		return 1
	case PixelBGR24:
		return 3
	default:
		return 4
	}
}

// String returns the name of the pixel format.
func (f PixelFormat) String() string {
	switch f {
	case PixelGray8:
		return "gray8"
	case PixelIndexed8:
		return "indexed8"
	case PixelBGR24:
		return "bgr24"
	case PixelBGRA32:
		return "bgra32"
	case PixelRGBA32:
		return "rgba32"
	default:
		return "unknown"
	}
}

// Pixels is a decoded image buffer with an explicit layout.
type Pixels struct {
	Width   int
	Height  int
	Stride  int
	Format  PixelFormat
	Pix     []byte
	Palette color.Palette
}

// NewPixels allocates a zeroed buffer with a tight stride.
func NewPixels(width, height int, f PixelFormat) (*Pixels, error) {
	if width < 0 || height < 0 {
		return nil, fmt.Errorf("%w: negative dimensions %dx%d", ErrDecode, width, height)
	}
	stride, ok := sizing.MulUint64(uint64(width), uint64(f.BytesPerPixel()))
	if !ok {
		return nil, fmt.Errorf("%w: stride overflows", ErrDecode)
	}
	total, ok := sizing.MulUint64(stride, uint64(height))
	if !ok {
		return nil, fmt.Errorf("%w: image size overflows", ErrDecode)
	}
	n, err := sizing.ToInt(total, ErrDecode)
	if err != nil {
		return nil, err
	}
	return &Pixels{
		Width:  width,
		Height: height,
		Stride: int(stride), //nolint:gosec // stride <= total fits in int
		Format: f,
		Pix:    make([]byte, n),
	}, nil
}

// Validate reports whether p describes a buffer that can be read in full:
// non-negative dimensions, a stride covering one row, enough Pix for the
// last row and, for indexed payloads, a palette holding every index.
// Failures wrap ErrUnsupportedWrite.
func (p *Pixels) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: no pixels", ErrUnsupportedWrite)
	}
	if p.Width < 0 || p.Height < 0 {
		return fmt.Errorf("%w: negative dimensions %dx%d", ErrUnsupportedWrite, p.Width, p.Height)
	}
	if p.Width == 0 || p.Height == 0 {
		return nil
	}
	row, ok := sizing.MulUint64(uint64(p.Width), uint64(p.Format.BytesPerPixel()))
	if !ok || p.Stride < 0 || uint64(p.Stride) < row {
		return fmt.Errorf("%w: stride %d shorter than a %d-pixel %s row", ErrUnsupportedWrite, p.Stride, p.Width, p.Format)
	}
	body, ok := sizing.MulUint64(uint64(p.Stride), uint64(p.Height-1))
	if ok {
		body, ok = sizing.AddUint64(body, row)
	}
	if !ok || uint64(len(p.Pix)) < body {
		return fmt.Errorf("%w: %d pixel bytes, want %d", ErrUnsupportedWrite, len(p.Pix), body)
	}
	if p.Format != PixelIndexed8 {
		return nil
	}
	if len(p.Palette) == 0 || len(p.Palette) > 256 {
		return fmt.Errorf("%w: palette of %d colors", ErrUnsupportedWrite, len(p.Palette))
	}
	for y := range p.Height {
		for _, idx := range p.Pix[y*p.Stride : y*p.Stride+p.Width] {
			if int(idx) >= len(p.Palette) {
				return fmt.Errorf("%w: index %d outside %d-color palette", ErrUnsupportedWrite, idx, len(p.Palette))
			}
		}
	}
	return nil
}

// Image converts the buffer to an image.Image. Call Validate first on
// buffers that did not come from a decoder.
func (p *Pixels) Image() image.Image {
	rect := image.Rect(0, 0, p.Width, p.Height)
	switch p.Format {
	case PixelGray8:
		return &image.Gray{Pix: p.Pix, Stride: p.Stride, Rect: rect}
	case PixelIndexed8:
		return &image.Paletted{Pix: p.Pix, Stride: p.Stride, Rect: rect, Palette: p.Palette}
	case PixelRGBA32:
		return &image.NRGBA{Pix: p.Pix, Stride: p.Stride, Rect: rect}
	}
	img := image.NewNRGBA(rect)
	bpp := p.Format.BytesPerPixel()
	for y := range p.Height {
		row := p.Pix[y*p.Stride:]
		for x := range p.Width {
			px := row[x*bpp:]
			a := uint8(0xFF)
			if p.Format == PixelBGRA32 {
				a = px[3]
			}
			img.SetNRGBA(x, y, color.NRGBA{R: px[2], G: px[1], B: px[0], A: a})
		}
	}
	return img
}

// PixelsFromImage converts any image into an RGBA32 (non-premultiplied) buffer.
func PixelsFromImage(img image.Image) *Pixels {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Rect, img, b.Min, draw.Src)
	return &Pixels{
		Width:  b.Dx(),
		Height: b.Dy(),
		Stride: dst.Stride,
		Format: PixelRGBA32,
		Pix:    dst.Pix,
	}
}

// SampleFormat describes the layout of one audio sample.
type SampleFormat uint8

const (
	SampleU8 SampleFormat = iota
	SampleS16LE
)

// BytesPerSample returns the sample size in bytes.
func (f SampleFormat) BytesPerSample() int {
	if f == SampleS16LE {
		return 2
	}
	return 1
}

// String returns the name of the sample format.
func (f SampleFormat) String() string {
	switch f {
	case SampleU8:
		return "u8"
	case SampleS16LE:
		return "s16le"
	default:
		return "unknown"
	}
}

// Samples is decoded interleaved PCM audio.
type Samples struct {
	SampleRate uint32
	Channels   uint16
	Format     SampleFormat
	Data       []byte
}
