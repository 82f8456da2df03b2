package assetpack

import (
	"fmt"
	"io"

	"github.com/anthonynsimon/bild/imgio"

	"github.com/meigma/assetpack/format"
)

// ExportPNG writes px to w as PNG.
func ExportPNG(w io.Writer, px *format.Pixels) error {
	if err := checkExport(px); err != nil {
		return err
	}
	return imgio.PNGEncoder()(w, px.Image())
}

// SavePNG writes px to a PNG file at path.
func SavePNG(path string, px *format.Pixels) error {
	if err := checkExport(px); err != nil {
		return err
	}
	return imgio.Save(path, px.Image(), imgio.PNGEncoder())
}

func checkExport(px *format.Pixels) error {
	if err := px.Validate(); err != nil {
		return err
	}
	if px.Width == 0 || px.Height == 0 {
		return fmt.Errorf("%w: no pixels", format.ErrUnsupportedWrite)
	}
	return nil
}
