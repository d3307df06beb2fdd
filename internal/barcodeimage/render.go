// Package barcodeimage renders barcodes into frames, for replay devices and
// tests.
package barcodeimage

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"

	barcodescan "github.com/ericlevine/barcodescan"
)

type encoder interface {
	Encode(contents string, format gozxing.BarcodeFormat, width, height int, hints map[gozxing.EncodeHintType]interface{}) (*gozxing.BitMatrix, error)
}

type writerEntry struct {
	format gozxing.BarcodeFormat
	writer func() encoder
}

var writers = map[barcodescan.Symbology]writerEntry{
	barcodescan.SymbologyCode128: {gozxing.BarcodeFormat_CODE_128, func() encoder { return oned.NewCode128Writer() }},
	barcodescan.SymbologyCode39:  {gozxing.BarcodeFormat_CODE_39, func() encoder { return oned.NewCode39Writer() }},
	barcodescan.SymbologyCode93:  {gozxing.BarcodeFormat_CODE_93, func() encoder { return oned.NewCode93Writer() }},
	barcodescan.SymbologyEAN13:   {gozxing.BarcodeFormat_EAN_13, func() encoder { return oned.NewEAN13Writer() }},
	barcodescan.SymbologyEAN8:    {gozxing.BarcodeFormat_EAN_8, func() encoder { return oned.NewEAN8Writer() }},
	barcodescan.SymbologyUPCE:    {gozxing.BarcodeFormat_UPC_E, func() encoder { return oned.NewUPCEWriter() }},
	barcodescan.SymbologyQR:      {gozxing.BarcodeFormat_QR_CODE, func() encoder { return qrcode.NewQRCodeWriter() }},
}

// Render encodes contents as a barcode of the given symbology, sized
// width x height pixels.
func Render(sym barcodescan.Symbology, contents string, width, height int) (*image.Gray, error) {
	entry, ok := writers[sym]
	if !ok {
		return nil, fmt.Errorf("no writer for %s", sym)
	}
	matrix, err := entry.writer().Encode(contents, entry.format, width, height, nil)
	if err != nil {
		return nil, fmt.Errorf("encode %s %q: %w", sym, contents, err)
	}
	return toGray(matrix), nil
}

func toGray(m *gozxing.BitMatrix) *image.Gray {
	w, h := m.GetWidth(), m.GetHeight()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if m.Get(x, y) {
				img.SetGray(x, y, color.Gray{Y: 0})
			} else {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return img
}

// Stack places images on a white canvas one below the other, separated and
// surrounded by margin pixels.
func Stack(margin int, images ...image.Image) *image.Gray {
	width, height := 0, margin
	for _, img := range images {
		b := img.Bounds()
		if b.Dx() > width {
			width = b.Dx()
		}
		height += b.Dy() + margin
	}
	canvas := image.NewGray(image.Rect(0, 0, width+2*margin, height))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)

	y := margin
	for _, img := range images {
		b := img.Bounds()
		dst := image.Rect(margin, y, margin+b.Dx(), y+b.Dy())
		draw.Draw(canvas, dst, img, b.Min, draw.Src)
		y += b.Dy() + margin
	}
	return canvas
}

// Blank returns a white frame with no code in it.
func Blank(width, height int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	return img
}
