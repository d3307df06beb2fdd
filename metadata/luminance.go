package metadata

import "image"

// Grayscale converts img to 8-bit luminance using
// (306*R + 601*G + 117*B + 0x200) >> 10 on 8-bit components. Fully
// transparent pixels become white. *image.Gray inputs are returned as is.
func Grayscale(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	gray := image.NewGray(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, a := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			if a == 0 {
				gray.Pix[y*gray.Stride+x] = 0xFF
				continue
			}
			r8, g8, b8 := r>>8, g>>8, b>>8
			gray.Pix[y*gray.Stride+x] = byte((306*r8 + 601*g8 + 117*b8 + 0x200) >> 10)
		}
	}
	return gray
}

// Invert returns a copy of img with every luminance value inverted.
func Invert(img *image.Gray) *image.Gray {
	out := image.NewGray(img.Rect)
	for i, v := range img.Pix {
		out.Pix[i] = 0xFF - v
	}
	return out
}
