package frame

import (
	"fmt"
	"image"
	"image/color"
	"io"

	"golang.org/x/image/bmp"
)

var monoPalette = color.Palette{color.Gray{Y: Black}, color.Gray{Y: White}}

// EncodeBMP writes f as a two-colour palette BMP.
func EncodeBMP(w io.Writer, f *Frame) error {
	img := image.NewPaletted(image.Rect(0, 0, f.width, f.height), monoPalette)
	for i, s := range f.samples {
		if s == White {
			img.Pix[(i/f.width)*img.Stride+i%f.width] = 1
		}
	}
	if err := bmp.Encode(w, img); err != nil {
		return fmt.Errorf("encode bmp: %w", err)
	}
	return nil
}

// DecodeBMP reads a BMP written by EncodeBMP, or any BMP, thresholding each
// pixel at mid-grey. meta is attached to the resulting Frame.
func DecodeBMP(r io.Reader, meta Meta) (*Frame, error) {
	img, err := bmp.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode bmp: %w", err)
	}
	b := img.Bounds()
	samples := make([]byte, 0, b.Dx()*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g, _ := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
			if g.Y >= 128 {
				samples = append(samples, White)
			} else {
				samples = append(samples, Black)
			}
		}
	}
	return New(b.Dx(), b.Dy(), samples, meta)
}
