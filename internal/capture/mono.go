package capture

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/png" // screenshots arrive as PNG

	"github.com/warka/warka/internal/frame"
)

// DefaultThreshold splits luminance into black (< 128) and white (>= 128).
const DefaultThreshold = 128

// ToMonochrome decodes an encoded raster and converts it to one byte per pixel,
// frame.White where luminance >= threshold and frame.Black elsewhere. No
// dithering is applied, so identical input always yields identical output.
func ToMonochrome(encoded []byte, threshold uint8) (width, height int, samples []byte, err error) {
	if len(encoded) == 0 {
		return 0, 0, nil, errors.New("empty raster")
	}
	img, _, err := image.Decode(bytes.NewReader(encoded))
	if err != nil {
		return 0, 0, nil, fmt.Errorf("decode raster: %w", err)
	}
	b := img.Bounds()
	width, height = b.Dx(), b.Dy()
	if width == 0 || height == 0 {
		return 0, 0, nil, fmt.Errorf("raster has empty bounds %v", b)
	}
	samples = make([]byte, 0, width*height)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g, _ := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
			if g.Y >= threshold {
				samples = append(samples, frame.White)
			} else {
				samples = append(samples, frame.Black)
			}
		}
	}
	return width, height, samples, nil
}
