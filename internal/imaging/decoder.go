// Package imaging decodes uploaded microscopy images and renders preview
// thumbnails.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"

	// Registered container formats. The accepted set is gated by extension
	// at the upload boundary.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// ErrDecode is returned when bytes cannot be decoded into a raster.
var ErrDecode = errors.New("image could not be decoded")

// Decoded is a grayscale raster plus the dimensions of the source image.
type Decoded struct {
	Gray   *image.Gray
	Width  int
	Height int
	Format string
}

// Decode turns encoded bytes into an 8-bit grayscale grid anchored at the
// origin. Colour is converted with the ITU-R 601 luma weights.
func Decode(data []byte) (*Decoded, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrDecode)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%w: empty raster %dx%d", ErrDecode, b.Dx(), b.Dy())
	}

	return &Decoded{
		Gray:   ToGray(img),
		Width:  b.Dx(),
		Height: b.Dy(),
		Format: format,
	}, nil
}

// ToGray converts img to *image.Gray with bounds starting at (0,0).
func ToGray(img image.Image) *image.Gray {
	b := img.Bounds()
	if g, ok := img.(*image.Gray); ok && b.Min == (image.Point{}) {
		return g
	}
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}
