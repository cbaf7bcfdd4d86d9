package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"

	"organoid-qc/internal/logger"
)

const (
	// ThumbnailMaxSide bounds the longest side of a preview.
	ThumbnailMaxSide = 200
	// ThumbnailQuality is the JPEG quality factor of a preview.
	ThumbnailQuality = 70
)

// ThumbnailSize fits w x h into a maxSide box, keeping the aspect ratio.
// Images that already fit are returned unchanged.
func ThumbnailSize(w, h, maxSide int) (int, int) {
	if w <= maxSide && h <= maxSide {
		return w, h
	}
	if w >= h {
		nh := h * maxSide / w
		if nh < 1 {
			nh = 1
		}
		return maxSide, nh
	}
	nw := w * maxSide / h
	if nw < 1 {
		nw = 1
	}
	return nw, maxSide
}

// EncodeThumbnail decodes data and re-encodes it as a bounded JPEG preview.
func EncodeThumbnail(data []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	b := src.Bounds()
	w, h := ThumbnailSize(b.Dx(), b.Dy(), ThumbnailMaxSide)
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: empty raster", ErrDecode)
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: ThumbnailQuality}); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// GenerateThumbnail is EncodeThumbnail with failure reduced to nil. A missing
// preview never fails an upload.
func GenerateThumbnail(data []byte) []byte {
	thumb, err := EncodeThumbnail(data)
	if err != nil {
		logger.WithError(err).Warn("Thumbnail generation failed")
		return nil
	}
	return thumb
}
