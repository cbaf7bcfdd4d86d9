//go:build gocv

package analyzer

import (
	"image"

	"gocv.io/x/gocv"

	"organoid-qc/internal/imaging"
)

func defaultContourFinder() ContourFinder {
	return gocvFinder{}
}

// gocvFinder delegates to cv::findContours with RETR_EXTERNAL and
// CHAIN_APPROX_SIMPLE.
type gocvFinder struct{}

func (gocvFinder) ExternalRegions(gray *image.Gray, threshold uint8) []Region {
	if gray == nil {
		return nil
	}
	gray = imaging.ToGray(gray)
	b := gray.Bounds()
	if gray.Stride != b.Dx() {
		gray = packed(gray)
	}

	mat, err := gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8UC1, gray.Pix)
	if err != nil {
		return nil
	}
	defer mat.Close()

	binary := gocv.NewMat()
	defer binary.Close()
	gocv.Threshold(mat, &binary, float32(threshold), 255, gocv.ThresholdBinary)

	contours := gocv.FindContours(binary, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	regions := make([]Region, 0, contours.Size())
	for i := 0; i < contours.Size(); i++ {
		c := contours.At(i)
		regions = append(regions, Region{
			Area:      gocv.ContourArea(c),
			Perimeter: gocv.ArcLength(c, true),
		})
	}
	return regions
}

func packed(g *image.Gray) *image.Gray {
	b := g.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		copy(out.Pix[y*out.Stride:], g.Pix[y*g.Stride:y*g.Stride+b.Dx()])
	}
	return out
}
