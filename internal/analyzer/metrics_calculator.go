package analyzer

import (
	"image"
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"
)

// OrganoidThreshold binarizes the grid for shape estimation: pixel > 50 is
// foreground.
const OrganoidThreshold = 50

// circularityEpsilon keeps circularity finite for degenerate regions.
const circularityEpsilon = 1e-5

// metricsCalculator implements MetricsCalculator with Gonum statistics
type metricsCalculator struct {
	slicePool sync.Pool
	contours  ContourFinder
}

// NewMetricsCalculator creates a new metrics calculator using Gonum and the
// build's contour finder.
func NewMetricsCalculator() MetricsCalculator {
	return NewMetricsCalculatorWithFinder(NewContourFinder())
}

// NewMetricsCalculatorWithFinder is NewMetricsCalculator with an explicit
// contour finder.
func NewMetricsCalculatorWithFinder(finder ContourFinder) MetricsCalculator {
	return &metricsCalculator{
		slicePool: sync.Pool{
			New: func() interface{} {
				return make([]float64, 0, 1024)
			},
		},
		contours: finder,
	}
}

func (mc *metricsCalculator) buffer(n int) []float64 {
	data := mc.slicePool.Get().([]float64)
	if cap(data) < n {
		data = make([]float64, 0, n)
	}
	return data[:0]
}

func (mc *metricsCalculator) release(data []float64) {
	mc.slicePool.Put(data[:0])
}

// CalculateLaplacianVariance is the population variance of the 4-neighbour
// Laplacian [0 1 0; 1 -4 1; 0 1 0] over every pixel. Borders replicate the
// edge pixel.
func (mc *metricsCalculator) CalculateLaplacianVariance(gray *image.Gray) float64 {
	if gray == nil {
		return 0
	}
	b := gray.Bounds()
	width, height := b.Dx(), b.Dy()
	if width == 0 || height == 0 {
		return 0
	}

	data := mc.buffer(width * height)
	defer func() { mc.release(data) }()

	at := func(x, y int) float64 {
		x = clamp(x, 0, width-1)
		y = clamp(y, 0, height-1)
		return float64(gray.Pix[y*gray.Stride+x])
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			laplacian := at(x, y-1) + at(x, y+1) + at(x-1, y) + at(x+1, y) - 4*at(x, y)
			data = append(data, laplacian)
		}
	}

	_, variance := stat.PopMeanVariance(data, nil)
	return variance
}

// CalculateContrast is the population standard deviation of intensities.
func (mc *metricsCalculator) CalculateContrast(gray *image.Gray) float64 {
	data := mc.intensities(gray)
	if data == nil {
		return 0
	}
	defer mc.release(data)

	_, variance := stat.PopMeanVariance(data, nil)
	return math.Sqrt(variance)
}

// CalculateExposure is the mean intensity in [0, 255].
func (mc *metricsCalculator) CalculateExposure(gray *image.Gray) float64 {
	data := mc.intensities(gray)
	if data == nil {
		return 0
	}
	defer mc.release(data)

	return stat.Mean(data, nil)
}

// EstimateOrganoid picks the largest external region above
// OrganoidThreshold and derives its equivalent-circle diameter and
// circularity. Both are nil when there is no foreground.
func (mc *metricsCalculator) EstimateOrganoid(gray *image.Gray) (diameter, circularity *float64) {
	if gray == nil {
		return nil, nil
	}
	regions := mc.contours.ExternalRegions(gray, OrganoidThreshold)
	if len(regions) == 0 {
		return nil, nil
	}

	largest := regions[0]
	for _, r := range regions[1:] {
		if r.Area > largest.Area {
			largest = r
		}
	}

	c := 4 * math.Pi * largest.Area / (largest.Perimeter*largest.Perimeter + circularityEpsilon)
	d := 2 * math.Sqrt(largest.Area/math.Pi)
	return &d, &c
}

func (mc *metricsCalculator) intensities(gray *image.Gray) []float64 {
	if gray == nil {
		return nil
	}
	b := gray.Bounds()
	width, height := b.Dx(), b.Dy()
	if width == 0 || height == 0 {
		return nil
	}
	data := mc.buffer(width * height)
	for y := 0; y < height; y++ {
		for _, v := range gray.Pix[y*gray.Stride : y*gray.Stride+width] {
			data = append(data, float64(v))
		}
	}
	return data
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
