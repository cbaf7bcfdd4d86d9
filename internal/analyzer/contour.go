package analyzer

import (
	"image"
	"math"
)

// Region is the outer border of one connected foreground region.
type Region struct {
	Area      float64
	Perimeter float64
}

// ContourFinder extracts external contours from a grayscale grid binarized
// with pixel > threshold.
type ContourFinder interface {
	ExternalRegions(gray *image.Gray, threshold uint8) []Region
}

// NewContourFinder returns the finder selected at build time: the pure Go
// tracer by default, OpenCV with -tags gocv.
func NewContourFinder() ContourFinder {
	return defaultContourFinder()
}

// Moore neighbourhood, clockwise in image coordinates (y grows downwards).
var neighbours = [8]image.Point{
	{1, 0},   // E
	{1, 1},   // SE
	{0, 1},   // S
	{-1, 1},  // SW
	{-1, 0},  // W
	{-1, -1}, // NW
	{0, -1},  // N
	{1, -1},  // NE
}

const dirWest = 4

// traceFinder labels 8-connected components and follows each one's outer
// border with Moore neighbour tracing. Regions come back in raster order of
// their top-left pixel. A region nested in another region's hole is also
// reported; it is strictly smaller, so it never wins a max-area selection.
type traceFinder struct{}

func (traceFinder) ExternalRegions(gray *image.Gray, threshold uint8) []Region {
	if gray == nil {
		return nil
	}
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil
	}

	mask := make([]bool, w*h)
	for y := 0; y < h; y++ {
		row := gray.Pix[y*gray.Stride : y*gray.Stride+w]
		for x, v := range row {
			mask[y*w+x] = v > threshold
		}
	}

	visited := make([]bool, w*h)
	var regions []Region
	queue := make([]int, 0, 64)

	for i := range mask {
		if !mask[i] || visited[i] {
			continue
		}
		start := image.Point{X: i % w, Y: i / w}
		contour := traceBorder(mask, w, h, start)
		regions = append(regions, Region{
			Area:      polygonArea(contour),
			Perimeter: closedLength(contour),
		})

		// Flood the component so its other pixels are not traced again.
		visited[i] = true
		queue = append(queue[:0], i)
		for len(queue) > 0 {
			p := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			px, py := p%w, p/w
			for _, d := range neighbours {
				nx, ny := px+d.X, py+d.Y
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				n := ny*w + nx
				if mask[n] && !visited[n] {
					visited[n] = true
					queue = append(queue, n)
				}
			}
		}
	}
	return regions
}

// traceBorder walks the outer border clockwise from start, which must be
// the first foreground pixel of its component in raster order. It stops
// when the walk re-enters start heading to the same second pixel.
func traceBorder(mask []bool, w, h int, start image.Point) []image.Point {
	fg := func(p image.Point) bool {
		return p.X >= 0 && p.Y >= 0 && p.X < w && p.Y < h && mask[p.Y*w+p.X]
	}

	// next searches clockwise around cur starting just after back.
	next := func(cur image.Point, back int) (image.Point, int, bool) {
		for i := 1; i <= 8; i++ {
			d := (back + i) % 8
			if p := cur.Add(neighbours[d]); fg(p) {
				return p, d, true
			}
		}
		return image.Point{}, 0, false
	}

	contour := []image.Point{start}
	second, d, ok := next(start, dirWest)
	if !ok {
		return contour
	}

	cur := second
	// Bound the walk. Each border pixel is entered at most 4 times.
	for steps := 0; steps < 4*w*h+8; steps++ {
		// The last background pixel examined, seen from the new pixel.
		back := (d + 6) % 8
		if d%2 == 1 {
			back = (d + 5) % 8
		}
		var n image.Point
		n, d, _ = next(cur, back)
		if cur == start && n == second {
			break
		}
		contour = append(contour, cur)
		cur = n
	}
	return contour
}

// polygonArea is the shoelace area of the closed polygon through the pixel
// centres, as cv::contourArea computes it.
func polygonArea(pts []image.Point) float64 {
	if len(pts) < 3 {
		return 0
	}
	var sum int
	for i := range pts {
		j := (i + 1) % len(pts)
		sum += pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
	}
	return math.Abs(float64(sum)) / 2
}

// closedLength is the length of the closed polyline through pts.
func closedLength(pts []image.Point) float64 {
	if len(pts) < 2 {
		return 0
	}
	var length float64
	for i := range pts {
		j := (i + 1) % len(pts)
		length += math.Hypot(float64(pts[j].X-pts[i].X), float64(pts[j].Y-pts[i].Y))
	}
	return length
}
