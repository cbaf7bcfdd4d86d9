package analyzer

import (
	"image"
	"image/color"
	"math"
	"testing"
)

func createGray(width, height int, value uint8) *image.Gray {
	gray := image.NewGray(image.Rect(0, 0, width, height))
	for i := range gray.Pix {
		gray.Pix[i] = value
	}
	return gray
}

// fillRect paints [x0,x1) x [y0,y1) with value.
func fillRect(gray *image.Gray, x0, y0, x1, y1 int, value uint8) {
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			gray.SetGray(x, y, color.Gray{Y: value})
		}
	}
}

func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestNewMetricsCalculator(t *testing.T) {
	if calc := NewMetricsCalculator(); calc == nil {
		t.Error("Expected non-nil metrics calculator")
	}
}

func TestUniformImage_ZeroFocusAndContrast(t *testing.T) {
	calc := NewMetricsCalculator()

	for _, v := range []uint8{0, 1, 77, 128, 255} {
		gray := createGray(37, 23, v)
		if got := calc.CalculateLaplacianVariance(gray); got != 0 {
			t.Errorf("value %d: focus = %f, want 0", v, got)
		}
		if got := calc.CalculateContrast(gray); got != 0 {
			t.Errorf("value %d: contrast = %f, want 0", v, got)
		}
		if got := calc.CalculateExposure(gray); got != float64(v) {
			t.Errorf("value %d: exposure = %f", v, got)
		}
	}
}

func TestCalculateLaplacianVariance_EdgeReplication(t *testing.T) {
	calc := NewMetricsCalculator()

	// Responses are [10, -20, 10]: population variance 200.
	gray := image.NewGray(image.Rect(0, 0, 3, 1))
	gray.Pix[1] = 10

	if got := calc.CalculateLaplacianVariance(gray); !approxEqual(got, 200, 1e-9) {
		t.Errorf("Expected variance 200, got %f", got)
	}
}

func TestCalculateLaplacianVariance_EdgesRaiseScore(t *testing.T) {
	calc := NewMetricsCalculator()

	gray := createGray(100, 100, 0)
	fillRect(gray, 50, 0, 100, 100, 255)

	variance := calc.CalculateLaplacianVariance(gray)
	if variance < 100 {
		t.Errorf("Expected higher variance for edge image, got %f", variance)
	}
}

func TestCalculateLaplacianVariance_SinglePixel(t *testing.T) {
	calc := NewMetricsCalculator()
	if got := calc.CalculateLaplacianVariance(createGray(1, 1, 200)); got != 0 {
		t.Errorf("Expected 0, got %f", got)
	}
}

func TestCalculateContrast(t *testing.T) {
	calc := NewMetricsCalculator()

	gray := image.NewGray(image.Rect(0, 0, 2, 1))
	gray.Pix[1] = 255

	if got := calc.CalculateContrast(gray); !approxEqual(got, 127.5, 1e-9) {
		t.Errorf("Expected population std 127.5, got %f", got)
	}
}

func TestCalculateExposure_Range(t *testing.T) {
	calc := NewMetricsCalculator()

	gray := createGray(64, 64, 0)
	for i := range gray.Pix {
		gray.Pix[i] = uint8(i * 31 % 256)
	}
	got := calc.CalculateExposure(gray)
	if got < 0 || got > 255 {
		t.Errorf("exposure %f outside [0, 255]", got)
	}
}

func TestNilGrayFallbacks(t *testing.T) {
	calc := NewMetricsCalculator()

	if calc.CalculateLaplacianVariance(nil) != 0 || calc.CalculateContrast(nil) != 0 || calc.CalculateExposure(nil) != 0 {
		t.Error("Expected zero fallbacks for nil grid")
	}
	if d, c := calc.EstimateOrganoid(nil); d != nil || c != nil {
		t.Error("Expected absent shape for nil grid")
	}
}

func TestEstimateOrganoid(t *testing.T) {
	calc := NewMetricsCalculator()

	tests := []struct {
		name            string
		build           func() *image.Gray
		wantAbsent      bool
		wantDiameter    float64
		wantCircularity float64
	}{
		{
			name:       "no foreground",
			build:      func() *image.Gray { return createGray(40, 40, 20) },
			wantAbsent: true,
		},
		{
			name:       "threshold is exclusive",
			build:      func() *image.Gray { return createGray(40, 40, OrganoidThreshold) },
			wantAbsent: true,
		},
		{
			name: "filled square",
			build: func() *image.Gray {
				g := createGray(30, 30, 0)
				fillRect(g, 5, 5, 16, 16, 200)
				return g
			},
			// area 100, perimeter 40
			wantDiameter:    2 * math.Sqrt(100/math.Pi),
			wantCircularity: 4 * math.Pi * 100 / (1600 + 1e-5),
		},
		{
			name: "largest of two regions wins",
			build: func() *image.Gray {
				g := createGray(60, 30, 0)
				fillRect(g, 2, 2, 7, 7, 255)
				fillRect(g, 30, 5, 41, 16, 255)
				return g
			},
			wantDiameter:    2 * math.Sqrt(100/math.Pi),
			wantCircularity: 4 * math.Pi * 100 / (1600 + 1e-5),
		},
		{
			name: "single pixel is degenerate but present",
			build: func() *image.Gray {
				g := createGray(10, 10, 0)
				g.SetGray(4, 4, color.Gray{Y: 51})
				return g
			},
			wantDiameter:    0,
			wantCircularity: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, c := calc.EstimateOrganoid(tt.build())
			if tt.wantAbsent {
				if d != nil || c != nil {
					t.Fatalf("Expected absent shape, got %v %v", d, c)
				}
				return
			}
			if d == nil || c == nil {
				t.Fatal("Expected shape estimates")
			}
			if !approxEqual(*d, tt.wantDiameter, 1e-9) {
				t.Errorf("diameter = %f, want %f", *d, tt.wantDiameter)
			}
			if !approxEqual(*c, tt.wantCircularity, 1e-9) {
				t.Errorf("circularity = %f, want %f", *c, tt.wantCircularity)
			}
		})
	}
}

func TestEstimateOrganoid_Disk(t *testing.T) {
	calc := NewMetricsCalculator()

	gray := createGray(80, 80, 10)
	for y := 0; y < 80; y++ {
		for x := 0; x < 80; x++ {
			dx, dy := float64(x-40), float64(y-40)
			if dx*dx+dy*dy <= 20*20 {
				gray.SetGray(x, y, color.Gray{Y: 180})
			}
		}
	}

	d, c := calc.EstimateOrganoid(gray)
	if d == nil || c == nil {
		t.Fatal("Expected shape estimates")
	}
	if *d < 36 || *d > 42 {
		t.Errorf("diameter = %f, want about 40", *d)
	}
	if *c < 0.8 || *c > 1.0 {
		t.Errorf("circularity = %f, want close to 1", *c)
	}
}

type stubFinder struct{ regions []Region }

func (s stubFinder) ExternalRegions(*image.Gray, uint8) []Region { return s.regions }

func TestEstimateOrganoid_TiesKeepFirst(t *testing.T) {
	calc := NewMetricsCalculatorWithFinder(stubFinder{regions: []Region{
		{Area: 50, Perimeter: 30},
		{Area: 50, Perimeter: 100},
	}})

	_, c := calc.EstimateOrganoid(createGray(1, 1, 0))
	want := 4 * math.Pi * 50 / (900 + 1e-5)
	if c == nil || !approxEqual(*c, want, 1e-12) {
		t.Errorf("circularity = %v, want %f", c, want)
	}
}
