package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

func createTestImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func TestDecode_Formats(t *testing.T) {
	img := createTestImage(12, 8, color.RGBA{90, 90, 90, 255})

	encoders := map[string]func(*bytes.Buffer) error{
		"png":  func(b *bytes.Buffer) error { return png.Encode(b, img) },
		"jpeg": func(b *bytes.Buffer) error { return jpeg.Encode(b, img, &jpeg.Options{Quality: 95}) },
		"bmp":  func(b *bytes.Buffer) error { return bmp.Encode(b, img) },
		"tiff": func(b *bytes.Buffer) error { return tiff.Encode(b, img, nil) },
	}

	for name, encode := range encoders {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := encode(&buf); err != nil {
				t.Fatalf("encode: %v", err)
			}
			dec, err := Decode(buf.Bytes())
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if dec.Width != 12 || dec.Height != 8 {
				t.Errorf("dimensions = %dx%d, want 12x8", dec.Width, dec.Height)
			}
			if dec.Format != name {
				t.Errorf("Format = %q, want %q", dec.Format, name)
			}
			if dec.Gray.Bounds() != image.Rect(0, 0, 12, 8) {
				t.Errorf("gray bounds = %v", dec.Gray.Bounds())
			}
		})
	}
}

func TestDecode_Invalid(t *testing.T) {
	for _, data := range [][]byte{nil, []byte("not an image"), {0x89, 'P', 'N', 'G'}} {
		if _, err := Decode(data); !errors.Is(err, ErrDecode) {
			t.Errorf("Decode(%q) error = %v, want ErrDecode", data, err)
		}
	}
}

func TestToGray_LumaWeights(t *testing.T) {
	gray := ToGray(createTestImage(1, 1, color.RGBA{255, 0, 0, 255}))
	// 0.299 * 255
	if got := gray.GrayAt(0, 0).Y; got != 76 {
		t.Errorf("red luma = %d, want 76", got)
	}
}

func TestToGray_NormalizesOrigin(t *testing.T) {
	src := image.NewGray(image.Rect(5, 5, 8, 9))
	src.SetGray(5, 5, color.Gray{Y: 200})
	gray := ToGray(src)
	if gray.Bounds() != image.Rect(0, 0, 3, 4) {
		t.Fatalf("bounds = %v", gray.Bounds())
	}
	if gray.GrayAt(0, 0).Y != 200 {
		t.Errorf("pixel not moved to origin")
	}
}

func TestThumbnailSize(t *testing.T) {
	tests := []struct {
		w, h, wantW, wantH int
	}{
		{800, 400, 200, 100},
		{400, 800, 100, 200},
		{200, 200, 200, 200},
		{120, 50, 120, 50},
		{5000, 10, 200, 1},
	}
	for _, tt := range tests {
		w, h := ThumbnailSize(tt.w, tt.h, ThumbnailMaxSide)
		if w != tt.wantW || h != tt.wantH {
			t.Errorf("ThumbnailSize(%d, %d) = %dx%d, want %dx%d", tt.w, tt.h, w, h, tt.wantW, tt.wantH)
		}
	}
}

func TestGenerateThumbnail(t *testing.T) {
	data := encodePNG(t, createTestImage(640, 480, color.RGBA{10, 200, 30, 255}))

	thumb := GenerateThumbnail(data)
	if thumb == nil {
		t.Fatal("expected thumbnail bytes")
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(thumb))
	if err != nil {
		t.Fatalf("thumbnail does not decode: %v", err)
	}
	if format != "jpeg" {
		t.Errorf("format = %q, want jpeg", format)
	}
	if cfg.Width != 200 || cfg.Height != 150 {
		t.Errorf("thumbnail = %dx%d, want 200x150", cfg.Width, cfg.Height)
	}
}

func TestGenerateThumbnail_NeverUpscales(t *testing.T) {
	data := encodePNG(t, createTestImage(40, 30, color.White))
	thumb := GenerateThumbnail(data)
	cfg, _, err := image.DecodeConfig(bytes.NewReader(thumb))
	if err != nil {
		t.Fatalf("thumbnail does not decode: %v", err)
	}
	if cfg.Width != 40 || cfg.Height != 30 {
		t.Errorf("thumbnail = %dx%d, want 40x30", cfg.Width, cfg.Height)
	}
}

func TestGenerateThumbnail_InvalidInput(t *testing.T) {
	if thumb := GenerateThumbnail([]byte("garbage")); thumb != nil {
		t.Errorf("expected nil thumbnail, got %d bytes", len(thumb))
	}
}
