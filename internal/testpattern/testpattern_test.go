package testpattern

import (
	"errors"
	"testing"

	"github.com/zsiec/scorer/media"
)

func TestGenerateValidatesForEveryFormat(t *testing.T) {
	t.Parallel()

	for _, f := range []media.PixelFormat{media.I420, media.BGR, media.RGB, media.RGBA} {
		img, err := Generate(f, 48, 64, 3)
		if err != nil {
			t.Fatalf("%s: %v", f, err)
		}
		if err := img.Validate(); err != nil {
			t.Fatalf("%s: generated image invalid: %v", f, err)
		}
	}
}

func TestGenerateI420Geometry(t *testing.T) {
	t.Parallel()

	img, err := Generate(media.I420, 4, 6, 0)
	if err != nil {
		t.Fatal(err)
	}
	if img.Rows != 6 || img.Cols != 6 || len(img.Data) != 36 {
		t.Fatalf("I420 image = %dx%d len %d, want 6x6 len 36", img.Cols, img.Rows, len(img.Data))
	}

	if _, err := Generate(media.I420, 3, 6, 0); !errors.Is(err, media.ErrMalformedBuffer) {
		t.Fatalf("odd height err = %v, want ErrMalformedBuffer", err)
	}
	if _, err := Generate(media.PixelFormat(0), 2, 2, 0); !errors.Is(err, media.ErrInvalidFormat) {
		t.Fatalf("invalid format err = %v, want ErrInvalidFormat", err)
	}
}

func TestGenerateChannelOrder(t *testing.T) {
	t.Parallel()

	// Pixel 0 of frame 5 in an 8-wide pattern is bar 5, red.
	bgr, _ := Generate(media.BGR, 1, 8, 5)
	if got := bgr.Data[:3]; got[0] != 0 || got[1] != 0 || got[2] != 255 {
		t.Fatalf("BGR red = %v, want [0 0 255]", got)
	}
	rgb, _ := Generate(media.RGB, 1, 8, 5)
	if got := rgb.Data[:3]; got[0] != 255 || got[1] != 0 || got[2] != 0 {
		t.Fatalf("RGB red = %v, want [255 0 0]", got)
	}
	rgba, _ := Generate(media.RGBA, 1, 8, 5)
	if got := rgba.Data[:4]; got[0] != 255 || got[3] != 255 {
		t.Fatalf("RGBA red = %v, want [255 0 0 255]", got)
	}
}

func TestPatternScrolls(t *testing.T) {
	t.Parallel()

	if At(1, 8, 0) != At(0, 8, 1) {
		t.Fatal("frame n+1 is not frame n shifted by one pixel")
	}
	if At(0, 8, 8) != At(0, 8, 0) {
		t.Fatal("pattern does not wrap after width frames")
	}
}

func TestYUVExtremes(t *testing.T) {
	t.Parallel()

	if y, u, v := YUV([3]byte{255, 255, 255}); y != 235 || u != 128 || v != 128 {
		t.Fatalf("white = %d,%d,%d, want 235,128,128", y, u, v)
	}
	if y, u, v := YUV([3]byte{0, 0, 0}); y != 16 || u != 128 || v != 128 {
		t.Fatalf("black = %d,%d,%d, want 16,128,128", y, u, v)
	}
}
