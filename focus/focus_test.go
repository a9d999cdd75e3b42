package focus

import (
	"image"
	"image/color"
	"math/rand"
	"testing"

	"github.com/anthonynsimon/bild/blur"
)

func uniformSurface(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

// checkerboard alternates lo/hi cells of the given size.
func checkerboard(w, h, cell int, lo, hi uint8) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := lo
			if (x/cell+y/cell)%2 == 1 {
				v = hi
			}
			img.SetNRGBA(x, y, color.NRGBA{v, v, v, 255})
		}
	}
	return img
}

func randomSurface(w, h int, seed int64) *image.NRGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	rng.Read(img.Pix)
	return img
}

func TestGrayscale(t *testing.T) {
	tests := []struct {
		name string
		c    color.NRGBA
		want float32
	}{
		{"Mid gray", color.NRGBA{128, 128, 128, 255}, 128},
		{"Black", color.NRGBA{0, 0, 0, 255}, 0},
		{"White", color.NRGBA{255, 255, 255, 255}, 255},
		{"Pure red", color.NRGBA{255, 0, 0, 255}, float32(0.299 * 255)},
		{"Pure green", color.NRGBA{0, 255, 0, 255}, float32(0.587 * 255)},
		{"Pure blue", color.NRGBA{0, 0, 255, 255}, float32(0.114 * 255)},
		{"Alpha ignored", color.NRGBA{128, 128, 128, 0}, 128},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lum := Grayscale(uniformSurface(3, 2, tt.c))
			if lum.Width != 3 || lum.Height != 2 {
				t.Fatalf("dimensions = %dx%d; want 3x2", lum.Width, lum.Height)
			}
			for i, v := range lum.Pix {
				if v != tt.want {
					t.Errorf("Pix[%d] = %v; want %v", i, v, tt.want)
				}
			}
		})
	}
}

func TestGrayscaleRangeAndLength(t *testing.T) {
	src := randomSurface(37, 23, 7)
	lum := Grayscale(src)
	if len(lum.Pix) != 37*23 {
		t.Fatalf("len(Pix) = %d; want %d", len(lum.Pix), 37*23)
	}
	for i, v := range lum.Pix {
		if v < 0 || v > 255 {
			t.Errorf("Pix[%d] = %v out of [0,255]", i, v)
		}
	}
}

func TestGrayscaleEmpty(t *testing.T) {
	lum := Grayscale(image.NewNRGBA(image.Rect(0, 0, 0, 5)))
	if len(lum.Pix) != 0 {
		t.Errorf("len(Pix) = %d; want 0", len(lum.Pix))
	}
}

func TestGrayscaleSubImage(t *testing.T) {
	src := checkerboard(8, 8, 1, 0, 200)
	sub := src.SubImage(image.Rect(1, 0, 5, 3)).(*image.NRGBA)
	lum := Grayscale(sub)
	if lum.Width != 4 || lum.Height != 3 {
		t.Fatalf("dimensions = %dx%d; want 4x3", lum.Width, lum.Height)
	}
	// (1,0) in the parent is a hi cell.
	if lum.At(0, 0) != 200 {
		t.Errorf("At(0,0) = %v; want 200", lum.At(0, 0))
	}
	if lum.At(1, 0) != 0 {
		t.Errorf("At(1,0) = %v; want 0", lum.At(1, 0))
	}
}

func TestLaplacianVarianceUniform(t *testing.T) {
	for _, size := range []image.Point{{3, 3}, {4, 4}, {17, 9}, {64, 48}} {
		lum := Grayscale(uniformSurface(size.X, size.Y, color.NRGBA{90, 160, 30, 255}))
		if got := LaplacianVariance(lum); got != 0 {
			t.Errorf("%v: LaplacianVariance = %v; want 0", size, got)
		}
	}
}

func TestLaplacianVarianceDegenerate(t *testing.T) {
	for _, size := range []image.Point{{0, 0}, {1, 10}, {2, 2}, {10, 2}, {2, 10}} {
		lum := Grayscale(checkerboard(size.X, size.Y, 1, 0, 255))
		if got := LaplacianVariance(lum); got != 0 {
			t.Errorf("%v: LaplacianVariance = %v; want 0", size, got)
		}
	}
}

func TestLaplacianVarianceKnownValue(t *testing.T) {
	// A 1px checkerboard gives a response of +-4c at every interior
	// pixel, so the variance is 16c^2 minus the squared mean.
	lum := Luminance{Width: 4, Height: 4, Pix: make([]float32, 16)}
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			if (x+y)%2 == 1 {
				lum.Pix[y*4+x] = 10
			}
		}
	}
	// Interior (1,1),(2,1),(1,2),(2,2) -> -40, +40, +40, -40 (hi cells negative).
	if got := LaplacianVariance(lum); got != 1600 {
		t.Errorf("LaplacianVariance = %v; want 1600", got)
	}
}

func TestLaplacianVarianceMonotonicInContrast(t *testing.T) {
	prev := -1.0
	for _, contrast := range []uint8{0, 5, 20, 60, 120, 255} {
		score := LaplacianVariance(Grayscale(checkerboard(16, 16, 1, 0, contrast)))
		if score <= prev && contrast != 0 {
			t.Errorf("contrast %d: score %v not greater than previous %v", contrast, score, prev)
		}
		prev = score
	}
}

func TestDownscale(t *testing.T) {
	tests := []struct {
		name         string
		w, h, max    int
		wantW, wantH int
	}{
		{"Within cap", 400, 300, 512, 400, 300},
		{"Exactly cap", 512, 384, 512, 512, 384},
		{"Halved", 1024, 300, 512, 512, 150},
		{"Rounded height", 2000, 1001, 512, 512, 256},
		{"Thin strip keeps one row", 4000, 1, 512, 512, 1},
		{"Cap disabled", 2000, 1000, 0, 2000, 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Downscale(image.NewNRGBA(image.Rect(0, 0, tt.w, tt.h)), tt.max)
			if out.Bounds().Dx() != tt.wantW || out.Bounds().Dy() != tt.wantH {
				t.Errorf("Downscale = %dx%d; want %dx%d", out.Bounds().Dx(), out.Bounds().Dy(), tt.wantW, tt.wantH)
			}
		})
	}
}

func TestClassifierUniformGrayIsBlurred(t *testing.T) {
	src := uniformSurface(4, 4, color.NRGBA{128, 128, 128, 255})

	lum := Grayscale(src)
	if len(lum.Pix) != 16 {
		t.Fatalf("len(Pix) = %d; want 16", len(lum.Pix))
	}
	for i, v := range lum.Pix {
		if v != 128 {
			t.Errorf("Pix[%d] = %v; want 128", i, v)
		}
	}

	res := NewClassifier(DefaultConfig()).Analyze(src)
	if res.Score != 0 {
		t.Errorf("Score = %v; want 0", res.Score)
	}
	if !res.IsBlurred {
		t.Error("IsBlurred = false; want true")
	}
	if res.Degenerate {
		t.Error("Degenerate = true for a 4x4 surface")
	}
}

func TestClassifierDegenerate(t *testing.T) {
	c := NewClassifier(DefaultConfig())
	for _, size := range []image.Point{{1, 1}, {2, 2}, {100, 2}, {2, 100}} {
		res := c.Analyze(checkerboard(size.X, size.Y, 1, 0, 255))
		if res.Score != 0 || res.IsBlurred || !res.Degenerate {
			t.Errorf("%v: got %+v; want score 0, not blurred, degenerate", size, res)
		}
	}
}

func TestClassifierSharpPhotoThenBlurred(t *testing.T) {
	c := NewClassifier(DefaultConfig())
	photo := checkerboard(512, 384, 32, 10, 245)

	sharp := c.Analyze(photo)
	if sharp.Score <= DefaultBlurThreshold || sharp.IsBlurred {
		t.Fatalf("sharp photo: %+v; want score > %v and not blurred", sharp, DefaultBlurThreshold)
	}
	if sharp.Width != 512 || sharp.Height != 384 {
		t.Errorf("scored %dx%d; want 512x384", sharp.Width, sharp.Height)
	}

	blurred := c.Analyze(ToSurface(blur.Gaussian(photo, 12)))
	if blurred.Score >= DefaultBlurThreshold || !blurred.IsBlurred {
		t.Errorf("blurred photo: %+v; want score < %v and blurred", blurred, DefaultBlurThreshold)
	}
}

func TestClassifierScoresDownscaledSurface(t *testing.T) {
	c := NewClassifier(Config{MaxScoreWidth: 256})
	res := c.Analyze(checkerboard(1024, 512, 64, 0, 255))
	if res.Width != 256 || res.Height != 128 {
		t.Errorf("scored %dx%d; want 256x128", res.Width, res.Height)
	}
}

func TestClassifierDeterministic(t *testing.T) {
	c := NewClassifier(DefaultConfig())
	src := randomSurface(700, 300, 42)
	first := c.Analyze(src)
	for i := 0; i < 3; i++ {
		if got := c.Analyze(src); got != first {
			t.Fatalf("run %d: %+v; want %+v", i, got, first)
		}
	}
}

func TestClassifierThreshold(t *testing.T) {
	c := NewClassifier(Config{BlurThreshold: 10})
	if c.IsBlurred(10) {
		t.Error("IsBlurred(10) with threshold 10 = true; want false")
	}
	if !c.IsBlurred(9.99) {
		t.Error("IsBlurred(9.99) with threshold 10 = false; want true")
	}
	if got := NewClassifier(Config{}).Config(); got != DefaultConfig() {
		t.Errorf("zero config resolved to %+v; want %+v", got, DefaultConfig())
	}
}

func TestClassifierNegativeThresholdDisablesFlag(t *testing.T) {
	c := NewClassifier(Config{BlurThreshold: -1})
	if got := c.Config().BlurThreshold; got != -1 {
		t.Errorf("BlurThreshold = %v; want -1 kept", got)
	}
	res := c.Analyze(uniformSurface(16, 16, color.NRGBA{128, 128, 128, 255}))
	if res.Score != 0 || res.IsBlurred {
		t.Errorf("uniform surface with flagging off = %+v; want score 0, not blurred", res)
	}
}

func TestDisplayScore(t *testing.T) {
	tests := []struct {
		score float64
		want  int
	}{{0, 0}, {49.4, 49}, {49.5, 50}, {1234.6, 1235}}
	for _, tt := range tests {
		if got := (Result{Score: tt.score}).DisplayScore(); got != tt.want {
			t.Errorf("DisplayScore(%v) = %d; want %d", tt.score, got, tt.want)
		}
	}
}
