package focus

import (
	"image"
	"math"

	"github.com/nfnt/resize"
	xdraw "golang.org/x/image/draw"
)

// ToSurface copies img into a new surface anchored at (0,0).
func ToSurface(img image.Image) *image.NRGBA {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(dst, dst.Bounds(), img, b.Min, xdraw.Src)
	return dst
}

// Downscale returns a copy of src no wider than maxWidth, keeping the
// aspect ratio. Surfaces already within the cap are returned as is.
func Downscale(src *image.NRGBA, maxWidth int) *image.NRGBA {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	if maxWidth <= 0 || w <= maxWidth || h == 0 {
		return src
	}
	scale := float64(maxWidth) / float64(w)
	nh := int(math.Round(float64(h) * scale))
	if nh < 1 {
		nh = 1
	}
	return ToSurface(resize.Resize(uint(maxWidth), uint(nh), src, resize.Bilinear))
}
