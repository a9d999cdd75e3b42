package focus

import "image"

// BT.601 luma weights.
const (
	lumaR = 0.299
	lumaG = 0.587
	lumaB = 0.114
)

// Luminance is a single-channel intensity map, one value per pixel in
// row-major order.
type Luminance struct {
	Width  int
	Height int
	Pix    []float32
}

// At returns the intensity at (x, y).
func (l Luminance) At(x, y int) float32 {
	return l.Pix[y*l.Width+x]
}

// Grayscale reduces src to luminance, ignoring alpha. A surface with no
// pixels yields an empty buffer.
func Grayscale(src *image.NRGBA) Luminance {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	if w <= 0 || h <= 0 {
		return Luminance{}
	}

	pix := make([]float32, w*h)
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+w*4]
		out := pix[y*w : (y+1)*w]
		for x := range out {
			p := row[x*4 : x*4+3 : x*4+3]
			out[x] = float32(lumaR*float64(p[0]) + lumaG*float64(p[1]) + lumaB*float64(p[2]))
		}
	}
	return Luminance{Width: w, Height: h, Pix: pix}
}
