package focus

import "image"

// Sharpen convolves every channel of src (alpha included) with
//
//	 0 -1  0
//	-1  5 -1
//	 0 -1  0
//
// clamping sample coordinates to the image edge and each result to
// [0,255]. The output is a new surface of the same size.
func Sharpen(src *image.NRGBA) *image.NRGBA {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return dst
	}

	// Interior rows and columns have all four neighbours in range.
	for y := 1; y < h-1; y++ {
		up := src.Pix[(y-1)*src.Stride:]
		row := src.Pix[y*src.Stride:]
		down := src.Pix[(y+1)*src.Stride:]
		out := dst.Pix[y*dst.Stride:]
		for x := 1; x < w-1; x++ {
			i := x * 4
			for c := i; c < i+4; c++ {
				v := 5*int(row[c]) - int(up[c]) - int(down[c]) - int(row[c-4]) - int(row[c+4])
				out[c] = clampByte(v)
			}
		}
	}

	// Border pixels take the clamped path.
	for x := 0; x < w; x++ {
		sharpenClamped(src, dst, x, 0, w, h)
		if h > 1 {
			sharpenClamped(src, dst, x, h-1, w, h)
		}
	}
	for y := 1; y < h-1; y++ {
		sharpenClamped(src, dst, 0, y, w, h)
		if w > 1 {
			sharpenClamped(src, dst, w-1, y, w, h)
		}
	}
	return dst
}

func sharpenClamped(src, dst *image.NRGBA, x, y, w, h int) {
	center := y*src.Stride + x*4
	up := clampInt(y-1, 0, h-1)*src.Stride + x*4
	down := clampInt(y+1, 0, h-1)*src.Stride + x*4
	left := y*src.Stride + clampInt(x-1, 0, w-1)*4
	right := y*src.Stride + clampInt(x+1, 0, w-1)*4
	out := y*dst.Stride + x*4
	for c := 0; c < 4; c++ {
		v := 5*int(src.Pix[center+c]) - int(src.Pix[up+c]) - int(src.Pix[down+c]) -
			int(src.Pix[left+c]) - int(src.Pix[right+c])
		dst.Pix[out+c] = clampByte(v)
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampByte(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
