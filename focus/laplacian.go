package focus

// LaplacianVariance returns the population variance of the 4-neighbour
// Laplacian (centre -4, up/down/left/right +1) over the interior pixels
// of l. The one-pixel border is excluded. A buffer with no interior
// (width or height <= 2) scores 0.
func LaplacianVariance(l Luminance) float64 {
	w, h := l.Width, l.Height
	if w <= 2 || h <= 2 {
		return 0
	}

	var sum, sumSq float64
	for y := 1; y < h-1; y++ {
		up := l.Pix[(y-1)*w : y*w]
		row := l.Pix[y*w : (y+1)*w]
		down := l.Pix[(y+1)*w : (y+2)*w]
		for x := 1; x < w-1; x++ {
			v := float64(up[x]) + float64(down[x]) + float64(row[x-1]) + float64(row[x+1]) - 4*float64(row[x])
			sum += v
			sumSq += v * v
		}
	}

	n := float64((w - 2) * (h - 2))
	mean := sum / n
	variance := sumSq/n - mean*mean
	if variance < 0 {
		// rounding on near-flat images
		return 0
	}
	return variance
}
