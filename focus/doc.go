// Package focus scores how sharp a photo is and sharpens it.
//
// A Pixel Surface is an *image.NRGBA: non-premultiplied 8-bit RGBA in
// row-major order, the same layout a canvas read-back produces. All
// functions take their input by pointer and never write to it; every
// result is a freshly allocated buffer, so concurrent calls on the same
// surface are safe without locking.
//
// The pipeline is:
//
//	surface -> Downscale(maxWidth) -> Grayscale -> LaplacianVariance -> score
//	score < threshold                                                 -> blurred
//	surface -> Sharpen                                                -> processed surface
package focus
