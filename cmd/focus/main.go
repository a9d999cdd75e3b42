// Command focus scores a photo for blur and optionally writes a sharpened
// copy.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/stevecastle/galleria/focus"
	"github.com/stevecastle/galleria/imagecodec"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("focus", flag.ContinueOnError)
	fs.SetOutput(stderr)
	inPath := fs.String("in", "", "input image path (JPEG/PNG/GIF/WEBP/BMP/TIFF)")
	outPath := fs.String("out", "", "write the sharpened image here (format from extension)")
	sharpen := fs.Bool("sharpen", false, "apply the 3x3 sharpen kernel before re-scoring")
	threshold := fs.Float64("threshold", focus.DefaultBlurThreshold, "scores below this are reported as blurred")
	maxWidth := fs.Int("max-width", focus.DefaultMaxScoreWidth, "downscale to this width before scoring")
	quality := fs.Int("quality", imagecodec.DefaultJPEGQuality, "JPEG quality for -out")
	maxPixels := fs.Int("max-pixels", imagecodec.DefaultMaxPixels, "refuse images with more pixels than this")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *inPath == "" {
		fmt.Fprintln(stderr, "usage: focus -in <image> [-sharpen] [-out sharp.jpg] [-threshold 50] [-max-width 512]")
		return 2
	}
	if *outPath != "" {
		*sharpen = true
	}

	data, err := os.ReadFile(*inPath)
	if err != nil {
		fmt.Fprintf(stderr, "failed to read input image: %v\n", err)
		return 1
	}
	dec, err := imagecodec.DecodeLimit(data, *maxPixels)
	if err != nil {
		fmt.Fprintf(stderr, "failed to decode input image: %v\n", err)
		return 1
	}

	c := focus.NewClassifier(focus.Config{BlurThreshold: *threshold, MaxScoreWidth: *maxWidth})
	printResult(stdout, "", c.Analyze(dec.Surface))
	if !*sharpen {
		return 0
	}

	sharp := focus.Sharpen(dec.Surface)
	if *outPath == "" {
		printResult(stdout, "sharpened ", c.Analyze(sharp))
		return 0
	}

	mediaType := imagecodec.SniffMediaType(nil, *outPath)
	out, written, err := imagecodec.Encode(sharp, mediaType, *quality)
	if err != nil {
		fmt.Fprintf(stderr, "failed to encode output: %v\n", err)
		return 1
	}
	if err := os.WriteFile(*outPath, out, 0644); err != nil {
		fmt.Fprintf(stderr, "failed to write output: %v\n", err)
		return 1
	}

	// Score what was written, not the in-memory surface.
	redec, err := imagecodec.DecodeLimit(out, *maxPixels)
	if err != nil {
		fmt.Fprintf(stderr, "failed to re-read output: %v\n", err)
		return 1
	}
	printResult(stdout, "sharpened ", c.Analyze(redec.Surface))
	if written != mediaType {
		fmt.Fprintf(stderr, "note: wrote %s instead of %s\n", written, mediaType)
	}
	fmt.Fprintf(stdout, "wrote %s (%dx%d)\n", *outPath, sharp.Rect.Dx(), sharp.Rect.Dy())
	return 0
}

func printResult(w io.Writer, prefix string, r focus.Result) {
	fmt.Fprintf(w, "%sscore=%d blurred=%t\n", prefix, r.DisplayScore(), r.IsBlurred)
}
