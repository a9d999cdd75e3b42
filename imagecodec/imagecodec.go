// Package imagecodec turns uploaded bytes into pixel surfaces and back.
package imagecodec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/stevecastle/galleria/focus"
)

// DefaultJPEGQuality matches the 0.92 quality factor browsers use for
// canvas exports.
const DefaultJPEGQuality = 92

// DefaultMaxPixels bounds width*height of an accepted image. A decoded
// surface costs four bytes per pixel.
const DefaultMaxPixels = 50_000_000

var (
	ErrUnsupported = errors.New("unsupported image type")
	ErrTooLarge    = errors.New("image dimensions exceed pixel limit")
)

// Decoded is a source image ready for the focus pipeline.
type Decoded struct {
	Surface   *image.NRGBA
	Format    string // decoder name: jpeg, png, gif, webp, bmp, tiff
	MediaType string
}

// Decode reads an image with the DefaultMaxPixels limit.
func Decode(data []byte) (*Decoded, error) {
	return DecodeLimit(data, DefaultMaxPixels)
}

// DecodeLimit reads an image, applying any EXIF orientation so the surface
// matches what a viewer displays. The header is checked against maxPixels
// before any pixel memory is allocated; maxPixels <= 0 means
// DefaultMaxPixels.
func DecodeLimit(data []byte, maxPixels int) (*Decoded, error) {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	if px := int64(cfg.Width) * int64(cfg.Height); px > int64(maxPixels) {
		return nil, fmt.Errorf("%w: %dx%d (%d pixels, limit %d)", ErrTooLarge, cfg.Width, cfg.Height, px, maxPixels)
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", format, err)
	}
	return &Decoded{
		Surface:   focus.ToSurface(img),
		Format:    format,
		MediaType: "image/" + format,
	}, nil
}

// SniffMediaType guesses the media type from the content, falling back to
// the file extension.
func SniffMediaType(data []byte, filename string) string {
	mt := http.DetectContentType(data)
	if strings.HasPrefix(mt, "image/") {
		return mt
	}
	if f, err := imaging.FormatFromFilename(filename); err == nil {
		return mediaTypes[f]
	}
	return mt
}

var mediaTypes = map[imaging.Format]string{
	imaging.JPEG: "image/jpeg",
	imaging.PNG:  "image/png",
	imaging.GIF:  "image/gif",
	imaging.TIFF: "image/tiff",
	imaging.BMP:  "image/bmp",
}

// Encode writes img in the format named by mediaType. Types without an
// encoder (webp) fall back to PNG. The media type actually written is
// returned alongside the bytes.
func Encode(img image.Image, mediaType string, quality int) ([]byte, string, error) {
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	format := imaging.PNG
	for f, mt := range mediaTypes {
		if strings.EqualFold(mt, mediaType) {
			format = f
			break
		}
	}
	if strings.EqualFold(mediaType, "image/jpg") {
		format = imaging.JPEG
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format, imaging.JPEGQuality(quality)); err != nil {
		return nil, "", fmt.Errorf("encode %s: %w", format, err)
	}
	return buf.Bytes(), mediaTypes[format], nil
}

// Extension returns the file extension for a media type, ".img" when
// unknown.
func Extension(mediaType string) string {
	switch strings.ToLower(mediaType) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	case "image/tiff":
		return ".tiff"
	}
	return ".img"
}

// ExtensionFor prefers the extension of the original filename when it
// agrees with the media type.
func ExtensionFor(filename, mediaType string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	want := Extension(mediaType)
	if ext == ".jpeg" && want == ".jpg" {
		return ext
	}
	return want
}
