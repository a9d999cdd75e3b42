package imagecodec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func testImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{uint8(x * 10), uint8(y * 10), 128, 255})
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

func TestDecodePNG(t *testing.T) {
	src := testImage(12, 7)
	dec, err := Decode(encodePNG(t, src))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if dec.Format != "png" || dec.MediaType != "image/png" {
		t.Errorf("format = %q/%q; want png/image/png", dec.Format, dec.MediaType)
	}
	if !bytes.Equal(dec.Surface.Pix, src.Pix) {
		t.Error("decoded pixels differ from source")
	}
}

func TestDecodeGarbage(t *testing.T) {
	_, err := Decode([]byte("definitely not an image"))
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("Decode error = %v; want ErrUnsupported", err)
	}
}

// headerOnlyPNG returns a PNG whose IHDR claims w x h but carries the
// pixel data of a 1x1 image.
func headerOnlyPNG(t *testing.T, w, h uint32) []byte {
	t.Helper()
	data := encodePNG(t, image.NewGray(image.Rect(0, 0, 1, 1)))
	binary.BigEndian.PutUint32(data[16:20], w)
	binary.BigEndian.PutUint32(data[20:24], h)
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))
	return data
}

func TestDecodePixelLimit(t *testing.T) {
	zeros := encodePNG(t, image.NewGray(image.Rect(0, 0, 2000, 2000)))
	if len(zeros) > 64<<10 {
		t.Fatalf("all-zero PNG is %d bytes; expected it to compress well", len(zeros))
	}

	tests := []struct {
		name      string
		data      []byte
		maxPixels int
		wantErr   error
	}{
		{"all-zero PNG over limit", zeros, 1_000_000, ErrTooLarge},
		{"all-zero PNG at limit", zeros, 4_000_000, nil},
		{"header claims 100000x100000", headerOnlyPNG(t, 100000, 100000), 0, ErrTooLarge},
		{"dimensions overflow int32 product", headerOnlyPNG(t, 1<<30, 1<<30), 0, ErrTooLarge},
		{"small image, default limit", encodePNG(t, testImage(8, 8)), 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec, err := DecodeLimit(tt.data, tt.maxPixels)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("DecodeLimit error = %v; want %v", err, tt.wantErr)
				}
				if dec != nil {
					t.Error("DecodeLimit returned a surface alongside the error")
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeLimit: %v", err)
			}
		})
	}
}

func TestEncodeKeepsMediaType(t *testing.T) {
	src := testImage(16, 16)
	tests := []struct {
		mediaType string
		want      string
	}{
		{"image/jpeg", "image/jpeg"},
		{"image/JPEG", "image/jpeg"},
		{"image/jpg", "image/jpeg"},
		{"image/png", "image/png"},
		{"image/gif", "image/gif"},
		{"image/webp", "image/png"},
		{"", "image/png"},
	}
	for _, tt := range tests {
		t.Run(tt.mediaType, func(t *testing.T) {
			data, mt, err := Encode(src, tt.mediaType, 0)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if mt != tt.want {
				t.Errorf("media type = %q; want %q", mt, tt.want)
			}
			dec, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if dec.MediaType != tt.want {
				t.Errorf("round trip media type = %q; want %q", dec.MediaType, tt.want)
			}
			if dec.Surface.Bounds() != src.Bounds() {
				t.Errorf("bounds = %v; want %v", dec.Surface.Bounds(), src.Bounds())
			}
		})
	}
}

func TestEncodeJPEGQuality(t *testing.T) {
	src := testImage(64, 64)
	low, _, err := Encode(src, "image/jpeg", 10)
	if err != nil {
		t.Fatal(err)
	}
	high, _, err := Encode(src, "image/jpeg", 95)
	if err != nil {
		t.Fatal(err)
	}
	if len(low) >= len(high) {
		t.Errorf("quality 10 produced %d bytes, quality 95 %d; want smaller", len(low), len(high))
	}
	if _, err := jpeg.Decode(bytes.NewReader(high)); err != nil {
		t.Errorf("output is not a JPEG: %v", err)
	}
}

func TestSniffMediaType(t *testing.T) {
	if got := SniffMediaType(encodePNG(t, testImage(2, 2)), "x.bin"); got != "image/png" {
		t.Errorf("SniffMediaType(png bytes) = %q", got)
	}
	if got := SniffMediaType([]byte("????"), "holiday.JPG"); got != "image/jpeg" {
		t.Errorf("SniffMediaType(by name) = %q; want image/jpeg", got)
	}
}

func TestExtensionFor(t *testing.T) {
	tests := []struct{ name, mt, want string }{
		{"a.jpeg", "image/jpeg", ".jpeg"},
		{"a.png", "image/jpeg", ".jpg"},
		{"a", "image/png", ".png"},
		{"a.heic", "image/heic", ".img"},
	}
	for _, tt := range tests {
		if got := ExtensionFor(tt.name, tt.mt); got != tt.want {
			t.Errorf("ExtensionFor(%q, %q) = %q; want %q", tt.name, tt.mt, got, tt.want)
		}
	}
}
