// internal/img/decode.go
package img

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// JPEGQuality is used for every curated image written to disk.
const JPEGQuality = 95

// Decode reads an image from r, applying any EXIF orientation.
func Decode(r io.Reader) (image.Image, error) {
	src, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return src, nil
}

func DecodeBytes(b []byte) (image.Image, error) {
	return Decode(bytes.NewReader(b))
}

// Open loads an image file from disk.
func Open(path string) (image.Image, error) {
	src, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	return src, nil
}

// SaveJPEG writes src to dstPath as a JPEG, creating the parent directory.
func SaveJPEG(src image.Image, dstPath string) error {
	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	if err := imaging.Save(src, dstPath, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return nil
}

// Fit scales src down to fit within a w x h box. It never upscales.
func Fit(src image.Image, w, h int) image.Image {
	return imaging.Fit(src, w, h, imaging.Lanczos)
}
