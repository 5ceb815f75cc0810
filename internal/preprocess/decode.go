package preprocess

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var (
	ErrDecode   = errors.New("unsupported or corrupt image")
	ErrTooLarge = errors.New("image too large")
)

// DefaultMaxPixels bounds width*height of a decoded image (about 100 MB as NRGBA).
const DefaultMaxPixels = 25_000_000

// SupportedFormats lists the registered decoders.
var SupportedFormats = []string{"jpeg", "png", "gif", "webp", "bmp", "tiff"}

// Decode reads an image in any supported format and reports the format name.
// The header is checked first and images with more than maxPixels pixels
// are rejected with ErrTooLarge before any pixel buffer is allocated.
// maxPixels <= 0 disables the check.
func Decode(r io.Reader, maxPixels int) (img image.Image, format string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			img, format, err = nil, "", fmt.Errorf("%w: decoder panic: %v", ErrDecode, rec)
		}
	}()

	if maxPixels > 0 {
		var head bytes.Buffer
		cfg, _, err := image.DecodeConfig(io.TeeReader(r, &head))
		if err != nil {
			return nil, "", fmt.Errorf("%w: %w", ErrDecode, err)
		}
		if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > int64(maxPixels) {
			return nil, "", fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrTooLarge, cfg.Width, cfg.Height, maxPixels)
		}
		r = io.MultiReader(&head, r)
	}

	img, format, err = image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return img, format, nil
}

// DecodeFile opens and decodes the image at path.
func DecodeFile(path string, maxPixels int) (image.Image, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	return Decode(f, maxPixels)
}
