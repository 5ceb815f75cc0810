// Package preprocess turns decoded images into the flat float tensor the
// classifier consumes.
package preprocess

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
)

// DefaultImageSize is the square resolution the bundled model was trained on.
const DefaultImageSize = 224

// Channels per pixel in the tensor (R, G, B).
const Channels = 3

var ErrEmptyImage = errors.New("image has no pixels")

// Tensor stretches img to size x size with bilinear interpolation and
// returns its pixels in row-major order as interleaved R, G, B floats in
// [0, 1]. Aspect ratio is not preserved and alpha is dropped.
func Tensor(img image.Image, size int) ([]float32, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid target size %d", size)
	}
	if img == nil || img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}

	src, err := toNRGBA(img)
	if err != nil {
		return nil, err
	}

	var resized image.Image = src
	if src.Bounds().Dx() != size || src.Bounds().Dy() != size {
		resized = resize.Resize(uint(size), uint(size), src, resize.Bilinear)
	}

	bounds := resized.Bounds()
	inputData := make([]float32, 0, size*size*Channels)

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(resized.At(x, y)).(color.NRGBA)
			inputData = append(inputData,
				float32(c.R)/255.0,
				float32(c.G)/255.0,
				float32(c.B)/255.0,
			)
		}
	}

	if len(inputData) != size*size*Channels {
		return nil, fmt.Errorf("resized image is %dx%d, want %dx%d", bounds.Dx(), bounds.Dy(), size, size)
	}
	return inputData, nil
}

// toNRGBA copies img on the calling goroutine. A panicking At (a palette
// index past the palette) is turned into ErrDecode here; inside resize's
// worker goroutines it would take the process down.
func toNRGBA(img image.Image) (dst *image.NRGBA, err error) {
	if p, ok := img.(*image.Paletted); ok {
		if err := checkPalette(p); err != nil {
			return nil, err
		}
	}

	defer func() {
		if r := recover(); r != nil {
			dst, err = nil, fmt.Errorf("%w: reading pixels: %v", ErrDecode, r)
		}
	}()

	b := img.Bounds()
	dst = image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst, nil
}

func checkPalette(p *image.Paletted) error {
	n := len(p.Palette)
	b := p.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := p.Pix[p.PixOffset(b.Min.X, y):p.PixOffset(b.Max.X, y)]
		for _, idx := range row {
			if int(idx) >= n {
				return fmt.Errorf("%w: palette index %d out of range (palette has %d colors)", ErrDecode, idx, n)
			}
		}
	}
	return nil
}
