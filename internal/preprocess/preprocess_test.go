package preprocess

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/tree-api/internal/testutil"
)

func noiseImage(w, h int, seed int64) *image.NRGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	rng.Read(img.Pix)
	return img
}

func solidImage(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestTensorShapeAndRange(t *testing.T) {
	sizes := [][2]int{{1, 1}, {17, 300}, {224, 224}, {640, 480}}
	for _, s := range sizes {
		tensor, err := Tensor(noiseImage(s[0], s[1], 7), DefaultImageSize)
		require.NoError(t, err)
		require.Len(t, tensor, DefaultImageSize*DefaultImageSize*Channels)
		for i, v := range tensor {
			if v < 0 || v > 1 {
				t.Fatalf("tensor[%d] = %v for %dx%d input, want value in [0,1]", i, v, s[0], s[1])
			}
		}
	}
}

func TestTensorIsDeterministic(t *testing.T) {
	img := noiseImage(123, 77, 42)

	first, err := Tensor(img, DefaultImageSize)
	require.NoError(t, err)
	second, err := Tensor(img, DefaultImageSize)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestTensorRowMajorInterleavedRGB(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, G: 0, B: 0, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{R: 0, G: 255, B: 0, A: 255})
	img.SetNRGBA(0, 1, color.NRGBA{R: 0, G: 0, B: 255, A: 255})
	img.SetNRGBA(1, 1, color.NRGBA{R: 51, G: 102, B: 204, A: 255})

	tensor, err := Tensor(img, 2)
	require.NoError(t, err)

	want := []float32{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
		0.2, 0.4, 0.8,
	}
	require.Len(t, tensor, len(want))
	for i := range want {
		assert.InDelta(t, want[i], tensor[i], 1e-6, "index %d", i)
	}
}

func TestTensorDiscardsAlpha(t *testing.T) {
	img := solidImage(4, 4, color.NRGBA{R: 255, G: 128, B: 0, A: 64})

	tensor, err := Tensor(img, 4)
	require.NoError(t, err)
	for i := 0; i < len(tensor); i += Channels {
		assert.InDelta(t, 1.0, tensor[i], 1.0/255)
		assert.InDelta(t, 128.0/255, tensor[i+1], 1.0/255)
		assert.InDelta(t, 0.0, tensor[i+2], 1.0/255)
	}
}

func TestTensorStretchesSolidColour(t *testing.T) {
	img := solidImage(10, 3, color.NRGBA{R: 10, G: 200, B: 90, A: 255})

	tensor, err := Tensor(img, 8)
	require.NoError(t, err)
	require.Len(t, tensor, 8*8*Channels)
	for i := 0; i < len(tensor); i += Channels {
		assert.InDelta(t, 10.0/255, tensor[i], 1.0/255)
		assert.InDelta(t, 200.0/255, tensor[i+1], 1.0/255)
		assert.InDelta(t, 90.0/255, tensor[i+2], 1.0/255)
	}
}

func TestTensorHonoursNonZeroBoundsOrigin(t *testing.T) {
	img := image.NewNRGBA(image.Rect(5, 5, 7, 7))
	img.SetNRGBA(5, 5, color.NRGBA{R: 255, A: 255})

	tensor, err := Tensor(img, 2)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, tensor[0], 1e-6)
}

func TestTensorRejectsEmptyInput(t *testing.T) {
	_, err := Tensor(image.NewNRGBA(image.Rect(0, 0, 0, 10)), DefaultImageSize)
	assert.ErrorIs(t, err, ErrEmptyImage)

	_, err = Tensor(nil, DefaultImageSize)
	assert.ErrorIs(t, err, ErrEmptyImage)

	_, err = Tensor(noiseImage(3, 3, 1), 0)
	assert.Error(t, err)
}

func TestDecode(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, noiseImage(9, 5, 3)))

	img, format, err := Decode(bytes.NewReader(buf.Bytes()), DefaultMaxPixels)
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 9, img.Bounds().Dx())
	assert.Equal(t, 5, img.Bounds().Dy())

	_, _, err = Decode(bytes.NewReader([]byte("definitely not an image")), DefaultMaxPixels)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestDecodeFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tree.png")

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, noiseImage(4, 4, 9)))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	_, format, err := DecodeFile(path, DefaultMaxPixels)
	require.NoError(t, err)
	assert.Equal(t, "png", format)

	_, _, err = DecodeFile(filepath.Join(dir, "missing.jpg"), DefaultMaxPixels)
	assert.Error(t, err)
}

func TestDecodeRejectsOversizedHeader(t *testing.T) {
	_, _, err := Decode(bytes.NewReader(testutil.PNGHeader(30000, 30000)), DefaultMaxPixels)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.Contains(t, err.Error(), "30000x30000")
}

func TestDecodeWithinLimitReplaysHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, noiseImage(20, 10, 5)))

	img, _, err := Decode(bytes.NewReader(buf.Bytes()), 200)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 20, 10), img.Bounds())

	_, _, err = Decode(bytes.NewReader(buf.Bytes()), 199)
	assert.ErrorIs(t, err, ErrTooLarge)

	_, _, err = Decode(bytes.NewReader(buf.Bytes()), 0)
	assert.NoError(t, err)
}

func TestTensorRejectsPaletteIndexOutOfRange(t *testing.T) {
	img, format, err := Decode(bytes.NewReader(testutil.PalettedBMP(4, 2, 200)), DefaultMaxPixels)
	require.NoError(t, err)
	assert.Equal(t, "bmp", format)

	_, err = Tensor(img, DefaultImageSize)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestTensorAcceptsValidPalettedBMP(t *testing.T) {
	img, _, err := Decode(bytes.NewReader(testutil.PalettedBMP(4, 2, 1)), DefaultMaxPixels)
	require.NoError(t, err)

	tensor, err := Tensor(img, 4)
	require.NoError(t, err)
	require.Len(t, tensor, 4*4*Channels)
	assert.InDelta(t, 1.0, tensor[0], 1.0/255)
}

// rowPanicImage panics from At, as a broken decoder output would.
type rowPanicImage struct{ image.Rectangle }

func (r rowPanicImage) ColorModel() color.Model { return color.NRGBAModel }
func (r rowPanicImage) Bounds() image.Rectangle { return r.Rectangle }
func (r rowPanicImage) At(x, y int) color.Color { panic("broken pixel buffer") }

func TestTensorRecoversPixelPanics(t *testing.T) {
	_, err := Tensor(rowPanicImage{image.Rect(0, 0, 30, 30)}, 8)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDecode)
}
