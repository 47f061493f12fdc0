package screen

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/phonepilot/api/schemas"
)

func encodeFrame(t *testing.T, img image.Image) *schemas.Frame {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	b := img.Bounds()
	return &schemas.Frame{
		PNGBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		Width:     b.Dx(),
		Height:    b.Dy(),
	}
}

func solidImage(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestIsBlack(t *testing.T) {
	assert.True(t, IsBlack(solidImage(64, 64, color.Black)))
	assert.False(t, IsBlack(solidImage(64, 64, color.RGBA{R: 128, G: 128, B: 128, A: 255})))

	// A black image with a small bright region is still mostly black.
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xFF
	}
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			img.Set(x, y, color.White)
		}
	}
	assert.True(t, IsBlack(img))

	// Half bright is not black.
	half := image.NewRGBA(image.Rect(0, 0, 100, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			if x < 50 {
				half.Set(x, y, color.White)
			} else {
				half.Set(x, y, color.Black)
			}
		}
	}
	assert.False(t, IsBlack(half))
}

func TestClassifier(t *testing.T) {
	var c Classifier

	t.Run("nil frame is sensitive", func(t *testing.T) {
		assert.True(t, c.IsSensitive(nil))
	})

	t.Run("flagged frame is sensitive", func(t *testing.T) {
		f := encodeFrame(t, solidImage(32, 32, color.RGBA{R: 200, G: 200, B: 200, A: 255}))
		f.Sensitive = true
		assert.True(t, c.IsSensitive(f))
	})

	t.Run("black frame is sensitive", func(t *testing.T) {
		assert.True(t, c.IsSensitive(encodeFrame(t, solidImage(32, 32, color.Black))))
	})

	t.Run("normal frame is not sensitive", func(t *testing.T) {
		f := encodeFrame(t, solidImage(32, 32, color.RGBA{R: 240, G: 240, B: 240, A: 255}))
		assert.False(t, c.IsSensitive(f))
	})

	t.Run("undecodable frame is sensitive", func(t *testing.T) {
		assert.True(t, c.IsSensitive(&schemas.Frame{PNGBase64: "not base64!"}))
	})
}

func TestFallbackFrame(t *testing.T) {
	f := FallbackFrame(true)
	assert.True(t, f.Sensitive)
	assert.Equal(t, FallbackWidth, f.Width)
	assert.Equal(t, FallbackHeight, f.Height)

	data, err := base64.StdEncoding.DecodeString(f.PNGBase64)
	require.NoError(t, err)
	img, err := Decode(data)
	require.NoError(t, err)
	assert.True(t, IsBlack(img))
}
