// Package screen decodes captured frames and classifies sensitive screens.
package screen

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"

	"github.com/xkilldash9x/phonepilot/api/schemas"
)

// Fallback dimensions when a capture failed and no real frame exists.
const (
	FallbackWidth  = 1080
	FallbackHeight = 2400
)

// Dark-pixel thresholds. A channel below darkChannelMax counts as dark; a
// frame whose dark ratio exceeds blackRatio is considered black.
const (
	darkChannelMax = 50
	blackRatio     = 0.95
)

// Decode parses PNG bytes into an image.
func Decode(data []byte) (image.Image, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode screenshot: %w", err)
	}
	return img, nil
}

// IsBlack reports whether the image is almost entirely dark pixels, the
// signature of a capture blocked by FLAG_SECURE or taken mid-transition.
// Large frames are sampled on a grid rather than scanned exhaustively.
func IsBlack(img image.Image) bool {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return true
	}

	step := 1
	if w*h > 256*256 {
		step = w * h / (256 * 256)
		if step > 16 {
			step = 16
		}
	}

	var dark, total int
	for y := bounds.Min.Y; y < bounds.Max.Y; y += step {
		for x := bounds.Min.X; x < bounds.Max.X; x += step {
			r, g, b, _ := img.At(x, y).RGBA()
			total++
			if r>>8 < darkChannelMax && g>>8 < darkChannelMax && b>>8 < darkChannelMax {
				dark++
			}
		}
	}
	return float64(dark)/float64(total) > blackRatio
}

// FallbackFrame builds a solid black frame for when capture failed
// entirely. Sensitive marks captures blocked by the OS.
func FallbackFrame(sensitive bool) *schemas.Frame {
	img := image.NewRGBA(image.Rect(0, 0, FallbackWidth, FallbackHeight))
	// NewRGBA zeroes the buffer; set alpha so the PNG is opaque black.
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xFF
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		// Encoding an in-memory RGBA image cannot fail.
		panic(err)
	}
	return &schemas.Frame{
		PNGBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		Width:     FallbackWidth,
		Height:    FallbackHeight,
		Sensitive: sensitive,
	}
}

// Classifier implements schemas.SensitivityClassifier on top of the
// black-frame heuristic.
type Classifier struct{}

var _ schemas.SensitivityClassifier = (*Classifier)(nil)

// IsSensitive returns true when capture already flagged the frame, or when
// the decoded image is black. Undecodable payloads are treated as
// sensitive; acting blind on an unreadable screen is the riskier default.
func (Classifier) IsSensitive(frame *schemas.Frame) bool {
	if frame == nil {
		return true
	}
	if frame.Sensitive {
		return true
	}
	data, err := base64.StdEncoding.DecodeString(frame.PNGBase64)
	if err != nil {
		return true
	}
	img, err := Decode(data)
	if err != nil {
		return true
	}
	return IsBlack(img)
}
