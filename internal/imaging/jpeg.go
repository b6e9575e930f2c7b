package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif" // register decoders for image.Decode
	"image/jpeg"
	_ "image/png"
)

// DefaultQuality is the lossy JPEG quality used for images sent to the model.
const DefaultQuality = 70

// JPEGEncoder re-encodes arbitrary images as JPEG at a fixed quality.
type JPEGEncoder struct {
	Quality int
}

// NewJPEGEncoder returns an encoder using quality, falling back to DefaultQuality
// when quality is outside 1..100.
func NewJPEGEncoder(quality int) JPEGEncoder {
	if quality < 1 || quality > 100 {
		quality = DefaultQuality
	}
	return JPEGEncoder{Quality: quality}
}

// EncodeJPEG decodes raw (JPEG, PNG or GIF) and re-encodes it as JPEG.
func (e JPEGEncoder) EncodeJPEG(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty image data")
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	quality := e.Quality
	if quality == 0 {
		quality = DefaultQuality
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
