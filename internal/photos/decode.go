package photos

import (
	"bytes"
	"fmt"
	"image"
	"net/http"

	"github.com/disintegration/imaging"

	_ "golang.org/x/image/webp"
)

// Decode reads an uploaded photo and applies its EXIF orientation, so hashes and
// renders see the picture the way the phone showed it.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("decode image: empty data")
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// MaxUploadEdge bounds the longest edge of photos re-encoded for the AI service.
const MaxUploadEdge = 1600

// EncodeJPEG re-encodes img for sending inline, downscaling very large photos.
func EncodeJPEG(img image.Image) ([]byte, error) {
	b := img.Bounds()
	if b.Dx() > MaxUploadEdge || b.Dy() > MaxUploadEdge {
		img = imaging.Fit(img, MaxUploadEdge, MaxUploadEdge, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// MIMEType sniffs the content type of raw image bytes.
func MIMEType(data []byte) string {
	return http.DetectContentType(data)
}
