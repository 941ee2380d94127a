// Package photo implements the C8 async photo pipeline: format validation,
// HEIC transcoding, the crop/resize/re-encode policy of spec.md §4.2, and
// the upload-job store and worker pool that run it off the main chat
// request path.
package photo

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // format registration for image.Decode
	"net/http"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/bmp"  // format registration for image.Decode
	_ "golang.org/x/image/webp" // format registration for image.Decode
)

// Target dimensions and quality for the photo optimisation policy (§4.2):
// 4:5 aspect ratio at 800x1000, JPEG quality 85, capped at ~500KB, with a
// 600x750 minimum input size.
const (
	targetWidth  = 800
	targetHeight = 1000
	minWidth     = 600
	minHeight    = 750
	jpegQuality  = 85
	maxOutputSize = 500 * 1024
)

// ErrImageTooSmall is returned when the source image is below the minimum
// accepted dimensions (§4.2 "Images smaller than 600x750 are rejected
// upstream").
var ErrImageTooSmall = errors.New("photo: image is smaller than the minimum accepted size")

// HEICTranscoder converts HEIC-encoded bytes to JPEG. No example repo in
// the corpus imports a HEIC decoding library, so this is isolated behind a
// narrow interface a real decoder implements; see DESIGN.md.
type HEICTranscoder interface {
	ToJPEG(data []byte) ([]byte, error)
}

// UnsupportedHEICTranscoder is a placeholder HEICTranscoder that always
// fails. It documents the seam a real HEIC decoder plugs into without
// fabricating a fake one.
type UnsupportedHEICTranscoder struct{}

// ToJPEG always fails: wire a real decoder in before HEIC uploads are
// accepted in production.
func (UnsupportedHEICTranscoder) ToJPEG(data []byte) ([]byte, error) {
	return nil, errors.New("photo: HEIC transcoding is not configured")
}

// Optimizer applies the photo optimisation policy to uploaded image bytes.
type Optimizer struct {
	heic HEICTranscoder
}

// NewOptimizer builds an Optimizer. A nil transcoder falls back to
// UnsupportedHEICTranscoder, so HEIC uploads fail loudly rather than
// silently mis-decoding.
func NewOptimizer(heic HEICTranscoder) *Optimizer {
	if heic == nil {
		heic = UnsupportedHEICTranscoder{}
	}
	return &Optimizer{heic: heic}
}

// Optimize validates the format, transcodes HEIC to JPEG, crops to a 4:5
// aspect ratio, resizes to 800x1000, and re-encodes as JPEG capped at
// roughly 500KB (§4.2).
func (o *Optimizer) Optimize(data []byte, contentType string) ([]byte, error) {
	if isHEIC(contentType) {
		jpegBytes, err := o.heic.ToJPEG(data)
		if err != nil {
			return nil, fmt.Errorf("photo: transcode HEIC: %w", err)
		}
		data = jpegBytes
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("photo: decode image: %w", err)
	}

	bounds := src.Bounds()
	if bounds.Dx() < minWidth || bounds.Dy() < minHeight {
		return nil, fmt.Errorf("%w: got %dx%d, want at least %dx%d", ErrImageTooSmall, bounds.Dx(), bounds.Dy(), minWidth, minHeight)
	}

	cropped := cropToAspect(src, targetWidth, targetHeight)
	resized := resize(cropped, targetWidth, targetHeight)

	out, err := encodeJPEG(resized, jpegQuality)
	if err != nil {
		return nil, err
	}
	for quality := jpegQuality - 10; len(out) > maxOutputSize && quality > 30; quality -= 10 {
		out, err = encodeJPEG(resized, quality)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// cropToAspect centre-crops src to the aspect ratio of targetW:targetH.
func cropToAspect(src image.Image, targetW, targetH int) image.Image {
	bounds := src.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()

	wantRatio := float64(targetW) / float64(targetH)
	gotRatio := float64(srcW) / float64(srcH)

	cropW, cropH := srcW, srcH
	if gotRatio > wantRatio {
		cropW = int(float64(srcH) * wantRatio)
	} else if gotRatio < wantRatio {
		cropH = int(float64(srcW) / wantRatio)
	}

	x0 := bounds.Min.X + (srcW-cropW)/2
	y0 := bounds.Min.Y + (srcH-cropH)/2
	rect := image.Rect(x0, y0, x0+cropW, y0+cropH)

	type subImager interface {
		SubImage(r image.Rectangle) image.Image
	}
	if si, ok := src.(subImager); ok {
		return si.SubImage(rect)
	}

	dst := image.NewRGBA(image.Rect(0, 0, cropW, cropH))
	draw.Draw(dst, dst.Bounds(), src, rect.Min, draw.Src)
	return dst
}

// resize scales img to exactly width x height using bilinear interpolation.
func resize(img image.Image, width, height int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("photo: encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func isHEIC(contentType string) bool {
	switch contentType {
	case "image/heic", "image/heif":
		return true
	default:
		return false
	}
}

// DetectContentType sniffs the content type of raw upload bytes, falling
// back to the client-supplied contentType (e.g. for HEIC, which
// http.DetectContentType does not recognise).
func DetectContentType(data []byte, clientSupplied string) string {
	if isHEIC(clientSupplied) {
		return clientSupplied
	}
	detected := http.DetectContentType(data)
	switch detected {
	case "image/jpeg", "image/png", "image/webp", "image/bmp":
		return detected
	default:
		return clientSupplied
	}
}
