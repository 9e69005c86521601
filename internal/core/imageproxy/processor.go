package imageproxy

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// Processor turns source image bytes into a preset-sized JPEG.
type Processor interface {
	Process(data []byte, preset Preset) ([]byte, error)
}

// ImageProcessor implements Processor with the imaging library. Animated GIFs are
// reduced to their first frame.
type ImageProcessor struct{}

// NewProcessor creates a new ImageProcessor.
func NewProcessor() Processor {
	return &ImageProcessor{}
}

func (p *ImageProcessor) Process(data []byte, preset Preset) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image data", ErrUnsupportedFormat)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
		}
		return nil, fmt.Errorf("%w: failed to decode %s image: %v", ErrProcessingFailed, format, err)
	}

	var out image.Image
	switch preset.Fit {
	case FitCover:
		out = imaging.Fill(img, preset.Width, preset.Height, imaging.Center, imaging.Lanczos)
	case FitContain:
		out = contain(img, preset.Width, preset.Height)
	default:
		return nil, fmt.Errorf("%w: unknown fit mode %q", ErrProcessingFailed, preset.Fit)
	}

	// JPEG has no alpha channel; transparent token art is flattened onto white.
	if format == "png" || format == "gif" || format == "webp" {
		bg := imaging.New(out.Bounds().Dx(), out.Bounds().Dy(), color.White)
		out = imaging.Overlay(bg, out, image.Pt(0, 0), 1.0)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.JPEG, imaging.JPEGQuality(preset.Quality)); err != nil {
		return nil, fmt.Errorf("%w: failed to encode JPEG: %v", ErrProcessingFailed, err)
	}
	return buf.Bytes(), nil
}

// contain scales img down to maxWidth (and maxHeight when set), never upscaling.
func contain(img image.Image, maxWidth, maxHeight int) image.Image {
	b := img.Bounds()
	if b.Dx() <= maxWidth && (maxHeight <= 0 || b.Dy() <= maxHeight) {
		return img
	}
	if maxHeight <= 0 {
		return imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
	}
	return imaging.Fit(img, maxWidth, maxHeight, imaging.Lanczos)
}
