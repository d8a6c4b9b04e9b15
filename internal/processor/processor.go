package processor

import (
	"fmt"
	"image"
	"io"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
)

const contentTypeWebP = "image/webp"

// webpQuality is the lossy quality used when re-encoding webp derivatives.
const webpQuality = 90

// formatFor maps an image content type to the imaging encoder format.
func formatFor(contentType string) (imaging.Format, error) {
	switch contentType {
	case "image/jpeg", "image/jpg":
		return imaging.JPEG, nil
	case "image/png":
		return imaging.PNG, nil
	case "image/gif":
		return imaging.GIF, nil
	case "image/bmp":
		return imaging.BMP, nil
	case "image/tiff":
		return imaging.TIFF, nil
	}

	return 0, fmt.Errorf("unsupported image content type: %s", contentType)
}

// Decode reads one image from r. The content type selects the codec: webp
// goes through the webp decoder, everything else through imaging's sniffing
// decoder.
func Decode(r io.Reader, contentType string) (image.Image, error) {
	if contentType == contentTypeWebP {
		img, err := webp.Decode(r)
		if err != nil {
			return nil, fmt.Errorf("failed to decode webp image: %w", err)
		}
		return img, nil
	}

	img, err := imaging.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	return img, nil
}

// Resize scales img to exactly width x height using Lanczos resampling.
// The aspect ratio is not preserved: every derivative comes out at its
// configured dimensions, stretched if the source ratio differs.
func Resize(img image.Image, width, height int) image.Image {
	return imaging.Resize(img, width, height, imaging.Lanczos)
}

// Encode writes img to w in the format implied by the source content type,
// so a derivative always carries the same format as its original.
func Encode(w io.Writer, img image.Image, contentType string) error {
	if contentType == contentTypeWebP {
		if err := webp.Encode(w, img, &webp.Options{Quality: webpQuality}); err != nil {
			return fmt.Errorf("failed to encode webp image: %w", err)
		}
		return nil
	}

	format, err := formatFor(contentType)
	if err != nil {
		return err
	}

	if err := imaging.Encode(w, img, format); err != nil {
		return fmt.Errorf("failed to encode image: %w", err)
	}

	return nil
}
