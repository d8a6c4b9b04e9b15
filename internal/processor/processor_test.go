package processor

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testImage returns a flat-colored RGBA image of the given dimensions.
func testImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 60, B: 30, A: 255})
		}
	}
	return img
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	contentTypes := []string{"image/jpeg", "image/png", "image/gif", "image/bmp", "image/tiff"}

	for _, ct := range contentTypes {
		t.Run(ct, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Encode(&buf, testImage(40, 20), ct))

			decoded, err := Decode(&buf, ct)
			require.NoError(t, err)
			assert.Equal(t, 40, decoded.Bounds().Dx())
			assert.Equal(t, 20, decoded.Bounds().Dy())
		})
	}
}

func TestResizeProducesExactDimensions(t *testing.T) {
	tests := []struct {
		name       string
		srcW, srcH int
		dstW, dstH int
	}{
		{"downscale", 640, 480, 100, 100},
		{"upscale", 64, 48, 1200, 800},
		{"same size", 50, 50, 50, 50},
		{"ratio change", 300, 100, 100, 300},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resized := Resize(testImage(tt.srcW, tt.srcH), tt.dstW, tt.dstH)
			assert.Equal(t, tt.dstW, resized.Bounds().Dx())
			assert.Equal(t, tt.dstH, resized.Bounds().Dy())
		})
	}
}

func TestEncodeUnsupportedContentType(t *testing.T) {
	var buf bytes.Buffer
	err := Encode(&buf, testImage(10, 10), "image/svg+xml")
	require.Error(t, err)
}

func TestDecodeGarbage(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte("not an image")), "image/jpeg")
	require.Error(t, err)
}
