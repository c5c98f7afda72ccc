package imageprocessing

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var (
	// ErrUnreadableImage is returned when image bytes cannot be decoded.
	ErrUnreadableImage = errors.New("unable to read image")
	// ErrEmptyImage is returned when an image has no pixels.
	ErrEmptyImage = errors.New("image has no pixels")
)

// Decode decodes any registered raster format into an RGBA image anchored at the origin
func Decode(imageData []byte) (*image.RGBA, error) {
	img, format, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableImage, err)
	}

	bounds := img.Bounds()
	slog.Debug("decoded image",
		"format", format,
		"width", bounds.Dx(),
		"height", bounds.Dy(),
		"input_size_bytes", len(imageData))

	return toRGBA(img), nil
}

// LoadFile reads and decodes the image stored at path
func LoadFile(path string) (*image.RGBA, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableImage, err)
	}
	img, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// Dimensions reports the pixel width and height of an encoded image without decoding the pixels
func Dimensions(imageData []byte) (width int, height int, err error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(imageData))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrUnreadableImage, err)
	}
	return cfg.Width, cfg.Height, nil
}

// DimensionsOfFile reports the pixel width and height of the image stored at path
func DimensionsOfFile(path string) (width int, height int, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrUnreadableImage, err)
	}
	return Dimensions(data)
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	bounds := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Src)
	return dst
}
