package imageprocessing

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"log/slog"

	"github.com/nfnt/resize"
)

// DefaultThumbnailWidth is used when no width is requested
const DefaultThumbnailWidth = 320

// Thumbnail scales an encoded image to the given width, keeping the aspect
// ratio, and returns it JPEG encoded. Images narrower than width are only re-encoded.
func Thumbnail(imageData []byte, width uint) ([]byte, error) {
	img, err := Decode(imageData)
	if err != nil {
		return nil, err
	}

	if width == 0 {
		width = DefaultThumbnailWidth
	}
	if int(width) > img.Bounds().Dx() {
		width = uint(img.Bounds().Dx())
	}

	scaled := resize.Resize(width, 0, img, resize.Bilinear)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}

	slog.Debug("thumbnail created",
		"width", scaled.Bounds().Dx(),
		"height", scaled.Bounds().Dy(),
		"output_size_bytes", buf.Len())

	return buf.Bytes(), nil
}
