package imageprocessing

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/unixpickle/num-analysis/linalg"
)

// ErrDimensionMismatch is returned when two images cannot be compared pixel by pixel
var ErrDimensionMismatch = errors.New("image dimensions differ")

// Score returns 1 - ||a-b||₂ / (width*height) over the R, G and B channels.
// Identical images score exactly 1; the value is unbounded below.
func Score(a, b *image.RGBA) (float64, error) {
	ab, bb := a.Bounds(), b.Bounds()
	if ab.Dx() != bb.Dx() || ab.Dy() != bb.Dy() {
		return 0, fmt.Errorf("%w: %dx%d vs %dx%d", ErrDimensionMismatch, ab.Dx(), ab.Dy(), bb.Dx(), bb.Dy())
	}
	width, height := ab.Dx(), ab.Dy()
	if width == 0 || height == 0 {
		return 0, ErrEmptyImage
	}

	// Per-row norms; the norm of that vector is the norm over every pixel.
	rowNorms := make(linalg.Vector, height)
	parallelFor(height, func(y int) {
		ai := a.PixOffset(ab.Min.X, ab.Min.Y+y)
		bi := b.PixOffset(bb.Min.X, bb.Min.Y+y)
		var sum float64
		for x := 0; x < width; x++ {
			for c := 0; c < 3; c++ {
				d := float64(a.Pix[ai+c]) - float64(b.Pix[bi+c])
				sum += d * d
			}
			ai += 4
			bi += 4
		}
		rowNorms[y] = math.Sqrt(sum)
	})

	return 1 - rowNorms.Mag()/float64(width*height), nil
}
