package imageprocessing

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
)

// ErrDegenerateQuadrilateral is returned when the crop corners do not span an area
var ErrDegenerateQuadrilateral = errors.New("crop quadrilateral is degenerate")

// Quadrilateral holds four corners in raw camera coordinates, ordered
// top-left, top-right, bottom-right, bottom-left.
type Quadrilateral [4]image.Point

// NewQuadrilateral builds a quadrilateral from the eight crop coordinates
func NewQuadrilateral(x1, y1, x2, y2, x3, y3, x4, y4 int) Quadrilateral {
	return Quadrilateral{
		{X: x1, Y: y1},
		{X: x2, Y: y2},
		{X: x3, Y: y3},
		{X: x4, Y: y4},
	}
}

// Enabled reports whether rectification applies. Point 1 may be the origin,
// so only points 2 and 3 are checked.
func (q Quadrilateral) Enabled() bool {
	return q[1].X > 0 && q[1].Y > 0 && q[2].X > 0 && q[2].Y > 0
}

// TargetSize returns the size of the rectangle the quadrilateral is mapped onto
func (q Quadrilateral) TargetSize() (width int, height int) {
	width = int(math.Max(distance(q[0], q[1]), distance(q[2], q[3])))
	height = int(math.Max(distance(q[1], q[2]), distance(q[3], q[0])))
	return width, height
}

func distance(a, b image.Point) float64 {
	return math.Hypot(float64(a.X-b.X), float64(a.Y-b.Y))
}

// Point2 is a point with sub-pixel precision
type Point2 struct {
	X, Y float64
}

func (q Quadrilateral) points() [4]Point2 {
	var pts [4]Point2
	for i, p := range q {
		pts[i] = Point2{X: float64(p.X), Y: float64(p.Y)}
	}
	return pts
}

// Homography is a row-major 3x3 projective transform
type Homography [9]float64

// Apply maps (x, y) through the transform
func (h Homography) Apply(x, y float64) (float64, float64) {
	w := h[6]*x + h[7]*y + h[8]
	if w == 0 {
		return math.Inf(1), math.Inf(1)
	}
	return (h[0]*x + h[1]*y + h[2]) / w, (h[3]*x + h[4]*y + h[5]) / w
}

// PerspectiveTransform computes the homography mapping each src point onto
// the dst point with the same index.
func PerspectiveTransform(src, dst [4]Point2) (Homography, error) {
	// Eight equations in h0..h7 with h8 fixed to 1.
	var a [8][9]float64
	for i := 0; i < 4; i++ {
		x, y := src[i].X, src[i].Y
		u, v := dst[i].X, dst[i].Y
		a[2*i] = [9]float64{x, y, 1, 0, 0, 0, -x * u, -y * u, u}
		a[2*i+1] = [9]float64{0, 0, 0, x, y, 1, -x * v, -y * v, v}
	}

	solution, err := solveLinearSystem(a)
	if err != nil {
		return Homography{}, err
	}

	var h Homography
	copy(h[:8], solution[:])
	h[8] = 1
	return h, nil
}

// solveLinearSystem solves the augmented 8x8 system by Gaussian elimination with partial pivoting
func solveLinearSystem(a [8][9]float64) ([8]float64, error) {
	const n = 8
	var x [8]float64

	for col := 0; col < n; col++ {
		pivot := col
		for row := col + 1; row < n; row++ {
			if math.Abs(a[row][col]) > math.Abs(a[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return x, fmt.Errorf("%w: singular perspective system", ErrDegenerateQuadrilateral)
		}
		a[col], a[pivot] = a[pivot], a[col]

		for row := col + 1; row < n; row++ {
			factor := a[row][col] / a[col][col]
			for k := col; k <= n; k++ {
				a[row][k] -= factor * a[col][k]
			}
		}
	}

	for row := n - 1; row >= 0; row-- {
		sum := a[row][n]
		for k := row + 1; k < n; k++ {
			sum -= a[row][k] * x[k]
		}
		x[row] = sum / a[row][row]
	}
	return x, nil
}

// Rectify warps both images through the single transform defined by q so they
// share one aligned frame. When q is not enabled the images are returned untouched.
func Rectify(a, b *image.RGBA, q Quadrilateral) (*image.RGBA, *image.RGBA, error) {
	if !q.Enabled() {
		slog.Debug("rectification disabled, comparing raw frames")
		return a, b, nil
	}

	width, height := q.TargetSize()
	if width <= 0 || height <= 0 {
		return nil, nil, fmt.Errorf("%w: target size %dx%d", ErrDegenerateQuadrilateral, width, height)
	}

	corners := [4]Point2{
		{X: 0, Y: 0},
		{X: float64(width), Y: 0},
		{X: float64(width), Y: float64(height)},
		{X: 0, Y: float64(height)},
	}

	// Sampling walks destination pixels, so solve for the inverse mapping directly.
	inverse, err := PerspectiveTransform(corners, q.points())
	if err != nil {
		return nil, nil, err
	}

	slog.Debug("rectifying image pair",
		"target_width", width,
		"target_height", height,
		"quadrilateral", q)

	return WarpPerspective(a, inverse, width, height), WarpPerspective(b, inverse, width, height), nil
}

// WarpPerspective renders a width x height image where each destination pixel
// (x, y) is bilinearly sampled from src at inverse.Apply(x, y). Samples falling
// outside src read as black.
func WarpPerspective(src *image.RGBA, inverse Homography, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))

	parallelFor(height, func(y int) {
		row := dst.Pix[y*dst.Stride : y*dst.Stride+width*4]
		for x := 0; x < width; x++ {
			sx, sy := inverse.Apply(float64(x), float64(y))
			r, g, b := sampleBilinear(src, snap(sx), snap(sy))
			row[x*4] = r
			row[x*4+1] = g
			row[x*4+2] = b
			row[x*4+3] = 0xff
		}
	})

	return dst
}

// snap removes floating point noise around integral coordinates
func snap(v float64) float64 {
	if r := math.Round(v); math.Abs(v-r) < 1e-6 {
		return r
	}
	return v
}

func sampleBilinear(src *image.RGBA, x, y float64) (uint8, uint8, uint8) {
	if math.IsInf(x, 0) || math.IsInf(y, 0) || math.IsNaN(x) || math.IsNaN(y) {
		return 0, 0, 0
	}

	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	fx := x - float64(x0)
	fy := y - float64(y0)

	var out [3]float64
	weights := [4]float64{(1 - fx) * (1 - fy), fx * (1 - fy), (1 - fx) * fy, fx * fy}
	offsets := [4]image.Point{{0, 0}, {1, 0}, {0, 1}, {1, 1}}
	for i, off := range offsets {
		if weights[i] == 0 {
			continue
		}
		px, py := x0+off.X, y0+off.Y
		if !(image.Point{X: px, Y: py}).In(src.Bounds()) {
			continue
		}
		idx := src.PixOffset(px, py)
		out[0] += weights[i] * float64(src.Pix[idx])
		out[1] += weights[i] * float64(src.Pix[idx+1])
		out[2] += weights[i] * float64(src.Pix[idx+2])
	}

	return clampByte(out[0]), clampByte(out[1]), clampByte(out[2])
}

func clampByte(v float64) uint8 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
