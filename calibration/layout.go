package calibration

import (
	"github.com/golang/geo/r2"

	"go.viam.com/birdseye/rig"
)

// Layout places the vehicle and the four chessboards on the ground and fixes the metric to canvas
// scale. The ground frame has its origin at the vehicle centre, X to the right and Y to the front.
// Canvas rows grow towards the rear.
type Layout struct {
	cfg   Config
	Scale float64 // canvas px per meter
}

// NewLayout derives the layout from a config. The canvas width spans the vehicle plus the view range
// on both sides.
func NewLayout(cfg Config) *Layout {
	return &Layout{
		cfg:   cfg,
		Scale: float64(cfg.CanvasWidth) / (cfg.VehicleWidth + 2*cfg.ViewRange),
	}
}

// GroundToCanvas maps a ground point in meters to canvas pixels.
func (l *Layout) GroundToCanvas(p r2.Point) r2.Point {
	return r2.Point{
		X: float64(l.cfg.CanvasWidth)/2 + p.X*l.Scale,
		Y: float64(l.cfg.CanvasHeight)/2 - p.Y*l.Scale,
	}
}

// CanvasToGround maps a canvas pixel to the ground point in meters.
func (l *Layout) CanvasToGround(q r2.Point) r2.Point {
	return r2.Point{
		X: (q.X - float64(l.cfg.CanvasWidth)/2) / l.Scale,
		Y: (float64(l.cfg.CanvasHeight)/2 - q.Y) / l.Scale,
	}
}

// Footprint returns the vehicle rectangle on the ground.
func (l *Layout) Footprint() r2.Rect {
	return r2.RectFromCenterSize(r2.Point{}, r2.Point{X: l.cfg.VehicleWidth, Y: l.cfg.VehicleLength})
}

// FootprintCanvas returns the vehicle rectangle on the canvas.
func (l *Layout) FootprintCanvas() r2.Rect {
	fp := l.Footprint()
	return r2.RectFromPoints(l.GroundToCanvas(fp.Lo()), l.GroundToCanvas(fp.Hi()))
}

// Facing returns the direction a camera looks along and the direction of its image x axis, both
// on the ground.
func Facing(pos rig.Position) (forward, right r2.Point) {
	switch pos {
	case rig.Front:
		return r2.Point{X: 0, Y: 1}, r2.Point{X: 1, Y: 0}
	case rig.Rear:
		return r2.Point{X: 0, Y: -1}, r2.Point{X: -1, Y: 0}
	case rig.Left:
		return r2.Point{X: -1, Y: 0}, r2.Point{X: 0, Y: 1}
	default:
		return r2.Point{X: 1, Y: 0}, r2.Point{X: 0, Y: -1}
	}
}

// BoardCenter returns the ground position of the centre of a camera's chessboard corners.
func (l *Layout) BoardCenter(pos rig.Position) r2.Point {
	halfDepth := float64(l.cfg.Pattern.Rows-1) * l.cfg.SquareSize / 2
	w, h := l.cfg.VehicleWidth/2, l.cfg.VehicleLength/2
	side := h - l.cfg.LeftRightToFront
	switch pos {
	case rig.Front:
		return r2.Point{X: 0, Y: h + l.cfg.BoardGap + halfDepth}
	case rig.Rear:
		return r2.Point{X: 0, Y: -(h + l.cfg.BoardGap + halfDepth)}
	case rig.Left:
		return r2.Point{X: -(w + l.cfg.BoardGap + halfDepth), Y: side}
	default:
		return r2.Point{X: w + l.cfg.BoardGap + halfDepth, Y: side}
	}
}

// GroundPoints returns the metric ground coordinates of a camera's inner corners in the detector's
// row-major order: row 0 is farthest from the vehicle and column 0 is on the left of the image.
func (l *Layout) GroundPoints(pos rig.Position) []r2.Point {
	forward, right := Facing(pos)
	center := l.BoardCenter(pos)
	cols, rows := l.cfg.Pattern.Cols, l.cfg.Pattern.Rows
	s := l.cfg.SquareSize
	out := make([]r2.Point, 0, cols*rows)
	for r := 0; r < rows; r++ {
		along := (float64(rows-1)/2 - float64(r)) * s
		for c := 0; c < cols; c++ {
			across := (float64(c) - float64(cols-1)/2) * s
			out = append(out, center.Add(right.Mul(across)).Add(forward.Mul(along)))
		}
	}
	return out
}

// CanvasPoints returns GroundPoints mapped to canvas pixels. These are the homography targets.
func (l *Layout) CanvasPoints(pos rig.Position) []r2.Point {
	ground := l.GroundPoints(pos)
	out := make([]r2.Point, len(ground))
	for i, p := range ground {
		out[i] = l.GroundToCanvas(p)
	}
	return out
}

// InHalfPlane reports whether a ground point lies on the side of the vehicle a camera is responsible
// for: ahead of the front edge, behind the rear edge, or beside the footprint.
func (l *Layout) InHalfPlane(pos rig.Position, p r2.Point) bool {
	w, h := l.cfg.VehicleWidth/2, l.cfg.VehicleLength/2
	switch pos {
	case rig.Front:
		return p.Y > h
	case rig.Rear:
		return p.Y < -h
	case rig.Left:
		return p.X < -w
	default:
		return p.X > w
	}
}
