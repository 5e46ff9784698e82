// Package geom provides the 2D primitives the detection pipeline works
// with: axis-aligned rectangles for vehicle/violation boxes and four point
// quads for plate character detections which may arrive rotated.
package geom

import (
	"math"
)

// Rect is an axis-aligned rectangle in pixel coordinates using
// (minx, miny, maxx, maxy) bounds
type Rect struct {
	MinX float32
	MinY float32
	MaxX float32
	MaxY float32
}

// NewRect creates a new Rect with the given bounds
func NewRect(minX, minY, maxX, maxY float32) Rect {
	return Rect{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY}
}

// Width returns the width of the rectangle
func (r Rect) Width() float32 {
	return r.MaxX - r.MinX
}

// Height returns the height of the rectangle
func (r Rect) Height() float32 {
	return r.MaxY - r.MinY
}

// Area returns the area of the rectangle
func (r Rect) Area() float32 {
	if r.MaxX <= r.MinX || r.MaxY <= r.MinY {
		return 0
	}
	return (r.MaxX - r.MinX) * (r.MaxY - r.MinY)
}

// Empty returns true when the rectangle has no area
func (r Rect) Empty() bool {
	return r.MaxX <= r.MinX || r.MaxY <= r.MinY
}

// Intersect returns the overlapping region of two rectangles. The result
// is empty when they do not overlap.
func (r Rect) Intersect(other Rect) Rect {
	res := Rect{
		MinX: maxf(r.MinX, other.MinX),
		MinY: maxf(r.MinY, other.MinY),
		MaxX: minf(r.MaxX, other.MaxX),
		MaxY: minf(r.MaxY, other.MaxY),
	}

	if res.Empty() {
		return Rect{}
	}

	return res
}

// InterArea returns the area of the overlap between two rectangles
func (r Rect) InterArea(other Rect) float32 {
	return r.Intersect(other).Area()
}

// Contains reports whether other lies completely inside the rectangle
func (r Rect) Contains(other Rect) bool {
	return other.MinX >= r.MinX && other.MinY >= r.MinY &&
		other.MaxX <= r.MaxX && other.MaxY <= r.MaxY
}

// OwnOverlap returns the fraction of the rectangle's own area covered by
// other. Used for character-to-anchor assignment where the denominator is
// always the character's area, not the union.
func (r Rect) OwnOverlap(other Rect) float32 {
	a := r.Area()

	if a == 0 {
		return 0
	}

	return r.InterArea(other) / a
}

// AngleDeg returns the angle in degrees of the line from point (x1,y1) to
// point (x2,y2)
func AngleDeg(x1, y1, x2, y2 float32) float64 {
	return math.Atan2(float64(y2-y1), float64(x2-x1)) * 180 / math.Pi
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
