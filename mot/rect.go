package mot

import (
	"math"
)

// Tlwh is a box as its top-left corner plus width and height.
type Tlwh []float32

// Tlbr is a box as its top-left and bottom-right corners.
type Tlbr []float32

// Xyah is a box as center point, aspect ratio and height, the
// parameterisation the motion model works in.
type Xyah []float32

// Rect is the bounding box carried by observations and tracks, stored in
// Tlwh form.
type Rect struct {
	Tlwh Tlwh
}

// NewRect builds a Rect from a top-left corner and size
func NewRect(x, y, width, height float32) Rect {
	return Rect{
		Tlwh: Tlwh{x, y, width, height},
	}
}

// X returns the top-left x coordinate
func (r *Rect) X() float32 {
	return r.Tlwh[0]
}

// Y returns the top-left y coordinate
func (r *Rect) Y() float32 {
	return r.Tlwh[1]
}

// Width returns the box width
func (r *Rect) Width() float32 {
	return r.Tlwh[2]
}

// Height returns the box height
func (r *Rect) Height() float32 {
	return r.Tlwh[3]
}

// BRX returns the bottom-right x coordinate
func (r *Rect) BRX() float32 {
	return r.Tlwh[0] + r.Tlwh[2]
}

// BRY returns the bottom-right y coordinate
func (r *Rect) BRY() float32 {
	return r.Tlwh[1] + r.Tlwh[3]
}

// Tlbr converts the box to corner form
func (r *Rect) Tlbr() Tlbr {
	return Tlbr{
		r.Tlwh[0],
		r.Tlwh[1],
		r.Tlwh[0] + r.Tlwh[2],
		r.Tlwh[1] + r.Tlwh[3],
	}
}

// Xyah converts the box to center, aspect ratio and height form
func (r *Rect) Xyah() Xyah {
	return Xyah{
		r.Tlwh[0] + r.Tlwh[2]/2,
		r.Tlwh[1] + r.Tlwh[3]/2,
		r.Tlwh[2] / r.Tlwh[3],
		r.Tlwh[3],
	}
}

// IoU returns the intersection over union with another box, treating
// coordinates as inclusive pixel bounds.
func (r *Rect) IoU(other Rect) float32 {

	otherArea := (other.Tlwh[2] + 1) * (other.Tlwh[3] + 1)

	iw := float32(math.Min(float64(r.Tlwh[0]+r.Tlwh[2]), float64(other.Tlwh[0]+other.Tlwh[2])) -
		math.Max(float64(r.Tlwh[0]), float64(other.Tlwh[0])) + 1)

	if iw <= 0 {
		return 0
	}

	ih := float32(math.Min(float64(r.Tlwh[1]+r.Tlwh[3]), float64(other.Tlwh[1]+other.Tlwh[3])) -
		math.Max(float64(r.Tlwh[1]), float64(other.Tlwh[1])) + 1)

	if ih <= 0 {
		return 0
	}

	union := (r.Tlwh[2]+1)*(r.Tlwh[3]+1) + otherArea - iw*ih

	return iw * ih / union
}
