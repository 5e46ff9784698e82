// Package detect defines the detection contract between the external
// inference layer and the decision pipeline. The pipeline only ever sees a
// stream of bounding boxes with a class, a confidence score and an optional
// tracking id.
package detect

import (
	"github.com/roadeye/ivms/geom"
)

// Class is the object class of the violation detection model head
type Class int

// Classes in the order the violation model was trained on
const (
	Belt Class = iota
	NoBelt
	Mobile
	Car
	SteeringWheel
	PhoneHolder
	Plate
)

// classNames maps a Class to its label
var classNames = map[Class]string{
	Belt:          "belt",
	NoBelt:        "no belt",
	Mobile:        "mobile",
	Car:           "car",
	SteeringWheel: "steering wheel",
	PhoneHolder:   "phone holder",
	Plate:         "plate",
}

// String returns the class label
func (c Class) String() string {
	if name, ok := classNames[c]; ok {
		return name
	}
	return "unknown"
}

// IsViolation reports whether the class is one of the per-person violation
// signals evaluated against a vehicle
func (c Class) IsViolation() bool {
	return c == Belt || c == NoBelt || c == Mobile
}

// Detection is a single object detected in one frame. Detections are
// immutable, they are owned by the frame processing cycle that produced
// them.
type Detection struct {
	// TrackID is the tracker-assigned object id, zero when the class is
	// not tracked (plates, steering wheels, violation objects)
	TrackID int64
	// Class of the detected object
	Class Class
	// Score is the confidence of the detection
	Score float32
	// Box is the bounding box in frame pixel coordinates
	Box geom.Rect
}
