package plate

import (
	"strings"

	"github.com/roadeye/ivms/geom"
)

// Char is a single decoded character with the detection it came from
type Char struct {
	// Label is the character read, "0"-"9" or "a"-"z"
	Label string
	// Score is the OCR confidence of the read
	Score float32
	// Poly is the character bounding quad on the plate crop
	Poly geom.Quad
}

// Field is one region of the plate (the prefix or the plate number): the
// best anchor detection covering the region and the ordered characters
// assigned to it
type Field struct {
	// Poly is the anchor quad nominally covering the whole field, nil
	// when no anchor was detected
	Poly *geom.Quad
	// Score is the confidence of the anchor detection
	Score float32
	// Chars are the surviving character reads sorted left to right
	Chars []Char
}

// Label concatenates the field's characters in reading order, uppercased
func (f *Field) Label() string {
	if len(f.Chars) == 0 {
		return ""
	}

	var b strings.Builder

	for _, c := range f.Chars {
		b.WriteString(c.Label)
	}

	return strings.ToUpper(b.String())
}

// StateRead is one state logo detection collected from the plate
type StateRead struct {
	Label string
	Score float32
	Poly  geom.Quad
}

// Result is a successful plate decode. A failed decode is represented by a
// nil *Result, never by a partial one.
type Result struct {
	// Prefix field characters (may be empty)
	Prefix Field
	// PlateNum field characters
	PlateNum Field
	// States are all state logo variants seen on the plate
	States []StateRead

	// StateLabel is the short code of the highest scoring state read
	StateLabel string
	// PrefixLabel is the concatenated prefix characters
	PrefixLabel string
	// PlateNumLabel is the concatenated plate number characters
	PlateNumLabel string
	// FullLabel is "STATE,PREFIX,PLATENUM" with empty segments and their
	// separators omitted
	FullLabel string
}

// finalize fills in the decoded label fields from the assembled fields and
// state reads
func (r *Result) finalize() {
	var parts []string

	if len(r.States) > 0 {
		best := 0

		for i := 1; i < len(r.States); i++ {
			if r.States[i].Score > r.States[best].Score {
				best = i
			}
		}

		r.StateLabel = StateCode(r.States[best].Label)
		parts = append(parts, r.StateLabel)
	}

	r.PrefixLabel = r.Prefix.Label()

	if r.PrefixLabel != "" {
		parts = append(parts, r.PrefixLabel)
	}

	r.PlateNumLabel = r.PlateNum.Label()

	if r.PlateNumLabel != "" {
		parts = append(parts, r.PlateNumLabel)
	}

	r.FullLabel = strings.Join(parts, ",")
}
