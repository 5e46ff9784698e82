// Package plate decodes the raw OCR detections made on a cropped plate
// image into a validated plate string. The decoder is stateless: it either
// returns a fully assembled Result or nil, it never produces a partial
// read.
package plate

import (
	"math"
	"sort"

	"github.com/roadeye/ivms/geom"
)

const (
	// ScoreFloor discards OCR detections below this confidence before any
	// assembly takes place
	ScoreFloor = 0.2

	// fieldOverlapThresh is the minimum fraction of a character's own area
	// that must fall inside a field anchor for the character to be
	// assigned to that field
	fieldOverlapThresh = 0.9

	// dupOverlapThresh is the own-area overlap above which two characters
	// in the same field are considered duplicate reads of one glyph
	dupOverlapThresh = 0.8

	// maxGapRatio rejects a plate number when any gap between consecutive
	// characters exceeds this multiple of the median gap
	maxGapRatio = 1.5

	// rotationThreshDeg is the plate rotation above which the anchor quad
	// is replaced with a reconstructed axis-aligned reference box before
	// the area comparison
	rotationThreshDeg = 13

	// minAreaCoverage is the minimum fraction of the anchor area the
	// character reads must cover for the field to count as fully read
	minAreaCoverage = 0.7

	// minImageWidth guards against degenerate plate crops
	minImageWidth = 5
)

// Detection is one raw OCR model output on the plate crop
type Detection struct {
	// Label is the class name, see ClassNames
	Label string
	// Score is the detection confidence
	Score float32
	// Poly is the bounding quad on the plate crop
	Poly geom.Quad
}

// Decode assembles the OCR detections made on one plate crop into a
// decoded plate string. imgWidth is the width of the plate crop the
// detections were made on. Returns nil when no confident read is possible.
func Decode(dets []Detection, imgWidth int) *Result {

	if imgWidth < minImageWidth {
		return nil
	}

	res := &Result{}

	// pick field anchors and collect state logos
	for _, d := range dets {

		if d.Score < ScoreFloor {
			continue
		}

		switch {
		case IsStateClass(d.Label):
			res.States = append(res.States, StateRead{
				Label: d.Label,
				Score: d.Score,
				Poly:  d.Poly,
			})

		case d.Label == "plate_number":
			if d.Score > res.PlateNum.Score {
				poly := d.Poly
				res.PlateNum.Poly = &poly
				res.PlateNum.Score = d.Score
			}

		case d.Label == "prefix":
			if d.Score > res.Prefix.Score {
				poly := d.Poly
				res.Prefix.Poly = &poly
				res.Prefix.Score = d.Score
			}
		}
	}

	// decoding is meaningless without the plate number anchor
	if res.PlateNum.Poly == nil {
		return nil
	}

	// assign characters to fields, prefix has priority. A character that
	// overlaps neither anchor well enough is dropped.
	for _, d := range dets {

		if d.Score < ScoreFloor || !IsCharClass(d.Label) {
			continue
		}

		ch := Char{Label: d.Label, Score: d.Score, Poly: d.Poly}

		if res.Prefix.Poly != nil &&
			d.Poly.OwnOverlap(*res.Prefix.Poly) > fieldOverlapThresh {
			res.Prefix.Chars = append(res.Prefix.Chars, ch)
			continue
		}

		if d.Poly.OwnOverlap(*res.PlateNum.Poly) > fieldOverlapThresh {
			res.PlateNum.Chars = append(res.PlateNum.Chars, ch)
		}
	}

	sortByX(&res.PlateNum)
	sortByX(&res.Prefix)

	dropDuplicateChars(&res.PlateNum)
	dropDuplicateChars(&res.Prefix)

	res.finalize()

	// validation gates, each one a hard reject
	if len(res.PlateNum.Chars) > 2 && !isEquallySpaced(&res.PlateNum) {
		return nil
	}

	if !isCompleteAreaRead(&res.PlateNum) {
		return nil
	}

	if res.Prefix.Poly != nil && len(res.Prefix.Chars) > 0 &&
		!isCompleteAreaRead(&res.Prefix) {
		return nil
	}

	return res
}

// sortByX orders a field's characters by their bounding box minimum x so
// they read left to right
func sortByX(f *Field) {
	sort.SliceStable(f.Chars, func(i, j int) bool {
		return f.Chars[i].Poly.Bounds().MinX < f.Chars[j].Poly.Bounds().MinX
	})
}

// dropDuplicateChars removes duplicate reads of the same glyph. Two
// characters are duplicates when one's own-area overlap with the other
// exceeds dupOverlapThresh; the lower scoring one is dropped, ties keep
// the earlier index.
func dropDuplicateChars(f *Field) {

	drop := make(map[int]bool)

	for i := 0; i < len(f.Chars); i++ {
		if drop[i] {
			continue
		}

		for j := i + 1; j < len(f.Chars); j++ {
			if drop[j] {
				continue
			}

			overlap := f.Chars[i].Poly.OwnOverlap(f.Chars[j].Poly)

			if overlap <= dupOverlapThresh {
				continue
			}

			if f.Chars[j].Score > f.Chars[i].Score {
				drop[i] = true
			} else {
				drop[j] = true
			}
		}
	}

	if len(drop) == 0 {
		return
	}

	kept := f.Chars[:0]

	for i, c := range f.Chars {
		if !drop[i] {
			kept = append(kept, c)
		}
	}

	f.Chars = kept
}

// isEquallySpaced checks that the gaps between consecutive characters are
// uniform. A single gap larger than maxGapRatio times the median gap means
// a character in the middle of the plate was missed.
func isEquallySpaced(f *Field) bool {

	gaps := make([]float64, 0, len(f.Chars)-1)

	for i := 1; i < len(f.Chars); i++ {
		gap := f.Chars[i].Poly.Bounds().MinX - f.Chars[i-1].Poly.Bounds().MinX
		gaps = append(gaps, float64(gap))
	}

	sorted := append([]float64(nil), gaps...)
	sort.Float64s(sorted)
	median := medianOf(sorted)

	if median == 0 {
		return true
	}

	for _, gap := range gaps {
		if gap/median > maxGapRatio {
			return false
		}
	}

	return true
}

// medianOf returns the median of a sorted slice, averaging the two middle
// values when the length is even.
func medianOf(sorted []float64) float64 {
	n := len(sorted)

	if n == 0 {
		return 0
	}

	if n%2 == 1 {
		return sorted[n/2]
	}

	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// isCompleteAreaRead checks that the characters cover enough of the field
// anchor's area. When the plate is rotated beyond rotationThreshDeg the
// anchor quad's axis-aligned bounds overstate the reference area, so it is
// replaced by a box reconstructed from the anchor bounds and the first
// character's height.
func isCompleteAreaRead(f *Field) bool {

	anchor := *f.Poly

	if len(f.Chars) > 1 {
		first := f.Chars[0].Poly.Bounds()
		last := f.Chars[len(f.Chars)-1].Poly.Bounds()

		angle := geom.AngleDeg(first.MinX, first.MinY, last.MinX, last.MinY)

		if math.Abs(angle) > rotationThreshDeg {
			b := anchor.Bounds()
			anchor = geom.QuadFromRect(geom.NewRect(
				b.MinX, b.MinY, b.MaxX, b.MinY+first.Height()))
		}
	}

	anchorArea := anchor.Area()

	if anchorArea == 0 {
		return false
	}

	var charArea float32

	for _, c := range f.Chars {
		charArea += c.Poly.Area()
	}

	return charArea/anchorArea > minAreaCoverage
}
