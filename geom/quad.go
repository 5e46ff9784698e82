package geom

import (
	clipper "github.com/ctessum/go.clipper"
)

// clipScale converts pixel coordinates to the integer space the clipper
// library operates in, keeping two decimal places of precision
const clipScale = 100

// Point is a single 2D coordinate
type Point struct {
	X float32
	Y float32
}

// Quad is a four cornered polygon. Plate character detections come out of
// the OCR model as quads because the source plate crop may be rotated.
type Quad [4]Point

// QuadFromRect creates an axis-aligned Quad from rectangle bounds
func QuadFromRect(r Rect) Quad {
	return Quad{
		{r.MinX, r.MinY},
		{r.MaxX, r.MinY},
		{r.MaxX, r.MaxY},
		{r.MinX, r.MaxY},
	}
}

// Bounds returns the axis-aligned bounding rectangle of the quad
func (q Quad) Bounds() Rect {
	r := Rect{MinX: q[0].X, MinY: q[0].Y, MaxX: q[0].X, MaxY: q[0].Y}

	for _, p := range q[1:] {
		r.MinX = minf(r.MinX, p.X)
		r.MinY = minf(r.MinY, p.Y)
		r.MaxX = maxf(r.MaxX, p.X)
		r.MaxY = maxf(r.MaxY, p.Y)
	}

	return r
}

// Area returns the area of the quad using the shoelace formula
func (q Quad) Area() float32 {
	var sum float32

	for i := 0; i < 4; i++ {
		j := (i + 1) % 4
		sum += q[i].X*q[j].Y - q[j].X*q[i].Y
	}

	if sum < 0 {
		sum = -sum
	}

	return sum / 2
}

// InterArea returns the area of the overlap between two quads
func (q Quad) InterArea(other Quad) float32 {

	c := clipper.NewClipper(clipper.IoNone)
	c.AddPath(q.clipperPath(), clipper.PtSubject, true)
	c.AddPath(other.clipperPath(), clipper.PtClip, true)

	solution, ok := c.Execute1(clipper.CtIntersection,
		clipper.PftNonZero, clipper.PftNonZero)

	if !ok {
		return 0
	}

	var area float64

	for _, path := range solution {
		a := clipper.Area(path)

		if a < 0 {
			a = -a
		}

		area += a
	}

	return float32(area / (clipScale * clipScale))
}

// OwnOverlap returns the fraction of the quad's own area covered by other
func (q Quad) OwnOverlap(other Quad) float32 {
	a := q.Area()

	if a == 0 {
		return 0
	}

	return q.InterArea(other) / a
}

// clipperPath converts the quad into the clipper integer path format
func (q Quad) clipperPath() clipper.Path {
	path := make(clipper.Path, 0, 4)

	for _, p := range q {
		path = append(path, &clipper.IntPoint{
			X: clipper.CInt(p.X * clipScale),
			Y: clipper.CInt(p.Y * clipScale),
		})
	}

	return path
}
