package geom

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRectIntersect(t *testing.T) {

	a := NewRect(0, 0, 100, 100)
	b := NewRect(50, 50, 150, 150)

	inter := a.Intersect(b)

	assert.Equal(t, NewRect(50, 50, 100, 100), inter)
	assert.Equal(t, float32(2500), a.InterArea(b))
}

func TestRectIntersectDisjoint(t *testing.T) {

	a := NewRect(0, 0, 10, 10)
	b := NewRect(20, 20, 30, 30)

	assert.True(t, a.Intersect(b).Empty())
	assert.Equal(t, float32(0), a.InterArea(b))
}

func TestRectContains(t *testing.T) {

	outer := NewRect(0, 0, 100, 100)

	assert.True(t, outer.Contains(NewRect(10, 10, 90, 90)))
	assert.True(t, outer.Contains(outer))
	assert.False(t, outer.Contains(NewRect(10, 10, 110, 90)))
}

func TestRectOwnOverlap(t *testing.T) {

	a := NewRect(0, 0, 10, 10)
	b := NewRect(5, 0, 15, 10)

	// half of a's own area is covered by b
	assert.InDelta(t, 0.5, a.OwnOverlap(b), 1e-6)
	assert.Equal(t, float32(0), a.OwnOverlap(NewRect(20, 20, 30, 30)))
}

func TestAngleDeg(t *testing.T) {

	assert.InDelta(t, 0, AngleDeg(0, 0, 10, 0), 1e-6)
	assert.InDelta(t, 45, AngleDeg(0, 0, 10, 10), 1e-6)
	assert.InDelta(t, -45, AngleDeg(0, 10, 10, 0), 1e-6)
}
