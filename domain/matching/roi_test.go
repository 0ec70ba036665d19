package matching

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func maskFrom(rows ...string) ([]bool, int, int) {
	w, h := len(rows[0]), len(rows)
	m := make([]bool, w*h)
	for y, row := range rows {
		for x, c := range row {
			m[y*w+x] = c == '#'
		}
	}
	return m, w, h
}

func TestComponents_EightConnected(t *testing.T) {
	m, w, h := maskFrom(
		"#.....",
		".#....",
		"....##",
		"......",
	)
	got := components(m, w, h)
	assert.Equal(t, []image.Rectangle{
		image.Rect(0, 0, 2, 2),
		image.Rect(4, 2, 6, 3),
	}, got)
}

func TestRegionsOfInterest_ScalesPadsAndClips(t *testing.T) {
	m, w, h := maskFrom(
		"....",
		".#..",
		"....",
		"...#",
	)
	next := image.Rect(0, 0, 8, 8)
	got := regionsOfInterest(m, w, h, next)
	assert.Equal(t, []image.Rectangle{
		image.Rect(1, 1, 5, 5),
		image.Rect(5, 5, 8, 8),
	}, got)
}

func TestRegionsOfInterest_DegenerateMaskFallsBack(t *testing.T) {
	m, w, h := maskFrom("##", "##")
	assert.Nil(t, regionsOfInterest(m, w, h, image.Rect(0, 0, 4, 4)))
	assert.Nil(t, regionsOfInterest(nil, 0, 0, image.Rect(0, 0, 4, 4)))

	empty, w, h := maskFrom("...", "...", "...")
	assert.Nil(t, regionsOfInterest(empty, w, h, image.Rect(0, 0, 6, 6)))
}

func TestBuildPyramid_StopsBelowMinSide(t *testing.T) {
	pyr := buildPyramid(solidImage(80, 45, color.Black), 3, 20)
	assert.Len(t, pyr, 3)
	assert.Equal(t, image.Pt(20, 12), pyr[0].Bounds().Size())
	assert.Equal(t, image.Pt(40, 23), pyr[1].Bounds().Size())
	assert.Equal(t, image.Pt(80, 45), pyr[2].Bounds().Size())

	assert.Len(t, buildPyramid(solidImage(30, 19, color.Black), 3, 20), 1)
	assert.Len(t, buildPyramid(solidImage(39, 30, color.Black), 3, 20), 2)
}
