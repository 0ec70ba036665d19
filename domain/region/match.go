package region

import (
	"fmt"
	"image"
)

// Match is a region where a pattern was found. It carries every Region
// operation so searches can continue inside a hit.
type Match struct {
	*Region
	score  float64
	offset image.Point
}

func newMatch(r *Region, rect image.Rectangle, score float64, offset image.Point) *Match {
	return &Match{
		Region: r.derive(rect.Min.X, rect.Min.Y, rect.Dx(), rect.Dy()),
		score:  score,
		offset: offset,
	}
}

// Score is the match confidence in [0,1].
func (m *Match) Score() float64 { return m.score }

// TargetOffset is the pattern's offset from the match center.
func (m *Match) TargetOffset() image.Point { return m.offset }

// Target is the match center shifted by the pattern's target offset.
func (m *Match) Target() image.Point { return m.Center().Add(m.offset) }

func (m *Match) String() string {
	return fmt.Sprintf("M[%d,%d %dx%d] S:%.2f C:%d,%d", m.X(), m.Y(), m.W(), m.H(), m.score, m.Target().X, m.Target().Y)
}
