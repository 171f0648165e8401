package grid

import "time"

type Direction string

const (
	Horizontal Direction = "horizontal"
	Vertical   Direction = "vertical"
)

func (d Direction) Valid() bool {
	return d == Horizontal || d == Vertical
}

// Opposite is the direction a chained verse must take.
func (d Direction) Opposite() Direction {
	if d == Horizontal {
		return Vertical
	}
	return Horizontal
}

type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Verse is one placed line of the poem chain. Immutable after placement
// except for single-character correction via Grid.CorrectChar.
type Verse struct {
	ID          string
	Text        []rune
	Direction   Direction
	Anchor      Coord
	Color       string
	ConnectedTo []string
	Author      string
	CreatedAt   time.Time
}

// Span lists every coordinate the verse occupies, anchor first.
func (v *Verse) Span() []Coord {
	out := make([]Coord, len(v.Text))
	for i := range v.Text {
		out[i] = v.CellAt(i)
	}
	return out
}

// CellAt returns the coordinate of the i-th character.
func (v *Verse) CellAt(i int) Coord {
	if v.Direction == Horizontal {
		return Coord{X: v.Anchor.X + i, Y: v.Anchor.Y}
	}
	return Coord{X: v.Anchor.X, Y: v.Anchor.Y + i}
}

// IndexAt is the inverse of CellAt. ok is false when c is outside the span.
func (v *Verse) IndexAt(c Coord) (int, bool) {
	var i int
	switch v.Direction {
	case Horizontal:
		if c.Y != v.Anchor.Y {
			return 0, false
		}
		i = c.X - v.Anchor.X
	case Vertical:
		if c.X != v.Anchor.X {
			return 0, false
		}
		i = c.Y - v.Anchor.Y
	default:
		return 0, false
	}
	if i < 0 || i >= len(v.Text) {
		return 0, false
	}
	return i, true
}

func (v *Verse) clone() *Verse {
	cp := *v
	cp.Text = append([]rune(nil), v.Text...)
	cp.ConnectedTo = append([]string(nil), v.ConnectedTo...)
	return &cp
}
