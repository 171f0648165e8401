// Package grid owns the shared character grid and the ordered verse list
// for one room. It is a pure write model: placement legality is decided by
// the placement package, and all mutation goes through the room coordinator.
package grid

import (
	"unicode/utf8"

	"versechain.app/internal/protocol"
)

const (
	// DefaultSize is the canonical board edge; coordinates live in [0,size).
	DefaultSize = 100

	MinTextLen = 1
	MaxTextLen = 30
)

// Cell is the occupant of one coordinate.
type Cell struct {
	Char    rune
	VerseID string
	Color   string
}

// Grid holds the cells and the verses in insertion order.
// Not safe for concurrent use; the room coordinator serializes access.
type Grid struct {
	size   int
	cells  []*Cell // size*size, row-major
	verses []*Verse
	byID   map[string]*Verse
}

func New(size int) *Grid {
	if size <= 0 {
		size = DefaultSize
	}
	return &Grid{
		size:  size,
		cells: make([]*Cell, size*size),
		byID:  map[string]*Verse{},
	}
}

func (g *Grid) Size() int { return g.size }

func (g *Grid) InBounds(x, y int) bool {
	return x >= 0 && x < g.size && y >= 0 && y < g.size
}

// Get returns the cell at (x, y). ok is false for an empty cell.
func (g *Grid) Get(x, y int) (Cell, bool, error) {
	if !g.InBounds(x, y) {
		return Cell{}, false, protocol.Reject(protocol.ErrOutOfBounds, "coordinate (%d,%d) outside [0,%d)", x, y, g.size)
	}
	c := g.cells[y*g.size+x]
	if c == nil {
		return Cell{}, false, nil
	}
	return *c, true, nil
}

// Place writes every coordinate of the verse's span. The caller must have
// validated non-conflict already; Place does not re-validate.
func (g *Grid) Place(v *Verse) {
	cp := v.clone()
	for i, c := range cp.Span() {
		if !g.InBounds(c.X, c.Y) {
			continue
		}
		g.cells[c.Y*g.size+c.X] = &Cell{Char: cp.Text[i], VerseID: cp.ID, Color: cp.Color}
	}
	g.verses = append(g.verses, cp)
	g.byID[cp.ID] = cp
}

// CorrectChar replaces exactly one character in one cell and the
// corresponding index of the owning verse's text.
func (g *Grid) CorrectChar(x, y int, newChar string) (Cell, error) {
	if !g.InBounds(x, y) {
		return Cell{}, protocol.Reject(protocol.ErrOutOfBounds, "coordinate (%d,%d) outside [0,%d)", x, y, g.size)
	}
	if utf8.RuneCountInString(newChar) != 1 {
		return Cell{}, protocol.Reject(protocol.ErrInvalidChar, "replacement must be exactly one character, got %q", newChar)
	}
	cell := g.cells[y*g.size+x]
	if cell == nil {
		return Cell{}, protocol.Reject(protocol.ErrEmptyCell, "no verse occupies (%d,%d)", x, y)
	}
	v := g.byID[cell.VerseID]
	if v == nil {
		return Cell{}, protocol.Reject(protocol.ErrInternal, "cell (%d,%d) references unknown verse %s", x, y, cell.VerseID)
	}
	idx, ok := v.IndexAt(Coord{X: x, Y: y})
	if !ok {
		return Cell{}, protocol.Reject(protocol.ErrInternal, "cell (%d,%d) outside span of verse %s", x, y, v.ID)
	}
	r, _ := utf8.DecodeRuneInString(newChar)
	v.Text[idx] = r
	cell.Char = r
	return *cell, nil
}

// Reset clears all cells and verses. Idempotent.
func (g *Grid) Reset() {
	for i := range g.cells {
		g.cells[i] = nil
	}
	g.verses = g.verses[:0]
	g.byID = map[string]*Verse{}
}

// Verses returns copies of the placed verses in insertion order.
func (g *Grid) Verses() []*Verse {
	out := make([]*Verse, len(g.verses))
	for i, v := range g.verses {
		out[i] = v.clone()
	}
	return out
}

func (g *Grid) VerseByID(id string) (*Verse, bool) {
	v, ok := g.byID[id]
	if !ok {
		return nil, false
	}
	return v.clone(), true
}

func (g *Grid) VerseCount() int { return len(g.verses) }

func (g *Grid) Empty() bool { return len(g.verses) == 0 }
