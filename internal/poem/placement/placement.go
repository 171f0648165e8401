// Package placement decides whether a proposed verse may join the chain.
// It never mutates grid state: on acceptance it returns the fully resolved
// verse for the room coordinator to apply.
package placement

import (
	"time"

	"github.com/google/uuid"

	"versechain.app/internal/poem/grid"
	"versechain.app/internal/protocol"
)

// Rules carries the room layout parameters. The first verse of a room is
// always anchored at FirstAnchor.
type Rules struct {
	FirstAnchor grid.Coord
	MinTextLen  int
	MaxTextLen  int
}

func DefaultRules() Rules {
	return Rules{
		FirstAnchor: grid.Coord{X: 45, Y: 45},
		MinTextLen:  grid.MinTextLen,
		MaxTextLen:  grid.MaxTextLen,
	}
}

// Proposal is one placement attempt. Connector is nil for the room's
// first verse.
type Proposal struct {
	Text      string
	Direction grid.Direction
	Connector *Connector
	Color     string
	Author    string
}

// Connector names the cell the new verse chains on and, optionally, the
// verse the proposer believes occupies it. A stale claim is rejected the
// same way as an empty cell.
type Connector struct {
	At      grid.Coord
	VerseID string
}

// Validate checks p against the current grid. It returns either the
// resolved verse (identifier assigned, anchor computed, connections set)
// or a typed rejection; never both.
func Validate(rules Rules, p Proposal, g *grid.Grid) (*grid.Verse, *protocol.Rejection) {
	if !p.Direction.Valid() {
		return nil, protocol.Reject(protocol.ErrProtoBadRequest, "direction must be %q or %q", grid.Horizontal, grid.Vertical)
	}
	text := []rune(p.Text)
	if len(text) < rules.MinTextLen || len(text) > rules.MaxTextLen {
		return nil, protocol.Reject(protocol.ErrTextLengthInvalid, "text length %d outside [%d,%d]", len(text), rules.MinTextLen, rules.MaxTextLen)
	}

	v := &grid.Verse{
		ID:        uuid.NewString(),
		Text:      text,
		Direction: p.Direction,
		Color:     p.Color,
		Author:    p.Author,
		CreatedAt: time.Now().UTC(),
	}

	if p.Connector == nil {
		if !g.Empty() {
			return nil, protocol.Reject(protocol.ErrRoomNotEmpty, "room already has %d verses; chain on an existing one", g.VerseCount())
		}
		v.Anchor = rules.FirstAnchor
	} else {
		if rej := resolveChain(p, v, g); rej != nil {
			return nil, rej
		}
	}

	connector := grid.Coord{}
	if p.Connector != nil {
		connector = p.Connector.At
	}
	for _, c := range v.Span() {
		if !g.InBounds(c.X, c.Y) {
			return nil, protocol.Reject(protocol.ErrOutOfBounds, "span cell (%d,%d) outside [0,%d)", c.X, c.Y, g.Size())
		}
		if p.Connector != nil && c == connector {
			// Intentionally shared between parent and child.
			continue
		}
		if _, occupied, err := g.Get(c.X, c.Y); err == nil && occupied {
			return nil, protocol.Reject(protocol.ErrOverlap, "span cell (%d,%d) is already occupied", c.X, c.Y)
		}
	}
	return v, nil
}

// resolveChain fills in v's anchor and connections for a chained proposal.
func resolveChain(p Proposal, v *grid.Verse, g *grid.Grid) *protocol.Rejection {
	at := p.Connector.At
	cell, occupied, err := g.Get(at.X, at.Y)
	if err != nil {
		return protocol.Reject(protocol.ErrOutOfBounds, "connector (%d,%d) outside [0,%d)", at.X, at.Y, g.Size())
	}
	if !occupied {
		return protocol.Reject(protocol.ErrNoParentVerse, "no verse occupies connector (%d,%d)", at.X, at.Y)
	}
	if p.Connector.VerseID != "" && p.Connector.VerseID != cell.VerseID {
		return protocol.Reject(protocol.ErrNoParentVerse, "connector (%d,%d) is occupied by verse %s, not %s", at.X, at.Y, cell.VerseID, p.Connector.VerseID)
	}
	parent, ok := g.VerseByID(cell.VerseID)
	if !ok {
		return protocol.Reject(protocol.ErrInternal, "cell (%d,%d) references unknown verse %s", at.X, at.Y, cell.VerseID)
	}

	required := parent.Direction.Opposite()
	if p.Direction != required {
		return protocol.Reject(protocol.ErrDirectionMismatch, "parent verse is %s; required direction is %s", parent.Direction, required)
	}

	// First occurrence wins when the text repeats the connector character.
	occurrence := -1
	for i, r := range v.Text {
		if r == cell.Char {
			occurrence = i
			break
		}
	}
	if occurrence < 0 {
		return protocol.Reject(protocol.ErrConnectorCharNotFound, "text does not contain connector character %q", string(cell.Char))
	}

	if p.Direction == grid.Horizontal {
		v.Anchor = grid.Coord{X: at.X - occurrence, Y: at.Y}
	} else {
		v.Anchor = grid.Coord{X: at.X, Y: at.Y - occurrence}
	}
	v.ConnectedTo = []string{parent.ID}
	return nil
}
