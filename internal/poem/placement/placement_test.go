package placement

import (
	"strings"
	"testing"

	"versechain.app/internal/poem/grid"
	"versechain.app/internal/protocol"
)

func seedFirstVerse(t *testing.T) (*grid.Grid, *grid.Verse) {
	t.Helper()
	g := grid.New(grid.DefaultSize)
	v, rej := Validate(DefaultRules(), Proposal{
		Text:      "海棠未雨",
		Direction: grid.Horizontal,
		Color:     "#c0392b",
		Author:    "poet1",
	}, g)
	if rej != nil {
		t.Fatalf("first verse rejected: %v", rej)
	}
	g.Place(v)
	return g, v
}

func TestFirstVerseAnchoredAtCanonicalCoordinate(t *testing.T) {
	g, v := seedFirstVerse(t)

	if v.Anchor != (grid.Coord{X: 45, Y: 45}) {
		t.Fatalf("anchor = %+v, want (45,45)", v.Anchor)
	}
	if v.ID == "" {
		t.Fatal("verse must get an identifier")
	}
	if len(v.ConnectedTo) != 0 {
		t.Fatalf("first verse has connections: %v", v.ConnectedTo)
	}
	span := v.Span()
	if span[0] != (grid.Coord{X: 45, Y: 45}) || span[len(span)-1] != (grid.Coord{X: 48, Y: 45}) {
		t.Fatalf("span = %v, want (45,45)-(48,45)", span)
	}
	for _, c := range span {
		cell, ok, err := g.Get(c.X, c.Y)
		if err != nil || !ok || cell.VerseID != v.ID {
			t.Fatalf("cell (%d,%d) = %+v ok=%v err=%v", c.X, c.Y, cell, ok, err)
		}
	}
}

func TestSecondFirstVerseRejected(t *testing.T) {
	g, _ := seedFirstVerse(t)
	_, rej := Validate(DefaultRules(), Proposal{Text: "雨打芭蕉", Direction: grid.Vertical}, g)
	if rej == nil || rej.Code != protocol.ErrRoomNotEmpty {
		t.Fatalf("rejection = %v, want %s", rej, protocol.ErrRoomNotEmpty)
	}
}

func TestChainOnEndCharacter(t *testing.T) {
	g, parent := seedFirstVerse(t)

	// 雨 sits at (48,45), the parent's last cell.
	v, rej := Validate(DefaultRules(), Proposal{
		Text:      "雨打芭蕉",
		Direction: grid.Vertical,
		Connector: &Connector{At: grid.Coord{X: 48, Y: 45}, VerseID: parent.ID},
		Author:    "poet2",
	}, g)
	if rej != nil {
		t.Fatalf("chained verse rejected: %v", rej)
	}
	if v.Anchor != (grid.Coord{X: 48, Y: 45}) {
		t.Fatalf("anchor = %+v, want (48,45)", v.Anchor)
	}
	if len(v.ConnectedTo) != 1 || v.ConnectedTo[0] != parent.ID {
		t.Fatalf("ConnectedTo = %v", v.ConnectedTo)
	}
	g.Place(v)
	if err := g.CheckInvariants(); err != nil {
		t.Fatalf("CheckInvariants: %v", err)
	}
}

func TestChainMidSpanShiftsAnchorBack(t *testing.T) {
	g, parent := seedFirstVerse(t)

	// Connector cell (46,45) holds 棠; the first occurrence of 棠 in the
	// new text is index 1, so the vertical anchor backs up to (46,44).
	v, rej := Validate(DefaultRules(), Proposal{
		Text:      "雨棠芭蕉",
		Direction: grid.Vertical,
		Connector: &Connector{At: grid.Coord{X: 46, Y: 45}, VerseID: parent.ID},
		Author:    "poet2",
	}, g)
	if rej != nil {
		t.Fatalf("chained verse rejected: %v", rej)
	}
	if v.Anchor != (grid.Coord{X: 46, Y: 44}) {
		t.Fatalf("anchor = %+v, want (46,44)", v.Anchor)
	}
	g.Place(v)
	cell, ok, _ := g.Get(46, 45)
	if !ok || cell.Char != '棠' {
		t.Fatalf("shared cell = %+v ok=%v", cell, ok)
	}
	if err := g.CheckInvariants(); err != nil {
		t.Fatalf("CheckInvariants: %v", err)
	}
}

func TestDirectionMismatchNamesRequiredDirection(t *testing.T) {
	g, parent := seedFirstVerse(t)

	_, rej := Validate(DefaultRules(), Proposal{
		Text:      "雨打芭蕉",
		Direction: grid.Horizontal,
		Connector: &Connector{At: grid.Coord{X: 48, Y: 45}, VerseID: parent.ID},
	}, g)
	if rej == nil || rej.Code != protocol.ErrDirectionMismatch {
		t.Fatalf("rejection = %v, want %s", rej, protocol.ErrDirectionMismatch)
	}
	if !strings.Contains(rej.Message, "vertical") {
		t.Fatalf("message %q does not name the required direction", rej.Message)
	}
}

func TestOverlapRejectedAndGridUnchanged(t *testing.T) {
	g, parent := seedFirstVerse(t)

	chain, rej := Validate(DefaultRules(), Proposal{
		Text:      "雨打芭蕉",
		Direction: grid.Vertical,
		Connector: &Connector{At: grid.Coord{X: 48, Y: 45}, VerseID: parent.ID},
	}, g)
	if rej != nil {
		t.Fatalf("chained verse rejected: %v", rej)
	}
	g.Place(chain)
	before, err := g.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	// 雨 sits at index 1, so the span reaches back to (47,45), which the
	// first verse already occupies. Only the connector cell is exempt.
	_, rej = Validate(DefaultRules(), Proposal{
		Text:      "听雨声",
		Direction: grid.Horizontal,
		Connector: &Connector{At: grid.Coord{X: 48, Y: 45}, VerseID: chain.ID},
	}, g)
	if rej == nil || rej.Code != protocol.ErrOverlap {
		t.Fatalf("rejection = %v, want %s", rej, protocol.ErrOverlap)
	}

	after, err := g.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if string(before) != string(after) {
		t.Fatal("rejected proposal changed grid state")
	}
}

func TestConnectorCharNotFound(t *testing.T) {
	g, parent := seedFirstVerse(t)
	_, rej := Validate(DefaultRules(), Proposal{
		Text:      "春眠不觉",
		Direction: grid.Vertical,
		Connector: &Connector{At: grid.Coord{X: 48, Y: 45}, VerseID: parent.ID},
	}, g)
	if rej == nil || rej.Code != protocol.ErrConnectorCharNotFound {
		t.Fatalf("rejection = %v, want %s", rej, protocol.ErrConnectorCharNotFound)
	}
}

func TestNoParentVerse(t *testing.T) {
	g, parent := seedFirstVerse(t)

	// Empty connector cell.
	_, rej := Validate(DefaultRules(), Proposal{
		Text:      "雨打芭蕉",
		Direction: grid.Vertical,
		Connector: &Connector{At: grid.Coord{X: 10, Y: 10}},
	}, g)
	if rej == nil || rej.Code != protocol.ErrNoParentVerse {
		t.Fatalf("empty cell: rejection = %v, want %s", rej, protocol.ErrNoParentVerse)
	}

	// Occupied cell, but the proposer names a different verse.
	_, rej = Validate(DefaultRules(), Proposal{
		Text:      "雨打芭蕉",
		Direction: grid.Vertical,
		Connector: &Connector{At: grid.Coord{X: 48, Y: 45}, VerseID: "stale-" + parent.ID},
	}, g)
	if rej == nil || rej.Code != protocol.ErrNoParentVerse {
		t.Fatalf("stale claim: rejection = %v, want %s", rej, protocol.ErrNoParentVerse)
	}
}

func TestFirstOccurrenceWins(t *testing.T) {
	g, parent := seedFirstVerse(t)

	// 雨 appears twice; index 0 must win, so the anchor is the connector
	// cell itself, not one step back.
	v, rej := Validate(DefaultRules(), Proposal{
		Text:      "雨雨绵绵",
		Direction: grid.Vertical,
		Connector: &Connector{At: grid.Coord{X: 48, Y: 45}, VerseID: parent.ID},
	}, g)
	if rej != nil {
		t.Fatalf("chained verse rejected: %v", rej)
	}
	if v.Anchor != (grid.Coord{X: 48, Y: 45}) {
		t.Fatalf("anchor = %+v, want (48,45)", v.Anchor)
	}
}

func TestBoundaryViolations(t *testing.T) {
	rules := Rules{FirstAnchor: grid.Coord{X: 98, Y: 98}, MinTextLen: 1, MaxTextLen: 30}
	g := grid.New(grid.DefaultSize)

	// anchorX + len > 100 for any len past the edge.
	_, rej := Validate(rules, Proposal{Text: "海棠未雨", Direction: grid.Horizontal}, g)
	if rej == nil || rej.Code != protocol.ErrOutOfBounds {
		t.Fatalf("edge span: rejection = %v, want %s", rej, protocol.ErrOutOfBounds)
	}

	// Chained verse whose occurrence shift pushes the anchor negative.
	g2 := grid.New(grid.DefaultSize)
	top, rej := Validate(Rules{FirstAnchor: grid.Coord{X: 5, Y: 0}, MinTextLen: 1, MaxTextLen: 30},
		Proposal{Text: "海棠未雨", Direction: grid.Horizontal}, g2)
	if rej != nil {
		t.Fatalf("top verse rejected: %v", rej)
	}
	g2.Place(top)
	// 雨 sits at (8,0); the occurrence at index 1 would anchor at (8,-1).
	_, rej = Validate(DefaultRules(), Proposal{
		Text:      "打雨芭蕉",
		Direction: grid.Vertical,
		Connector: &Connector{At: grid.Coord{X: 8, Y: 0}, VerseID: top.ID},
	}, g2)
	if rej == nil || rej.Code != protocol.ErrOutOfBounds {
		t.Fatalf("negative anchor: rejection = %v, want %s", rej, protocol.ErrOutOfBounds)
	}
}

func TestTextLengthInvalid(t *testing.T) {
	g := grid.New(grid.DefaultSize)
	_, rej := Validate(DefaultRules(), Proposal{Text: "", Direction: grid.Horizontal}, g)
	if rej == nil || rej.Code != protocol.ErrTextLengthInvalid {
		t.Fatalf("empty text: rejection = %v, want %s", rej, protocol.ErrTextLengthInvalid)
	}
	long := strings.Repeat("雨", 31)
	_, rej = Validate(DefaultRules(), Proposal{Text: long, Direction: grid.Horizontal}, g)
	if rej == nil || rej.Code != protocol.ErrTextLengthInvalid {
		t.Fatalf("31 runes: rejection = %v, want %s", rej, protocol.ErrTextLengthInvalid)
	}
	ok30 := strings.Repeat("雨", 30)
	if _, rej = Validate(DefaultRules(), Proposal{Text: ok30, Direction: grid.Horizontal}, g); rej != nil {
		t.Fatalf("30 runes rejected: %v", rej)
	}
}

func TestInvalidDirection(t *testing.T) {
	g := grid.New(grid.DefaultSize)
	_, rej := Validate(DefaultRules(), Proposal{Text: "海棠未雨", Direction: "diagonal"}, g)
	if rej == nil || rej.Code != protocol.ErrProtoBadRequest {
		t.Fatalf("rejection = %v, want %s", rej, protocol.ErrProtoBadRequest)
	}
}
