package grid

import (
	"encoding/json"
	"fmt"
	"time"
)

// VerseV1 is the persisted form of a verse. The grid itself is never
// persisted: it is a function of the verse list and is rebuilt by replay.
type VerseV1 struct {
	ID          string   `json:"id"`
	Text        string   `json:"text"`
	Direction   string   `json:"direction"`
	AnchorX     int      `json:"anchor_x"`
	AnchorY     int      `json:"anchor_y"`
	Color       string   `json:"color,omitempty"`
	ConnectedTo []string `json:"connected_to,omitempty"`
	Author      string   `json:"author,omitempty"`
	CreatedAt   string   `json:"created_at,omitempty"`
}

type stateV1 struct {
	Version int       `json:"version"`
	Size    int       `json:"size"`
	Verses  []VerseV1 `json:"verses"`
}

func (v *Verse) ToV1() VerseV1 {
	rec := VerseV1{
		ID:          v.ID,
		Text:        string(v.Text),
		Direction:   string(v.Direction),
		AnchorX:     v.Anchor.X,
		AnchorY:     v.Anchor.Y,
		Color:       v.Color,
		ConnectedTo: append([]string(nil), v.ConnectedTo...),
		Author:      v.Author,
	}
	if !v.CreatedAt.IsZero() {
		rec.CreatedAt = v.CreatedAt.UTC().Format(time.RFC3339)
	}
	return rec
}

func VerseFromV1(rec VerseV1) (*Verse, error) {
	dir := Direction(rec.Direction)
	if !dir.Valid() {
		return nil, fmt.Errorf("verse %s: bad direction %q", rec.ID, rec.Direction)
	}
	v := &Verse{
		ID:          rec.ID,
		Text:        []rune(rec.Text),
		Direction:   dir,
		Anchor:      Coord{X: rec.AnchorX, Y: rec.AnchorY},
		Color:       rec.Color,
		ConnectedTo: append([]string(nil), rec.ConnectedTo...),
		Author:      rec.Author,
	}
	if rec.CreatedAt != "" {
		t, err := time.Parse(time.RFC3339, rec.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("verse %s: bad created_at: %w", rec.ID, err)
		}
		v.CreatedAt = t
	}
	return v, nil
}

// Serialize produces the full room grid state. Deterministic: replaying the
// same verse list always serializes to identical bytes.
func (g *Grid) Serialize() ([]byte, error) {
	st := stateV1{Version: 1, Size: g.size, Verses: make([]VerseV1, 0, len(g.verses))}
	for _, v := range g.verses {
		st.Verses = append(st.Verses, v.ToV1())
	}
	return json.Marshal(st)
}

// Deserialize restores a serialized room state by replaying Place in the
// original insertion order, then verifies invariants.
func Deserialize(b []byte) (*Grid, error) {
	var st stateV1
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, err
	}
	if st.Version != 1 {
		return nil, fmt.Errorf("unsupported grid state version %d", st.Version)
	}
	g := New(st.Size)
	for _, rec := range st.Verses {
		v, err := VerseFromV1(rec)
		if err != nil {
			return nil, err
		}
		g.Place(v)
	}
	if err := g.CheckInvariants(); err != nil {
		return nil, err
	}
	return g, nil
}

// CheckInvariants verifies the structural invariants that must hold after
// every accepted mutation. A failure means corrupted state: the room must
// refuse to serve until repaired.
func (g *Grid) CheckInvariants() error {
	for y := 0; y < g.size; y++ {
		for x := 0; x < g.size; x++ {
			cell := g.cells[y*g.size+x]
			if cell == nil {
				continue
			}
			v := g.byID[cell.VerseID]
			if v == nil {
				return fmt.Errorf("cell (%d,%d) references unknown verse %s", x, y, cell.VerseID)
			}
			idx, ok := v.IndexAt(Coord{X: x, Y: y})
			if !ok {
				return fmt.Errorf("cell (%d,%d) outside span of verse %s", x, y, v.ID)
			}
			if v.Text[idx] != cell.Char {
				return fmt.Errorf("cell (%d,%d) holds %q but verse %s has %q at index %d",
					x, y, cell.Char, v.ID, v.Text[idx], idx)
			}
		}
	}
	for _, v := range g.verses {
		n := len(v.Text)
		if n < MinTextLen || n > MaxTextLen {
			return fmt.Errorf("verse %s text length %d outside [%d,%d]", v.ID, n, MinTextLen, MaxTextLen)
		}
		// Verse -> span: every span coordinate must hold the verse's own
		// character. Shared cells are fine only when the characters agree.
		for i, c := range v.Span() {
			if !g.InBounds(c.X, c.Y) {
				return fmt.Errorf("verse %s span cell (%d,%d) outside [0,%d)", v.ID, c.X, c.Y, g.size)
			}
			cell := g.cells[c.Y*g.size+c.X]
			if cell == nil {
				return fmt.Errorf("verse %s span cell (%d,%d) is empty", v.ID, c.X, c.Y)
			}
			if cell.Char != v.Text[i] {
				return fmt.Errorf("verse %s expects %q at (%d,%d) but the cell holds %q",
					v.ID, v.Text[i], c.X, c.Y, cell.Char)
			}
		}
		for _, pid := range v.ConnectedTo {
			p := g.byID[pid]
			if p == nil {
				return fmt.Errorf("verse %s connects to unknown verse %s", v.ID, pid)
			}
			if p.Direction == v.Direction {
				return fmt.Errorf("verse %s direction %s equals connected verse %s direction", v.ID, v.Direction, pid)
			}
		}
	}
	if len(g.verses) > 0 && len(g.verses[0].ConnectedTo) != 0 {
		return fmt.Errorf("first verse %s must have no connections", g.verses[0].ID)
	}
	return nil
}
