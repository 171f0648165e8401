// Package presence tracks who is connected to a room and which cell each
// participant is focused on. It never participates in grid invariants, so
// it carries its own lock and is applied last-write-wins per participant.
package presence

import (
	"sort"
	"sync"
	"time"

	"versechain.app/internal/poem/grid"
)

// Entry is one participant's live state. VerseCount survives leave so room
// statistics keep historical contributions.
type Entry struct {
	Name       string
	Online     bool
	Focus      *grid.Coord
	VerseCount int
	JoinedAt   time.Time
}

type Tracker struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

func NewTracker() *Tracker {
	return &Tracker{entries: map[string]*Entry{}}
}

// Join marks the participant online. Joining twice with the same name
// updates the online flag idempotently rather than duplicating.
func (t *Tracker) Join(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entries[name]
	if e == nil {
		e = &Entry{Name: name, JoinedAt: time.Now().UTC()}
		t.entries[name] = e
	}
	e.Online = true
}

// Leave clears focus and marks the participant offline. The historical
// verse count is retained for the room's lifetime.
func (t *Tracker) Leave(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e := t.entries[name]; e != nil {
		e.Online = false
		e.Focus = nil
	}
}

// SetFocus updates the participant's cursor cell; nil clears it.
// Unknown participants are ignored.
func (t *Tracker) SetFocus(name string, c *grid.Coord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entries[name]
	if e == nil || !e.Online {
		return
	}
	if c == nil {
		e.Focus = nil
		return
	}
	cp := *c
	e.Focus = &cp
}

func (t *Tracker) IncrVerseCount(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entries[name]
	if e == nil {
		e = &Entry{Name: name, JoinedAt: time.Now().UTC()}
		t.entries[name] = e
	}
	e.VerseCount++
}

// OnlineCount reports currently connected participants.
func (t *Tracker) OnlineCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, e := range t.entries {
		if e.Online {
			n++
		}
	}
	return n
}

// Snapshot returns all entries sorted by name, for broadcast on any change.
func (t *Tracker) Snapshot() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		cp := *e
		if e.Focus != nil {
			f := *e.Focus
			cp.Focus = &f
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
