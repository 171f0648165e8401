package room

import (
	"context"
	"time"

	"versechain.app/internal/poem/grid"
	"versechain.app/internal/poem/presence"
)

// Broadcaster delivers an already-marshaled event to every subscriber of a
// room. Delivery is at-least-once and room-scoped; events are idempotent to
// re-apply, so duplicates are safe.
type Broadcaster interface {
	Broadcast(roomCode string, payload []byte)
}

// Store is the persistence boundary. All writes happen inside the room's
// exclusive section, before the grid is mutated, so an accepted placement
// is durable by the time anyone sees its broadcast.
type Store interface {
	CreateRoom(ctx context.Context, code, creator string, createdAt time.Time) error
	RoomExists(ctx context.Context, code string) (bool, error)
	TouchRoom(ctx context.Context, code string, at time.Time) error
	DeleteRoom(ctx context.Context, code string) error

	AppendVerse(ctx context.Context, code string, v *grid.Verse) error
	UpdateVerseText(ctx context.Context, code, verseID, text string) error
	ClearVerses(ctx context.Context, code string) error
	LoadRoomVerses(ctx context.Context, code string) ([]*grid.Verse, error)
}

// Snapshotter archives a room's serialized grid state when the room is
// evicted or destroyed.
type Snapshotter interface {
	WriteRoomSnapshot(code string, state []byte) error
}

// DecisionLogger observes accept/reject decisions. It is invoked at
// decision points only, never interleaved with validation logic.
type DecisionLogger interface {
	WriteDecision(e DecisionEntry) error
}

type DecisionEntry struct {
	Time     string `json:"time"`
	RoomCode string `json:"room_code"`
	Actor    string `json:"actor,omitempty"`
	Op       string `json:"op"`
	Accepted bool   `json:"accepted"`
	Code     string `json:"code,omitempty"`
	Message  string `json:"message,omitempty"`
	VerseID  string `json:"verse_id,omitempty"`
}

// Decision ops.
const (
	OpPlace   = "place"
	OpCorrect = "correct"
	OpReset   = "reset"
)

// Info summarizes one room for listings and the HTTP API.
type Info struct {
	Code         string    `json:"code"`
	Creator      string    `json:"creator,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	VerseCount   int       `json:"verse_count"`
	Online       int       `json:"online"`
}

// State is the full picture a joining participant needs to mirror the room.
type State struct {
	Code        string
	GridSize    int
	FirstAnchor grid.Coord
	MaxTextLen  int
	Verses      []*grid.Verse
	Presence    []presence.Entry
}

// Metrics is exported for the /metrics endpoint.
type Metrics struct {
	Rooms        int
	Online       int
	VersesPlaced uint64
	Rejections   uint64
}
