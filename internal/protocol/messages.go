package protocol

// Coord is a grid coordinate on the wire.
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// VerseRecord is the full wire form of a placed verse. Events carrying it
// are self-describing and idempotent to re-apply against a client mirror.
type VerseRecord struct {
	ID          string   `json:"id"`
	Text        string   `json:"text"`
	Direction   string   `json:"direction"`
	Anchor      Coord    `json:"anchor"`
	Color       string   `json:"color,omitempty"`
	ConnectedTo []string `json:"connected_to,omitempty"`
	Author      string   `json:"author,omitempty"`
	CreatedAt   string   `json:"created_at,omitempty"`
}

// PresenceEntry mirrors one participant for presence_changed broadcasts.
type PresenceEntry struct {
	Name       string `json:"name"`
	Online     bool   `json:"online"`
	Focus      *Coord `json:"focus,omitempty"`
	VerseCount int    `json:"verse_count"`
}

// HELLO (client -> server)
type HelloMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	RoomCode        string            `json:"room_code"`
	ParticipantName string            `json:"participant_name"`
	Capabilities    HelloCapabilities `json:"capabilities,omitempty"`
}

type HelloCapabilities struct {
	MaxQueue int `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	RoomCode        string          `json:"room_code"`
	GridParams      GridParams      `json:"grid_params"`
	Verses          []VerseRecord   `json:"verses"`
	Presence        []PresenceEntry `json:"presence"`
}

type GridParams struct {
	Size        int   `json:"size"`
	FirstAnchor Coord `json:"first_anchor"`
	MaxTextLen  int   `json:"max_text_len"`
}

// PROPOSE_VERSE (client -> server). Connector is nil for the room's
// first verse; otherwise it names the cell and parent verse to chain on.
type ProposeVerseMsg struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	RequestID       string        `json:"request_id,omitempty"`
	Text            string        `json:"text"`
	Direction       string        `json:"direction"`
	Color           string        `json:"color,omitempty"`
	Connector       *ConnectorRef `json:"connector,omitempty"`
}

type ConnectorRef struct {
	X       int    `json:"x"`
	Y       int    `json:"y"`
	VerseID string `json:"verse_id,omitempty"`
}

// CORRECT_CHAR (client -> server)
type CorrectCharMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RequestID       string `json:"request_id,omitempty"`
	X               int    `json:"x"`
	Y               int    `json:"y"`
	Char            string `json:"char"`
}

// RESET_ROOM (client -> server)
type ResetRoomMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RequestID       string `json:"request_id,omitempty"`
}

// SET_FOCUS (client -> server). Focus nil clears the participant's cursor.
type SetFocusMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Focus           *Coord `json:"focus"`
}

// ACK (server -> requester only). Rejections never broadcast.
type AckMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	AckFor          string       `json:"ack_for,omitempty"`
	Accepted        bool         `json:"accepted"`
	Code            string       `json:"code,omitempty"`
	Message         string       `json:"message,omitempty"`
	Verse           *VerseRecord `json:"verse,omitempty"`
}

// VERSE_ADDED (server -> room)
type VerseAddedMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	RoomCode        string      `json:"room_code"`
	Verse           VerseRecord `json:"verse"`
}

// CHARACTER_CORRECTED (server -> room)
type CharCorrectedMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RoomCode        string `json:"room_code"`
	X               int    `json:"x"`
	Y               int    `json:"y"`
	Char            string `json:"char"`
	VerseID         string `json:"verse_id,omitempty"`
}

// ROOM_RESET (server -> room)
type RoomResetMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RoomCode        string `json:"room_code"`
	ResetBy         string `json:"reset_by,omitempty"`
}

// PRESENCE_CHANGED (server -> room)
type PresenceChangedMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	RoomCode        string          `json:"room_code"`
	Entries         []PresenceEntry `json:"entries"`
}

// ROOM_DELETED (server -> room)
type RoomDeletedMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RoomCode        string `json:"room_code"`
	DeletedBy       string `json:"deleted_by,omitempty"`
}
