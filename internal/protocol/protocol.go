package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	// client -> server
	TypeHello        = "HELLO"
	TypeProposeVerse = "PROPOSE_VERSE"
	TypeCorrectChar  = "CORRECT_CHAR"
	TypeResetRoom    = "RESET_ROOM"
	TypeSetFocus     = "SET_FOCUS"

	// server -> client
	TypeWelcome       = "WELCOME"
	TypeAck           = "ACK"
	TypeVerseAdded    = "VERSE_ADDED"
	TypeCharCorrected = "CHARACTER_CORRECTED"
	TypeRoomReset     = "ROOM_RESET"
	TypePresence      = "PRESENCE_CHANGED"
	TypeRoomDeleted   = "ROOM_DELETED"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
