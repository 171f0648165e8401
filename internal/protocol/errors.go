package protocol

import "fmt"

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Room routing/state.
	ErrRoomNotFound = "E_ROOM_NOT_FOUND"
	ErrNotInRoom    = "E_NOT_IN_ROOM"
	ErrInternal     = "E_INTERNAL"

	// Placement rule layer.
	ErrOutOfBounds           = "E_OUT_OF_BOUNDS"
	ErrOverlap               = "E_OVERLAP"
	ErrDirectionMismatch     = "E_DIRECTION_MISMATCH"
	ErrConnectorCharNotFound = "E_CONNECTOR_CHAR_NOT_FOUND"
	ErrNoParentVerse         = "E_NO_PARENT_VERSE"
	ErrRoomNotEmpty          = "E_ROOM_NOT_EMPTY"
	ErrTextLengthInvalid     = "E_TEXT_LENGTH_INVALID"

	// Correction layer.
	ErrEmptyCell   = "E_EMPTY_CELL"
	ErrInvalidChar = "E_INVALID_CHAR"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:       {},
	ErrRoomNotFound:          {},
	ErrNotInRoom:             {},
	ErrInternal:              {},
	ErrOutOfBounds:           {},
	ErrOverlap:               {},
	ErrDirectionMismatch:     {},
	ErrConnectorCharNotFound: {},
	ErrNoParentVerse:         {},
	ErrRoomNotEmpty:          {},
	ErrTextLengthInvalid:     {},
	ErrEmptyCell:             {},
	ErrInvalidChar:           {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// Rejection is an expected rule violation. It is user-facing and
// non-fatal to the room; only the requester sees it.
type Rejection struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Code, r.Message)
}

func Reject(code, format string, args ...any) *Rejection {
	return &Rejection{Code: code, Message: fmt.Sprintf(format, args...)}
}
