package room

import (
	"encoding/json"
	"time"

	"versechain.app/internal/poem/grid"
	"versechain.app/internal/poem/presence"
	"versechain.app/internal/protocol"
)

// VerseRecord converts a verse to its wire form.
func VerseRecord(v *grid.Verse) protocol.VerseRecord {
	rec := protocol.VerseRecord{
		ID:          v.ID,
		Text:        string(v.Text),
		Direction:   string(v.Direction),
		Anchor:      protocol.Coord{X: v.Anchor.X, Y: v.Anchor.Y},
		Color:       v.Color,
		ConnectedTo: append([]string(nil), v.ConnectedTo...),
		Author:      v.Author,
	}
	if !v.CreatedAt.IsZero() {
		rec.CreatedAt = v.CreatedAt.UTC().Format(time.RFC3339)
	}
	return rec
}

// PresenceRecords converts a presence snapshot to its wire form.
func PresenceRecords(entries []presence.Entry) []protocol.PresenceEntry {
	out := make([]protocol.PresenceEntry, 0, len(entries))
	for _, e := range entries {
		rec := protocol.PresenceEntry{
			Name:       e.Name,
			Online:     e.Online,
			VerseCount: e.VerseCount,
		}
		if e.Focus != nil {
			rec.Focus = &protocol.Coord{X: e.Focus.X, Y: e.Focus.Y}
		}
		out = append(out, rec)
	}
	return out
}

func verseAddedEvent(code string, v *grid.Verse) []byte {
	return marshalEvent(protocol.VerseAddedMsg{
		Type:            protocol.TypeVerseAdded,
		ProtocolVersion: protocol.Version,
		RoomCode:        code,
		Verse:           VerseRecord(v),
	})
}

func charCorrectedEvent(code string, x, y int, cell grid.Cell) []byte {
	return marshalEvent(protocol.CharCorrectedMsg{
		Type:            protocol.TypeCharCorrected,
		ProtocolVersion: protocol.Version,
		RoomCode:        code,
		X:               x,
		Y:               y,
		Char:            string(cell.Char),
		VerseID:         cell.VerseID,
	})
}

func roomResetEvent(code, resetBy string) []byte {
	return marshalEvent(protocol.RoomResetMsg{
		Type:            protocol.TypeRoomReset,
		ProtocolVersion: protocol.Version,
		RoomCode:        code,
		ResetBy:         resetBy,
	})
}

func presenceChangedEvent(code string, entries []presence.Entry) []byte {
	return marshalEvent(protocol.PresenceChangedMsg{
		Type:            protocol.TypePresence,
		ProtocolVersion: protocol.Version,
		RoomCode:        code,
		Entries:         PresenceRecords(entries),
	})
}

func roomDeletedEvent(code, deletedBy string) []byte {
	return marshalEvent(protocol.RoomDeletedMsg{
		Type:            protocol.TypeRoomDeleted,
		ProtocolVersion: protocol.Version,
		RoomCode:        code,
		DeletedBy:       deletedBy,
	})
}

func marshalEvent(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
