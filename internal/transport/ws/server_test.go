package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"versechain.app/internal/poem/placement"
	"versechain.app/internal/poem/room"
	"versechain.app/internal/protocol"
)

func newWSTestServer(t *testing.T) (*httptest.Server, *room.Registry, *Hub) {
	t.Helper()
	logger := log.New(os.Stdout, "[test] ", 0)
	hub := NewHub()
	reg := room.NewRegistry(room.Options{
		Rules:       placement.DefaultRules(),
		Broadcaster: hub,
		Logger:      logger,
	})
	ts := httptest.NewServer(NewServer(reg, hub, logger).Handler())
	t.Cleanup(ts.Close)
	return ts, reg, hub
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return b
}

func sendHello(t *testing.T, conn *websocket.Conn, code, name string) {
	t.Helper()
	if err := conn.WriteJSON(protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		RoomCode:        code,
		ParticipantName: name,
	}); err != nil {
		t.Fatalf("write HELLO: %v", err)
	}
}

func TestHandshakeDeliversOwnJoinPresence(t *testing.T) {
	ts, reg, _ := newWSTestServer(t)
	info, err := reg.CreateRoom(context.Background(), "poet1")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	conn := dialWS(t, ts)
	sendHello(t, conn, info.Code, "poet1")

	var welcome protocol.WelcomeMsg
	if err := json.Unmarshal(readFrame(t, conn), &welcome); err != nil {
		t.Fatalf("decode WELCOME: %v", err)
	}
	if welcome.Type != protocol.TypeWelcome || welcome.RoomCode != info.Code {
		t.Fatalf("welcome = %+v", welcome)
	}
	if welcome.GridParams.Size != 100 || welcome.GridParams.FirstAnchor.X != 45 {
		t.Fatalf("grid params = %+v", welcome.GridParams)
	}

	// The join's own presence broadcast is committed between the
	// subscription and the snapshot; it must arrive, not vanish.
	var pres protocol.PresenceChangedMsg
	if err := json.Unmarshal(readFrame(t, conn), &pres); err != nil {
		t.Fatalf("decode presence: %v", err)
	}
	if pres.Type != protocol.TypePresence {
		t.Fatalf("frame after WELCOME = %s, want %s", pres.Type, protocol.TypePresence)
	}
	if len(pres.Entries) != 1 || pres.Entries[0].Name != "poet1" || !pres.Entries[0].Online {
		t.Fatalf("presence entries = %+v", pres.Entries)
	}
}

func TestProposeOverSocket(t *testing.T) {
	ts, reg, _ := newWSTestServer(t)
	info, _ := reg.CreateRoom(context.Background(), "poet1")

	conn := dialWS(t, ts)
	sendHello(t, conn, info.Code, "poet1")
	readFrame(t, conn) // WELCOME
	readFrame(t, conn) // own join presence

	if err := conn.WriteJSON(protocol.ProposeVerseMsg{
		Type:            protocol.TypeProposeVerse,
		ProtocolVersion: protocol.Version,
		RequestID:       "r1",
		Text:            "海棠未雨",
		Direction:       "horizontal",
	}); err != nil {
		t.Fatalf("write PROPOSE_VERSE: %v", err)
	}

	var added protocol.VerseAddedMsg
	if err := json.Unmarshal(readFrame(t, conn), &added); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if added.Type != protocol.TypeVerseAdded || added.Verse.Anchor.X != 45 || added.Verse.Anchor.Y != 45 {
		t.Fatalf("verse_added = %+v", added)
	}

	var pres protocol.PresenceChangedMsg
	if err := json.Unmarshal(readFrame(t, conn), &pres); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pres.Type != protocol.TypePresence || pres.Entries[0].VerseCount != 1 {
		t.Fatalf("presence = %+v", pres)
	}

	var ack protocol.AckMsg
	if err := json.Unmarshal(readFrame(t, conn), &ack); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ack.Type != protocol.TypeAck || ack.AckFor != "r1" || !ack.Accepted || ack.Verse == nil {
		t.Fatalf("ack = %+v", ack)
	}

	// A rejected proposal answers the proposer alone.
	if err := conn.WriteJSON(protocol.ProposeVerseMsg{
		Type:            protocol.TypeProposeVerse,
		ProtocolVersion: protocol.Version,
		RequestID:       "r2",
		Text:            "雨打芭蕉",
		Direction:       "vertical",
	}); err != nil {
		t.Fatalf("write PROPOSE_VERSE: %v", err)
	}
	var rejected protocol.AckMsg
	if err := json.Unmarshal(readFrame(t, conn), &rejected); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rejected.Type != protocol.TypeAck || rejected.AckFor != "r2" || rejected.Accepted {
		t.Fatalf("ack = %+v", rejected)
	}
	if rejected.Code != protocol.ErrRoomNotEmpty {
		t.Fatalf("code = %s", rejected.Code)
	}
}

func TestHandshakeUnknownRoomLeavesNoSubscription(t *testing.T) {
	ts, _, hub := newWSTestServer(t)

	conn := dialWS(t, ts)
	sendHello(t, conn, "000000", "poet1")

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected the server to close the connection")
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.Total() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscriptions = %d, want 0", hub.Total())
		}
		time.Sleep(5 * time.Millisecond)
	}
}
