package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"versechain.app/internal/poem/grid"
	"versechain.app/internal/poem/placement"
	"versechain.app/internal/poem/room"
	"versechain.app/internal/protocol"
)

const (
	handshakeTimeout = 5 * time.Second
	writeTimeout     = 5 * time.Second
	pongTimeout      = 90 * time.Second
	pingEvery        = 30 * time.Second
)

type Server struct {
	reg *room.Registry
	hub *Hub
	log *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(reg *room.Registry, hub *Hub, logger *log.Logger) *Server {
	return &Server{
		reg: reg,
		hub: hub,
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sess, sub := s.handshake(r.Context(), conn)
		if sess == nil {
			return
		}
		defer s.hub.Unsubscribe(sub)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine: broadcasts plus periodic pings.
		go func() {
			ping := time.NewTicker(pingEvery)
			defer ping.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-sub.Out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				case <-ping.C:
					_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
					if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongTimeout))
		})

		// Reader loop.
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))
			s.dispatch(ctx, sess, sub, msg)
		}

		s.reg.Leave(context.Background(), sess.roomCode, sess.participant)
	}
}

type session struct {
	roomCode    string
	participant string
}

func (s *Server) handshake(ctx context.Context, conn *websocket.Conn) (*session, *Subscription) {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closePolicy(conn, "expected HELLO")
		return nil, nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return nil, nil
	}
	if hello.ProtocolVersion != protocol.Version {
		closePolicy(conn, "bad protocol_version")
		return nil, nil
	}
	code := strings.TrimSpace(hello.RoomCode)
	name := strings.TrimSpace(hello.ParticipantName)
	if code == "" || name == "" {
		closePolicy(conn, "room_code and participant_name required")
		return nil, nil
	}

	// Subscribe before taking the snapshot: events committed while the
	// WELCOME is being prepared queue up instead of being lost, and
	// duplicates are safe to re-apply client-side.
	sub := s.hub.Subscribe(code, hello.Capabilities.MaxQueue)

	state, err := s.reg.Join(ctx, code, name)
	if err != nil {
		s.hub.Unsubscribe(sub)
		rej := rejection(err)
		closePolicy(conn, rej.Code+": "+rej.Message)
		return nil, nil
	}

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		RoomCode:        state.Code,
		GridParams: protocol.GridParams{
			Size:        state.GridSize,
			FirstAnchor: protocol.Coord{X: state.FirstAnchor.X, Y: state.FirstAnchor.Y},
			MaxTextLen:  state.MaxTextLen,
		},
		Verses:   make([]protocol.VerseRecord, 0, len(state.Verses)),
		Presence: room.PresenceRecords(state.Presence),
	}
	for _, v := range state.Verses {
		welcome.Verses = append(welcome.Verses, room.VerseRecord(v))
	}
	if err := writeJSON(conn, welcome); err != nil {
		s.hub.Unsubscribe(sub)
		s.reg.Leave(context.Background(), code, name)
		return nil, nil
	}
	return &session{roomCode: code, participant: name}, sub
}

func (s *Server) dispatch(ctx context.Context, sess *session, sub *Subscription, msg []byte) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return
	}
	if base.ProtocolVersion != protocol.Version {
		return
	}

	switch base.Type {
	case protocol.TypeProposeVerse:
		var m protocol.ProposeVerseMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return
		}
		p := placement.Proposal{
			Text:      m.Text,
			Direction: grid.Direction(m.Direction),
			Color:     m.Color,
		}
		if m.Connector != nil {
			p.Connector = &placement.Connector{
				At:      grid.Coord{X: m.Connector.X, Y: m.Connector.Y},
				VerseID: m.Connector.VerseID,
			}
		}
		v, err := s.reg.ProposePlacement(ctx, sess.roomCode, sess.participant, p)
		if err != nil {
			s.ack(sub, m.RequestID, rejection(err), nil)
			return
		}
		rec := room.VerseRecord(v)
		s.ack(sub, m.RequestID, nil, &rec)

	case protocol.TypeCorrectChar:
		var m protocol.CorrectCharMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return
		}
		_, err := s.reg.CorrectCharacter(ctx, sess.roomCode, sess.participant, m.X, m.Y, m.Char)
		if err != nil {
			s.ack(sub, m.RequestID, rejection(err), nil)
			return
		}
		s.ack(sub, m.RequestID, nil, nil)

	case protocol.TypeResetRoom:
		var m protocol.ResetRoomMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return
		}
		if err := s.reg.ResetRoom(ctx, sess.roomCode, sess.participant); err != nil {
			s.ack(sub, m.RequestID, rejection(err), nil)
			return
		}
		s.ack(sub, m.RequestID, nil, nil)

	case protocol.TypeSetFocus:
		var m protocol.SetFocusMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return
		}
		var focus *grid.Coord
		if m.Focus != nil {
			focus = &grid.Coord{X: m.Focus.X, Y: m.Focus.Y}
		}
		s.reg.SetFocus(ctx, sess.roomCode, sess.participant, focus)
	}
}

// ack answers the requester alone, through their own subscription queue.
func (s *Server) ack(sub *Subscription, requestID string, rej *protocol.Rejection, verse *protocol.VerseRecord) {
	m := protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          requestID,
		Accepted:        rej == nil,
		Verse:           verse,
	}
	if rej != nil {
		m.Code = rej.Code
		m.Message = rej.Message
	}
	b, err := json.Marshal(m)
	if err != nil {
		return
	}
	select {
	case sub.Out <- b:
	default:
	}
}

func rejection(err error) *protocol.Rejection {
	var rej *protocol.Rejection
	if errors.As(err, &rej) {
		return rej
	}
	return protocol.Reject(protocol.ErrInternal, "internal error")
}

func closePolicy(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason),
		time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}
