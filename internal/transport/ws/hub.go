package ws

import "sync"

// Hub is the room-scoped publish/subscribe channel the engine broadcasts
// through. Events are marshaled once and fanned out; a subscriber whose
// queue is full misses the event and is expected to resync on reconnect.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]map[*Subscription]struct{}
}

type Subscription struct {
	RoomCode string
	Out      chan []byte
}

func NewHub() *Hub {
	return &Hub{rooms: map[string]map[*Subscription]struct{}{}}
}

func (h *Hub) Subscribe(roomCode string, queue int) *Subscription {
	if queue <= 0 {
		queue = 16
	}
	if queue > 256 {
		queue = 256
	}
	sub := &Subscription{RoomCode: roomCode, Out: make(chan []byte, queue)}
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.rooms[roomCode]
	if set == nil {
		set = map[*Subscription]struct{}{}
		h.rooms[roomCode] = set
	}
	set[sub] = struct{}{}
	return sub
}

func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.rooms[sub.RoomCode]
	if set == nil {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(h.rooms, sub.RoomCode)
	}
}

// Broadcast implements room.Broadcaster.
func (h *Hub) Broadcast(roomCode string, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.rooms[roomCode] {
		select {
		case sub.Out <- payload:
		default:
			// Slow consumer; skip rather than stall the room.
		}
	}
}

func (h *Hub) Subscribers(roomCode string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[roomCode])
}

func (h *Hub) Total() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, set := range h.rooms {
		n += len(set)
	}
	return n
}
