// Package room serializes all mutation of a room's grid. The registry maps
// room codes to owned room state; each room has an exclusive section that
// totally orders placements, corrections and resets, while different rooms
// proceed independently.
package room

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"versechain.app/internal/poem/grid"
	"versechain.app/internal/poem/placement"
	"versechain.app/internal/poem/presence"
	"versechain.app/internal/protocol"
)

// Room owns one grid and the presence of its participants. All grid access
// goes through mu; presence carries its own lock and never takes mu.
type Room struct {
	code      string
	creator   string
	createdAt time.Time

	mu           sync.Mutex
	grid         *grid.Grid
	lastActivity time.Time
	corrupt      bool

	presence *presence.Tracker
}

type Options struct {
	GridSize int
	Rules    placement.Rules

	Store       Store          // nil: in-memory only
	Broadcaster Broadcaster    // nil: events dropped
	Snapshots   Snapshotter    // nil: no archive on eviction
	Decisions   DecisionLogger // nil: no decision trail
	Logger      *log.Logger
}

type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	gridSize  int
	rules     placement.Rules
	store     Store
	bcast     Broadcaster
	snapshots Snapshotter
	decisions DecisionLogger
	logger    *log.Logger

	rng *rand.Rand

	versesPlaced atomic.Uint64
	rejections   atomic.Uint64
}

func NewRegistry(opts Options) *Registry {
	if opts.GridSize <= 0 {
		opts.GridSize = grid.DefaultSize
	}
	if opts.Rules.MaxTextLen == 0 {
		opts.Rules = placement.DefaultRules()
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Registry{
		rooms:     map[string]*Room{},
		gridSize:  opts.GridSize,
		rules:     opts.Rules,
		store:     opts.Store,
		bcast:     opts.Broadcaster,
		snapshots: opts.Snapshots,
		decisions: opts.Decisions,
		logger:    opts.Logger,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// CreateRoom allocates a fresh room with a unique 6-digit code.
func (r *Registry) CreateRoom(ctx context.Context, creator string) (Info, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var code string
	for attempt := 0; attempt < 32; attempt++ {
		candidate := fmt.Sprintf("%06d", 100000+r.rng.Intn(900000))
		if _, taken := r.rooms[candidate]; taken {
			continue
		}
		if r.store != nil {
			exists, err := r.store.RoomExists(ctx, candidate)
			if err != nil {
				return Info{}, fmt.Errorf("room exists: %w", err)
			}
			if exists {
				continue
			}
		}
		code = candidate
		break
	}
	if code == "" {
		return Info{}, fmt.Errorf("could not allocate a room code")
	}

	now := time.Now().UTC()
	if r.store != nil {
		if err := r.store.CreateRoom(ctx, code, creator, now); err != nil {
			return Info{}, fmt.Errorf("create room: %w", err)
		}
	}
	rm := &Room{
		code:         code,
		creator:      creator,
		createdAt:    now,
		grid:         grid.New(r.gridSize),
		lastActivity: now,
		presence:     presence.NewTracker(),
	}
	r.rooms[code] = rm
	r.logger.Printf("room %s created by %s", code, creator)
	return r.infoLocked(rm), nil
}

// room returns the live room, hydrating it from the store on first use.
func (r *Registry) room(ctx context.Context, code string) (*Room, error) {
	r.mu.RLock()
	rm := r.rooms[code]
	r.mu.RUnlock()
	if rm != nil {
		return rm, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if rm = r.rooms[code]; rm != nil {
		return rm, nil
	}
	if r.store == nil {
		return nil, protocol.Reject(protocol.ErrRoomNotFound, "room %s does not exist", code)
	}
	exists, err := r.store.RoomExists(ctx, code)
	if err != nil {
		return nil, protocol.Reject(protocol.ErrInternal, "room lookup failed")
	}
	if !exists {
		return nil, protocol.Reject(protocol.ErrRoomNotFound, "room %s does not exist", code)
	}

	rm = &Room{
		code:         code,
		createdAt:    time.Now().UTC(),
		grid:         grid.New(r.gridSize),
		lastActivity: time.Now().UTC(),
		presence:     presence.NewTracker(),
	}
	if err := r.hydrate(ctx, rm); err != nil {
		// Corrupted persisted state is fatal for the room, not the server.
		rm.corrupt = true
		r.logger.Printf("room %s: refusing to serve, corrupted state: %v", code, err)
	}
	r.rooms[code] = rm
	return rm, nil
}

// hydrate rebuilds the grid by replaying the persisted verses in their
// original insertion order.
func (r *Registry) hydrate(ctx context.Context, rm *Room) error {
	verses, err := r.store.LoadRoomVerses(ctx, rm.code)
	if err != nil {
		return fmt.Errorf("load verses: %w", err)
	}
	for _, v := range verses {
		rm.grid.Place(v)
	}
	if err := rm.grid.CheckInvariants(); err != nil {
		return err
	}
	return nil
}

// DeleteRoom destroys a room, its persisted state included, and tells the
// remaining subscribers.
func (r *Registry) DeleteRoom(ctx context.Context, code, deletedBy string) error {
	r.mu.Lock()
	rm := r.rooms[code]
	delete(r.rooms, code)
	r.mu.Unlock()

	if rm == nil {
		if r.store == nil {
			return protocol.Reject(protocol.ErrRoomNotFound, "room %s does not exist", code)
		}
		exists, err := r.store.RoomExists(ctx, code)
		if err != nil {
			return fmt.Errorf("room exists: %w", err)
		}
		if !exists {
			return protocol.Reject(protocol.ErrRoomNotFound, "room %s does not exist", code)
		}
	}
	if r.store != nil {
		if err := r.store.DeleteRoom(ctx, code); err != nil {
			return fmt.Errorf("delete room: %w", err)
		}
	}
	if rm != nil {
		r.archive(rm)
	}
	r.broadcast(code, roomDeletedEvent(code, deletedBy))
	r.logger.Printf("room %s deleted by %s", code, deletedBy)
	return nil
}

// Sweep evicts rooms with no one online and no activity for maxIdle.
// Persisted state is kept, so a swept room rehydrates on next use.
func (r *Registry) Sweep(maxIdle time.Duration) int {
	now := time.Now().UTC()
	r.mu.Lock()
	var evict []*Room
	for code, rm := range r.rooms {
		if rm.presence.OnlineCount() > 0 {
			continue
		}
		rm.mu.Lock()
		idle := now.Sub(rm.lastActivity)
		rm.mu.Unlock()
		if idle > maxIdle {
			evict = append(evict, rm)
			delete(r.rooms, code)
		}
	}
	r.mu.Unlock()

	for _, rm := range evict {
		r.archive(rm)
		r.logger.Printf("room %s evicted after %s idle", rm.code, maxIdle)
	}
	return len(evict)
}

func (r *Registry) archive(rm *Room) {
	if r.snapshots == nil {
		return
	}
	rm.mu.Lock()
	state, err := rm.grid.Serialize()
	rm.mu.Unlock()
	if err != nil {
		r.logger.Printf("room %s: serialize for archive: %v", rm.code, err)
		return
	}
	if err := r.snapshots.WriteRoomSnapshot(rm.code, state); err != nil {
		r.logger.Printf("room %s: archive snapshot: %v", rm.code, err)
	}
}

// RoomInfo reports a single room.
func (r *Registry) RoomInfo(ctx context.Context, code string) (Info, error) {
	rm, err := r.room(ctx, code)
	if err != nil {
		return Info{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.infoLocked(rm), nil
}

// ListRooms reports live rooms sorted by last activity, newest first.
func (r *Registry) ListRooms() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.rooms))
	for _, rm := range r.rooms {
		out = append(out, r.infoLocked(rm))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivity.After(out[j].LastActivity) })
	return out
}

func (r *Registry) infoLocked(rm *Room) Info {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return Info{
		Code:         rm.code,
		Creator:      rm.creator,
		CreatedAt:    rm.createdAt,
		LastActivity: rm.lastActivity,
		VerseCount:   rm.grid.VerseCount(),
		Online:       rm.presence.OnlineCount(),
	}
}

func (r *Registry) Metrics() Metrics {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m := Metrics{
		Rooms:        len(r.rooms),
		VersesPlaced: r.versesPlaced.Load(),
		Rejections:   r.rejections.Load(),
	}
	for _, rm := range r.rooms {
		m.Online += rm.presence.OnlineCount()
	}
	return m
}

func (r *Registry) broadcast(code string, payload []byte) {
	if r.bcast == nil || payload == nil {
		return
	}
	r.bcast.Broadcast(code, payload)
}

func (r *Registry) logDecision(e DecisionEntry) {
	if !e.Accepted {
		r.rejections.Add(1)
	}
	if r.decisions == nil {
		return
	}
	e.Time = time.Now().UTC().Format(time.RFC3339Nano)
	if err := r.decisions.WriteDecision(e); err != nil {
		r.logger.Printf("decision log: %v", err)
	}
}
