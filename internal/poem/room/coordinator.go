package room

import (
	"context"
	"time"

	"versechain.app/internal/poem/grid"
	"versechain.app/internal/poem/placement"
	"versechain.app/internal/protocol"
)

// ProposePlacement runs one placement attempt through the room's exclusive
// section: validate against the current grid, persist, apply, broadcast.
// On rejection nothing changes and nothing is broadcast; the returned error
// is a *protocol.Rejection the caller relays to the proposer alone.
func (r *Registry) ProposePlacement(ctx context.Context, code, participant string, p placement.Proposal) (*grid.Verse, error) {
	rm, err := r.room(ctx, code)
	if err != nil {
		return nil, err
	}
	p.Author = participant

	rm.mu.Lock()
	if rm.corrupt {
		rm.mu.Unlock()
		return nil, protocol.Reject(protocol.ErrInternal, "room %s is unavailable", code)
	}
	v, rej := placement.Validate(r.rules, p, rm.grid)
	if rej != nil {
		rm.mu.Unlock()
		r.logDecision(DecisionEntry{RoomCode: code, Actor: participant, Op: OpPlace, Code: rej.Code, Message: rej.Message})
		return nil, rej
	}
	if r.store != nil {
		if err := r.store.AppendVerse(ctx, code, v); err != nil {
			rm.mu.Unlock()
			r.logger.Printf("room %s: append verse: %v", code, err)
			r.logDecision(DecisionEntry{RoomCode: code, Actor: participant, Op: OpPlace, Code: protocol.ErrInternal})
			return nil, protocol.Reject(protocol.ErrInternal, "placement could not be persisted")
		}
	}
	rm.grid.Place(v)
	rm.lastActivity = time.Now().UTC()
	// Broadcast inside the exclusive section so verse_added events are seen
	// in placement order.
	r.broadcast(code, verseAddedEvent(code, v))
	rm.mu.Unlock()

	r.versesPlaced.Add(1)
	r.touch(ctx, rm)
	rm.presence.IncrVerseCount(participant)
	r.broadcast(code, presenceChangedEvent(code, rm.presence.Snapshot()))
	r.logDecision(DecisionEntry{RoomCode: code, Actor: participant, Op: OpPlace, Accepted: true, VerseID: v.ID})
	return v, nil
}

// CorrectCharacter replaces one character in one cell and the owning
// verse's text, with the same exclusivity discipline as placements.
func (r *Registry) CorrectCharacter(ctx context.Context, code, participant string, x, y int, newChar string) (grid.Cell, error) {
	rm, err := r.room(ctx, code)
	if err != nil {
		return grid.Cell{}, err
	}

	rm.mu.Lock()
	if rm.corrupt {
		rm.mu.Unlock()
		return grid.Cell{}, protocol.Reject(protocol.ErrInternal, "room %s is unavailable", code)
	}
	before, occupied, getErr := rm.grid.Get(x, y)
	cell, corrErr := rm.grid.CorrectChar(x, y, newChar)
	if corrErr != nil {
		rm.mu.Unlock()
		rej := asRejection(corrErr)
		r.logDecision(DecisionEntry{RoomCode: code, Actor: participant, Op: OpCorrect, Code: rej.Code, Message: rej.Message})
		return grid.Cell{}, rej
	}
	if r.store != nil {
		v, _ := rm.grid.VerseByID(cell.VerseID)
		if err := r.store.UpdateVerseText(ctx, code, cell.VerseID, string(v.Text)); err != nil {
			// Undo the in-memory edit so state and store stay in step.
			if getErr == nil && occupied {
				_, _ = rm.grid.CorrectChar(x, y, string(before.Char))
			}
			rm.mu.Unlock()
			r.logger.Printf("room %s: persist correction: %v", code, err)
			r.logDecision(DecisionEntry{RoomCode: code, Actor: participant, Op: OpCorrect, Code: protocol.ErrInternal})
			return grid.Cell{}, protocol.Reject(protocol.ErrInternal, "correction could not be persisted")
		}
	}
	rm.lastActivity = time.Now().UTC()
	r.broadcast(code, charCorrectedEvent(code, x, y, cell))
	rm.mu.Unlock()

	r.touch(ctx, rm)
	r.logDecision(DecisionEntry{RoomCode: code, Actor: participant, Op: OpCorrect, Accepted: true, VerseID: cell.VerseID})
	return cell, nil
}

// ResetRoom clears the room's grid and verse list and broadcasts the reset.
func (r *Registry) ResetRoom(ctx context.Context, code, participant string) error {
	rm, err := r.room(ctx, code)
	if err != nil {
		return err
	}

	rm.mu.Lock()
	if r.store != nil {
		if err := r.store.ClearVerses(ctx, code); err != nil {
			rm.mu.Unlock()
			r.logger.Printf("room %s: clear verses: %v", code, err)
			r.logDecision(DecisionEntry{RoomCode: code, Actor: participant, Op: OpReset, Code: protocol.ErrInternal})
			return protocol.Reject(protocol.ErrInternal, "reset could not be persisted")
		}
	}
	rm.grid.Reset()
	rm.corrupt = false
	rm.lastActivity = time.Now().UTC()
	r.broadcast(code, roomResetEvent(code, participant))
	rm.mu.Unlock()

	r.touch(ctx, rm)
	r.logDecision(DecisionEntry{RoomCode: code, Actor: participant, Op: OpReset, Accepted: true})
	return nil
}

// Join connects a participant and returns everything needed to mirror the
// room. Rejoining under the same name is idempotent.
func (r *Registry) Join(ctx context.Context, code, name string) (State, error) {
	rm, err := r.room(ctx, code)
	if err != nil {
		return State{}, err
	}
	rm.presence.Join(name)
	r.broadcast(code, presenceChangedEvent(code, rm.presence.Snapshot()))

	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.corrupt {
		return State{}, protocol.Reject(protocol.ErrInternal, "room %s is unavailable", code)
	}
	return State{
		Code:        code,
		GridSize:    rm.grid.Size(),
		FirstAnchor: r.rules.FirstAnchor,
		MaxTextLen:  r.rules.MaxTextLen,
		Verses:      rm.grid.Verses(),
		Presence:    rm.presence.Snapshot(),
	}, nil
}

// Leave marks the participant offline. Their verse count is retained.
func (r *Registry) Leave(ctx context.Context, code, name string) {
	rm, err := r.room(ctx, code)
	if err != nil {
		return
	}
	rm.presence.Leave(name)
	r.broadcast(code, presenceChangedEvent(code, rm.presence.Snapshot()))
}

// SetFocus moves the participant's live cursor. Best-effort: not ordered
// with respect to placements.
func (r *Registry) SetFocus(ctx context.Context, code, name string, focus *grid.Coord) {
	rm, err := r.room(ctx, code)
	if err != nil {
		return
	}
	rm.presence.SetFocus(name, focus)
	r.broadcast(code, presenceChangedEvent(code, rm.presence.Snapshot()))
}

// Verses returns the room's verses in insertion order.
func (r *Registry) Verses(ctx context.Context, code string) ([]*grid.Verse, error) {
	rm, err := r.room(ctx, code)
	if err != nil {
		return nil, err
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.corrupt {
		return nil, protocol.Reject(protocol.ErrInternal, "room %s is unavailable", code)
	}
	return rm.grid.Verses(), nil
}

func (r *Registry) touch(ctx context.Context, rm *Room) {
	if r.store == nil {
		return
	}
	if err := r.store.TouchRoom(ctx, rm.code, time.Now().UTC()); err != nil {
		r.logger.Printf("room %s: touch: %v", rm.code, err)
	}
}

func asRejection(err error) *protocol.Rejection {
	if rej, ok := err.(*protocol.Rejection); ok {
		return rej
	}
	return protocol.Reject(protocol.ErrInternal, "%v", err)
}
