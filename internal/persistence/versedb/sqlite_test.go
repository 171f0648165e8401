package versedb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"versechain.app/internal/poem/grid"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "verses.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRoomLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	exists, err := s.RoomExists(ctx, "123456")
	if err != nil || exists {
		t.Fatalf("RoomExists before create = %v, %v", exists, err)
	}
	if err := s.CreateRoom(ctx, "123456", "poet1", time.Now()); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	exists, err = s.RoomExists(ctx, "123456")
	if err != nil || !exists {
		t.Fatalf("RoomExists after create = %v, %v", exists, err)
	}
	if err := s.CreateRoom(ctx, "123456", "poet1", time.Now()); err == nil {
		t.Fatal("duplicate room code must fail")
	}
	if err := s.DeleteRoom(ctx, "123456"); err != nil {
		t.Fatalf("DeleteRoom: %v", err)
	}
	exists, _ = s.RoomExists(ctx, "123456")
	if exists {
		t.Fatal("room survived deletion")
	}
}

func TestAppendAndLoadPreservesOrderAndFields(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	if err := s.CreateRoom(ctx, "123456", "poet1", time.Now()); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	created := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	first := &grid.Verse{
		ID:        "v1",
		Text:      []rune("海棠未雨"),
		Direction: grid.Horizontal,
		Anchor:    grid.Coord{X: 45, Y: 45},
		Color:     "#c0392b",
		Author:    "poet1",
		CreatedAt: created,
	}
	second := &grid.Verse{
		ID:          "v2",
		Text:        []rune("雨打芭蕉"),
		Direction:   grid.Vertical,
		Anchor:      grid.Coord{X: 48, Y: 45},
		Color:       "#2980b9",
		ConnectedTo: []string{"v1"},
		Author:      "poet2",
		CreatedAt:   created.Add(time.Minute),
	}
	for _, v := range []*grid.Verse{first, second} {
		if err := s.AppendVerse(ctx, "123456", v); err != nil {
			t.Fatalf("AppendVerse %s: %v", v.ID, err)
		}
	}

	verses, err := s.LoadRoomVerses(ctx, "123456")
	if err != nil {
		t.Fatalf("LoadRoomVerses: %v", err)
	}
	if len(verses) != 2 || verses[0].ID != "v1" || verses[1].ID != "v2" {
		t.Fatalf("verses = %+v", verses)
	}
	got := verses[1]
	if string(got.Text) != "雨打芭蕉" || got.Direction != grid.Vertical {
		t.Fatalf("verse = %+v", got)
	}
	if got.Anchor != (grid.Coord{X: 48, Y: 45}) {
		t.Fatalf("anchor = %+v", got.Anchor)
	}
	if len(got.ConnectedTo) != 1 || got.ConnectedTo[0] != "v1" {
		t.Fatalf("connected_to = %v", got.ConnectedTo)
	}
	if got.Author != "poet2" || got.Color != "#2980b9" {
		t.Fatalf("verse = %+v", got)
	}
	if !got.CreatedAt.Equal(created.Add(time.Minute)) {
		t.Fatalf("created_at = %v", got.CreatedAt)
	}
}

func TestUpdateVerseText(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	_ = s.CreateRoom(ctx, "123456", "poet1", time.Now())
	v := &grid.Verse{ID: "v1", Text: []rune("海棠未雨"), Direction: grid.Horizontal, Anchor: grid.Coord{X: 45, Y: 45}}
	if err := s.AppendVerse(ctx, "123456", v); err != nil {
		t.Fatalf("AppendVerse: %v", err)
	}

	if err := s.UpdateVerseText(ctx, "123456", "v1", "海棠花雨"); err != nil {
		t.Fatalf("UpdateVerseText: %v", err)
	}
	verses, _ := s.LoadRoomVerses(ctx, "123456")
	if string(verses[0].Text) != "海棠花雨" {
		t.Fatalf("text = %q", string(verses[0].Text))
	}

	if err := s.UpdateVerseText(ctx, "123456", "missing", "雨"); err == nil {
		t.Fatal("unknown verse must fail")
	}
	if err := s.UpdateVerseText(ctx, "999999", "v1", "雨"); err == nil {
		t.Fatal("wrong room must fail")
	}
}

func TestClearVersesKeepsRoom(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	_ = s.CreateRoom(ctx, "123456", "poet1", time.Now())
	v := &grid.Verse{ID: "v1", Text: []rune("海棠未雨"), Direction: grid.Horizontal, Anchor: grid.Coord{X: 45, Y: 45}}
	_ = s.AppendVerse(ctx, "123456", v)

	if err := s.ClearVerses(ctx, "123456"); err != nil {
		t.Fatalf("ClearVerses: %v", err)
	}
	verses, err := s.LoadRoomVerses(ctx, "123456")
	if err != nil || len(verses) != 0 {
		t.Fatalf("verses = %d err = %v", len(verses), err)
	}
	exists, _ := s.RoomExists(ctx, "123456")
	if !exists {
		t.Fatal("clear must not delete the room")
	}

	// seq restarts cleanly after a clear.
	if err := s.AppendVerse(ctx, "123456", v); err != nil {
		t.Fatalf("AppendVerse after clear: %v", err)
	}
	verses, _ = s.LoadRoomVerses(ctx, "123456")
	if len(verses) != 1 {
		t.Fatalf("verses after clear+append = %d", len(verses))
	}
}

func TestListRoomsNewestActivityFirst(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	_ = s.CreateRoom(ctx, "111111", "a", base)
	_ = s.CreateRoom(ctx, "222222", "b", base)
	if err := s.TouchRoom(ctx, "111111", base.Add(time.Hour)); err != nil {
		t.Fatalf("TouchRoom: %v", err)
	}

	codes, err := s.ListRooms(ctx)
	if err != nil {
		t.Fatalf("ListRooms: %v", err)
	}
	if len(codes) != 2 || codes[0] != "111111" || codes[1] != "222222" {
		t.Fatalf("codes = %v", codes)
	}
}
