package app

import (
	"testing"
	"time"

	"github.com/dkeye/grinder/internal/core"
	"github.com/dkeye/grinder/internal/domain"
	"github.com/jonboulle/clockwork"
)

func participant(id core.ConnID) core.Participant {
	return core.Participant{ConnID: id, User: domain.User{ID: domain.UserID("u-" + id), Username: string(id)}}
}

func TestRoomStoreCreatesOnce(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	s := NewRoomStore(clock, domain.DefaultTimerDurations())

	first, created := s.GetOrCreate("AB12CD")
	if !created {
		t.Fatal("first GetOrCreate did not create")
	}
	clock.Advance(time.Minute)
	second, created := s.GetOrCreate("AB12CD")
	if created || second != first {
		t.Fatal("second GetOrCreate made a new room")
	}
	if !first.StartedAt().Equal(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("startedAt = %v", first.StartedAt())
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestRoomStoreRemovesEmptyRoom(t *testing.T) {
	s := NewRoomStore(clockwork.NewFakeClock(), domain.DefaultTimerDurations())
	room, _ := s.GetOrCreate("AB12CD")
	room.AddParticipant(participant("a"))
	room.AddParticipant(participant("b"))

	got, removed := s.RemoveParticipant("AB12CD", "a")
	if !removed || got.Count() != 1 {
		t.Fatalf("removed=%v count=%d, want true/1", removed, got.Count())
	}
	if _, ok := s.Get("AB12CD"); !ok {
		t.Fatal("room with one participant was deleted")
	}

	got, removed = s.RemoveParticipant("AB12CD", "b")
	if !removed || got.Count() != 0 {
		t.Fatalf("removed=%v count=%d, want true/0", removed, got.Count())
	}
	if _, ok := s.Get("AB12CD"); ok {
		t.Fatal("empty room still registered")
	}

	fresh, created := s.GetOrCreate("AB12CD")
	if !created || fresh == room {
		t.Error("rejoining a deleted code reused the old room")
	}
	if fresh.Timer().IsRunning {
		t.Error("fresh room has a running timer")
	}
}

func TestRoomStoreUnknownCodeIsNoop(t *testing.T) {
	s := NewRoomStore(clockwork.NewFakeClock(), domain.DefaultTimerDurations())
	room, removed := s.RemoveParticipant("NOPE", "a")
	if room != nil || removed {
		t.Errorf("RemoveParticipant on unknown code = %v, %v", room, removed)
	}
	if s.Len() != 0 {
		t.Errorf("Len = %d, want 0", s.Len())
	}
}

func TestRoomJoinOrderAndDuplicates(t *testing.T) {
	s := NewRoomStore(clockwork.NewFakeClock(), domain.DefaultTimerDurations())
	room, _ := s.GetOrCreate("AB12CD")
	for _, id := range []core.ConnID{"a", "b", "c"} {
		room.AddParticipant(participant(id))
	}
	room.AddParticipant(participant("a"))

	var got []core.ConnID
	for _, p := range room.Participants() {
		got = append(got, p.ConnID)
	}
	want := []core.ConnID{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("participants = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("participants = %v, want %v", got, want)
		}
	}

	others := room.ParticipantsExcept("b")
	if len(others) != 2 || others[0].ConnID != "a" || others[1].ConnID != "c" {
		t.Errorf("ParticipantsExcept(b) = %v", others)
	}
}

func TestRoomStoreListSorted(t *testing.T) {
	s := NewRoomStore(clockwork.NewFakeClock(), domain.DefaultTimerDurations())
	for _, code := range []domain.RoomCode{"ZZ", "AA", "MM"} {
		r, _ := s.GetOrCreate(code)
		r.AddParticipant(participant("x"))
	}
	list := s.List()
	if len(list) != 3 || list[0].Code != "AA" || list[2].Code != "ZZ" {
		t.Fatalf("List = %+v", list)
	}
	if list[1].ParticipantCount != 1 {
		t.Errorf("count = %d, want 1", list[1].ParticipantCount)
	}
}

func TestRegistryRoomTracking(t *testing.T) {
	r := NewRegistry()
	canceled := false
	r.Bind("a", nil, "tok", func() { canceled = true })

	if _, ok := r.RoomOf("a"); ok {
		t.Fatal("fresh connection reports a room")
	}
	if !r.UpdateRoom("a", "AB12CD") {
		t.Fatal("UpdateRoom on bound connection failed")
	}
	if code, ok := r.RoomOf("a"); !ok || code != "AB12CD" {
		t.Errorf("RoomOf = %q, %v", code, ok)
	}
	if r.ClientToken("a") != "tok" {
		t.Errorf("ClientToken = %q", r.ClientToken("a"))
	}
	r.RemoveRoom("a")
	if _, ok := r.RoomOf("a"); ok {
		t.Error("room kept after RemoveRoom")
	}
	if !r.Cancel("a") || !canceled {
		t.Error("Cancel did not run the cancel func")
	}
	r.Unbind("a")
	if r.UpdateRoom("a", "X") || r.Len() != 0 {
		t.Error("unbound connection still tracked")
	}
}
