package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/foxseedlab/bonfire/internal/discord"
	"github.com/foxseedlab/bonfire/internal/repository"
	"github.com/prometheus/client_golang/prometheus"
	prom_testutil "github.com/prometheus/client_golang/prometheus/testutil"
)

const testGuildID = "guild-1"

type mockStore struct {
	mu       sync.Mutex
	users    map[string]bool
	channels map[string]bool
	fail     bool
	records  []repository.SessionRecord
	closes   int
}

func newMockStore() *mockStore {
	return &mockStore{
		users:    map[string]bool{"u1": true},
		channels: map[string]bool{"vc-a": true, "vc-b": true},
	}
}

func (s *mockStore) IsTrackedUser(_ context.Context, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[userID]
}

func (s *mockStore) IsTrackedChannel(_ context.Context, channelID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channels[channelID]
}

func (s *mockStore) CloseOrInsertSession(_ context.Context, record repository.SessionRecord) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	if s.fail {
		return false
	}
	s.records = append(s.records, record)
	return true
}

func newTestTracker(t *testing.T, store Store) (*Tracker, *quartz.Mock) {
	t.Helper()
	clock := quartz.NewMock(t)
	clock.Set(time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC))
	return NewTracker(store, clock, time.UTC, testGuildID, prometheus.NewRegistry()), clock
}

func join(userID, channelID string) discord.VoiceStateEvent {
	return discord.VoiceStateEvent{GuildID: testGuildID, UserID: userID, Username: "alice", AfterChannelID: channelID, AfterChannelName: "Camp " + channelID}
}

func leave(userID, channelID string) discord.VoiceStateEvent {
	return discord.VoiceStateEvent{GuildID: testGuildID, UserID: userID, Username: "alice", BeforeChannelID: channelID}
}

func move(userID, from, to string) discord.VoiceStateEvent {
	return discord.VoiceStateEvent{GuildID: testGuildID, UserID: userID, Username: "alice", BeforeChannelID: from, AfterChannelID: to, AfterChannelName: "Camp " + to}
}

func TestHandleVoiceStateUpdate_JoinThenLeavePersistsInterval(t *testing.T) {
	store := newMockStore()
	tr, clock := newTestTracker(t, store)
	start := clock.Now()

	tr.HandleVoiceStateUpdate(join("u1", "vc-a"))
	if tr.OpenSessionCount() != 1 {
		t.Fatalf("expected one open session, got %d", tr.OpenSessionCount())
	}
	clock.Advance(10 * time.Minute)
	tr.HandleVoiceStateUpdate(leave("u1", "vc-a"))

	if len(store.records) != 1 {
		t.Fatalf("expected one persisted record, got %d", len(store.records))
	}
	rec := store.records[0]
	if rec.DurationSec != 600 || !rec.StartTime.Equal(start) || rec.ChannelID != "vc-a" || rec.ChannelName != "Camp vc-a" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if tr.OpenSessionCount() != 0 {
		t.Fatal("expected open session to be removed")
	}
	if got := prom_testutil.ToFloat64(tr.metrics.closed); got != 1 {
		t.Fatalf("expected closed counter 1, got %v", got)
	}
}

func TestHandleVoiceStateUpdate_ShortSessionIsDiscarded(t *testing.T) {
	store := newMockStore()
	tr, clock := newTestTracker(t, store)

	tr.HandleVoiceStateUpdate(join("u1", "vc-a"))
	clock.Advance(4 * time.Second)
	tr.HandleVoiceStateUpdate(leave("u1", "vc-a"))

	if store.closes != 0 {
		t.Fatalf("expected store not to be called, got %d calls", store.closes)
	}
	if tr.OpenSessionCount() != 0 {
		t.Fatal("expected open session to be removed")
	}
	if got := prom_testutil.ToFloat64(tr.metrics.discarded); got != 1 {
		t.Fatalf("expected discarded counter 1, got %v", got)
	}
}

func TestHandleVoiceStateUpdate_ExactlyMinimumIsPersisted(t *testing.T) {
	store := newMockStore()
	tr, clock := newTestTracker(t, store)

	tr.HandleVoiceStateUpdate(join("u1", "vc-a"))
	clock.Advance(5 * time.Second)
	tr.HandleVoiceStateUpdate(leave("u1", "vc-a"))

	if len(store.records) != 1 || store.records[0].DurationSec != 5 {
		t.Fatalf("expected 5s record, got %+v", store.records)
	}
}

func TestHandleVoiceStateUpdate_MoveBetweenTrackedChannelsSplitsInterval(t *testing.T) {
	store := newMockStore()
	tr, clock := newTestTracker(t, store)

	tr.HandleVoiceStateUpdate(join("u1", "vc-a"))
	clock.Advance(time.Minute)
	switchAt := clock.Now()
	tr.HandleVoiceStateUpdate(move("u1", "vc-a", "vc-b"))

	if len(store.records) != 1 || !store.records[0].EndTime.Equal(switchAt) {
		t.Fatalf("expected first interval closed at switch, got %+v", store.records)
	}
	open := tr.OpenSessions()
	if len(open) != 1 || open[0].ChannelID != "vc-b" || !open[0].StartTime.Equal(switchAt) {
		t.Fatalf("expected new interval opened at switch, got %+v", open)
	}
}

func TestHandleVoiceStateUpdate_MoveToUntrackedChannelCloses(t *testing.T) {
	store := newMockStore()
	tr, clock := newTestTracker(t, store)

	tr.HandleVoiceStateUpdate(join("u1", "vc-a"))
	clock.Advance(time.Minute)
	tr.HandleVoiceStateUpdate(move("u1", "vc-a", "vc-other"))

	if len(store.records) != 1 {
		t.Fatalf("expected interval to be closed, got %d records", len(store.records))
	}
	if tr.OpenSessionCount() != 0 {
		t.Fatal("expected no open session in untracked channel")
	}
}

func TestHandleVoiceStateUpdate_IgnoresUntrackedUser(t *testing.T) {
	store := newMockStore()
	tr, _ := newTestTracker(t, store)

	tr.HandleVoiceStateUpdate(join("u2", "vc-a"))
	if tr.OpenSessionCount() != 0 {
		t.Fatal("expected untracked user to be ignored")
	}
}

func TestHandleVoiceStateUpdate_IgnoresOtherGuild(t *testing.T) {
	store := newMockStore()
	tr, _ := newTestTracker(t, store)

	ev := join("u1", "vc-a")
	ev.GuildID = "guild-2"
	tr.HandleVoiceStateUpdate(ev)
	if tr.OpenSessionCount() != 0 {
		t.Fatal("expected event from another guild to be ignored")
	}
}

func TestHandleVoiceStateUpdate_StoreFailureStillRemovesOpenSession(t *testing.T) {
	store := newMockStore()
	store.fail = true
	tr, clock := newTestTracker(t, store)

	tr.HandleVoiceStateUpdate(join("u1", "vc-a"))
	clock.Advance(time.Minute)
	tr.HandleVoiceStateUpdate(leave("u1", "vc-a"))

	if store.closes != 1 {
		t.Fatalf("expected one store attempt, got %d", store.closes)
	}
	if tr.OpenSessionCount() != 0 {
		t.Fatal("expected open session to be removed after store failure")
	}
	if got := prom_testutil.ToFloat64(tr.metrics.lost); got != 1 {
		t.Fatalf("expected lost counter 1, got %v", got)
	}
}

func TestHandleVoiceStateUpdate_UsesTrackedStateAtEventTime(t *testing.T) {
	store := newMockStore()
	tr, clock := newTestTracker(t, store)

	tr.HandleVoiceStateUpdate(join("u1", "vc-a"))
	clock.Advance(time.Minute)
	store.mu.Lock()
	store.channels["vc-a"] = false
	store.mu.Unlock()
	tr.HandleVoiceStateUpdate(leave("u1", "vc-a"))

	if store.closes != 0 {
		t.Fatal("expected disabled channel to suppress the close")
	}
	if tr.OpenSessionCount() != 1 {
		t.Fatal("expected open session to remain when the close did not fire")
	}
}

func TestHandleVoiceStateUpdate_LeaveWithoutOpenSessionIsNoop(t *testing.T) {
	store := newMockStore()
	tr, _ := newTestTracker(t, store)

	tr.HandleVoiceStateUpdate(leave("u1", "vc-a"))
	if store.closes != 0 {
		t.Fatal("expected no store call without an open session")
	}
}

func TestTrackers_DoNotShareState(t *testing.T) {
	first, _ := newTestTracker(t, newMockStore())
	second, _ := newTestTracker(t, newMockStore())

	first.HandleVoiceStateUpdate(join("u1", "vc-a"))
	if second.OpenSessionCount() != 0 {
		t.Fatal("expected independent trackers")
	}
}
