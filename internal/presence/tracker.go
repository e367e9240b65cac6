// Package presence turns voice channel changes into closed occupancy
// intervals.
//
// A user is either absent or present with exactly one open interval. Leaving
// a tracked channel closes the interval and hands it to the store; entering a
// tracked channel opens a new one. Moving between two tracked channels is a
// close and an open at the same instant. Tracked state is read at event time,
// so disabling a channel or untracking a user takes effect on the next event.
package presence

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/foxseedlab/bonfire/internal/discord"
	"github.com/foxseedlab/bonfire/internal/repository"
	"github.com/prometheus/client_golang/prometheus"
)

// Store is the slice of the session store the tracker depends on.
type Store interface {
	IsTrackedUser(ctx context.Context, userID string) bool
	IsTrackedChannel(ctx context.Context, channelID string) bool
	CloseOrInsertSession(ctx context.Context, record repository.SessionRecord) bool
}

type OpenSession struct {
	UserID      string
	Username    string
	StartTime   time.Time
	ChannelID   string
	ChannelName string
}

type Tracker struct {
	store   Store
	clock   quartz.Clock
	loc     *time.Location
	guildID string
	metrics *metrics

	mu   sync.Mutex
	open map[string]OpenSession
}

type metrics struct {
	opened    prometheus.Counter
	closed    prometheus.Counter
	discarded prometheus.Counter
	lost      prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	counter := func(name string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bonfire", Subsystem: "presence", Name: name,
		})
	}
	m := &metrics{
		opened:    counter("sessions_opened_total"),
		closed:    counter("sessions_closed_total"),
		discarded: counter("sessions_discarded_total"),
		lost:      counter("sessions_lost_total"),
	}
	if reg != nil {
		reg.MustRegister(m.opened, m.closed, m.discarded, m.lost)
	}
	return m
}

// NewTracker builds a tracker that only reacts to events from guildID. An
// empty guildID accepts every guild.
func NewTracker(store Store, clock quartz.Clock, loc *time.Location, guildID string, reg prometheus.Registerer) *Tracker {
	if loc == nil {
		loc = time.UTC
	}
	return &Tracker{
		store:   store,
		clock:   clock,
		loc:     loc,
		guildID: guildID,
		metrics: newMetrics(reg),
		open:    make(map[string]OpenSession),
	}
}

func (t *Tracker) HandleVoiceStateUpdate(event discord.VoiceStateEvent) {
	if t.guildID != "" && event.GuildID != t.guildID {
		slog.Debug("ignoring voice event for different guild", "event_guild_id", event.GuildID)
		return
	}
	if event.BeforeChannelID == event.AfterChannelID {
		return
	}
	ctx := context.Background()

	beforeTracked := event.BeforeChannelID != "" && t.store.IsTrackedChannel(ctx, event.BeforeChannelID)
	afterTracked := event.AfterChannelID != "" && t.store.IsTrackedChannel(ctx, event.AfterChannelID)
	if !beforeTracked && !afterTracked {
		return
	}
	if !t.store.IsTrackedUser(ctx, event.UserID) {
		return
	}
	now := t.clock.Now().In(t.loc)

	t.mu.Lock()
	defer t.mu.Unlock()

	if beforeTracked {
		t.closeLocked(ctx, event, now)
	}
	if afterTracked {
		t.openLocked(event, now)
	}
}

func (t *Tracker) closeLocked(ctx context.Context, event discord.VoiceStateEvent, now time.Time) {
	session, ok := t.open[event.UserID]
	if !ok {
		slog.Debug("no open session to close", "user_id", event.UserID, "channel_id", event.BeforeChannelID)
		return
	}
	delete(t.open, event.UserID)

	if now.Sub(session.StartTime) < repository.MinSessionDuration {
		t.metrics.discarded.Inc()
		slog.Debug("discarding short session", "user_id", event.UserID, "channel_id", session.ChannelID)
		return
	}
	username := event.Username
	if username == "" {
		username = session.Username
	}
	record := repository.SessionRecord{
		UserID:      event.UserID,
		Username:    username,
		ChannelID:   session.ChannelID,
		ChannelName: session.ChannelName,
		StartTime:   session.StartTime,
		EndTime:     now,
		DurationSec: repository.SessionDuration(session.StartTime, now),
	}
	if !t.store.CloseOrInsertSession(ctx, record) {
		t.metrics.lost.Inc()
		slog.Warn("session could not be persisted and is dropped", "user_id", event.UserID, "channel_id", session.ChannelID, "start_time", session.StartTime)
		return
	}
	t.metrics.closed.Inc()
	slog.Info("session closed", "user_id", event.UserID, "username", username, "channel_name", session.ChannelName, "duration_sec", record.DurationSec)
}

func (t *Tracker) openLocked(event discord.VoiceStateEvent, now time.Time) {
	if prev, ok := t.open[event.UserID]; ok {
		slog.Warn("replacing unclosed session", "user_id", event.UserID, "channel_id", prev.ChannelID, "start_time", prev.StartTime)
		t.metrics.lost.Inc()
	}
	t.open[event.UserID] = OpenSession{
		UserID:      event.UserID,
		Username:    event.Username,
		StartTime:   now,
		ChannelID:   event.AfterChannelID,
		ChannelName: event.AfterChannelName,
	}
	t.metrics.opened.Inc()
	slog.Info("session opened", "user_id", event.UserID, "username", event.Username, "channel_name", event.AfterChannelName)
}

// OpenSessions returns a copy of the open table ordered by start time.
func (t *Tracker) OpenSessions() []OpenSession {
	t.mu.Lock()
	out := make([]OpenSession, 0, len(t.open))
	for _, s := range t.open {
		out = append(out, s)
	}
	t.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].UserID < out[j].UserID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

func (t *Tracker) OpenSessionCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.open)
}
