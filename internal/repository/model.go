package repository

import "time"

// MinSessionDuration is the shortest interval worth persisting. Shorter
// intervals are dropped before they reach the database.
const MinSessionDuration = 5 * time.Second

type TrackedUser struct {
	UserID   string
	Username string
	Nickname string
	RoleName string
}

type TrackedChannel struct {
	ChannelID string
	Name      string
	Enabled   bool
}

type SessionRecord struct {
	ID          int64
	UserID      string
	Username    string
	ChannelID   string
	ChannelName string
	StartTime   time.Time
	EndTime     time.Time
	DurationSec int64
	CreatedAt   time.Time

	// Nickname is only populated by QueryHeatmapRecords.
	Nickname string
}

// DisplayName is the name the heatmap counts a participant under.
func (r SessionRecord) DisplayName() string {
	if r.Nickname != "" {
		return r.Nickname
	}
	return r.Username
}

type RecordedUser struct {
	UserID   string
	Username string
}

type ScarNote struct {
	ID             int64
	TargetUserID   string
	TargetUsername string
	Content        string
	AddedByID      string
	AddedByName    string
	CreatedAt      time.Time
}

// RecordFilter narrows QueryRecords. Zero fields do not filter.
type RecordFilter struct {
	UserID string
	Since  time.Time
	Until  time.Time
}

// SessionDuration is the whole-second length of an interval.
func SessionDuration(start, end time.Time) int64 {
	return int64(end.Sub(start) / time.Second)
}
