package repository

import (
	"context"
	"time"
)

// Store failures never cross this interface: implementations log them and
// report the zero result, so callers treat a failed write as "no effect".

type TrackedEntityRepository interface {
	IsTrackedUser(ctx context.Context, userID string) bool
	IsTrackedChannel(ctx context.Context, channelID string) bool
	UpsertTrackedUser(ctx context.Context, user TrackedUser) bool
	UpsertTrackedChannel(ctx context.Context, channel TrackedChannel) bool
	ListTrackedUsers(ctx context.Context) []TrackedUser
	ListTrackedChannels(ctx context.Context) []TrackedChannel
	DeleteTrackedUser(ctx context.Context, userID string) bool
	DisableTrackedChannel(ctx context.Context, channelID string) bool
}

type SessionRecordRepository interface {
	FindOpenRecordKey(ctx context.Context, userID string, startTime time.Time) (int64, bool)
	CloseOrInsertSession(ctx context.Context, record SessionRecord) bool
	QueryRecords(ctx context.Context, filter RecordFilter) []SessionRecord
	QueryHeatmapRecords(ctx context.Context, since time.Time) []SessionRecord
	ListRecordedUsers(ctx context.Context) []RecordedUser
}

type NoteRepository interface {
	InsertNote(ctx context.Context, note ScarNote) bool
	ListNotes(ctx context.Context) []ScarNote
}

type Repository interface {
	TrackedEntityRepository
	SessionRecordRepository
	NoteRepository
}
