// Package notes stores moderator notes about members and serves them back
// with the author hidden from readers who may not see it.
package notes

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/foxseedlab/bonfire/internal/access"
	"github.com/foxseedlab/bonfire/internal/repository"
)

const (
	ReasonMissingField = "missing_field"
	ReasonStoreError   = "store_error"
)

type Store interface {
	InsertNote(ctx context.Context, note repository.ScarNote) bool
	ListNotes(ctx context.Context) []repository.ScarNote
}

type NoteInput struct {
	TargetUserID   string `json:"target_user_id"`
	TargetUsername string `json:"target_username"`
	Content        string `json:"content"`
	AddedByID      string `json:"added_by_id"`
	AddedByName    string `json:"added_by_name"`
}

type SubmitResult struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}

type FeedEntry struct {
	ID             int64     `json:"id"`
	TargetUserID   string    `json:"target_user_id"`
	TargetUsername string    `json:"target_username"`
	Content        string    `json:"content"`
	AddedByID      string    `json:"added_by_id,omitempty"`
	AddedByName    string    `json:"added_by_name,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type Feed struct {
	HasAccess      bool        `json:"has_access"`
	MayDeanonymize bool        `json:"may_deanonymize"`
	Notes          []FeedEntry `json:"notes"`
}

type Service struct {
	store Store
	gate  *access.Gate
}

func NewService(store Store, gate *access.Gate) *Service {
	return &Service{store: store, gate: gate}
}

func (s *Service) Submit(ctx context.Context, in NoteInput) SubmitResult {
	note := repository.ScarNote{
		TargetUserID:   strings.TrimSpace(in.TargetUserID),
		TargetUsername: strings.TrimSpace(in.TargetUsername),
		Content:        strings.TrimSpace(in.Content),
		AddedByID:      strings.TrimSpace(in.AddedByID),
		AddedByName:    strings.TrimSpace(in.AddedByName),
	}
	for _, v := range []string{note.TargetUserID, note.TargetUsername, note.Content, note.AddedByID, note.AddedByName} {
		if v == "" {
			return SubmitResult{Reason: ReasonMissingField}
		}
	}
	if !s.store.InsertNote(ctx, note) {
		return SubmitResult{Reason: ReasonStoreError}
	}
	slog.Info("note recorded", "target_user_id", note.TargetUserID, "added_by_id", note.AddedByID)
	return SubmitResult{Success: true}
}

// Feed returns every note, newest first, for a reader holding roles.
func (s *Service) Feed(ctx context.Context, roles access.RoleSet) Feed {
	hasAccess, mayDeanonymize := s.gate.CanView(roles)
	if !hasAccess {
		return Feed{}
	}
	list := s.store.ListNotes(ctx)
	feed := Feed{HasAccess: true, MayDeanonymize: mayDeanonymize, Notes: make([]FeedEntry, 0, len(list))}
	for _, n := range list {
		e := FeedEntry{
			ID:             n.ID,
			TargetUserID:   n.TargetUserID,
			TargetUsername: n.TargetUsername,
			Content:        n.Content,
			CreatedAt:      n.CreatedAt,
		}
		if mayDeanonymize {
			e.AddedByID = n.AddedByID
			e.AddedByName = n.AddedByName
		}
		feed.Notes = append(feed.Notes, e)
	}
	return feed
}
