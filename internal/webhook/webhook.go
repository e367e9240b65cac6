package webhook

import (
	"context"
	"time"
)

const (
	KindNicknameChange = "nickname_change"
	KindDeniedCommand  = "denied_command"
)

type AuditEvent struct {
	Kind       string    `json:"kind"`
	UserID     string    `json:"user_id"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Sender interface {
	SendAuditEvent(ctx context.Context, event AuditEvent) error
}
