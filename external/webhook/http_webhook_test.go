package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/foxseedlab/bonfire/internal/webhook"
)

func testEvent() webhook.AuditEvent {
	return webhook.AuditEvent{
		Kind:       webhook.KindNicknameChange,
		UserID:     "u1",
		Message:    "[nick] alice → Ali (u1)",
		OccurredAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestSendAuditEvent_EmptyWebhookURL(t *testing.T) {
	sender := NewHTTPSender("")
	if err := sender.SendAuditEvent(context.Background(), testEvent()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestSendAuditEvent_Success(t *testing.T) {
	var got webhook.AuditEvent

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Fatalf("unexpected content type: %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	sender := NewHTTPSender(server.URL)
	if err := sender.SendAuditEvent(context.Background(), testEvent()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	want := testEvent()
	if got.Kind != want.Kind || got.UserID != want.UserID || got.Message != want.Message || !got.OccurredAt.Equal(want.OccurredAt) {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestSendAuditEvent_Non2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	sender := NewHTTPSender(server.URL)
	if err := sender.SendAuditEvent(context.Background(), testEvent()); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}
