// Package commands answers the guild's slash commands and raises audit
// alerts for denied note attempts and nickname changes.
package commands

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/foxseedlab/bonfire/internal/access"
	"github.com/foxseedlab/bonfire/internal/discord"
	"github.com/foxseedlab/bonfire/internal/notes"
	"github.com/foxseedlab/bonfire/internal/webhook"
)

const alertTimeout = 10 * time.Second

type DirectMessenger interface {
	SendDirectMessage(userID, content string) error
}

type NoteSubmitter interface {
	Submit(ctx context.Context, in notes.NoteInput) notes.SubmitResult
}

type LinkIssuer interface {
	Link(uid string) (string, error)
}

type Settings struct {
	GuildID       string
	PublicBaseURL string
	AlertUserID   string
	Location      *time.Location
}

type Handler struct {
	settings Settings
	catalog  access.RoleCatalog
	gate     *access.Gate
	notes    NoteSubmitter
	links    LinkIssuer
	dm       DirectMessenger
	audit    webhook.Sender
	clock    quartz.Clock

	// pending tracks note writes and alerts running off the gateway
	// dispatch goroutine.
	pending sync.WaitGroup
}

func NewHandler(settings Settings, catalog access.RoleCatalog, notes NoteSubmitter, links LinkIssuer, dm DirectMessenger, audit webhook.Sender, clock quartz.Clock) *Handler {
	if settings.Location == nil {
		settings.Location = time.UTC
	}
	return &Handler{
		settings: settings,
		catalog:  catalog,
		gate:     access.NewGate(catalog),
		notes:    notes,
		links:    links,
		dm:       dm,
		audit:    audit,
		clock:    clock,
	}
}

func SlashCommandDefinitions() []discord.SlashCommandDefinition {
	return []discord.SlashCommandDefinition{
		{Name: commandBonfire, Description: slashCommandBonfireDescription},
		{
			Name:        commandScarTheEmber,
			Description: slashCommandScarDescription,
			Options: []discord.SlashCommandOption{
				{Name: optionTarget, Description: optionTargetDescription, Type: discord.OptionUser, Required: true},
				{Name: optionNote, Description: optionNoteDescription, Type: discord.OptionString, Required: true},
			},
		},
		{Name: commandScars, Description: slashCommandScarsDescription},
	}
}

func CommandNames() []string {
	defs := SlashCommandDefinitions()
	names := make([]string, 0, len(defs))
	for _, d := range defs {
		names = append(names, d.Name)
	}
	return names
}

func (h *Handler) HandleSlashCommand(event discord.SlashCommandEvent) {
	if event.GuildID != h.settings.GuildID {
		h.respond(event, messageEphemeralWrongGuild)
		return
	}
	roles := access.NewRoleSet(event.RoleNames...)
	switch event.CommandName {
	case commandBonfire:
		h.handleBonfire(event, roles)
	case commandScarTheEmber:
		h.handleScarTheEmber(event, roles)
	case commandScars:
		h.handleScars(event, roles)
	default:
		h.respond(event, messageEphemeralUnknownCommand)
	}
}

func (h *Handler) handleBonfire(event discord.SlashCommandEvent, roles access.RoleSet) {
	if !h.gate.CanRequestDashboardLink(roles) {
		h.respond(event, dashboardDenied(h.catalog.SecondTier))
		return
	}
	if h.settings.PublicBaseURL == "" {
		h.respond(event, messageEphemeralLinkMissing)
		return
	}
	h.respond(event, bonfireLink(h.settings.PublicBaseURL))
}

func (h *Handler) handleScarTheEmber(event discord.SlashCommandEvent, roles access.RoleSet) {
	targetID := event.Options[optionTarget]
	targetName := event.ResolvedUserNames[targetID]
	if targetName == "" {
		targetName = targetID
	}
	note := strings.TrimSpace(event.Options[optionNote])

	if !h.gate.CanWriteNotes(roles) {
		h.respond(event, noteDenied(h.catalog.ElevatedModerator))
		at := h.clock.Now().In(h.settings.Location)
		h.alert(webhook.KindDeniedCommand, event.UserID,
			deniedAttempt(event.UserName, event.UserID, targetName, note, h.catalog.ElevatedModerator, at))
		return
	}
	if targetID == "" || note == "" {
		h.respond(event, messageEphemeralNoteMissing)
		return
	}

	in := notes.NoteInput{
		TargetUserID:   targetID,
		TargetUsername: targetName,
		Content:        note,
		AddedByID:      event.UserID,
		AddedByName:    event.UserName,
	}
	h.background(func() {
		ctx, cancel := context.WithTimeout(context.Background(), alertTimeout)
		defer cancel()
		res := h.notes.Submit(ctx, in)
		if !res.Success {
			slog.Warn("failed to record note from slash command", "user_id", event.UserID, "reason", res.Reason)
			h.respond(event, messageEphemeralNoteFailed)
			return
		}
		h.respond(event, messageEphemeralNoteRecorded)
	})
}

func (h *Handler) handleScars(event discord.SlashCommandEvent, roles access.RoleSet) {
	if ok, _ := h.gate.CanView(roles); !ok {
		h.respond(event, messageEphemeralNoViewAccess)
		return
	}
	link, err := h.links.Link(event.UserID)
	if err != nil {
		if !errors.Is(err, notes.ErrNoBaseURL) {
			slog.Error("failed to issue notes link", "user_id", event.UserID, "error", err)
		}
		h.respond(event, messageEphemeralLinkMissing)
		return
	}
	h.respond(event, link)
}

func (h *Handler) HandleMemberUpdate(event discord.MemberUpdateEvent) {
	if event.GuildID != h.settings.GuildID {
		return
	}
	msg := nicknameChange(event.BeforeName, event.AfterName, event.UserID)
	slog.Info("member nickname changed", "user_id", event.UserID, "before", event.BeforeName, "after", event.AfterName)
	h.alert(webhook.KindNicknameChange, event.UserID, msg)
}

// alert queues delivery of msg to the alert recipient by DM and to the audit
// webhook. Delivery failures are logged only.
func (h *Handler) alert(kind, userID, msg string) {
	occurredAt := h.clock.Now()
	h.background(func() { h.deliverAlert(kind, userID, msg, occurredAt) })
}

func (h *Handler) deliverAlert(kind, userID, msg string, occurredAt time.Time) {
	if h.settings.AlertUserID != "" {
		if err := h.dm.SendDirectMessage(h.settings.AlertUserID, msg); err != nil {
			slog.Error("failed to send alert direct message", "kind", kind, "alert_user_id", h.settings.AlertUserID, "error", err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), alertTimeout)
	defer cancel()
	err := h.audit.SendAuditEvent(ctx, webhook.AuditEvent{
		Kind:       kind,
		UserID:     userID,
		Message:    msg,
		OccurredAt: occurredAt,
	})
	if err != nil {
		slog.Error("failed to send audit webhook", "kind", kind, "error", err)
	}
}

// background runs fn off the caller's goroutine. Gateway events share one
// dispatch goroutine, so REST and store calls must not hold it.
func (h *Handler) background(fn func()) {
	h.pending.Add(1)
	go func() {
		defer h.pending.Done()
		fn()
	}()
}

// Wait blocks until queued note writes and alerts have finished.
func (h *Handler) Wait() {
	h.pending.Wait()
}

func (h *Handler) respond(event discord.SlashCommandEvent, content string) {
	if event.RespondEphemeral == nil {
		return
	}
	if err := event.RespondEphemeral(content); err != nil {
		slog.Error("failed to respond to slash command", "command", event.CommandName, "user_id", event.UserID, "error", err)
	}
}
