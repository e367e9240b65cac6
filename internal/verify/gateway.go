// Package verify registers members and voice channels for tracking by name.
package verify

import (
	"context"
	"log/slog"
	"strings"

	"github.com/foxseedlab/bonfire/internal/discord"
	"github.com/foxseedlab/bonfire/internal/repository"
)

const (
	ReasonNoName     = "no_name"
	ReasonNotFound   = "not_found"
	ReasonStoreError = "store_error"
	ReasonNotReady   = "bot_not_ready"
)

// Directory lists the guild's current members and voice channels. An error
// means the bot is not connected yet.
type Directory interface {
	ListMembers(ctx context.Context) ([]discord.Member, error)
	ListVoiceChannels(ctx context.Context) ([]discord.VoiceChannel, error)
}

type Registrar interface {
	UpsertTrackedUser(ctx context.Context, user repository.TrackedUser) bool
	UpsertTrackedChannel(ctx context.Context, channel repository.TrackedChannel) bool
}

type Result struct {
	Success bool
	ID      string
	Reason  string
}

type Gateway struct {
	directory Directory
	store     Registrar
}

func NewGateway(directory Directory, store Registrar) *Gateway {
	return &Gateway{directory: directory, store: store}
}

// VerifyAndRegisterUser matches name against account usernames first and
// guild nicknames second.
func (g *Gateway) VerifyAndRegisterUser(ctx context.Context, name string) Result {
	name = strings.TrimSpace(name)
	if name == "" {
		return Result{Reason: ReasonNoName}
	}
	members, err := g.directory.ListMembers(ctx)
	if err != nil {
		slog.Error("failed to list guild members", "error", err)
		return Result{Reason: ReasonNotReady}
	}
	member, ok := findMember(members, name)
	if !ok {
		slog.Info("verify user: no member matched", "name", name)
		return Result{Reason: ReasonNotFound}
	}
	ok = g.store.UpsertTrackedUser(ctx, repository.TrackedUser{
		UserID:   member.ID,
		Username: member.Username,
		Nickname: member.Nickname,
		RoleName: member.HighestRoleName(),
	})
	if !ok {
		return Result{Reason: ReasonStoreError}
	}
	slog.Info("tracked user registered", "user_id", member.ID, "username", member.Username)
	return Result{Success: true, ID: member.ID}
}

func findMember(members []discord.Member, name string) (discord.Member, bool) {
	for _, m := range members {
		if m.Username == name {
			return m, true
		}
	}
	for _, m := range members {
		if m.Nickname != "" && m.Nickname == name {
			return m, true
		}
	}
	return discord.Member{}, false
}

// VerifyAndRegisterChannel registers a voice channel by exact name and
// re-enables it if it was disabled.
func (g *Gateway) VerifyAndRegisterChannel(ctx context.Context, name string) Result {
	name = strings.TrimSpace(name)
	if name == "" {
		return Result{Reason: ReasonNoName}
	}
	channels, err := g.directory.ListVoiceChannels(ctx)
	if err != nil {
		slog.Error("failed to list voice channels", "error", err)
		return Result{Reason: ReasonNotReady}
	}
	for _, ch := range channels {
		if ch.Name != name {
			continue
		}
		if !g.store.UpsertTrackedChannel(ctx, repository.TrackedChannel{ChannelID: ch.ID, Name: ch.Name, Enabled: true}) {
			return Result{Reason: ReasonStoreError}
		}
		slog.Info("tracked channel registered", "channel_id", ch.ID, "channel_name", ch.Name)
		return Result{Success: true, ID: ch.ID}
	}
	slog.Info("verify channel: no voice channel matched", "name", name)
	return Result{Reason: ReasonNotFound}
}
