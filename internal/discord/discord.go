package discord

import (
	"context"
	"errors"
	"sort"
)

const everyoneRoleName = "@everyone"

var ErrMemberNotFound = errors.New("discord member not found")

type SlashCommandOptionType int

const (
	OptionString SlashCommandOptionType = iota + 1
	OptionUser
)

type SlashCommandOption struct {
	Name        string
	Description string
	Type        SlashCommandOptionType
	Required    bool
}

type SlashCommandDefinition struct {
	Name        string
	Description string
	Options     []SlashCommandOption
}

type SlashCommandEvent struct {
	GuildID     string
	ChannelID   string
	CommandName string
	UserID      string
	UserName    string
	RoleNames   []string
	// Options holds string and user options by name; user options carry the
	// user id.
	Options map[string]string
	// ResolvedUserNames maps user option ids to their display names.
	ResolvedUserNames map[string]string
	RespondEphemeral  func(content string) error
}

type VoiceStateEvent struct {
	GuildID          string
	UserID           string
	Username         string
	BeforeChannelID  string
	AfterChannelID   string
	AfterChannelName string
}

// MemberUpdateEvent reports a guild nickname change. Both names fall back to
// the account username when no nickname is set.
type MemberUpdateEvent struct {
	GuildID    string
	UserID     string
	BeforeName string
	AfterName  string
}

type Role struct {
	ID       string
	Name     string
	Position int
}

type Member struct {
	ID       string
	Username string
	// DisplayName is what the guild shows: nickname, then global name, then
	// username.
	DisplayName string
	Nickname    string
	Roles       []Role
}

// HighestRoleName is the name of the highest-positioned role other than
// @everyone, or "" when the member has none.
func (m Member) HighestRoleName() string {
	roles := make([]Role, 0, len(m.Roles))
	for _, r := range m.Roles {
		if r.Name == everyoneRoleName {
			continue
		}
		roles = append(roles, r)
	}
	if len(roles) == 0 {
		return ""
	}
	sort.SliceStable(roles, func(i, j int) bool { return roles[i].Position > roles[j].Position })
	return roles[0].Name
}

func (m Member) RoleNames() []string {
	names := make([]string, 0, len(m.Roles))
	for _, r := range m.Roles {
		if r.Name == everyoneRoleName {
			continue
		}
		names = append(names, r.Name)
	}
	return names
}

type VoiceChannel struct {
	ID   string
	Name string
}

type Client interface {
	Connect(ctx context.Context) error
	Close() error
	RegisterVoiceStateUpdateHandler(handler func(VoiceStateEvent))
	RegisterSlashCommandHandler(handler func(SlashCommandEvent))
	RegisterMemberUpdateHandler(handler func(MemberUpdateEvent))
	UpsertGuildSlashCommands(guildID string, defs []SlashCommandDefinition) error
	ListMembers(ctx context.Context) ([]Member, error)
	ListVoiceChannels(ctx context.Context) ([]VoiceChannel, error)
	GetMember(ctx context.Context, userID string) (Member, error)
	SendDirectMessage(userID, content string) error
	Run(ctx context.Context) error
}
