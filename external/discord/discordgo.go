package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/bwmarrin/discordgo"
	discordpkg "github.com/foxseedlab/bonfire/internal/discord"
)

const membersPageLimit = 1000

type Client struct {
	session *discordgo.Session
	guildID string
}

// NewClient prepares a gateway session. Handlers may be registered before
// Connect opens it.
func NewClient(token, guildID string) (discordpkg.Client, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.MakeIntent(
		discordgo.IntentsGuilds | discordgo.IntentsGuildMembers | discordgo.IntentsGuildVoiceStates,
	)
	s.State.TrackVoice = true
	s.State.TrackMembers = true
	// Handlers run on the gateway goroutine in arrival order, so a user's
	// leave is always applied before their next join.
	s.SyncEvents = true
	return &Client{session: s, guildID: guildID}, nil
}

func (c *Client) Connect(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- c.session.Open() }()
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to open discord gateway: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) Close() error {
	if c.session != nil {
		return c.session.Close()
	}
	return nil
}

func (c *Client) RegisterVoiceStateUpdateHandler(handler func(discordpkg.VoiceStateEvent)) {
	c.session.AddHandler(func(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
		if ev, ok := c.toVoiceStateEvent(vs); ok {
			handler(ev)
		}
	})
}

func (c *Client) toVoiceStateEvent(vs *discordgo.VoiceStateUpdate) (discordpkg.VoiceStateEvent, bool) {
	if vs == nil || vs.VoiceState == nil {
		return discordpkg.VoiceStateEvent{}, false
	}
	beforeChannelID := ""
	if vs.BeforeUpdate != nil {
		beforeChannelID = vs.BeforeUpdate.ChannelID
	}
	afterChannelID := vs.ChannelID
	// Mute/deafen toggles arrive as updates without a channel change.
	if beforeChannelID == afterChannelID {
		return discordpkg.VoiceStateEvent{}, false
	}
	if vs.GuildID == "" || vs.UserID == "" {
		return discordpkg.VoiceStateEvent{}, false
	}
	ev := discordpkg.VoiceStateEvent{
		GuildID:         vs.GuildID,
		UserID:          vs.UserID,
		Username:        c.resolveUsername(vs.GuildID, vs.UserID, vs.Member),
		BeforeChannelID: beforeChannelID,
		AfterChannelID:  afterChannelID,
	}
	if afterChannelID != "" {
		ev.AfterChannelName = afterChannelID
		if ch := c.resolveChannel(afterChannelID); ch != nil {
			ev.AfterChannelName = ch.Name
		}
	}
	return ev, true
}

func (c *Client) RegisterSlashCommandHandler(handler func(discordpkg.SlashCommandEvent)) {
	c.session.AddHandler(func(s *discordgo.Session, ic *discordgo.InteractionCreate) {
		if ic == nil || ic.Type != discordgo.InteractionApplicationCommand {
			return
		}
		data := ic.ApplicationCommandData()
		if data.Name == "" || ic.Member == nil || ic.Member.User == nil {
			return
		}
		userID := ic.Member.User.ID
		slog.Info("slash command interaction received", "guild_id", ic.GuildID, "channel_id", ic.ChannelID, "command", data.Name, "user_id", userID)
		handler(discordpkg.SlashCommandEvent{
			GuildID:           ic.GuildID,
			ChannelID:         ic.ChannelID,
			CommandName:       data.Name,
			UserID:            userID,
			UserName:          ic.Member.User.Username,
			RoleNames:         c.roleNames(ic.GuildID, ic.Member.Roles),
			Options:           commandOptions(data.Options),
			ResolvedUserNames: resolvedUserNames(data.Resolved),
			RespondEphemeral: func(content string) error {
				return s.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
					Type: discordgo.InteractionResponseChannelMessageWithSource,
					Data: &discordgo.InteractionResponseData{
						Content: content,
						Flags:   discordgo.MessageFlagsEphemeral,
					},
				})
			},
		})
	})
}

func commandOptions(opts []*discordgo.ApplicationCommandInteractionDataOption) map[string]string {
	out := make(map[string]string, len(opts))
	for _, o := range opts {
		if o == nil {
			continue
		}
		switch o.Type {
		case discordgo.ApplicationCommandOptionString:
			out[o.Name] = o.StringValue()
		case discordgo.ApplicationCommandOptionUser:
			out[o.Name] = fmt.Sprint(o.Value)
		}
	}
	return out
}

func resolvedUserNames(r *discordgo.ApplicationCommandInteractionDataResolved) map[string]string {
	out := make(map[string]string)
	if r == nil {
		return out
	}
	for id, u := range r.Users {
		if u != nil {
			out[id] = u.Username
		}
	}
	return out
}

func (c *Client) RegisterMemberUpdateHandler(handler func(discordpkg.MemberUpdateEvent)) {
	c.session.AddHandler(func(s *discordgo.Session, mu *discordgo.GuildMemberUpdate) {
		if ev, ok := toMemberUpdateEvent(mu); ok {
			handler(ev)
		}
	})
}

// toMemberUpdateEvent only reports nickname changes, and only when the
// previous member state was cached.
func toMemberUpdateEvent(mu *discordgo.GuildMemberUpdate) (discordpkg.MemberUpdateEvent, bool) {
	if mu == nil || mu.Member == nil || mu.User == nil || mu.BeforeUpdate == nil {
		return discordpkg.MemberUpdateEvent{}, false
	}
	if mu.BeforeUpdate.Nick == mu.Nick {
		return discordpkg.MemberUpdateEvent{}, false
	}
	nameOr := func(nick string) string {
		if nick != "" {
			return nick
		}
		return mu.User.Username
	}
	return discordpkg.MemberUpdateEvent{
		GuildID:    mu.GuildID,
		UserID:     mu.User.ID,
		BeforeName: nameOr(mu.BeforeUpdate.Nick),
		AfterName:  nameOr(mu.Nick),
	}, true
}

func (c *Client) UpsertGuildSlashCommands(guildID string, defs []discordpkg.SlashCommandDefinition) error {
	appID := c.applicationID()
	if appID == "" {
		return fmt.Errorf("discord application id is not available")
	}
	existing, err := c.session.ApplicationCommands(appID, guildID)
	if err != nil {
		return err
	}
	existingByName := make(map[string]*discordgo.ApplicationCommand, len(existing))
	for _, cmd := range existing {
		if cmd == nil || cmd.Name == "" {
			continue
		}
		existingByName[cmd.Name] = cmd
	}
	for _, def := range defs {
		if err := c.upsertGuildSlashCommand(appID, guildID, def, existingByName); err != nil {
			return fmt.Errorf("upsert command %q: %w", def.Name, err)
		}
	}
	return nil
}

func (c *Client) upsertGuildSlashCommand(appID, guildID string, def discordpkg.SlashCommandDefinition, existingByName map[string]*discordgo.ApplicationCommand) error {
	if def.Name == "" {
		return nil
	}
	payload := toApplicationCommand(def)
	cmd, ok := existingByName[def.Name]
	if !ok {
		_, err := c.session.ApplicationCommandCreate(appID, guildID, payload)
		return err
	}
	if sameCommand(cmd, payload) {
		return nil
	}
	_, err := c.session.ApplicationCommandEdit(appID, guildID, cmd.ID, payload)
	return err
}

func toApplicationCommand(def discordpkg.SlashCommandDefinition) *discordgo.ApplicationCommand {
	cmd := &discordgo.ApplicationCommand{
		Name:        def.Name,
		Description: def.Description,
	}
	for _, o := range def.Options {
		optType := discordgo.ApplicationCommandOptionString
		if o.Type == discordpkg.OptionUser {
			optType = discordgo.ApplicationCommandOptionUser
		}
		cmd.Options = append(cmd.Options, &discordgo.ApplicationCommandOption{
			Type:        optType,
			Name:        o.Name,
			Description: o.Description,
			Required:    o.Required,
		})
	}
	return cmd
}

func sameCommand(existing, want *discordgo.ApplicationCommand) bool {
	if existing.Description != want.Description || len(existing.Options) != len(want.Options) {
		return false
	}
	for i, o := range want.Options {
		e := existing.Options[i]
		if e == nil || e.Name != o.Name || e.Type != o.Type || e.Description != o.Description || e.Required != o.Required {
			return false
		}
	}
	return true
}

func (c *Client) ListMembers(ctx context.Context) ([]discordpkg.Member, error) {
	if c.session == nil {
		return nil, errors.New("discord session is not initialized")
	}
	roles, err := c.guildRoles()
	if err != nil {
		return nil, err
	}
	var (
		members []discordpkg.Member
		after   string
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := c.session.GuildMembers(c.guildID, after, membersPageLimit)
		if err != nil {
			return nil, fmt.Errorf("list guild members: %w", err)
		}
		for _, m := range page {
			if m == nil || m.User == nil {
				continue
			}
			members = append(members, toMember(m, roles))
			after = m.User.ID
		}
		if len(page) < membersPageLimit {
			return members, nil
		}
	}
}

func (c *Client) ListVoiceChannels(ctx context.Context) ([]discordpkg.VoiceChannel, error) {
	_ = ctx
	if c.session == nil {
		return nil, errors.New("discord session is not initialized")
	}
	channels, err := c.session.GuildChannels(c.guildID)
	if err != nil {
		return nil, fmt.Errorf("list guild channels: %w", err)
	}
	out := make([]discordpkg.VoiceChannel, 0, len(channels))
	for _, ch := range channels {
		if ch == nil || ch.Type != discordgo.ChannelTypeGuildVoice {
			continue
		}
		out = append(out, discordpkg.VoiceChannel{ID: ch.ID, Name: ch.Name})
	}
	return out, nil
}

func (c *Client) GetMember(ctx context.Context, userID string) (discordpkg.Member, error) {
	_ = ctx
	if c.session == nil {
		return discordpkg.Member{}, errors.New("discord session is not initialized")
	}
	roles, err := c.guildRoles()
	if err != nil {
		return discordpkg.Member{}, err
	}
	m, err := c.resolveGuildMember(c.guildID, userID)
	if err != nil {
		if isRESTNotFound(err) {
			return discordpkg.Member{}, discordpkg.ErrMemberNotFound
		}
		return discordpkg.Member{}, fmt.Errorf("fetch guild member: %w", err)
	}
	if m == nil || m.User == nil {
		return discordpkg.Member{}, discordpkg.ErrMemberNotFound
	}
	return toMember(m, roles), nil
}

func (c *Client) SendDirectMessage(userID, content string) error {
	if c.session == nil {
		return errors.New("discord session is not initialized")
	}
	ch, err := c.session.UserChannelCreate(userID)
	if err != nil {
		return fmt.Errorf("open dm channel: %w", err)
	}
	_, err = c.session.ChannelMessageSend(ch.ID, content)
	return err
}

func (c *Client) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func toMember(m *discordgo.Member, roles map[string]*discordgo.Role) discordpkg.Member {
	out := discordpkg.Member{
		ID:          m.User.ID,
		Username:    m.User.Username,
		DisplayName: preferredDiscordName(m.Nick, preferredDiscordName(m.User.GlobalName, m.User.Username, m.User.ID), m.User.ID),
		Nickname:    m.Nick,
	}
	for _, id := range m.Roles {
		r, ok := roles[id]
		if !ok || r == nil {
			continue
		}
		out.Roles = append(out.Roles, discordpkg.Role{ID: r.ID, Name: r.Name, Position: r.Position})
	}
	return out
}

func (c *Client) guildRoles() (map[string]*discordgo.Role, error) {
	var list []*discordgo.Role
	if c.session.State != nil {
		if guild, err := c.session.State.Guild(c.guildID); err == nil && guild != nil && len(guild.Roles) > 0 {
			list = guild.Roles
		}
	}
	if list == nil {
		fetched, err := c.session.GuildRoles(c.guildID)
		if err != nil {
			return nil, fmt.Errorf("list guild roles: %w", err)
		}
		list = fetched
	}
	roles := make(map[string]*discordgo.Role, len(list))
	for _, r := range list {
		if r != nil {
			roles[r.ID] = r
		}
	}
	return roles, nil
}

func (c *Client) roleNames(guildID string, roleIDs []string) []string {
	if guildID != c.guildID {
		return nil
	}
	roles, err := c.guildRoles()
	if err != nil {
		slog.Warn("failed to resolve invoker roles", "guild_id", guildID, "error", err)
		return nil
	}
	names := make([]string, 0, len(roleIDs))
	for _, id := range roleIDs {
		if r, ok := roles[id]; ok {
			names = append(names, r.Name)
		}
	}
	return names
}

func (c *Client) resolveUsername(guildID, userID string, member *discordgo.Member) string {
	if member != nil && member.User != nil && member.User.Username != "" {
		return member.User.Username
	}
	m, err := c.resolveGuildMember(guildID, userID)
	if err != nil {
		if !isRESTNotFound(err) {
			slog.Warn("failed to fetch guild member", "guild_id", guildID, "user_id", userID, "error", err)
		}
		return userID
	}
	if m != nil && m.User != nil {
		return m.User.Username
	}
	return userID
}

func (c *Client) resolveChannel(channelID string) *discordgo.Channel {
	if c.session == nil {
		return nil
	}
	if c.session.State != nil {
		channel, err := c.session.State.Channel(channelID)
		if err == nil && channel != nil && channel.Name != "" {
			return channel
		}
	}
	channel, err := c.session.Channel(channelID)
	if err != nil || channel == nil || channel.Name == "" {
		return nil
	}
	return channel
}

// resolveGuildMember reads the state cache, then REST. A missing member is a
// REST 404 error.
func (c *Client) resolveGuildMember(guildID, userID string) (*discordgo.Member, error) {
	if c.session == nil {
		return nil, errors.New("discord session is not initialized")
	}
	if c.session.State != nil {
		member, err := c.session.State.Member(guildID, userID)
		if err == nil && member != nil {
			return member, nil
		}
	}
	member, err := c.session.GuildMember(guildID, userID)
	if err != nil {
		return nil, err
	}
	return member, nil
}

func isRESTNotFound(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	if restErr.Response == nil {
		return false
	}
	return restErr.Response.StatusCode == http.StatusNotFound
}

func preferredDiscordName(globalName, username, fallback string) string {
	if globalName != "" {
		return globalName
	}
	if username != "" {
		return username
	}
	return fallback
}

func (c *Client) applicationID() string {
	if c.session == nil || c.session.State == nil {
		return ""
	}
	if c.session.State.Application != nil && c.session.State.Application.ID != "" {
		return c.session.State.Application.ID
	}
	if c.session.State.User != nil {
		return c.session.State.User.ID
	}
	return ""
}
