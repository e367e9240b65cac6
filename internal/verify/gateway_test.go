package verify

import (
	"context"
	"errors"
	"testing"

	"github.com/foxseedlab/bonfire/internal/discord"
	"github.com/foxseedlab/bonfire/internal/repository"
)

type mockDirectory struct {
	members  []discord.Member
	channels []discord.VoiceChannel
	err      error
}

func (d *mockDirectory) ListMembers(context.Context) ([]discord.Member, error) {
	return d.members, d.err
}

func (d *mockDirectory) ListVoiceChannels(context.Context) ([]discord.VoiceChannel, error) {
	return d.channels, d.err
}

type mockRegistrar struct {
	users    []repository.TrackedUser
	channels []repository.TrackedChannel
	fail     bool
}

func (r *mockRegistrar) UpsertTrackedUser(_ context.Context, user repository.TrackedUser) bool {
	if r.fail {
		return false
	}
	r.users = append(r.users, user)
	return true
}

func (r *mockRegistrar) UpsertTrackedChannel(_ context.Context, channel repository.TrackedChannel) bool {
	if r.fail {
		return false
	}
	r.channels = append(r.channels, channel)
	return true
}

func testDirectory() *mockDirectory {
	return &mockDirectory{
		members: []discord.Member{
			{ID: "u1", Username: "alice", Nickname: "bob", Roles: []discord.Role{
				{ID: "g", Name: "@everyone", Position: 0},
				{ID: "r1", Name: "Ember", Position: 1},
				{ID: "r2", Name: "Keeper", Position: 4},
			}},
			{ID: "u2", Username: "bob"},
			{ID: "u3", Username: "carol", Nickname: "cc"},
		},
		channels: []discord.VoiceChannel{{ID: "vc-1", Name: "Campfire"}},
	}
}

func TestVerifyAndRegisterUser_PrefersUsernameOverNickname(t *testing.T) {
	reg := &mockRegistrar{}
	g := NewGateway(testDirectory(), reg)

	res := g.VerifyAndRegisterUser(context.Background(), "bob")
	if !res.Success || res.ID != "u2" {
		t.Fatalf("expected u2 via username match, got %+v", res)
	}
}

func TestVerifyAndRegisterUser_FallsBackToNickname(t *testing.T) {
	reg := &mockRegistrar{}
	g := NewGateway(testDirectory(), reg)

	res := g.VerifyAndRegisterUser(context.Background(), "cc")
	if !res.Success || res.ID != "u3" {
		t.Fatalf("expected u3 via nickname match, got %+v", res)
	}
}

func TestVerifyAndRegisterUser_StoresHighestRole(t *testing.T) {
	reg := &mockRegistrar{}
	g := NewGateway(testDirectory(), reg)

	g.VerifyAndRegisterUser(context.Background(), "alice")
	if len(reg.users) != 1 {
		t.Fatalf("expected one upsert, got %d", len(reg.users))
	}
	want := repository.TrackedUser{UserID: "u1", Username: "alice", Nickname: "bob", RoleName: "Keeper"}
	if reg.users[0] != want {
		t.Fatalf("expected %+v, got %+v", want, reg.users[0])
	}
}

func TestVerifyAndRegisterUser_Reasons(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		directory *mockDirectory
		fail      bool
		want      string
	}{
		{name: "empty name", input: "  ", directory: testDirectory(), want: ReasonNoName},
		{name: "no match", input: "dave", directory: testDirectory(), want: ReasonNotFound},
		{name: "store failure", input: "alice", directory: testDirectory(), fail: true, want: ReasonStoreError},
		{name: "directory unavailable", input: "alice", directory: &mockDirectory{err: errors.New("not connected")}, want: ReasonNotReady},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := &mockRegistrar{fail: tt.fail}
			res := NewGateway(tt.directory, reg).VerifyAndRegisterUser(context.Background(), tt.input)
			if res.Success || res.Reason != tt.want {
				t.Fatalf("expected reason %q, got %+v", tt.want, res)
			}
		})
	}
}

func TestVerifyAndRegisterChannel(t *testing.T) {
	reg := &mockRegistrar{}
	g := NewGateway(testDirectory(), reg)

	res := g.VerifyAndRegisterChannel(context.Background(), "Campfire")
	if !res.Success || res.ID != "vc-1" {
		t.Fatalf("expected vc-1, got %+v", res)
	}
	if len(reg.channels) != 1 || !reg.channels[0].Enabled {
		t.Fatalf("expected enabled channel upsert, got %+v", reg.channels)
	}

	if res := g.VerifyAndRegisterChannel(context.Background(), "Lobby"); res.Reason != ReasonNotFound {
		t.Fatalf("expected not_found, got %+v", res)
	}
	if res := g.VerifyAndRegisterChannel(context.Background(), ""); res.Reason != ReasonNoName {
		t.Fatalf("expected no_name, got %+v", res)
	}
}
