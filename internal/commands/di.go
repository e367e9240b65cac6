package commands

import (
	"github.com/coder/quartz"
	"github.com/foxseedlab/bonfire/internal/access"
	"github.com/foxseedlab/bonfire/internal/config"
	"github.com/foxseedlab/bonfire/internal/discord"
	"github.com/foxseedlab/bonfire/internal/notes"
	"github.com/foxseedlab/bonfire/internal/webhook"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Handler, error) {
		cfg := do.MustInvoke[*config.Config](i)
		svc := do.MustInvoke[*notes.Service](i)
		signer := do.MustInvoke[*notes.LinkSigner](i)
		dc := do.MustInvoke[discord.Client](i)
		wh := do.MustInvoke[webhook.Sender](i)
		settings := Settings{
			GuildID:       cfg.DiscordGuildID,
			PublicBaseURL: cfg.PublicBaseURL,
			AlertUserID:   cfg.AlertUserID,
			Location:      cfg.Location(),
		}
		return NewHandler(settings, access.CatalogFromConfig(cfg), svc, signer, dc, wh, quartz.NewReal()), nil
	})
}
