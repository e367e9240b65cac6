package api

import (
	"github.com/coder/quartz"
	"github.com/foxseedlab/bonfire/internal/config"
	"github.com/foxseedlab/bonfire/internal/discord"
	"github.com/foxseedlab/bonfire/internal/notes"
	"github.com/foxseedlab/bonfire/internal/presence"
	"github.com/foxseedlab/bonfire/internal/repository"
	"github.com/foxseedlab/bonfire/internal/verify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Server, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return NewServer(Deps{
			Store:    do.MustInvoke[repository.Repository](i),
			Verifier: do.MustInvoke[*verify.Gateway](i),
			Members:  do.MustInvoke[discord.Client](i),
			Notes:    do.MustInvoke[*notes.Service](i),
			Links:    do.MustInvoke[*notes.LinkSigner](i),
			Presence: do.MustInvoke[*presence.Tracker](i),
			Gatherer: do.MustInvoke[*prometheus.Registry](i),
			Clock:    quartz.NewReal(),
			Location: cfg.Location(),
		}), nil
	})
}
