package presence

import (
	"github.com/coder/quartz"
	"github.com/foxseedlab/bonfire/internal/config"
	"github.com/foxseedlab/bonfire/internal/repository"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Tracker, error) {
		cfg := do.MustInvoke[*config.Config](i)
		repo := do.MustInvoke[repository.Repository](i)
		reg := do.MustInvoke[*prometheus.Registry](i)
		return NewTracker(repo, quartz.NewReal(), cfg.Location(), cfg.DiscordGuildID, reg), nil
	})
}
