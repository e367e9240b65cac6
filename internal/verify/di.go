package verify

import (
	"github.com/foxseedlab/bonfire/internal/discord"
	"github.com/foxseedlab/bonfire/internal/repository"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Gateway, error) {
		dc := do.MustInvoke[discord.Client](i)
		repo := do.MustInvoke[repository.Repository](i)
		return NewGateway(dc, repo), nil
	})
}
