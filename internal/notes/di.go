package notes

import (
	"github.com/coder/quartz"
	"github.com/foxseedlab/bonfire/internal/access"
	"github.com/foxseedlab/bonfire/internal/config"
	"github.com/foxseedlab/bonfire/internal/repository"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Service, error) {
		repo := do.MustInvoke[repository.Repository](i)
		gate := do.MustInvoke[*access.Gate](i)
		return NewService(repo, gate), nil
	})
	do.Provide(injector, func(i do.Injector) (*LinkSigner, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return NewLinkSigner(cfg.JWTSecret, cfg.PublicBaseURL, quartz.NewReal()), nil
	})
}
