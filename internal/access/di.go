package access

import (
	"github.com/foxseedlab/bonfire/internal/config"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Gate, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return NewGate(CatalogFromConfig(cfg)), nil
	})
}
