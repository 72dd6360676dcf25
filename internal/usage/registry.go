package usage

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bizsuite/internal/catalog"
	"go.uber.org/fx"
)

// Registry resolves the reader for a module.
type Registry struct {
	readers map[catalog.Module]Reader
}

func NewRegistry(readers ...Reader) *Registry {
	registry := &Registry{readers: map[catalog.Module]Reader{}}
	for _, reader := range readers {
		if reader == nil {
			continue
		}
		registry.readers[reader.Module()] = reader
	}
	return registry
}

// CurrentUsage reads the live count from the owning module.
func (r *Registry) CurrentUsage(ctx context.Context, orgID snowflake.ID, module catalog.Module, feature catalog.Feature) (int64, error) {
	if r == nil {
		return 0, ErrNoReader
	}
	reader, ok := r.readers[module]
	if !ok {
		return 0, ErrNoReader
	}
	return reader.CurrentUsage(ctx, orgID, feature)
}

// Params collects readers contributed by domain modules via the fx group.
type Params struct {
	fx.In

	Readers []Reader `group:"usage.readers"`
}

func provideRegistry(p Params) *Registry {
	return NewRegistry(p.Readers...)
}

var Module = fx.Module("usage.registry",
	fx.Provide(provideRegistry),
)
