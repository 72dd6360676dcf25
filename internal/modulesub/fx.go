package modulesub

import (
	"github.com/smallbiznis/bizsuite/internal/modulesub/repository"
	"github.com/smallbiznis/bizsuite/internal/modulesub/service"
	"go.uber.org/fx"
)

var Module = fx.Module("modulesub.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
