package payment

import (
	"github.com/smallbiznis/bizsuite/internal/payment/adapters"
	"github.com/smallbiznis/bizsuite/internal/payment/adapters/stripe"
	"github.com/smallbiznis/bizsuite/internal/payment/repository"
	"github.com/smallbiznis/bizsuite/internal/payment/service"
	"github.com/smallbiznis/bizsuite/internal/payment/webhook"
	"go.uber.org/fx"
)

func provideRegistry() *adapters.Registry {
	return adapters.NewRegistry(
		stripe.NewFactory(),
	)
}

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(provideRegistry),
	fx.Provide(service.NewService),
	fx.Provide(webhook.NewService),
)
