package payment

import (
	"github.com/smallbiznis/bizsuite/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.payment",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) Provider {
	if cfg.Payment.APIBaseURL == "" {
		return &NoOpProvider{}
	}
	return NewREST(Config{
		BaseURL:    cfg.Payment.APIBaseURL,
		APIKey:     cfg.Payment.APIKey,
		SuccessURL: cfg.Payment.CheckoutSuccessURL,
		CancelURL:  cfg.Payment.CheckoutCancelURL,
		ReturnURL:  cfg.Payment.PortalReturnURL,
	}, log)
}
