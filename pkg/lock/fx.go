package lock

import (
	"github.com/smallbiznis/bizsuite/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("lock",
	fx.Provide(ProvideRedis),
	fx.Provide(NewLocker),
	fx.Provide(NewKeyedMutex),
)

// ProvideRedis returns a client when REDIS_ADDR is configured, nil otherwise.
func ProvideRedis(cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
}
