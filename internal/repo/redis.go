package repo

import (
	"context"

	"jonglog-service/internal/config"
	"jonglog-service/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RDB stays nil when no redis address is configured.
var RDB *redis.Client

func InitRedis() {
	conf := config.GlobalConfig.Redis
	if conf.Addr == "" {
		logger.Log.Info("Redis not configured, using in-process feed and tie-break store")
		return
	}
	RDB = redis.NewClient(&redis.Options{
		Addr:     conf.Addr,
		Password: conf.Password,
		DB:       conf.DB,
	})

	_, err := RDB.Ping(context.Background()).Result()
	if err != nil {
		logger.Log.Fatal("Failed to connect to Redis", zap.String("addr", conf.Addr), zap.Error(err))
	}
}
