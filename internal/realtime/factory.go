package realtime

import (
	"context"
	"fmt"

	"minix/internal/config"
	"minix/internal/drive"
)

// NewFeedFromConfig creates the change feed selected by cfg.Type.
func NewFeedFromConfig(ctx context.Context, cfg config.RealtimeConfig, logger drive.Logger) (drive.Feed, error) {
	switch cfg.Type {
	case "", "memory":
		return NewBroker(cfg.BufferSize, logger), nil
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("redis feed requires redis_addr")
		}
		return NewRedisFeed(ctx, RedisOptions{
			Addr:          cfg.RedisAddr,
			Password:      cfg.RedisPassword,
			DB:            cfg.RedisDB,
			ChannelPrefix: cfg.RedisChannelPrefix,
			BufferSize:    cfg.BufferSize,
		}, logger)
	case "amqp":
		if cfg.AMQPURL == "" {
			return nil, fmt.Errorf("amqp feed requires amqp_url")
		}
		return NewAMQPFeed(cfg.AMQPURL, cfg.AMQPExchange, cfg.BufferSize, logger)
	default:
		return nil, fmt.Errorf("unknown realtime type: %q", cfg.Type)
	}
}
