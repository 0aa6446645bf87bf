package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"minix/internal/drive"
)

// DefaultRedisChannelPrefix prefixes the per-owner pub/sub channels.
const DefaultRedisChannelPrefix = "minix:changes"

// RedisOptions configures a RedisFeed.
type RedisOptions struct {
	Addr          string
	Password      string
	DB            int
	ChannelPrefix string
	BufferSize    int
}

// RedisFeed publishes events on one Redis pub/sub channel per owner.
type RedisFeed struct {
	client     *redis.Client
	prefix     string
	bufferSize int
	logger     drive.Logger
}

var _ drive.Feed = (*RedisFeed)(nil)

// NewRedisFeed connects to Redis and checks the connection.
func NewRedisFeed(ctx context.Context, opts RedisOptions, logger drive.Logger) (*RedisFeed, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", opts.Addr, err)
	}
	return NewRedisFeedFromClient(client, opts.ChannelPrefix, opts.BufferSize, logger), nil
}

// NewRedisFeedFromClient wraps an existing client. The feed owns the client
// and closes it on Close.
func NewRedisFeedFromClient(client *redis.Client, prefix string, bufferSize int, logger drive.Logger) *RedisFeed {
	if prefix == "" {
		prefix = DefaultRedisChannelPrefix
	}
	if logger == nil {
		logger = drive.NewNopLogger()
	}
	return &RedisFeed{client: client, prefix: prefix, bufferSize: bufferSize, logger: logger}
}

func (f *RedisFeed) channel(ownerID string) string {
	return f.prefix + ":" + ownerID
}

func (f *RedisFeed) Publish(ctx context.Context, ev drive.ChangeEvent) error {
	data, err := Encode(ev)
	if err != nil {
		return err
	}
	if err := f.client.Publish(ctx, f.channel(ev.OwnerID), data).Err(); err != nil {
		return fmt.Errorf("publishing to redis: %w", err)
	}
	return nil
}

// Subscribe listens on the owner's channel. The subscription is confirmed
// before Subscribe returns, so events published afterwards are not missed.
func (f *RedisFeed) Subscribe(ctx context.Context, ownerID string) (drive.Subscription, error) {
	ps := f.client.Subscribe(ctx, f.channel(ownerID))
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribing to redis channel: %w", err)
	}

	s := newSubscription(newQueue(ownerID, f.bufferSize))
	s.onClose = func() {
		if err := ps.Close(); err != nil {
			f.logger.Debug("closing redis subscription", "owner", ownerID, "error", err)
		}
	}
	msgs := ps.Channel()
	go func() {
		for {
			select {
			case <-s.done:
				return
			case msg, ok := <-msgs:
				if !ok {
					s.Close()
					return
				}
				ev, err := Decode([]byte(msg.Payload))
				if err != nil {
					f.logger.Warn("dropping malformed change event", "channel", msg.Channel, "error", err)
					continue
				}
				s.q.offer(ev)
			}
		}
	}()
	s.watch(ctx)
	return s, nil
}

func (f *RedisFeed) Close() error {
	return f.client.Close()
}
