package realtime

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"minix/internal/config"
	"minix/internal/drive"
)

func TestNewFeedFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.RealtimeConfig
		wantErr string
	}{
		{name: "default", cfg: config.RealtimeConfig{}},
		{name: "memory", cfg: config.RealtimeConfig{Type: "memory", BufferSize: 4}},
		{name: "redis without addr", cfg: config.RealtimeConfig{Type: "redis"}, wantErr: "redis_addr"},
		{name: "amqp without url", cfg: config.RealtimeConfig{Type: "amqp"}, wantErr: "amqp_url"},
		{name: "unknown", cfg: config.RealtimeConfig{Type: "kafka"}, wantErr: "unknown realtime type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			feed, err := NewFeedFromConfig(context.Background(), tt.cfg, nil)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("NewFeedFromConfig() error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewFeedFromConfig() error = %v", err)
			}
			defer feed.Close()
			if _, ok := feed.(*Broker); !ok {
				t.Errorf("NewFeedFromConfig() = %T, want *Broker", feed)
			}
		})
	}
}

// exerciseFeed checks the behaviour every remote feed shares.
func exerciseFeed(t *testing.T, feed drive.Feed) {
	t.Helper()
	ctx := context.Background()
	owner := "owner-" + time.Now().Format("150405.000000")

	sub, err := feed.Subscribe(ctx, owner)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer sub.Close()
	other, err := feed.Subscribe(ctx, owner+"-other")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer other.Close()

	if err := feed.Publish(ctx, event(owner, "f1")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if ev := receive(t, sub); ev.ID != "f1" || ev.OwnerID != owner {
		t.Errorf("received %+v, want f1", ev)
	}
	select {
	case ev := <-other.Events():
		t.Errorf("other owner received %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}

	sub.Close()
	assertClosed(t, sub)
}

func TestRedisFeed(t *testing.T) {
	addr := os.Getenv("MINIX_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("MINIX_TEST_REDIS_ADDR not set")
	}
	feed, err := NewRedisFeed(context.Background(), RedisOptions{Addr: addr, ChannelPrefix: "minix-test"}, nil)
	if err != nil {
		t.Fatalf("NewRedisFeed() error = %v", err)
	}
	defer feed.Close()
	exerciseFeed(t, feed)
}

func TestAMQPFeed(t *testing.T) {
	url := os.Getenv("MINIX_TEST_AMQP_URL")
	if url == "" {
		t.Skip("MINIX_TEST_AMQP_URL not set")
	}
	feed, err := NewAMQPFeed(url, "minix.test", 8, nil)
	if err != nil {
		t.Fatalf("NewAMQPFeed() error = %v", err)
	}
	defer feed.Close()
	exerciseFeed(t, feed)
}
