package realtime

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"minix/internal/drive"
)

// DefaultAMQPExchange is the exchange change events are published to.
const DefaultAMQPExchange = "minix.changes"

// AMQPFeed publishes events to a direct exchange with the owner id as the
// routing key. Each subscription binds its own exclusive, auto-deleted queue.
type AMQPFeed struct {
	conn       *amqp.Connection
	exchange   string
	bufferSize int
	logger     drive.Logger

	mu      sync.Mutex
	channel *amqp.Channel
}

var _ drive.Feed = (*AMQPFeed)(nil)

// NewAMQPFeed dials the broker and declares the exchange.
func NewAMQPFeed(url, exchange string, bufferSize int, logger drive.Logger) (*AMQPFeed, error) {
	if exchange == "" {
		exchange = DefaultAMQPExchange
	}
	if logger == nil {
		logger = drive.NewNopLogger()
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connecting to amqp broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening amqp channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		exchange,
		amqp.ExchangeDirect,
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("declaring exchange %s: %w", exchange, err)
	}

	return &AMQPFeed{conn: conn, exchange: exchange, bufferSize: bufferSize, logger: logger, channel: ch}, nil
}

// Publish sends ev. Channels are not safe for concurrent publishing, so
// publishes are serialized.
func (f *AMQPFeed) Publish(ctx context.Context, ev drive.ChangeEvent) error {
	data, err := Encode(ev)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	err = f.channel.PublishWithContext(ctx,
		f.exchange,
		ev.OwnerID, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Timestamp:   ev.At,
			Body:        data,
		},
	)
	if err != nil {
		return fmt.Errorf("publishing to amqp: %w", err)
	}
	return nil
}

// Subscribe declares a private queue bound to the owner's routing key and
// consumes from it on a dedicated channel.
func (f *AMQPFeed) Subscribe(ctx context.Context, ownerID string) (drive.Subscription, error) {
	ch, err := f.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("opening amqp channel: %w", err)
	}
	q, err := ch.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // auto-delete
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("declaring subscriber queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, ownerID, f.exchange, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("binding subscriber queue: %w", err)
	}
	deliveries, err := ch.Consume(
		q.Name,
		"",    // consumer
		true,  // auto-ack
		true,  // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("consuming subscriber queue: %w", err)
	}

	s := newSubscription(newQueue(ownerID, f.bufferSize))
	s.onClose = func() {
		if err := ch.Close(); err != nil {
			f.logger.Debug("closing amqp subscription", "owner", ownerID, "error", err)
		}
	}
	go func() {
		for {
			select {
			case <-s.done:
				return
			case d, ok := <-deliveries:
				if !ok {
					// The channel went away underneath us; whatever the
					// subscriber holds may be stale.
					s.q.resync()
					s.Close()
					return
				}
				ev, err := Decode(d.Body)
				if err != nil {
					f.logger.Warn("dropping malformed change event", "queue", q.Name, "error", err)
					continue
				}
				s.q.offer(ev)
			}
		}
	}()
	s.watch(ctx)
	return s, nil
}

func (f *AMQPFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.channel != nil {
		f.channel.Close()
	}
	return f.conn.Close()
}
