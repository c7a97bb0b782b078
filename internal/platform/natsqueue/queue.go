package natsqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/phrazzld/codescope-api/internal/config"
	"github.com/phrazzld/codescope-api/internal/task"
)

// Config describes the stream and consumer backing a Queue.
type Config struct {
	Stream   string
	Subject  string
	Consumer string

	// AckWait is how long a delivery may go unacknowledged before redelivery
	AckWait time.Duration

	// MaxDeliver bounds redeliveries per message; 0 means unlimited
	MaxDeliver int

	// FetchWait is how long a single pull waits for a message
	FetchWait time.Duration

	// DuplicateWindow is the publish de-duplication window
	DuplicateWindow time.Duration
}

// ConfigFrom converts the application queue settings.
func ConfigFrom(cfg config.QueueConfig) Config {
	return Config{
		Stream:     cfg.Stream,
		Subject:    cfg.Subject,
		Consumer:   cfg.Consumer,
		AckWait:    config.Seconds(cfg.AckWaitSeconds),
		MaxDeliver: cfg.MaxDeliver,
	}
}

func (c Config) withDefaults() Config {
	if c.Stream == "" {
		c.Stream = "CODESCOPE_TASKS"
	}
	if c.Subject == "" {
		c.Subject = "codescope.tasks.analyze"
	}
	if c.Consumer == "" {
		c.Consumer = "codescope-workers"
	}
	if c.AckWait <= 0 {
		c.AckWait = time.Minute
	}
	if c.MaxDeliver <= 0 {
		c.MaxDeliver = -1
	}
	if c.FetchWait <= 0 {
		c.FetchWait = time.Second
	}
	if c.DuplicateWindow <= 0 {
		c.DuplicateWindow = time.Minute
	}
	return c
}

// Queue is a task.Queue backed by JetStream.
type Queue struct {
	js       jetstream.JetStream
	consumer jetstream.Consumer
	config   Config
	logger   *slog.Logger

	closeOnce sync.Once
	closed    chan struct{}
	onClose   func()
}

// Ensure Queue implements task.Queue
var _ task.Queue = (*Queue)(nil)

// New creates the stream and durable consumer if needed and returns a Queue
// publishing and consuming through nc. The caller keeps ownership of nc.
func New(ctx context.Context, nc *nats.Conn, cfg Config, logger *slog.Logger) (*Queue, error) {
	cfg = cfg.withDefaults()
	logger = logger.With("component", "nats_queue", "stream", cfg.Stream, "consumer", cfg.Consumer)

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create jetstream context: %w", err)
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       cfg.Stream,
		Subjects:   []string{cfg.Subject},
		Retention:  jetstream.WorkQueuePolicy,
		Storage:    jetstream.FileStorage,
		Duplicates: cfg.DuplicateWindow,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create stream %s: %w", cfg.Stream, err)
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       cfg.Consumer,
		FilterSubject: cfg.Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       cfg.AckWait,
		MaxDeliver:    cfg.MaxDeliver,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer %s: %w", cfg.Consumer, err)
	}

	logger.Info("nats work queue ready", "subject", cfg.Subject, "ack_wait", cfg.AckWait)

	return &Queue{
		js:       js,
		consumer: consumer,
		config:   cfg,
		logger:   logger,
		closed:   make(chan struct{}),
	}, nil
}

// Connect dials url and returns a Queue that closes the connection on Close.
func Connect(ctx context.Context, url string, cfg Config, logger *slog.Logger) (*Queue, error) {
	nc, err := nats.Connect(url,
		nats.Name("codescope"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}

	q, err := New(ctx, nc, cfg, logger)
	if err != nil {
		nc.Close()
		return nil, err
	}
	q.onClose = func() {
		if err := nc.Drain(); err != nil {
			nc.Close()
		}
	}
	return q, nil
}

// MessageID is the publish de-duplication key of item.
func MessageID(item task.WorkItem) string {
	return fmt.Sprintf("%s-%d", item.TaskID, item.Attempt)
}

// Enqueue implements task.Queue.
func (q *Queue) Enqueue(ctx context.Context, item task.WorkItem) error {
	if q.isClosed() {
		return task.ErrQueueClosed
	}

	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to encode work item: %w", err)
	}

	msg := nats.NewMsg(q.config.Subject)
	msg.Data = data
	msg.Header.Set(jetstream.MsgIDHeader, MessageID(item))

	ack, err := q.js.PublishMsg(ctx, msg)
	if err != nil {
		return fmt.Errorf("failed to publish work item: %w", err)
	}

	q.logger.Debug("work item published",
		"task_id", item.TaskID,
		"attempt", item.Attempt,
		"sequence", ack.Sequence,
		"duplicate", ack.Duplicate)
	return nil
}

// Dequeue implements task.Queue. Items that are not yet due are returned to
// the stream with a delay matching their NotBefore.
func (q *Queue) Dequeue(ctx context.Context) (task.Delivery, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.closed:
			return nil, task.ErrQueueClosed
		default:
		}

		batch, err := q.consumer.Fetch(1, jetstream.FetchMaxWait(q.config.FetchWait))
		if err != nil {
			if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrConnectionDraining) {
				return nil, task.ErrQueueClosed
			}
			if isFetchTimeout(err) {
				continue
			}
			return nil, fmt.Errorf("failed to fetch work item: %w", err)
		}

		for msg := range batch.Messages() {
			if d := q.accept(msg); d != nil {
				return d, nil
			}
		}

		if err := batch.Error(); err != nil && !isFetchTimeout(err) {
			q.logger.Warn("work item fetch ended with error", "error", err)
		}
	}
}

// accept decodes msg and returns it as a delivery when its item is due.
func (q *Queue) accept(msg jetstream.Msg) *delivery {
	var item task.WorkItem
	if err := json.Unmarshal(msg.Data(), &item); err != nil {
		q.logger.Error("dropping undecodable work item", "error", err)
		if err := msg.Term(); err != nil {
			q.logger.Warn("failed to terminate message", "error", err)
		}
		return nil
	}

	if wait := time.Until(item.NotBefore); wait > 0 {
		if err := msg.NakWithDelay(wait); err != nil {
			q.logger.Warn("failed to delay work item", "task_id", item.TaskID, "error", err)
		}
		return nil
	}

	return &delivery{msg: msg, item: item}
}

// Close implements task.Queue. A Queue created by Connect also drains its
// connection.
func (q *Queue) Close() error {
	q.closeOnce.Do(func() {
		close(q.closed)
		if q.onClose != nil {
			q.onClose()
		}
	})
	return nil
}

func (q *Queue) isClosed() bool {
	select {
	case <-q.closed:
		return true
	default:
		return false
	}
}

// Pending returns the number of messages waiting for delivery to the consumer.
func (q *Queue) Pending(ctx context.Context) (uint64, error) {
	info, err := q.consumer.Info(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read consumer info: %w", err)
	}
	return info.NumPending, nil
}

func isFetchTimeout(err error) bool {
	return errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, jetstream.ErrNoMessages)
}

// delivery adapts a JetStream message to task.Delivery.
type delivery struct {
	msg  jetstream.Msg
	item task.WorkItem
}

func (d *delivery) Item() task.WorkItem { return d.item }

func (d *delivery) Ack() error { return d.msg.Ack() }

func (d *delivery) Nack(delay time.Duration) error {
	if delay <= 0 {
		return d.msg.Nak()
	}
	return d.msg.NakWithDelay(delay)
}

func (d *delivery) InProgress() error { return d.msg.InProgress() }
