package redispub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"stele/core/events"
)

const (
	defaultChannel     = "stele.events"
	defaultQueueSize   = 256
	defaultMaxAttempts = 3
	defaultBackoff     = 200 * time.Millisecond
)

// ErrClosed is returned once the publisher has been shut down.
var ErrClosed = errors.New("redispub: publisher closed")

// Message is the JSON body published for each event.
type Message struct {
	Type        string            `json:"type"`
	Attributes  map[string]string `json:"attributes"`
	PublishedAt time.Time         `json:"publishedAt"`
}

// Publisher forwards committed events to a Redis pub/sub channel from a
// background worker. It satisfies events.Emitter.
type Publisher struct {
	client      redis.UniversalClient
	channel     string
	maxAttempts int
	backoff     time.Duration
	logger      *slog.Logger
	nowFn       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	queue  chan []byte
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// Option mutates publisher configuration.
type Option func(*Publisher)

// WithChannel overrides the pub/sub channel.
func WithChannel(channel string) Option {
	return func(p *Publisher) {
		if trimmed := strings.TrimSpace(channel); trimmed != "" {
			p.channel = trimmed
		}
	}
}

// WithRetryPolicy overrides the per-message retry policy.
func WithRetryPolicy(maxAttempts int, backoff time.Duration) Option {
	return func(p *Publisher) {
		if maxAttempts > 0 {
			p.maxAttempts = maxAttempts
		}
		if backoff > 0 {
			p.backoff = backoff
		}
	}
}

// WithLogger overrides the logger used for dropped messages.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// Dial connects to addr and verifies the connection before returning a
// publisher.
func Dial(ctx context.Context, addr string, opts ...Option) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redispub: connect %s: %w", addr, err)
	}
	return New(client, opts...)
}

// New wraps an existing client and spawns the worker goroutine.
func New(client redis.UniversalClient, opts ...Option) (*Publisher, error) {
	if client == nil {
		return nil, errors.New("redispub: client required")
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Publisher{
		client:      client,
		channel:     defaultChannel,
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultBackoff,
		logger:      slog.Default(),
		nowFn:       time.Now,
		ctx:         ctx,
		cancel:      cancel,
		queue:       make(chan []byte, defaultQueueSize),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.wg.Add(1)
	go p.worker()
	return p, nil
}

// Channel reports the pub/sub channel in use.
func (p *Publisher) Channel() string { return p.channel }

// Emit implements events.Emitter. Events are dropped with a warning when the
// queue is full.
func (p *Publisher) Emit(evt events.Event) {
	if p == nil || evt == nil {
		return
	}
	if err := p.Enqueue(evt); err != nil {
		p.logger.Warn("redis publish dropped", slog.String("type", evt.EventType()), slog.Any("error", err))
	}
}

// Enqueue schedules evt for publication.
func (p *Publisher) Enqueue(evt events.Event) error {
	payload := evt.Event()
	if payload == nil {
		return fmt.Errorf("redispub: empty event %s", evt.EventType())
	}
	body, err := json.Marshal(Message{
		Type:        payload.Type,
		Attributes:  payload.Attributes,
		PublishedAt: p.nowFn().UTC(),
	})
	if err != nil {
		return err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.queue <- body:
		return nil
	default:
		return errors.New("redispub: queue full")
	}
}

// Close drains queued messages and stops the worker. The client is closed
// as well. Every message accepted by Enqueue before Close is published.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()
	p.cancel()
	p.wg.Wait()
	return p.client.Close()
}

func (p *Publisher) worker() {
	defer p.wg.Done()
	for {
		select {
		case body := <-p.queue:
			p.publish(body)
		case <-p.ctx.Done():
			for {
				select {
				case body := <-p.queue:
					p.publish(body)
				default:
					return
				}
			}
		}
	}
}

func (p *Publisher) publish(body []byte) {
	backoff := p.backoff
	for attempt := 1; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := p.client.Publish(ctx, p.channel, body).Err()
		cancel()
		if err == nil {
			return
		}
		if attempt >= p.maxAttempts {
			p.logger.Warn("redis publish failed", slog.String("channel", p.channel), slog.Int("attempts", attempt), slog.Any("error", err))
			return
		}
		time.Sleep(backoff)
		backoff *= 2
	}
}
