// Package amqp publishes successful report results to a RabbitMQ topic
// exchange so other tools can react to them. Publishing is best effort: the
// result on stdout stays authoritative.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

const (
	maxAttempts    = 3
	dialTimeout    = 5 * time.Second
	publishTimeout = 5 * time.Second
	heartbeat      = 10 * time.Second
)

// channel is the subset of *amqp091.Channel used for publishing.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

type dialFunc func(ctx context.Context, url string) (channel, io.Closer, error)

// Publisher sends result messages, connecting lazily and reconnecting with
// exponential backoff on connection errors.
type Publisher struct {
	url          string
	exchangeName string
	runID        string
	logger       *slog.Logger

	dial    dialFunc
	backoff func(attempt int) time.Duration

	mu      sync.Mutex
	ch      channel
	conn    io.Closer
	closing bool
}

type Option func(*Publisher)

// WithRunID stamps every message with the invocation's run id.
func WithRunID(id string) Option {
	return func(p *Publisher) { p.runID = id }
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Publisher) { p.logger = l }
}

// NewPublisher returns a publisher for a topic exchange. No connection is
// made until the first Publish.
func NewPublisher(url, exchangeName string, opts ...Option) *Publisher {
	p := &Publisher{
		url:          url,
		exchangeName: exchangeName,
		logger:       slog.Default(),
		dial:         dialAMQP,
		backoff:      exponentialBackoff,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// dialAMQP bounds the TCP connect and the AMQP handshake by the smaller of
// dialTimeout and the time left on ctx.
func dialAMQP(ctx context.Context, url string) (channel, io.Closer, error) {
	timeout := dialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(deadline))
	}
	if timeout <= 0 {
		return nil, nil, fmt.Errorf("dial AMQP: %w", context.DeadlineExceeded)
	}
	conn, err := amqp091.DialConfig(url, amqp091.Config{
		Heartbeat: heartbeat,
		Locale:    "en_US",
		Dial:      amqp091.DefaultDial(timeout),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("dial AMQP: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	return ch, conn, nil
}

// Publish sends payload under routing key kind.
func (p *Publisher) Publish(ctx context.Context, kind string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := NewResultMessage(kind, p.runID, payload)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("publish %s: %w", kind, ctx.Err())
			case <-time.After(p.backoff(attempt - 1)):
			}
		}

		ch, err := p.channel(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("publish %s: %w", kind, ctxErr)
			}
			lastErr = err
			p.logger.WarnContext(ctx, "AMQP connect failed", "attempt", attempt+1, "error", err)
			continue
		}

		pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
		err = ch.PublishWithContext(pubCtx, p.exchangeName, kind, false, false, amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    msg.ID,
			Timestamp:    msg.Timestamp,
			Type:         kind,
			Body:         body,
		})
		cancel()
		if err == nil {
			p.logger.DebugContext(ctx, "Published result message",
				"message_id", msg.ID,
				"kind", kind,
				"exchange", p.exchangeName)
			return nil
		}

		lastErr = err
		if !isConnectionError(err) {
			break
		}
		p.logger.WarnContext(ctx, "AMQP connection lost, reconnecting", "attempt", attempt+1, "error", err)
		p.reset()
	}

	return fmt.Errorf("publish %s: %w", kind, lastErr)
}

// channel returns the open channel, dialing and declaring the exchange if
// needed.
func (p *Publisher) channel(ctx context.Context) (channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		return p.ch, nil
	}
	if p.closing {
		return nil, errors.New("publisher closed")
	}

	ch, conn, err := p.dial(ctx, p.url)
	if err != nil {
		return nil, err
	}
	err = ch.ExchangeDeclare(
		p.exchangeName, // name
		"topic",        // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		ch.Close()
		if conn != nil {
			conn.Close()
		}
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	p.ch, p.conn = ch, conn
	return ch, nil
}

func (p *Publisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dropLocked()
}

func (p *Publisher) dropLocked() {
	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
	p.ch, p.conn = nil, nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closing = true
	p.dropLocked()
	return nil
}

// exponentialBackoff doubles from one second, capped at 30 seconds.
func exponentialBackoff(attempt int) time.Duration {
	if attempt >= 5 {
		return 30 * time.Second
	}
	return time.Duration(1<<attempt) * time.Second
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) || errors.Is(err, io.EOF) {
		return true
	}
	msg := err.Error()
	for _, marker := range []string{
		"connection refused",
		"connection closed",
		"EOF",
		"broken pipe",
		"use of closed network connection",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
