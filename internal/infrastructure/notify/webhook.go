package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/nexus/backend/internal/infrastructure/resilience"
)

const (
	defaultQueueSize  = 128
	defaultTimeout    = 5 * time.Second
	defaultMaxRetries = 3
)

// ErrDeliveryFailed is returned when the endpoint answers with an error status
var ErrDeliveryFailed = errors.New("webhook delivery failed")

// Options configures a Webhook
type Options struct {
	URL     string
	Timeout time.Duration
	// MaxRetries is the number of retries after the first attempt. Negative
	// selects the default.
	MaxRetries int
	QueueSize  int
	// RetryWaitMin and RetryWaitMax bound the backoff between retries
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Logger       *zap.Logger
}

// Message is the body posted to the endpoint
type Message struct {
	Kind    string    `json:"kind"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload"`
}

// Stats counts webhook outcomes
type Stats struct {
	Delivered uint64 `json:"delivered"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
}

// Webhook posts messages to one URL
type Webhook struct {
	url     string
	client  *retryablehttp.Client
	breaker *resilience.Breaker
	queue   chan Message
	logger  *zap.Logger

	delivered atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// NewWebhook creates a webhook notifier
func NewWebhook(opts Options) *Webhook {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	client := retryablehttp.NewClient()
	client.RetryMax = opts.MaxRetries
	if opts.RetryWaitMin > 0 {
		client.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		client.RetryWaitMax = opts.RetryWaitMax
	}
	client.HTTPClient.Timeout = opts.Timeout
	client.Logger = leveledLogger{logger.Sugar()}

	breaker := resilience.New("webhook", resilience.Settings{
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})

	return &Webhook{
		url:     opts.URL,
		client:  client,
		breaker: breaker,
		queue:   make(chan Message, opts.QueueSize),
		logger:  logger,
	}
}

// Publish queues a message. It drops the message when the queue is full.
func (w *Webhook) Publish(kind string, payload any) {
	msg := Message{Kind: kind, At: time.Now().UTC(), Payload: payload}
	select {
	case w.queue <- msg:
	default:
		w.dropped.Add(1)
		w.logger.Warn("Webhook queue full, dropping message", zap.String("kind", kind))
	}
}

// Run delivers queued messages until ctx is done
func (w *Webhook) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-w.queue:
			if err := w.Deliver(ctx, msg); err != nil {
				w.logger.Warn("Webhook delivery failed",
					zap.String("kind", msg.Kind),
					zap.Error(err))
			}
		}
	}
}

// Deliver posts msg synchronously
func (w *Webhook) Deliver(ctx context.Context, msg Message) error {
	body, err := sonic.Marshal(msg)
	if err != nil {
		w.failed.Add(1)
		return fmt.Errorf("failed to encode message: %w", err)
	}

	_, err = resilience.Do(w.breaker, func() (int, error) {
		req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			return 0, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := w.client.Do(req)
		if err != nil {
			return 0, err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			return resp.StatusCode, fmt.Errorf("%w: status %d", ErrDeliveryFailed, resp.StatusCode)
		}
		return resp.StatusCode, nil
	})
	if err != nil {
		w.failed.Add(1)
		return err
	}
	w.delivered.Add(1)
	return nil
}

// Stats returns delivery counters
func (w *Webhook) Stats() Stats {
	return Stats{
		Delivered: w.delivered.Load(),
		Failed:    w.failed.Load(),
		Dropped:   w.dropped.Load(),
	}
}

// leveledLogger routes retryablehttp logging into zap
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
