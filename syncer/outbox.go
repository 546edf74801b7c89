// Package syncer propagates local mutations to the remote document store.
package syncer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
)

// ErrOutboxFull is returned when an intent is dropped because the queue is full.
var ErrOutboxFull = errors.New("outbox full")

// ErrOutboxStopped is returned when an intent is offered after Stop.
var ErrOutboxStopped = errors.New("outbox stopped")

// Intent is a remote write waiting to be applied.
type Intent struct {
	Name string
	// Once intents are attempted a single time. Non-idempotent writes such as counter
	// increments must be Once.
	Once bool
	Run  func(ctx context.Context) error
	// done is closed once the intent has been handled. Only used by Flush.
	done chan struct{}
}

type OutboxConfig struct {
	// Size is the capacity of the queue.
	Size int
	// MaxRetries bounds the retries of an intent after its first attempt.
	MaxRetries uint64
	// Backoff is the base of the exponential backoff between retries.
	Backoff time.Duration
	// MaxBackoff caps a single wait between retries.
	MaxBackoff time.Duration
	// Timeout bounds every attempt.
	Timeout time.Duration
}

var DefaultOutboxConfig = OutboxConfig{
	Size:       256,
	MaxRetries: 3,
	Backoff:    200 * time.Millisecond,
	MaxBackoff: 5 * time.Second,
	Timeout:    10 * time.Second,
}

// Outbox is an ordered queue of remote intents drained by a single worker.
//
// Offering an intent never blocks: when the queue is full the intent is dropped and
// logged. Failures are logged by the worker and never reported to the caller.
type Outbox struct {
	queue  chan Intent
	config OutboxConfig
	logger *slog.Logger

	mu      sync.Mutex
	stopped bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func NewOutbox(config OutboxConfig, logger *slog.Logger) *Outbox {
	if config.Size <= 0 {
		config.Size = DefaultOutboxConfig.Size
	}
	if config.Backoff <= 0 {
		config.Backoff = DefaultOutboxConfig.Backoff
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = DefaultOutboxConfig.MaxBackoff
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultOutboxConfig.Timeout
	}
	return &Outbox{
		queue:  make(chan Intent, config.Size),
		config: config,
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// Start launches the worker. Call Stop to drain the queue and shut it down.
func (o *Outbox) Start() {
	o.wg.Add(1)
	go o.work()
}

// Stop stops accepting intents and waits for the worker to drain the queue, or for ctx
// to be done.
func (o *Outbox) Stop(ctx context.Context) error {
	o.mu.Lock()
	if !o.stopped {
		o.stopped = true
		close(o.stopCh)
	}
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Enqueue offers a retryable intent.
func (o *Outbox) Enqueue(name string, run func(ctx context.Context) error) error {
	return o.offer(Intent{Name: name, Run: run})
}

// EnqueueOnce offers an intent that is never retried.
func (o *Outbox) EnqueueOnce(name string, run func(ctx context.Context) error) error {
	return o.offer(Intent{Name: name, Once: true, Run: run})
}

func (o *Outbox) offer(in Intent) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		o.logger.Error("outbox: intent dropped", slog.String("intent", in.Name), slog.String("error", ErrOutboxStopped.Error()))
		return ErrOutboxStopped
	}
	select {
	case o.queue <- in:
		return nil
	default:
		o.logger.Error("outbox: intent dropped", slog.String("intent", in.Name), slog.String("error", ErrOutboxFull.Error()))
		return ErrOutboxFull
	}
}

// Flush blocks until every intent offered before the call has been handled.
func (o *Outbox) Flush(ctx context.Context) error {
	barrier := Intent{Name: "flush", Once: true, done: make(chan struct{})}

	o.mu.Lock()
	stopped := o.stopped
	o.mu.Unlock()
	if stopped {
		return ErrOutboxStopped
	}

	select {
	case o.queue <- barrier:
	case <-o.stopCh:
		return ErrOutboxStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-barrier.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Outbox) work() {
	defer o.wg.Done()
	for {
		select {
		case <-o.stopCh:
			for {
				select {
				case in := <-o.queue:
					o.handle(in)
				default:
					return
				}
			}
		case in := <-o.queue:
			o.handle(in)
		}
	}
}

func (o *Outbox) handle(in Intent) {
	if in.done != nil {
		close(in.done)
		return
	}

	ctx := context.Background()
	start := time.Now()
	var attempts int

	attempt := func(ctx context.Context) error {
		attempts++
		ctx, cancel := context.WithTimeout(ctx, o.config.Timeout)
		defer cancel()
		return in.Run(ctx)
	}

	var err error
	if in.Once {
		err = attempt(ctx)
	} else {
		backoff := retry.WithMaxRetries(o.config.MaxRetries,
			retry.WithCappedDuration(o.config.MaxBackoff, retry.NewExponential(o.config.Backoff)))
		err = retry.Do(ctx, backoff, func(ctx context.Context) error {
			if err := attempt(ctx); err != nil {
				o.logger.Debug("outbox: attempt failed", slog.String("intent", in.Name), slog.Int("attempt", attempts), slog.String("error", err.Error()))
				return retry.RetryableError(err)
			}
			return nil
		})
	}

	if err != nil {
		o.logger.Error("outbox: intent failed",
			slog.String("intent", in.Name),
			slog.Int("attempts", attempts),
			slog.String("error", err.Error()))
		return
	}
	o.logger.Debug("outbox: intent applied",
		slog.String("intent", in.Name),
		slog.Int("attempts", attempts),
		slog.Duration("took", time.Since(start)))
}
