package usecase

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"go.uber.org/zap"

	"github.com/roberta039/Gym-Trainer/domain"
	"github.com/roberta039/Gym-Trainer/utils/log"
)

const DefaultRetryBackoff = 2 * time.Second

// StreamClient hides transient and per-key failures of a StreamProvider
// behind a single streaming call by retrying and rotating through a
// CredentialPool.
type StreamClient struct {
	provider       domain.StreamProvider
	pool           *domain.CredentialPool
	hasher         domain.Hasher
	notify         Notifier
	backoff        time.Duration
	attemptTimeout time.Duration
	sleep          func(ctx context.Context, d time.Duration) error
}

type StreamOption func(*StreamClient)

// WithRetryBackoff sets the pause before retrying an overloaded service.
func WithRetryBackoff(d time.Duration) StreamOption {
	return func(c *StreamClient) { c.backoff = d }
}

// WithAttemptTimeout bounds each attempt. Zero disables the bound.
func WithAttemptTimeout(d time.Duration) StreamOption {
	return func(c *StreamClient) { c.attemptTimeout = d }
}

func WithNotifier(n Notifier) StreamOption {
	return func(c *StreamClient) { c.notify = n }
}

// WithHasher enables key fingerprints in logs.
func WithHasher(h domain.Hasher) StreamOption {
	return func(c *StreamClient) { c.hasher = h }
}

func NewStreamClient(provider domain.StreamProvider, pool *domain.CredentialPool, opts ...StreamOption) *StreamClient {
	c := &StreamClient{
		provider: provider,
		pool:     pool,
		backoff:  DefaultRetryBackoff,
		sleep:    sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type attemptState int

const (
	attemptSucceeded attemptState = iota
	attemptAbandoned
	attemptFailed
)

type attemptResult struct {
	state   attemptState
	err     error
	yielded int
}

// Send streams the model's reply as text chunks. Every key in the pool gets
// up to two attempts. The sequence ends after the last chunk, or with a
// single error value: ErrServiceUnavailable once attempts run out,
// ErrStreamInterrupted when a failure follows delivered text, or the
// unclassified provider error itself. Breaking out of the loop releases the
// open stream.
func (c *StreamClient) Send(ctx context.Context, req domain.GenerateRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		maxAttempts := c.pool.Len() * 2
		var lastErr error

		for attempt := 1; attempt <= maxAttempts; attempt++ {
			idx, key := c.pool.Current()

			res := c.attempt(ctx, key, req, yield)
			switch res.state {
			case attemptSucceeded, attemptAbandoned:
				return
			}

			lastErr = res.err
			kind := domain.KindOf(res.err)
			log.WithCtx(ctx).Warn("model attempt failed",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", maxAttempts),
				zap.Int("key_index", idx),
				zap.String("key_fp", domain.Fingerprint(c.hasher, key)),
				zap.Stringer("kind", kind),
				zap.Error(res.err))

			if ctx.Err() != nil {
				yield("", fmt.Errorf("request cancelled: %w", ctx.Err()))
				return
			}
			if res.yielded > 0 {
				yield("", fmt.Errorf("%w: %w", domain.ErrStreamInterrupted, res.err))
				return
			}

			switch kind {
			case domain.KindTransient:
				if attempt == maxAttempts {
					break
				}
				c.publish(ctx, domain.NoticeRetrying, "The service is overloaded, retrying...")
				if err := c.sleep(ctx, c.backoff); err != nil {
					yield("", fmt.Errorf("request cancelled: %w", err))
					return
				}
			case domain.KindCredential:
				next := c.pool.Advance(idx)
				c.publish(ctx, domain.NoticeRotating,
					fmt.Sprintf("API key %d unavailable, switching to key %d...", idx+1, next+1))
			default:
				yield("", res.err)
				return
			}
		}

		yield("", fmt.Errorf("%w after %d attempts: %w", domain.ErrServiceUnavailable, maxAttempts, lastErr))
	}
}

func (c *StreamClient) attempt(ctx context.Context, key string, req domain.GenerateRequest, yield func(string, error) bool) attemptResult {
	attemptCtx, cancel := c.attemptContext(ctx)
	defer cancel()

	yielded := 0
	for chunk, err := range c.provider.Stream(attemptCtx, key, req) {
		if err != nil {
			if errors.Is(err, domain.ErrContentExtraction) {
				continue
			}
			if ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
				err = domain.Classify(domain.KindTransient, err)
			}
			return attemptResult{state: attemptFailed, err: err, yielded: yielded}
		}
		if chunk == "" {
			continue
		}
		yielded++
		if !yield(chunk, nil) {
			return attemptResult{state: attemptAbandoned, yielded: yielded}
		}
	}
	return attemptResult{state: attemptSucceeded, yielded: yielded}
}

func (c *StreamClient) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.attemptTimeout > 0 {
		return context.WithTimeout(ctx, c.attemptTimeout)
	}
	return context.WithCancel(ctx)
}

func (c *StreamClient) publish(ctx context.Context, kind domain.NoticeKind, text string) {
	if c.notify == nil {
		return
	}
	c.notify(ctx, domain.Notice{
		SessionID: log.SessionID(ctx),
		Kind:      kind,
		Text:      text,
		Timestamp: time.Now(),
	})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
