// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package eventprocessor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/animedex/internal/cache"
	"github.com/tomtom215/animedex/internal/metrics"
)

// Router wraps the Watermill router with the catalog middleware stack.
//
// Middleware order, outermost first:
//
//  1. Recoverer: converts handler panics into errors
//  2. PoisonQueue: forwards failed messages to the poison topic and acks
//     them; without a poison topic permanent failures are acked and logged
//  3. Deduplicator: drops a Nats-Msg-Id already handled successfully
//  4. Retry: exponential backoff for transient failures only
//  5. Throttle: optional rate limit
type Router struct {
	router   *message.Router
	config   RouterConfig
	logger   watermill.LoggerAdapter
	running  atomic.Bool
	mu       sync.Mutex
	handlers map[string]*message.Handler
	seen     *cache.SeenSet
}

// NewRouter creates a router. A nil poisonPublisher disables the poison
// queue even when a topic is configured.
func NewRouter(cfg *RouterConfig, poisonPublisher message.Publisher, logger watermill.LoggerAdapter) (*Router, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: router config required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	wmRouter, err := message.NewRouter(message.RouterConfig{CloseTimeout: cfg.CloseTimeout}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill router: %w", err)
	}

	r := &Router{
		router:   wmRouter,
		config:   *cfg,
		logger:   logger,
		handlers: make(map[string]*message.Handler),
	}

	wmRouter.AddMiddleware(middleware.Recoverer)

	if poisonPublisher != nil && cfg.PoisonQueueTopic != "" {
		poisonQueue, err := middleware.PoisonQueue(poisonPublisher, cfg.PoisonQueueTopic)
		if err != nil {
			return nil, fmt.Errorf("create poison queue middleware: %w", err)
		}
		wmRouter.AddMiddleware(poisonQueue)
	} else {
		wmRouter.AddMiddleware(r.ackPermanent)
	}

	if cfg.DeduplicationEnabled {
		capacity := cfg.DeduplicationCapacity
		if capacity <= 0 {
			capacity = 10000
		}
		r.seen = cache.NewSeenSet(capacity, cfg.DeduplicationTTL)
		wmRouter.AddMiddleware(r.deduplicate)
	}

	retry := middleware.Retry{
		MaxRetries:      cfg.RetryMaxRetries,
		InitialInterval: cfg.RetryInitialInterval,
		MaxInterval:     cfg.RetryMaxInterval,
		Multiplier:      cfg.RetryMultiplier,
		Logger:          logger,
	}
	wmRouter.AddMiddleware(retryTransient(retry))

	if cfg.ThrottlePerSecond > 0 {
		throttle := middleware.NewThrottle(cfg.ThrottlePerSecond, time.Second)
		wmRouter.AddMiddleware(throttle.Middleware)
	}

	return r, nil
}

// messageKey identifies a message for deduplication: the publisher's
// Nats-Msg-Id when present, otherwise the Watermill UUID.
func messageKey(msg *message.Message) string {
	if id := msg.Metadata.Get(natsgo.MsgIdHdr); id != "" {
		return id
	}
	return msg.UUID
}

// deduplicate skips messages whose key was handled successfully within the
// TTL. A failed attempt forgets the key so redelivery is processed.
func (r *Router) deduplicate(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		key := messageKey(msg)
		if r.seen.IsDuplicate(key) {
			metrics.RecordNATSConsume(message.SubscribeTopicFromCtx(msg.Context()), "duplicate", 0)
			return nil, nil
		}
		out, err := h(msg)
		if err != nil {
			r.seen.Forget(key)
		}
		return out, err
	}
}

// ackPermanent acknowledges permanently failing messages when no poison
// queue is configured so they are not redelivered.
func (r *Router) ackPermanent(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		out, err := h(msg)
		if err != nil && IsPermanent(err) {
			r.logger.Error("Dropping message after permanent failure", err, watermill.LogFields{
				"message_uuid": msg.UUID,
				"topic":        message.SubscribeTopicFromCtx(msg.Context()),
			})
			return nil, nil
		}
		return out, err
	}
}

// retryTransient applies retry to transient failures only. A permanent
// failure ends the retry loop at once and is returned to the outer
// middleware.
func retryTransient(retry middleware.Retry) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			var permanent error
			inner := func(m *message.Message) ([]*message.Message, error) {
				out, err := h(m)
				if err != nil && IsPermanent(err) {
					permanent = err
					return nil, nil
				}
				return out, err
			}
			out, err := retry.Middleware(inner)(msg)
			if permanent != nil {
				return nil, permanent
			}
			return out, err
		}
	}
}

// AddConsumerHandler registers a handler that does not publish.
func (r *Router) AddConsumerHandler(
	name string,
	subscribeTopic string,
	subscriber message.Subscriber,
	handler message.NoPublishHandlerFunc,
) *message.Handler {
	r.mu.Lock()
	defer r.mu.Unlock()

	h := r.router.AddConsumerHandler(name, subscribeTopic, subscriber, handler)
	r.handlers[name] = h
	return h
}

// HandlerCount returns the number of registered handlers.
func (r *Router) HandlerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers)
}

// Run blocks until ctx is canceled or the router is closed.
func (r *Router) Run(ctx context.Context) error {
	r.running.Store(true)
	defer r.running.Store(false)
	return r.router.Run(ctx)
}

// RunAsync starts the router in the background. The returned channel is
// closed once every handler is subscribed.
func (r *Router) RunAsync(ctx context.Context) <-chan struct{} {
	go func() {
		if err := r.Run(ctx); err != nil {
			r.logger.Error("Router error", err, nil)
		}
	}()
	return r.router.Running()
}

// Running returns a channel closed once the router is running.
func (r *Router) Running() <-chan struct{} {
	return r.router.Running()
}

// Close stops the router, waiting up to CloseTimeout for handlers.
func (r *Router) Close() error {
	return r.router.Close()
}

// IsRunning reports whether Run is active.
func (r *Router) IsRunning() bool {
	return r.running.Load()
}
