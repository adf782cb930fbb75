// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

package eventprocessor

import (
	"net/url"
	"strconv"
	"time"

	"github.com/tomtom215/animedex/internal/config"
)

// ServerConfig holds embedded NATS server configuration.
type ServerConfig struct {
	Host              string
	Port              int
	StoreDir          string
	JetStreamMaxMem   int64
	JetStreamMaxStore int64
}

// ServerConfigFrom derives the embedded server settings from the NATS section.
// Host and port come from the client URL so clients and server agree.
func ServerConfigFrom(cfg *config.NATSConfig) ServerConfig {
	sc := ServerConfig{
		Host:              "127.0.0.1",
		Port:              4222,
		StoreDir:          cfg.StoreDir,
		JetStreamMaxMem:   cfg.MaxMemory,
		JetStreamMaxStore: cfg.MaxStore,
	}
	if u, err := url.Parse(cfg.URL); err == nil && u.Hostname() != "" {
		sc.Host = u.Hostname()
		if p, err := strconv.Atoi(u.Port()); err == nil {
			sc.Port = p
		}
	}
	return sc
}

// PublisherConfig holds publisher configuration.
type PublisherConfig struct {
	URL              string
	MaxReconnects    int
	ReconnectWait    time.Duration
	ReconnectBuffer  int
	EnableTrackMsgID bool // nolint:revive // ID is correct per Go conventions
}

// DefaultPublisherConfig returns production defaults for publisher.
func DefaultPublisherConfig(url string) PublisherConfig {
	return PublisherConfig{
		URL:              url,
		MaxReconnects:    -1,
		ReconnectWait:    2 * time.Second,
		ReconnectBuffer:  8 * 1024 * 1024,
		EnableTrackMsgID: true,
	}
}

// SubscriberConfig holds subscriber configuration.
type SubscriberConfig struct {
	URL              string
	DurableName      string
	QueueGroup       string
	SubscribersCount int
	AckWaitTimeout   time.Duration
	MaxDeliver       int
	MaxAckPending    int
	CloseTimeout     time.Duration
	MaxReconnects    int
	ReconnectWait    time.Duration
	// StreamName binds the consumer to an existing stream instead of letting
	// Watermill provision one per topic.
	StreamName string
}

// SubscriberConfigFrom derives subscriber settings for one topic. Each topic
// gets its own durable so consumers on different subjects never share state.
func SubscriberConfigFrom(cfg *config.NATSConfig, url, durableSuffix string) SubscriberConfig {
	return SubscriberConfig{
		URL:              url,
		DurableName:      cfg.DurableName + "-" + durableSuffix,
		QueueGroup:       cfg.QueueGroup + "-" + durableSuffix,
		SubscribersCount: cfg.SubscribersCount,
		AckWaitTimeout:   30 * time.Second,
		MaxDeliver:       cfg.RouterRetryCount + 1,
		MaxAckPending:    1000,
		CloseTimeout:     cfg.RouterCloseTimeout,
		MaxReconnects:    -1,
		ReconnectWait:    2 * time.Second,
		StreamName:       cfg.StreamName,
	}
}

// StreamConfig defines the catalog stream.
type StreamConfig struct {
	Name            string
	Subjects        []string
	MaxAge          time.Duration
	MaxBytes        int64
	MaxMsgs         int64
	DuplicateWindow time.Duration
	Replicas        int
}

// StreamConfigFrom derives the stream definition from the NATS section. The
// stream captures every catalog subject, including the poison topic.
func StreamConfigFrom(cfg *config.NATSConfig) StreamConfig {
	return StreamConfig{
		Name:            cfg.StreamName,
		Subjects:        []string{SubjectAll},
		MaxAge:          time.Duration(cfg.StreamRetentionDays) * 24 * time.Hour,
		MaxBytes:        cfg.MaxStore,
		MaxMsgs:         -1,
		DuplicateWindow: 2 * time.Minute,
		Replicas:        1,
	}
}

// RouterConfig holds Watermill router middleware settings.
type RouterConfig struct {
	CloseTimeout time.Duration

	RetryMaxRetries      int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	RetryMultiplier      float64

	// ThrottlePerSecond limits handler throughput. Zero disables throttling.
	ThrottlePerSecond int64

	// PoisonQueueTopic receives messages that failed permanently or exhausted
	// their retries. Empty disables the poison queue.
	PoisonQueueTopic string

	DeduplicationEnabled  bool
	DeduplicationTTL      time.Duration
	DeduplicationCapacity int
}

// RouterConfigFrom maps the NATS section onto router settings.
func RouterConfigFrom(cfg *config.NATSConfig) RouterConfig {
	return RouterConfig{
		CloseTimeout:          cfg.RouterCloseTimeout,
		RetryMaxRetries:       cfg.RouterRetryCount,
		RetryInitialInterval:  cfg.RouterRetryInitialInterval,
		RetryMaxInterval:      time.Minute,
		RetryMultiplier:       2.0,
		ThrottlePerSecond:     cfg.RouterThrottlePerSecond,
		PoisonQueueTopic:      cfg.RouterPoisonQueueTopic,
		DeduplicationEnabled:  cfg.RouterDeduplicationEnabled,
		DeduplicationTTL:      cfg.RouterDeduplicationTTL,
		DeduplicationCapacity: 10000,
	}
}

// CircuitBreakerConfig holds circuit breaker settings.
type CircuitBreakerConfig struct {
	Name             string
	MaxRequests      uint32        // Allowed in half-open state
	Interval         time.Duration // Reset interval for counts
	Timeout          time.Duration // Time to stay open
	FailureThreshold uint32        // Failures before opening
}

// DefaultCircuitBreakerConfig returns production defaults.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		MaxRequests:      3,
		Interval:         30 * time.Second,
		Timeout:          10 * time.Second,
		FailureThreshold: 5,
	}
}
