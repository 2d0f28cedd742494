// Package mq publishes task lifecycle events to a message broker. The
// backend is chosen by config; when none is configured a no-op backend is
// used so call sites never branch on "events enabled".
package mq

import (
	"context"
	"fmt"

	"github.com/taskdeck/apiserver/config"
)

// Backend defines the broker-agnostic operations used by the app.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Close() error
}

// MQ wraps a backend with a stable API.
type MQ struct {
	backend Backend
}

// New selects and connects the configured backend.
func New(ctx context.Context, cfg config.BrokerConfig) (*MQ, error) {
	switch cfg.Backend {
	case "":
		return &MQ{backend: noopBackend{}}, nil
	case "rabbitmq":
		backend, err := NewRabbitBackend(cfg.RabbitMQ)
		if err != nil {
			return nil, err
		}
		return &MQ{backend: backend}, nil
	case "pubsub":
		backend, err := NewPubSubBackend(ctx, cfg.PubSub)
		if err != nil {
			return nil, err
		}
		return &MQ{backend: backend}, nil
	default:
		return nil, fmt.Errorf("unknown broker backend %q", cfg.Backend)
	}
}

// Publish sends a message to the named channel.
func (m *MQ) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	return m.backend.Publish(ctx, channel, data, attrs)
}

// Close closes the underlying backend.
func (m *MQ) Close() error {
	return m.backend.Close()
}

// noopBackend swallows events when no broker is configured.
type noopBackend struct{}

func (noopBackend) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	return "", nil
}

func (noopBackend) Close() error { return nil }
