// Package events publishes catalog change notifications for downstream
// consumers (search indexing, audit trails). Publishing is inline and
// best-effort: a broker failure is logged and never fails the request
// that caused the event.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/materialdesk/apiserver/pkg/slogx"
)

// Event types emitted by the catalog.
const (
	MaterialCreated       = "material.created"
	MaterialUpdated       = "material.updated"
	MaterialDeleted       = "material.deleted"
	MaterialImagesChanged = "material.images_changed"
	DropdownCreated       = "dropdown.created"
	DropdownUpdated       = "dropdown.updated"
	DropdownDeleted       = "dropdown.deleted"
)

// Event is the wire shape published to the broker.
type Event struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurredAt"`
	Payload    any       `json:"payload"`
}

// Backend sends raw messages to a named topic.
type Backend interface {
	Publish(ctx context.Context, topic string, data []byte, attrs map[string]string) (string, error)
	Close() error
}

// Publisher emits catalog events to a Backend. A nil Publisher, or one
// constructed without a backend, is a safe no-op.
type Publisher struct {
	backend Backend
	topic   string
}

// NewPublisher constructs a Publisher. backend may be nil to disable
// publishing.
func NewPublisher(backend Backend, topic string) *Publisher {
	return &Publisher{backend: backend, topic: topic}
}

// Emit publishes one event. Failures are logged, not returned.
func (p *Publisher) Emit(ctx context.Context, eventType string, payload any) {
	if p == nil || p.backend == nil {
		return
	}

	data, err := json.Marshal(Event{
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	})
	if err != nil {
		slogx.FromContext(ctx).Error("marshal event failed", "type", eventType, "error", err)
		return
	}

	if _, err := p.backend.Publish(ctx, p.topic, data, map[string]string{"type": eventType}); err != nil {
		slogx.FromContext(ctx).Error("publish event failed", "type", eventType, "error", err)
	}
}

// Close closes the underlying backend.
func (p *Publisher) Close() error {
	if p == nil || p.backend == nil {
		return nil
	}
	return p.backend.Close()
}
