package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	cfotel "github.com/Strob0t/agentledger/internal/adapter/otel"
	"github.com/Strob0t/agentledger/internal/domain/event"
	"github.com/Strob0t/agentledger/internal/port/broadcast"
	"github.com/Strob0t/agentledger/internal/port/messagequeue"
	"github.com/Strob0t/agentledger/internal/resilience"
)

// EventPublisher fans committed ledger events out to NATS and to live
// WebSocket clients. Publishing never fails the operation that produced the
// events: the log row is already committed.
type EventPublisher struct {
	queue   messagequeue.Queue
	hub     broadcast.Broadcaster
	breaker *resilience.Breaker
	metrics *cfotel.Metrics
}

// NewEventPublisher creates a publisher. queue and hub may be nil; breaker
// guards queue publishes when set.
func NewEventPublisher(queue messagequeue.Queue, hub broadcast.Broadcaster, breaker *resilience.Breaker) *EventPublisher {
	return &EventPublisher{queue: queue, hub: hub, breaker: breaker}
}

// SetMetrics attaches OTEL metrics for publish failures.
func (p *EventPublisher) SetMetrics(m *cfotel.Metrics) {
	p.metrics = m
}

// Publish sends every event to NATS and broadcasts it locally.
func (p *EventPublisher) Publish(ctx context.Context, evs []event.LedgerEvent) {
	if p == nil {
		return
	}
	for i := range evs {
		ev := &evs[i]
		if p.queue != nil {
			p.publish(ctx, ev)
		}
		if p.hub != nil {
			p.hub.BroadcastEvent(ctx, string(ev.Type), ev)
		}
	}
}

func (p *EventPublisher) publish(ctx context.Context, ev *event.LedgerEvent) {
	ctx, span := cfotel.StartPublishSpan(ctx, string(ev.Type), ev.Subject)
	defer span.End()

	data, err := json.Marshal(ev)
	if err != nil {
		slog.ErrorContext(ctx, "marshal ledger event", "type", ev.Type, "error", err)
		return
	}

	subject := messagequeue.SubjectFor(ev.Type)
	send := func() error { return p.queue.Publish(ctx, subject, data) }
	if p.breaker != nil {
		err = p.breaker.Execute(send)
	} else {
		err = send()
	}
	if err != nil {
		span.RecordError(err)
		slog.WarnContext(ctx, "ledger event not published", "type", ev.Type, "subject", ev.Subject, "event_id", ev.ID, "error", err)
		if p.metrics != nil {
			p.metrics.PublishFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("event.type", string(ev.Type))))
		}
	}
}
