package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "agentledger"

// Metrics holds all ledger metric instruments.
type Metrics struct {
	EscrowsOpened       metric.Int64Counter
	EscrowsCompleted    metric.Int64Counter
	EscrowsCancelled    metric.Int64Counter
	BountyPaid          metric.Int64Counter
	WalletsCreated      metric.Int64Counter
	TierChanges         metric.Int64Counter
	Distributed         metric.Int64Counter
	Spent               metric.Int64Counter
	AcquisitionsStarted metric.Int64Counter
	AcquisitionsDone    metric.Int64Counter
	Strikes             metric.Int64Counter
	Bans                metric.Int64Counter
	OperationErrors     metric.Int64Counter
	PublishFailures     metric.Int64Counter
	OperationDuration   metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.EscrowsOpened, "agentledger.escrows.opened", "Number of task escrows opened"},
		{&m.EscrowsCompleted, "agentledger.escrows.completed", "Number of task escrows paid out"},
		{&m.EscrowsCancelled, "agentledger.escrows.cancelled", "Number of task escrows cancelled"},
		{&m.BountyPaid, "agentledger.bounty.paid", "Bounty units paid to agent wallets"},
		{&m.WalletsCreated, "agentledger.wallets.created", "Number of agent wallets created"},
		{&m.TierChanges, "agentledger.wallets.tier_changes", "Number of wallet tier changes"},
		{&m.Distributed, "agentledger.wallets.distributed", "Units distributed to humans"},
		{&m.Spent, "agentledger.wallets.spent", "Units spent autonomously by agents"},
		{&m.AcquisitionsStarted, "agentledger.acquisitions.proposed", "Number of acquisitions proposed"},
		{&m.AcquisitionsDone, "agentledger.acquisitions.executed", "Number of acquisitions executed"},
		{&m.Strikes, "agentledger.humans.strikes", "Number of strikes recorded"},
		{&m.Bans, "agentledger.humans.bans", "Number of humans banned"},
		{&m.OperationErrors, "agentledger.operation.errors", "Failed ledger operations by kind"},
		{&m.PublishFailures, "agentledger.events.publish_failures", "Ledger events not published to NATS"},
	}
	for _, c := range counters {
		var err error
		*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, err
		}
	}

	var err error
	m.OperationDuration, err = meter.Float64Histogram("agentledger.operation.duration_seconds",
		metric.WithDescription("Ledger operation duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordError counts a failed operation by error kind.
func (m *Metrics) RecordError(ctx context.Context, op, kind string) {
	if m == nil {
		return
	}
	m.OperationErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("kind", kind),
	))
}

// RecordDuration records how long an operation took.
func (m *Metrics) RecordDuration(ctx context.Context, op string, seconds float64) {
	if m == nil {
		return
	}
	m.OperationDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("operation", op)))
}

// ObserveCacheHitRatio exports ratio as the wallet cache hit ratio gauge. The
// callback runs on each metrics collection.
func ObserveCacheHitRatio(ratio func() float64) error {
	_, err := otel.Meter(meterName).Float64ObservableGauge("agentledger.cache.hit_ratio",
		metric.WithDescription("Fraction of wallet reads served by the in-process cache"),
		metric.WithFloat64Callback(func(_ context.Context, o metric.Float64Observer) error {
			o.Observe(ratio())
			return nil
		}))
	return err
}
