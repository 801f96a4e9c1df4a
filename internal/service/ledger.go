// Package service implements the ledger use cases: task escrow, agent
// wallets, acquisitions and the human trust registry. Every mutating
// operation runs in one store transaction, appends its ledger events in that
// transaction and publishes them after commit.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	cfotel "github.com/Strob0t/agentledger/internal/adapter/otel"
	"github.com/Strob0t/agentledger/internal/config"
	"github.com/Strob0t/agentledger/internal/domain"
	"github.com/Strob0t/agentledger/internal/domain/event"
	"github.com/Strob0t/agentledger/internal/domain/trust"
	"github.com/Strob0t/agentledger/internal/logger"
	"github.com/Strob0t/agentledger/internal/port/cache"
	"github.com/Strob0t/agentledger/internal/port/database"
	"github.com/Strob0t/agentledger/internal/port/eventstore"
)

// Deps are the collaborators shared by all ledger services. Publisher,
// Cache and Metrics are optional.
type Deps struct {
	Store     database.Store
	Events    eventstore.Store
	Publisher *EventPublisher
	Cache     cache.Cache
	CacheTTL  time.Duration
	Metrics   *cfotel.Metrics
	Config    config.Ledger
}

// Services bundles the ledger use cases over one store.
type Services struct {
	Escrow      *EscrowService
	Wallet      *WalletService
	Acquisition *AcquisitionService
	Trust       *TrustService
	Ledger      *LedgerService

	core *core
}

// New wires all ledger services around a shared core.
func New(d Deps) *Services {
	c := &core{
		store:   d.Store,
		pub:     d.Publisher,
		cache:   d.Cache,
		ttl:     d.CacheTTL,
		metrics: d.Metrics,
		cfg:     d.Config,
		now:     time.Now,
	}
	return &Services{
		Escrow:      &EscrowService{core: c},
		Wallet:      &WalletService{core: c},
		Acquisition: &AcquisitionService{core: c},
		Trust:       &TrustService{core: c},
		Ledger:      &LedgerService{core: c, events: d.Events},
		core:        c,
	}
}

// SetClock replaces the time source of every service, and of the store's
// journal when the store keeps its own.
func (s *Services) SetClock(now func() time.Time) {
	s.core.now = now
	if c, ok := s.core.store.(database.Clocked); ok {
		c.SetClock(now)
	}
}

// core holds what every operation needs: the store, the post-commit event
// publisher, the wallet read cache and the clock.
type core struct {
	store   database.Store
	pub     *EventPublisher
	cache   cache.Cache
	ttl     time.Duration
	metrics *cfotel.Metrics
	cfg     config.Ledger
	now     func() time.Time
}

// recorder collects the events and touched wallets of one transaction.
type recorder struct {
	now     time.Time
	events  []event.LedgerEvent
	wallets []string
}

// emit appends an event to the log inside tx.
func (r *recorder) emit(ctx context.Context, tx database.Tx, typ event.Type, subject string, amount uint64, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	ev := event.LedgerEvent{
		ID:        uuid.NewString(),
		Type:      typ,
		Subject:   subject,
		Actor:     logger.Caller(ctx),
		Amount:    amount,
		Payload:   raw,
		RequestID: logger.RequestID(ctx),
		CreatedAt: r.now,
	}
	if err := tx.AppendEvent(ctx, &ev); err != nil {
		return err
	}
	r.events = append(r.events, ev)
	return nil
}

// touch marks wallets whose cached snapshot must be dropped after commit.
func (r *recorder) touch(agents ...string) {
	r.wallets = append(r.wallets, agents...)
}

// run executes fn in one transaction, traced and measured as op. On commit
// the touched wallets leave the cache and the recorded events are published.
func (c *core) run(ctx context.Context, op, subject string, fn func(ctx context.Context, tx database.Tx, rec *recorder) error) error {
	ctx, span := cfotel.StartOperationSpan(ctx, op, logger.Caller(ctx), subject)
	start := time.Now()

	var rec *recorder
	err := c.store.InTx(ctx, func(ctx context.Context, tx database.Tx) error {
		rec = &recorder{now: c.now().UTC()}
		return fn(ctx, tx, rec)
	})
	c.metrics.RecordDuration(ctx, op, time.Since(start).Seconds())

	if err != nil {
		kind := domain.Kind(err)
		c.metrics.RecordError(ctx, op, kind)
		cfotel.EndSpan(span, err, kind)
		if kind == domain.KindInternal {
			slog.ErrorContext(ctx, "ledger operation failed", "operation", op, "subject", subject, "error", err)
		} else {
			slog.InfoContext(ctx, "ledger operation rejected", "operation", op, "subject", subject, "kind", kind, "error", err)
		}
		return err
	}
	span.End()

	c.invalidate(ctx, rec.wallets)
	c.pub.Publish(ctx, rec.events)
	return nil
}

func (c *core) invalidate(ctx context.Context, agents []string) {
	if c.cache == nil {
		return
	}
	for _, a := range agents {
		if err := c.cache.Delete(ctx, cache.WalletKey(a)); err != nil {
			slog.WarnContext(ctx, "wallet cache invalidation failed", "agent", a, "error", err)
		}
	}
}

// requireUnbanned fails with ErrBanned when ban enforcement is on and the
// human is banned. With enforcement off the ban check stays advisory.
func (c *core) requireUnbanned(ctx context.Context, tx database.Tx, humans ...string) error {
	if !c.cfg.EnforceBans {
		return nil
	}
	for _, h := range humans {
		r, err := tx.LockHumanRecord(ctx, h)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if err := trust.CheckBan(h, r); err != nil {
			return err
		}
	}
	return nil
}
