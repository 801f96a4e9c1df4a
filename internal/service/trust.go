package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Strob0t/agentledger/internal/domain"
	"github.com/Strob0t/agentledger/internal/domain/event"
	"github.com/Strob0t/agentledger/internal/domain/trust"
	"github.com/Strob0t/agentledger/internal/port/database"
	"github.com/Strob0t/agentledger/internal/port/messagequeue"
)

// TrustService keeps strike and ban records for human controllers.
type TrustService struct {
	*core
}

// Get returns the record of human.
func (s *TrustService) Get(ctx context.Context, human string) (*trust.HumanRecord, error) {
	return s.store.GetHumanRecord(ctx, human)
}

// List returns human records matching f.
func (s *TrustService) List(ctx context.Context, f trust.Filter) ([]trust.HumanRecord, error) {
	return s.store.ListHumanRecords(ctx, f)
}

// CheckBan fails with ErrBanned if human is banned. Unknown humans pass.
func (s *TrustService) CheckBan(ctx context.Context, human string) error {
	if err := domain.ValidateIdentity("human", human); err != nil {
		return err
	}
	r, err := s.store.GetHumanRecord(ctx, human)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return trust.CheckBan(human, r)
}

func lockOrNew(ctx context.Context, tx database.Tx, human string) (*trust.HumanRecord, error) {
	r, err := tx.LockHumanRecord(ctx, human)
	if errors.Is(err, domain.ErrNotFound) {
		return trust.NewRecord(human), nil
	}
	return r, err
}

// Flag records a strike against human on behalf of reporter. The third strike
// bans.
func (s *TrustService) Flag(ctx context.Context, reporter, human string, req *trust.FlagRequest) (*trust.HumanRecord, error) {
	if err := domain.ValidateIdentity("human", human); err != nil {
		return nil, err
	}
	var (
		out       *trust.HumanRecord
		bannedNow bool
	)
	err := s.run(ctx, "trust.flag", human, func(ctx context.Context, tx database.Tx, rec *recorder) error {
		r, err := lockOrNew(ctx, tx, human)
		if err != nil {
			return err
		}
		bannedNow, err = r.Flag(reporter, req.Reason, rec.now)
		if err != nil {
			return err
		}
		if err := tx.SaveHumanRecord(ctx, r); err != nil {
			return err
		}
		out = r
		if err := rec.emit(ctx, tx, event.TypeHumanFlagged, human, 0, humanPayload(r)); err != nil {
			return err
		}
		if bannedNow {
			return rec.emit(ctx, tx, event.TypeHumanBanned, human, 0, humanPayload(r))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "human flagged", "human", human, "reporter", reporter, "strikes", out.StrikeCount, "banned", out.Banned)
	if s.metrics != nil {
		s.metrics.Strikes.Add(ctx, 1)
		if bannedNow {
			s.metrics.Bans.Add(ctx, 1)
		}
	}
	return out, nil
}

func (c *core) requireAdmin(admin string) error {
	if c.cfg.AdminID == "" || admin != c.cfg.AdminID {
		return fmt.Errorf("caller %q is not the administrator: %w", admin, domain.ErrUnauthorized)
	}
	return nil
}

// AdminBan bans human regardless of strikes.
func (s *TrustService) AdminBan(ctx context.Context, admin, human string, req *trust.FlagRequest) (*trust.HumanRecord, error) {
	if err := s.requireAdmin(admin); err != nil {
		return nil, err
	}
	if err := domain.ValidateIdentity("human", human); err != nil {
		return nil, err
	}
	var out *trust.HumanRecord
	err := s.run(ctx, "trust.admin_ban", human, func(ctx context.Context, tx database.Tx, rec *recorder) error {
		r, err := lockOrNew(ctx, tx, human)
		if err != nil {
			return err
		}
		if err := r.AdminBan(admin, req.Reason, rec.now); err != nil {
			return err
		}
		if err := tx.SaveHumanRecord(ctx, r); err != nil {
			return err
		}
		out = r
		return rec.emit(ctx, tx, event.TypeHumanBanned, human, 0, humanPayload(r))
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "human banned by admin", "human", human, "admin", admin, "reason", req.Reason)
	if s.metrics != nil {
		s.metrics.Bans.Add(ctx, 1)
	}
	return out, nil
}

// AdminUnban lifts the ban on human and clears its strikes.
func (s *TrustService) AdminUnban(ctx context.Context, admin, human string) (*trust.HumanRecord, error) {
	if err := s.requireAdmin(admin); err != nil {
		return nil, err
	}
	var out *trust.HumanRecord
	err := s.run(ctx, "trust.admin_unban", human, func(ctx context.Context, tx database.Tx, rec *recorder) error {
		r, err := tx.LockHumanRecord(ctx, human)
		if err != nil {
			return err
		}
		r.AdminUnban()
		if err := tx.SaveHumanRecord(ctx, r); err != nil {
			return err
		}
		out = r
		return rec.emit(ctx, tx, event.TypeHumanUnbanned, human, 0, humanPayload(r))
	})
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "human unbanned by admin", "human", human, "admin", admin)
	return out, nil
}

func humanPayload(r *trust.HumanRecord) messagequeue.HumanPayload {
	return messagequeue.HumanPayload{
		Human:       r.Human,
		StrikeCount: r.StrikeCount,
		Banned:      r.Banned,
		Reason:      r.LastReason,
	}
}
