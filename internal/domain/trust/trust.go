// Package trust defines strike and ban bookkeeping for human controllers.
package trust

import (
	"fmt"
	"time"

	"github.com/Strob0t/agentledger/internal/domain"
)

// StrikeLimit is the strike count at which a human is banned automatically.
const StrikeLimit = 3

// HumanRecord is created lazily on the first flag or ban.
type HumanRecord struct {
	Human       string     `json:"human"`
	StrikeCount uint32     `json:"strike_count"`
	Banned      bool       `json:"banned"`
	LastFlagger string     `json:"last_flagger,omitempty"`
	LastReason  string     `json:"last_reason,omitempty"`
	LastFlagAt  *time.Time `json:"last_flag_at,omitempty"`
}

// NewRecord returns an empty record for human.
func NewRecord(human string) *HumanRecord {
	return &HumanRecord{Human: human}
}

// FlagRequest carries a report against a human.
type FlagRequest struct {
	Reason string `json:"reason"`
}

// Flag records one strike. Reaching StrikeLimit bans; further flags keep the ban.
// It returns true if this flag caused the ban.
func (r *HumanRecord) Flag(reporter, reason string, now time.Time) (bannedNow bool, err error) {
	if err := domain.ValidateIdentity("reporter", reporter); err != nil {
		return false, err
	}
	if err := domain.ValidateText("reason", reason); err != nil {
		return false, err
	}
	at := now.UTC()
	r.StrikeCount++
	r.LastFlagger = reporter
	r.LastReason = reason
	r.LastFlagAt = &at
	if r.StrikeCount >= StrikeLimit && !r.Banned {
		r.Banned = true
		return true, nil
	}
	return false, nil
}

// AdminBan force-sets the ban without touching the strike count.
func (r *HumanRecord) AdminBan(admin, reason string, now time.Time) error {
	if err := domain.ValidateText("reason", reason); err != nil {
		return err
	}
	at := now.UTC()
	r.Banned = true
	r.LastFlagger = admin
	r.LastReason = reason
	r.LastFlagAt = &at
	return nil
}

// AdminUnban lifts the ban and clears strikes.
func (r *HumanRecord) AdminUnban() {
	r.Banned = false
	r.StrikeCount = 0
}

// CheckBan fails with ErrBanned when the record is banned. A nil record is
// an unknown human and passes.
func CheckBan(human string, r *HumanRecord) error {
	if r != nil && r.Banned {
		return fmt.Errorf("human %s: %w", human, domain.ErrBanned)
	}
	return nil
}

// Filter narrows human record listings.
type Filter struct {
	BannedOnly bool
	Limit      int
}
