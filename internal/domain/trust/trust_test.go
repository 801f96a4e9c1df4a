package trust

import (
	"errors"
	"testing"
	"time"

	"github.com/Strob0t/agentledger/internal/domain"
)

func TestFlagBansAtLimit(t *testing.T) {
	r := NewRecord("bob")
	now := time.Now()
	reporters := []string{"a1", "a2", "a3", "a4"}
	for i, rep := range reporters {
		bannedNow, err := r.Flag(rep, "spam", now)
		if err != nil {
			t.Fatal(err)
		}
		if wantNow := i == 2; bannedNow != wantNow {
			t.Errorf("flag %d: bannedNow = %v, want %v", i+1, bannedNow, wantNow)
		}
		if wantBanned := i >= 2; r.Banned != wantBanned {
			t.Errorf("flag %d: banned = %v, want %v", i+1, r.Banned, wantBanned)
		}
	}
	if r.StrikeCount != 4 || !r.Banned || r.LastFlagger != "a4" {
		t.Fatalf("unexpected record: %+v", r)
	}
	if err := CheckBan("bob", r); !errors.Is(err, domain.ErrBanned) {
		t.Fatalf("expected ErrBanned, got %v", err)
	}
}

func TestAdminBanUnban(t *testing.T) {
	r := NewRecord("bob")
	_, _ = r.Flag("a1", "x", time.Now())
	if err := r.AdminBan("root", "fraud", time.Now()); err != nil {
		t.Fatal(err)
	}
	if !r.Banned || r.StrikeCount != 1 {
		t.Fatalf("admin ban must keep strikes: %+v", r)
	}
	r.AdminUnban()
	if r.Banned || r.StrikeCount != 0 {
		t.Fatalf("unban must reset: %+v", r)
	}
	if err := CheckBan("bob", r); err != nil {
		t.Fatal(err)
	}
}

func TestCheckBanUnknown(t *testing.T) {
	if err := CheckBan("nobody", nil); err != nil {
		t.Fatalf("unknown human should pass, got %v", err)
	}
}

func TestFlagValidation(t *testing.T) {
	r := NewRecord("bob")
	if _, err := r.Flag("a1", string(make([]byte, 201)), time.Now()); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if r.StrikeCount != 0 {
		t.Fatal("rejected flag must not count")
	}
}
