package domain

import "math"

// Length limits shared by all ledger entities.
const (
	MaxIdentityLen = 64
	MaxTaskIDLen   = 50
	MaxTextLen     = 200
)

// MaxAmount is the largest amount the ledger stores (it must fit a signed BIGINT).
const MaxAmount uint64 = math.MaxInt64

// ValidateIdentity checks that s is a usable participant identity: 1..64 characters
// of [A-Za-z0-9._-], so it composes into account keys and URL path segments.
func ValidateIdentity(field, s string) error {
	return validateKey(field, s, MaxIdentityLen)
}

// ValidateTaskID checks a task identifier (1..50 characters, same charset as identities).
func ValidateTaskID(s string) error {
	return validateKey("task_id", s, MaxTaskIDLen)
}

// ValidateText checks a free-text field against the 200 byte limit.
func ValidateText(field, s string) error {
	if len(s) > MaxTextLen {
		return Validationf("%s too long (max %d chars)", field, MaxTextLen)
	}
	return nil
}

// ValidateAmount checks that amount is positive and storable.
func ValidateAmount(field string, amount uint64) error {
	if amount == 0 {
		return Validationf("%s must be > 0", field)
	}
	if amount > MaxAmount {
		return Validationf("%s exceeds maximum %d", field, MaxAmount)
	}
	return nil
}

// AddAmount returns a+b, failing when the sum exceeds MaxAmount.
func AddAmount(a, b uint64) (uint64, error) {
	if b > MaxAmount || a > MaxAmount-b {
		return 0, Validationf("amount overflow")
	}
	return a + b, nil
}

func validateKey(field, s string, maxLen int) error {
	if s == "" {
		return Validationf("%s is required", field)
	}
	if len(s) > maxLen {
		return Validationf("%s too long (max %d chars)", field, maxLen)
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '.', c == '_', c == '-':
		default:
			return Validationf("%s contains invalid character %q", field, c)
		}
	}
	return nil
}
