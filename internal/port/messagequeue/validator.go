package messagequeue

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Strob0t/agentledger/internal/domain/event"
)

// Validate checks whether data is a well-formed ledger event for subject:
// valid JSON, an envelope whose type matches the subject, and a payload that
// decodes into the schema of its entity family. Subjects outside the ledger
// prefix pass.
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}
	if !strings.HasPrefix(subject, SubjectPrefix+".") {
		return nil
	}

	var ev event.LedgerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", subject, err)
	}
	if ev.ID == "" {
		return fmt.Errorf("schema validation failed for %s: missing id", subject)
	}
	if SubjectFor(ev.Type) != subject {
		return fmt.Errorf("schema validation failed for %s: event type %q", subject, ev.Type)
	}
	if len(ev.Payload) == 0 {
		return nil
	}

	var target any
	family, _, _ := strings.Cut(string(ev.Type), ".")
	switch family {
	case "escrow":
		target = &EscrowPayload{}
	case "wallet":
		target = &WalletPayload{}
	case "acquisition":
		target = &AcquisitionPayload{}
	case "human":
		target = &HumanPayload{}
	case "ledger":
		target = &DepositPayload{}
	default:
		return nil
	}
	if err := json.Unmarshal(ev.Payload, target); err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", subject, err)
	}
	return nil
}
