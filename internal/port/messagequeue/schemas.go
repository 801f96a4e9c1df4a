package messagequeue

// EscrowPayload is the schema for ledger.escrow.* messages.
type EscrowPayload struct {
	Poster          string `json:"poster"`
	TaskID          string `json:"task_id"`
	Status          string `json:"status"`
	BountyAmount    uint64 `json:"bounty_amount"`
	InsuranceAmount uint64 `json:"insurance_amount"`
	Agent           string `json:"agent,omitempty"`
}

// WalletPayload is the schema for ledger.wallet.* messages.
type WalletPayload struct {
	Agent     string `json:"agent"`
	Human     string `json:"human"`
	Balance   uint64 `json:"balance"`
	Tier      string `json:"tier"`
	Recipient string `json:"recipient,omitempty"`
	Memo      string `json:"memo,omitempty"`
}

// AcquisitionPayload is the schema for ledger.acquisition.* messages.
type AcquisitionPayload struct {
	Buyer        string `json:"buyer"`
	Target       string `json:"target"`
	Price        uint64 `json:"price"`
	Status       string `json:"status"`
	BuyerSigned  bool   `json:"buyer_signed"`
	TargetSigned bool   `json:"target_signed"`
	Merged       uint64 `json:"merged,omitempty"`
}

// HumanPayload is the schema for ledger.human.* messages.
type HumanPayload struct {
	Human       string `json:"human"`
	StrikeCount uint32 `json:"strike_count"`
	Banned      bool   `json:"banned"`
	Reason      string `json:"reason,omitempty"`
}

// DepositPayload is the schema for ledger.ledger.deposited messages.
type DepositPayload struct {
	Account string `json:"account"`
	Balance uint64 `json:"balance"`
}
