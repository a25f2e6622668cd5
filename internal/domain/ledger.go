// Package domain holds the entities persisted in ledger state. Stores own
// persistence; services own the rules that mutate these values.
package domain

import (
	"time"

	id "attestry/pkg/domain"
)

// ModuleState is the singleton configuration written once at initialize time.
//
// Invariants:
//   - Exactly one ModuleState exists after Initialize; zero before.
//   - Admin has three lifecycle states: unset (pre-init), set, renounced.
//     Renounced is terminal: Admin is nil and Renounced is true, forever.
//   - RegistrationFee, LevyAmount, TokenContractID and TokenWasmHash are
//     immutable after Initialize. No setters exist.
type ModuleState struct {
	Admin           *id.Address `json:"admin,omitempty"`
	Renounced       bool        `json:"renounced"`
	TokenContractID id.Address  `json:"token_contract_id"`
	TokenWasmHash   string      `json:"token_wasm_hash"`
	RegistrationFee int64       `json:"registration_fee"`
	LevyAmount      int64       `json:"levy_amount"`
	InitializedAt   time.Time   `json:"initialized_at"`
}

// HasAdmin reports whether an admin is currently set.
func (m ModuleState) HasAdmin() bool {
	return m.Admin != nil && !m.Renounced
}

// IsAdmin reports whether addr is the current admin.
func (m ModuleState) IsAdmin(addr id.Address) bool {
	return m.HasAdmin() && *m.Admin == addr
}

// PaymentRecord tracks one unconsumed verification-fee payment, keyed by payer.
// It is created by PayVerificationFee and consumed atomically by
// RegisterAuthority. A payer holds at most one unconsumed record.
type PaymentRecord struct {
	Payer      id.Address `json:"payer"`
	Recipient  id.Address `json:"recipient"`
	RefID      id.RefID   `json:"ref_id"`
	AmountPaid int64      `json:"amount_paid"`
	Timestamp  time.Time  `json:"timestamp"`
}

// RegisteredAuthorityData records an admitted authority. Entries are created
// once and never deleted; re-registration of the same address is rejected.
type RegisteredAuthorityData struct {
	Address          id.Address `json:"address"`
	Metadata         string     `json:"metadata"`
	RefID            id.RefID   `json:"ref_id"`
	RegistrationTime time.Time  `json:"registration_time"`
}
