// Package audit captures ledger-significant actions as events. The contract
// version of this module published chain events; here the same vocabulary
// flows through an in-process pipeline to pluggable sinks.
package audit

import (
	"context"
	"time"

	id "attestry/pkg/domain"
)

// Event is emitted from domain logic to capture key ledger actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        string     `json:"id"`
	Timestamp time.Time  `json:"timestamp"`
	Action    Action     `json:"action"`
	Actor     id.Address `json:"actor,omitempty"`
	Authority id.Address `json:"authority,omitempty"`
	Amount    int64      `json:"amount,omitempty"`
	RefID     string     `json:"ref_id,omitempty"`
	UID       string     `json:"uid,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}

// Action names a ledger event.
type Action string

const (
	// Payment ledger events
	ActionFeeCollected    Action = "fee_collected"
	ActionFeesWithdrawn   Action = "fees_withdrawn"
	ActionLevyCollected   Action = "levy_collected"
	ActionLeviesWithdrawn Action = "levies_withdrawn"
	ActionAdminWithdrawal Action = "admin_withdrawal"

	// Registry events
	ActionAuthorityRegistered      Action = "authority_registered"
	ActionAuthorityAdminRegistered Action = "authority_admin_registered"

	// Ownership events
	ActionOwnershipTransferred Action = "ownership_transferred"
	ActionOwnershipRenounced   Action = "ownership_renounced"
	ActionModuleInitialized    Action = "module_initialized"

	// Resolver events
	ActionAttestationAccepted Action = "attestation_accepted"
	ActionAttestationRejected Action = "attestation_rejected"
	ActionAttestationRevoked  Action = "attestation_revoked"
)

// Publisher emits audit events for ledger-relevant operations.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByAuthority(ctx context.Context, authority id.Address) ([]Event, error)
}
