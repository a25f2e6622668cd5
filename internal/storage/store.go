// Package storage persists ledger state behind interfaces so the domain logic
// stays testable and in-memory, PostgreSQL, and Redis implementations can be
// swapped without rewiring business code.
//
// The key space is discriminated: one entry per logical singleton (module
// state, pool balance) plus prefix-keyed collections (per-payer payment
// records, per-authority registrations and balances, per-UID attestations) so
// each record is independently addressable without scanning.
package storage

import (
	"context"

	"attestry/internal/domain"
	id "attestry/pkg/domain"
)

// ModuleStateStore owns the singleton module state and the admin lifecycle.
type ModuleStateStore interface {
	// CreateState writes the one-time module state. Returns ErrConflict if
	// state already exists.
	CreateState(ctx context.Context, state domain.ModuleState) error

	// GetState returns the module state, or ErrNotFound before initialize.
	GetState(ctx context.Context) (domain.ModuleState, error)

	// SwapAdmin atomically replaces the admin, asserting the current admin
	// matches expect. A nil next marks the state renounced (terminal).
	// Returns ErrNotFound before initialize, ErrInvalidState after
	// renouncement, ErrConflict when expect does not match.
	SwapAdmin(ctx context.Context, expect id.Address, next *id.Address) error
}

// PaymentStore owns payment records and the fee/levy/pool balances.
//
// Every check-then-write here is one atomic step: concurrent callers observe
// either the state before or after, never an interleaving.
type PaymentStore interface {
	// CreatePaymentRecord claims the payer's payment slot. Returns
	// ErrConflict if the payer already holds an unconsumed record.
	CreatePaymentRecord(ctx context.Context, rec domain.PaymentRecord) error

	// DeletePaymentRecord removes the payer's record. Used to compensate a
	// failed token transfer. Returns ErrNotFound when absent.
	DeletePaymentRecord(ctx context.Context, payer id.Address) error

	// GetPaymentRecord returns the payer's unconsumed record, or ErrNotFound.
	GetPaymentRecord(ctx context.Context, payer id.Address) (domain.PaymentRecord, error)

	// CreditFees adds amount to the authority's collected-fees balance.
	// Returns ErrOverflow instead of wrapping.
	CreditFees(ctx context.Context, authority id.Address, amount int64) error

	// CreditLevies adds amount to the authority's collected-levies balance.
	CreditLevies(ctx context.Context, authority id.Address, amount int64) error

	// SweepFees atomically reads the authority's fee balance and zeroes it,
	// returning the amount swept (possibly zero).
	SweepFees(ctx context.Context, authority id.Address) (int64, error)

	// SweepLevies atomically reads the authority's levy balance and zeroes it.
	SweepLevies(ctx context.Context, authority id.Address) (int64, error)

	// GetCollectedFees returns the authority's fee balance; absent reads as 0.
	GetCollectedFees(ctx context.Context, authority id.Address) (int64, error)

	// GetCollectedLevies returns the authority's levy balance; absent reads as 0.
	GetCollectedLevies(ctx context.Context, authority id.Address) (int64, error)

	// CreditPool adds amount to the module's own collected-fee pool.
	CreditPool(ctx context.Context, amount int64) error

	// DebitPool atomically subtracts amount from the pool. Returns
	// ErrInsufficient when the pool holds less than amount.
	DebitPool(ctx context.Context, amount int64) error

	// PoolBalance returns the module pool balance.
	PoolBalance(ctx context.Context) (int64, error)
}

// AuthorityStore owns registered-authority records.
type AuthorityStore interface {
	// CreateAuthority admits an authority without a payment (admin path).
	// Returns ErrConflict if the address is already registered.
	CreateAuthority(ctx context.Context, rec domain.RegisteredAuthorityData) error

	// GetAuthority returns the registration record, or ErrNotFound.
	GetAuthority(ctx context.Context, authority id.Address) (domain.RegisteredAuthorityData, error)

	// RegisterWithPayment consumes the payer's payment record and writes the
	// registration as one atomic step, so one payment can never admit two
	// authorities. validate runs inside the atomic step against the payment
	// about to be consumed; a non-nil result aborts with nothing consumed.
	// Returns ErrConflict if the authority exists, ErrNotFound if the payer
	// holds no unconsumed payment.
	RegisterWithPayment(ctx context.Context, rec domain.RegisteredAuthorityData, payer id.Address, validate func(domain.PaymentRecord) error) (domain.PaymentRecord, error)
}

// AttestationStore owns attestation lifecycle entries.
type AttestationStore interface {
	// ClaimActive activates the attestation UID. Returns ErrConflict when the
	// UID already exists in any state; a revoked UID stays revoked forever.
	ClaimActive(ctx context.Context, att domain.Attestation) error

	// MarkRevoked transitions active → revoked and returns the stored entry.
	// Returns ErrNotFound for unknown UIDs and ErrInvalidState for entries
	// that are not active.
	MarkRevoked(ctx context.Context, uid id.AttestationUID) (domain.StoredAttestation, error)

	// GetAttestation returns the stored entry, or ErrNotFound.
	GetAttestation(ctx context.Context, uid id.AttestationUID) (domain.StoredAttestation, error)
}
