package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers return
// these (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about ledger resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrConflict: entity already exists or a compare-and-swap lost
// - ErrInvalidState: entity in wrong state for requested transition
// - ErrInsufficient: balance too low for the requested debit
// - ErrOverflow: credit would exceed the numeric range of the ledger
// - ErrUnavailable: backing store temporarily unavailable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrInsufficient = errors.New("insufficient balance")
	ErrOverflow     = errors.New("overflow")
	ErrUnavailable  = errors.New("unavailable")
)
