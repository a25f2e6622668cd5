package domain

import (
	"time"

	id "attestry/pkg/domain"
)

// AttestationState tracks where an attestation sits in its lifecycle.
//
// Transitions: proposed → active, proposed → rejected, active → revoked.
// No other transitions exist. Proposed and rejected are transient: the store
// only ever holds active and revoked entries, and a revoked UID can never be
// claimed again.
type AttestationState string

const (
	AttestationProposed AttestationState = "proposed"
	AttestationActive   AttestationState = "active"
	AttestationRevoked  AttestationState = "revoked"
	AttestationRejected AttestationState = "rejected"
)

// Attestation is the claim record handed in by the attestation system on
// attest/revoke calls. This module copies what it needs into ledger state and
// does not own the attestation beyond that.
type Attestation struct {
	UID            id.AttestationUID  `json:"uid"`
	SchemaUID      id.SchemaUID       `json:"schema_uid"`
	Attester       id.Address         `json:"attester"`
	Recipient      id.Address         `json:"recipient"`
	Data           []byte             `json:"data,omitempty"`
	Time           time.Time          `json:"time"`
	ExpirationTime *time.Time         `json:"expiration_time,omitempty"`
	RefUID         *id.AttestationUID `json:"ref_uid,omitempty"`
	Revocable      bool               `json:"revocable"`
	Value          *int64             `json:"value,omitempty"`
}

// Expired reports whether the attestation carries an expiration in the past
// relative to now. An absent expiration never expires.
func (a Attestation) Expired(now time.Time) bool {
	return a.ExpirationTime != nil && !a.ExpirationTime.After(now)
}

// ResolverAttestationData is the hook payload for onattest/onresolve. A
// non-zero RevocationTime marks the call as a revocation resolve.
type ResolverAttestationData struct {
	UID            id.AttestationUID  `json:"uid"`
	SchemaUID      id.SchemaUID       `json:"schema_uid"`
	Attester       id.Address         `json:"attester"`
	Recipient      id.Address         `json:"recipient"`
	Data           []byte             `json:"data,omitempty"`
	Time           time.Time          `json:"time"`
	ExpirationTime *time.Time         `json:"expiration_time,omitempty"`
	RefUID         *id.AttestationUID `json:"ref_uid,omitempty"`
	Revocable      bool               `json:"revocable"`
	RevocationTime *time.Time         `json:"revocation_time,omitempty"`
	Value          *int64             `json:"value,omitempty"`
}

// IsRevocation reports whether this resolve follows a revoke.
func (d ResolverAttestationData) IsRevocation() bool {
	return d.RevocationTime != nil && !d.RevocationTime.IsZero()
}

// ResolverType classifies resolver implementations for discovery.
type ResolverType string

const (
	ResolverTypeDefault       ResolverType = "default"
	ResolverTypeAuthority     ResolverType = "authority"
	ResolverTypeTokenReward   ResolverType = "token_reward"
	ResolverTypeFeeCollection ResolverType = "fee_collection"
	ResolverTypeHybrid        ResolverType = "hybrid"
	ResolverTypeStaking       ResolverType = "staking"
	ResolverTypeCustom        ResolverType = "custom"
)

// ResolverMetadata is the static self-description read by the attestation
// system during discovery. It is a constant, never persisted per instance.
type ResolverMetadata struct {
	Name         string       `json:"name"`
	Version      string       `json:"version"`
	Description  string       `json:"description"`
	ResolverType ResolverType `json:"resolver_type"`
}

// StoredAttestation is the ledger-side view of an attestation lifecycle entry.
type StoredAttestation struct {
	Attestation Attestation      `json:"attestation"`
	State       AttestationState `json:"state"`
	RevokedAt   *time.Time       `json:"revoked_at,omitempty"`
}
