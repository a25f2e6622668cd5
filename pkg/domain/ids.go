// Package domain defines identity primitives shared across modules.
// Parsing enforces validity at trust boundaries so services can assume
// well-formed values internally.
package domain

import (
	"encoding/hex"
	"strings"

	dErrors "attestry/pkg/domain-errors"
)

// Address identifies an account on the ledger: an admin, a payer, an
// authority, or the module's own collection account.
type Address string

// MaxAddressLen bounds addresses to keep storage keys predictable.
const MaxAddressLen = 64

// ParseAddress validates and returns an Address.
func ParseAddress(s string) (Address, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "address cannot be empty")
	}
	if len(s) > MaxAddressLen {
		return "", dErrors.New(dErrors.CodeInvalidInput, "address exceeds maximum length")
	}
	if strings.ContainsAny(s, " \t\r\n") {
		return "", dErrors.New(dErrors.CodeInvalidInput, "address cannot contain whitespace")
	}
	return Address(s), nil
}

func (a Address) String() string {
	return string(a)
}

// IsNil returns true if the address is empty.
func (a Address) IsNil() bool {
	return a == ""
}

// RefID links a payment record to the registration that consumes it.
type RefID string

// MaxRefIDLen bounds reference identifiers.
const MaxRefIDLen = 128

// ParseRefID validates and returns a RefID.
func ParseRefID(s string) (RefID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "ref_id cannot be empty")
	}
	if len(s) > MaxRefIDLen {
		return "", dErrors.New(dErrors.CodeInvalidInput, "ref_id exceeds maximum length")
	}
	return RefID(s), nil
}

func (r RefID) String() string {
	return string(r)
}

func (r RefID) IsNil() bool {
	return r == ""
}

// AttestationUID is the 32-byte attestation identifier, hex encoded.
type AttestationUID string

// SchemaUID is the 32-byte schema identifier, hex encoded.
type SchemaUID string

const uidHexLen = 64

func parseUID(s string) (string, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "uid cannot be empty")
	}
	if len(s) != uidHexLen {
		return "", dErrors.New(dErrors.CodeInvalidInput, "uid must be 32 bytes hex encoded")
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", dErrors.New(dErrors.CodeInvalidInput, "uid must be valid hex")
	}
	return strings.ToLower(s), nil
}

// ParseAttestationUID validates and returns an AttestationUID.
func ParseAttestationUID(s string) (AttestationUID, error) {
	v, err := parseUID(s)
	if err != nil {
		return "", err
	}
	return AttestationUID(v), nil
}

func (u AttestationUID) String() string {
	return string(u)
}

func (u AttestationUID) IsNil() bool {
	return u == ""
}

// ParseSchemaUID validates and returns a SchemaUID.
func ParseSchemaUID(s string) (SchemaUID, error) {
	v, err := parseUID(s)
	if err != nil {
		return "", err
	}
	return SchemaUID(v), nil
}

func (u SchemaUID) String() string {
	return string(u)
}

func (u SchemaUID) IsNil() bool {
	return u == ""
}
