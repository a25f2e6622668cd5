// Package authproof verifies caller authorization proofs. A proof is a JWT
// signed with the deployment's shared key whose subject names the address the
// operation acts as; operations that say "requires authorization from X" call
// Verify(proof, X) before touching ledger state.
package authproof

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "attestry/pkg/domain"
	dErrors "attestry/pkg/domain-errors"
)

// Claims are the JWT claims carried by an authorization proof.
type Claims struct {
	jwt.RegisteredClaims
}

// Verifier checks that a proof authorizes acting as a given address.
type Verifier interface {
	Verify(ctx context.Context, proof string, addr id.Address) error
}

// Service issues and verifies HS256 proofs.
type Service struct {
	signingKey []byte
	issuer     string
}

// New constructs a proof service.
func New(signingKey string, issuer string) *Service {
	return &Service{
		signingKey: []byte(signingKey),
		issuer:     issuer,
	}
}

// Issue mints a proof for addr valid for expiresIn. Primarily for tests and
// the local signing CLI; production callers sign their own proofs.
func (s *Service) Issue(addr id.Address, expiresIn time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   addr.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(s.signingKey)
}

// Verify parses the proof and checks its subject matches addr.
func (s *Service) Verify(_ context.Context, proof string, addr id.Address) error {
	if proof == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "authorization proof is required")
	}
	parsed, err := jwt.ParseWithClaims(proof, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return dErrors.New(dErrors.CodeUnauthorized, "authorization proof has expired")
		}
		return dErrors.New(dErrors.CodeUnauthorized, "invalid authorization proof")
	}
	if !parsed.Valid {
		return dErrors.New(dErrors.CodeUnauthorized, "invalid authorization proof")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || claims.Subject != addr.String() {
		return dErrors.New(dErrors.CodeUnauthorized, "proof subject does not match caller")
	}
	return nil
}
