package storage

import (
	"context"
	"errors"
	"fmt"

	"attestry/internal/domain"
	id "attestry/pkg/domain"
)

// PaymentConsumer is the slice of a payment store the split authority store
// needs: single-winner consumption plus re-creation for compensation.
type PaymentConsumer interface {
	ConsumePaymentRecord(ctx context.Context, payer id.Address) (domain.PaymentRecord, error)
	CreatePaymentRecord(ctx context.Context, rec domain.PaymentRecord) error
}

// SplitAuthorityStore pairs an authority store with a payment store living in
// a different backend, such as Redis payments over a Postgres or in-memory
// registry. RegisterWithPayment cannot span the two backends in one
// transaction, so the atomic consume is the single-winner step: whoever gets
// the record proceeds, and the record is restored when registration is
// rejected afterwards.
type SplitAuthorityStore struct {
	payments    PaymentConsumer
	authorities AuthorityStore
}

// NewSplitAuthorityStore wires a cross-backend authority store.
func NewSplitAuthorityStore(payments PaymentConsumer, authorities AuthorityStore) *SplitAuthorityStore {
	return &SplitAuthorityStore{payments: payments, authorities: authorities}
}

func (s *SplitAuthorityStore) CreateAuthority(ctx context.Context, rec domain.RegisteredAuthorityData) error {
	return s.authorities.CreateAuthority(ctx, rec)
}

func (s *SplitAuthorityStore) GetAuthority(ctx context.Context, authority id.Address) (domain.RegisteredAuthorityData, error) {
	return s.authorities.GetAuthority(ctx, authority)
}

func (s *SplitAuthorityStore) RegisterWithPayment(ctx context.Context, rec domain.RegisteredAuthorityData, payer id.Address, validate func(domain.PaymentRecord) error) (domain.PaymentRecord, error) {
	// Cheap pre-check so an already-registered authority fails before the
	// payment is touched. The authoritative duplicate check is CreateAuthority.
	if _, err := s.authorities.GetAuthority(ctx, rec.Address); err == nil {
		return domain.PaymentRecord{}, ErrConflict
	} else if !errors.Is(err, ErrNotFound) {
		return domain.PaymentRecord{}, err
	}

	payment, err := s.payments.ConsumePaymentRecord(ctx, payer)
	if err != nil {
		return domain.PaymentRecord{}, err
	}
	if validate != nil {
		if err := validate(payment); err != nil {
			return domain.PaymentRecord{}, s.restore(ctx, payment, err)
		}
	}
	if err := s.authorities.CreateAuthority(ctx, rec); err != nil {
		return domain.PaymentRecord{}, s.restore(ctx, payment, err)
	}
	return payment, nil
}

// restore puts the consumed record back so a rejected registration does not
// burn the payment. The original rejection stays the primary error.
func (s *SplitAuthorityStore) restore(ctx context.Context, rec domain.PaymentRecord, cause error) error {
	if err := s.payments.CreatePaymentRecord(ctx, rec); err != nil {
		return fmt.Errorf("restore payment record after rejection: %v: %w", err, cause)
	}
	return cause
}
