// Package authority implements the registry of identities permitted to issue
// attestations, admitted either through a paid verification step or by the
// admin directly.
package authority

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"attestry/internal/authproof"
	"attestry/internal/domain"
	"attestry/internal/storage"
	id "attestry/pkg/domain"
	dErrors "attestry/pkg/domain-errors"
	"attestry/pkg/platform/audit"
)

// RefMatchMode selects how a payment's ref_id is checked against the
// registration request. The upstream interface left this unspecified, so the
// linkage is explicit configuration rather than an assumption.
type RefMatchMode string

const (
	// RefMatchPayerOnly accepts any unconsumed payment held by the caller.
	RefMatchPayerOnly RefMatchMode = "payer-only"
	// RefMatchExact additionally requires the payment's ref_id to equal the
	// ref_id supplied with the registration.
	RefMatchExact RefMatchMode = "exact"
)

// AdminGate authorizes admin-only operations. Implemented by the ownership
// service.
type AdminGate interface {
	RequireAdmin(ctx context.Context, admin id.Address, proof string) error
}

// Service admits authorities and answers membership checks.
type Service struct {
	authorities storage.AuthorityStore
	admins      AdminGate
	proofs      authproof.Verifier
	refMode     RefMatchMode
	logger      *slog.Logger
	publisher   audit.Publisher
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher audit.Publisher) Option {
	return func(s *Service) {
		s.publisher = publisher
	}
}

func WithRefMatchMode(mode RefMatchMode) Option {
	return func(s *Service) {
		s.refMode = mode
	}
}

func New(authorities storage.AuthorityStore, admins AdminGate, proofs authproof.Verifier, opts ...Option) (*Service, error) {
	if authorities == nil {
		return nil, fmt.Errorf("authority store is required")
	}
	if admins == nil {
		return nil, fmt.Errorf("admin gate is required")
	}
	if proofs == nil {
		return nil, fmt.Errorf("proof verifier is required")
	}
	svc := &Service{
		authorities: authorities,
		admins:      admins,
		proofs:      proofs,
		refMode:     RefMatchPayerOnly,
		logger:      slog.Default(),
		publisher:   audit.NopPublisher{},
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.refMode != RefMatchPayerOnly && svc.refMode != RefMatchExact {
		return nil, fmt.Errorf("unknown ref match mode %q", svc.refMode)
	}
	return svc, nil
}

// RegisterParams carries a paid registration request. Caller is the payer;
// Authority may differ (a sponsor can pay for someone else's registration).
type RegisterParams struct {
	Caller    id.Address
	Proof     string
	Authority id.Address
	Metadata  string
	RefID     id.RefID
}

// RegisterAuthority admits an authority backed by the caller's unconsumed
// payment. The payment is consumed in the same atomic step as the registry
// write, so one payment never admits two authorities.
func (s *Service) RegisterAuthority(ctx context.Context, p RegisterParams) error {
	if p.Authority.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "authority address is required")
	}
	if err := s.proofs.Verify(ctx, p.Proof, p.Caller); err != nil {
		return err
	}

	rec := domain.RegisteredAuthorityData{
		Address:          p.Authority,
		Metadata:         p.Metadata,
		RefID:            p.RefID,
		RegistrationTime: time.Now().UTC(),
	}
	payment, err := s.authorities.RegisterWithPayment(ctx, rec, p.Caller, func(pay domain.PaymentRecord) error {
		if !pay.Recipient.IsNil() && pay.Recipient != p.Authority {
			return dErrors.New(dErrors.CodeForbidden, "payment names a different recipient")
		}
		if s.refMode == RefMatchExact && pay.RefID != p.RefID {
			return dErrors.New(dErrors.CodeForbidden, "payment ref does not match registration ref")
		}
		return nil
	})
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "authority already registered")
	case errors.Is(err, storage.ErrNotFound):
		return dErrors.New(dErrors.CodeForbidden, "no confirmed payment for caller")
	case isCoded(err):
		// validate callback rejected the payment linkage
		return err
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to register authority")
	}

	s.logger.InfoContext(ctx, "authority registered",
		"caller", p.Caller,
		"authority", p.Authority,
		"paid", payment.AmountPaid,
	)
	_ = s.publisher.Emit(ctx, audit.Event{
		Action:    audit.ActionAuthorityRegistered,
		Actor:     p.Caller,
		Authority: p.Authority,
		Amount:    payment.AmountPaid,
		RefID:     p.RefID.String(),
	})
	return nil
}

// AdminRegisterAuthority admits an authority without a payment. Admin only.
func (s *Service) AdminRegisterAuthority(ctx context.Context, admin id.Address, proof string, authority id.Address, metadata string) error {
	if authority.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "authority address is required")
	}
	if err := s.admins.RequireAdmin(ctx, admin, proof); err != nil {
		return err
	}

	rec := domain.RegisteredAuthorityData{
		Address:          authority,
		Metadata:         metadata,
		RegistrationTime: time.Now().UTC(),
	}
	if err := s.authorities.CreateAuthority(ctx, rec); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return dErrors.New(dErrors.CodeConflict, "authority already registered")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to register authority")
	}

	s.logger.InfoContext(ctx, "authority registered by admin", "admin", admin, "authority", authority)
	_ = s.publisher.Emit(ctx, audit.Event{
		Action:    audit.ActionAuthorityAdminRegistered,
		Actor:     admin,
		Authority: authority,
	})
	return nil
}

func isCoded(err error) bool {
	var de *dErrors.Error
	return errors.As(err, &de)
}

// IsAuthority reports registry membership. Pure read, never fails on absence.
func (s *Service) IsAuthority(ctx context.Context, authority id.Address) (bool, error) {
	_, err := s.authorities.GetAuthority(ctx, authority)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read authority record")
	}
	return true, nil
}

// GetAuthority returns the registration record, or nil when absent.
func (s *Service) GetAuthority(ctx context.Context, authority id.Address) (*domain.RegisteredAuthorityData, error) {
	rec, err := s.authorities.GetAuthority(ctx, authority)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read authority record")
	}
	return &rec, nil
}
