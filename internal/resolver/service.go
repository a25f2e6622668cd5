// Package resolver implements the attestation hook surface called by the
// external attestation system: attest/revoke with caller proofs, the
// onattest/onresolve hook forms, and the static discovery metadata.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"attestry/internal/authproof"
	"attestry/internal/domain"
	"attestry/internal/resolver/metrics"
	"attestry/internal/storage"
	"attestry/internal/token"
	id "attestry/pkg/domain"
	dErrors "attestry/pkg/domain-errors"
	"attestry/pkg/platform/audit"
)

// Metadata returned to the attestation system during discovery.
var selfDescription = domain.ResolverMetadata{
	Name:         "attestry",
	Version:      "1.0.0",
	Description:  "Authority registry resolver with paid registration and levy collection",
	ResolverType: domain.ResolverTypeAuthority,
}

// Registry answers authority membership. Implemented by the authority service.
type Registry interface {
	IsAuthority(ctx context.Context, authority id.Address) (bool, error)
}

// LevyLedger credits collected levies. Implemented by the payment service.
type LevyLedger interface {
	CreditLevies(ctx context.Context, authority id.Address, amount int64) error
}

// OwnerCheck answers admin identity for the revoke authorization path.
type OwnerCheck interface {
	IsOwner(ctx context.Context, addr id.Address) (bool, error)
}

// Service drives the attestation lifecycle state machine:
// proposed → active → revoked, with rejected as the terminal for hooks that
// fail validation. Registry membership is re-checked at resolve time, never
// cached from attest time.
type Service struct {
	attestations  storage.AttestationStore
	states        storage.ModuleStateStore
	registry      Registry
	ledger        LevyLedger
	owners        OwnerCheck
	tokens        token.Client
	proofs        authproof.Verifier
	moduleAccount id.Address
	logger        *slog.Logger
	publisher     audit.Publisher
	tracer        trace.Tracer
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

func New(
	attestations storage.AttestationStore,
	states storage.ModuleStateStore,
	registry Registry,
	ledger LevyLedger,
	owners OwnerCheck,
	tokens token.Client,
	proofs authproof.Verifier,
	moduleAccount id.Address,
	opts ...Option,
) (*Service, error) {
	if attestations == nil {
		return nil, fmt.Errorf("attestation store is required")
	}
	if states == nil {
		return nil, fmt.Errorf("module state store is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("authority registry is required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("levy ledger is required")
	}
	if owners == nil {
		return nil, fmt.Errorf("owner check is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token client is required")
	}
	if proofs == nil {
		return nil, fmt.Errorf("proof verifier is required")
	}
	if moduleAccount.IsNil() {
		return nil, fmt.Errorf("module account address is required")
	}
	svc := &Service{
		attestations:  attestations,
		states:        states,
		registry:      registry,
		ledger:        ledger,
		owners:        owners,
		tokens:        tokens,
		proofs:        proofs,
		moduleAccount: moduleAccount,
		logger:        slog.Default(),
		publisher:     audit.NopPublisher{},
		tracer:        otel.Tracer("attestry/resolver"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Metadata returns the constant resolver self-description.
func (s *Service) Metadata() domain.ResolverMetadata {
	return selfDescription
}

// Attest activates an attestation on behalf of its attester. The attester
// must hold a valid proof and be a registered authority.
func (s *Service) Attest(ctx context.Context, att domain.Attestation, proof string) error {
	if err := s.proofs.Verify(ctx, proof, att.Attester); err != nil {
		return err
	}
	_, err := s.OnAttest(ctx, att)
	return err
}

// OnAttest is the hook form: validate, authorize, activate. Returns whether
// the attestation was accepted; a false return always carries the reason.
func (s *Service) OnAttest(ctx context.Context, att domain.Attestation) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "resolver.OnAttest",
		trace.WithAttributes(attribute.String("attestation.uid", att.UID.String())))
	defer span.End()

	if err := s.acceptAttestation(ctx, att); err != nil {
		span.SetStatus(codes.Error, dErrors.MessageOf(err))
		metrics.Attestations.WithLabelValues("onattest", "rejected").Inc()
		_ = s.publisher.Emit(ctx, audit.Event{
			Action:    audit.ActionAttestationRejected,
			Authority: att.Attester,
			UID:       att.UID.String(),
			Reason:    dErrors.MessageOf(err),
		})
		return false, err
	}

	metrics.Attestations.WithLabelValues("onattest", "accepted").Inc()
	s.logger.InfoContext(ctx, "attestation accepted", "uid", att.UID, "attester", att.Attester)
	_ = s.publisher.Emit(ctx, audit.Event{
		Action:    audit.ActionAttestationAccepted,
		Authority: att.Attester,
		UID:       att.UID.String(),
	})
	return true, nil
}

func (s *Service) acceptAttestation(ctx context.Context, att domain.Attestation) error {
	if err := validateAttestation(att); err != nil {
		return err
	}
	registered, err := s.registry.IsAuthority(ctx, att.Attester)
	if err != nil {
		return err
	}
	if !registered {
		return dErrors.New(dErrors.CodeForbidden, "attester is not a registered authority")
	}
	if err := s.attestations.ClaimActive(ctx, att); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return dErrors.New(dErrors.CodeConflict, "attestation uid already used")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store attestation")
	}
	return nil
}

// Revoke transitions an active attestation to revoked. The caller must be the
// original attester or the admin, and the attestation must be revocable.
// Revoked is terminal: the UID can never become active again.
func (s *Service) Revoke(ctx context.Context, uid id.AttestationUID, caller id.Address, proof string) error {
	if err := s.proofs.Verify(ctx, proof, caller); err != nil {
		return err
	}

	stored, err := s.attestations.GetAttestation(ctx, uid)
	if errors.Is(err, storage.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "attestation not found")
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read attestation")
	}
	if !stored.Attestation.Revocable {
		return dErrors.New(dErrors.CodeForbidden, "attestation is not revocable")
	}
	if caller != stored.Attestation.Attester {
		isAdmin, err := s.owners.IsOwner(ctx, caller)
		if err != nil {
			return err
		}
		if !isAdmin {
			return dErrors.New(dErrors.CodeUnauthorized, "caller is neither the attester nor the admin")
		}
	}

	if _, err := s.attestations.MarkRevoked(ctx, uid); err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return dErrors.New(dErrors.CodeNotFound, "attestation not found")
		case errors.Is(err, storage.ErrInvalidState):
			return dErrors.New(dErrors.CodeConflict, "attestation is not active")
		default:
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke attestation")
		}
	}

	metrics.Revocations.Inc()
	s.logger.InfoContext(ctx, "attestation revoked", "uid", uid, "caller", caller)
	_ = s.publisher.Emit(ctx, audit.Event{
		Action:    audit.ActionAttestationRevoked,
		Actor:     caller,
		Authority: stored.Attestation.Attester,
		UID:       uid.String(),
	})
	return nil
}

// OnResolve is called by the attestation system after an accept or revoke to
// settle accounting. For accepts it re-checks the attester's registration and
// collects the configured levy; for revocations it verifies the stored entry
// is revoked. A false return tells the caller to roll the attestation back.
func (s *Service) OnResolve(ctx context.Context, data domain.ResolverAttestationData) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "resolver.OnResolve",
		trace.WithAttributes(
			attribute.String("attestation.uid", data.UID.String()),
			attribute.Bool("attestation.revocation", data.IsRevocation()),
		))
	defer span.End()

	ok, err := s.resolve(ctx, data)
	if err != nil {
		span.SetStatus(codes.Error, dErrors.MessageOf(err))
		metrics.Attestations.WithLabelValues("onresolve", "rejected").Inc()
		return false, err
	}
	metrics.Attestations.WithLabelValues("onresolve", "accepted").Inc()
	return ok, nil
}

func (s *Service) resolve(ctx context.Context, data domain.ResolverAttestationData) (bool, error) {
	if data.IsRevocation() {
		stored, err := s.attestations.GetAttestation(ctx, data.UID)
		if errors.Is(err, storage.ErrNotFound) {
			return false, dErrors.New(dErrors.CodeNotFound, "attestation not found")
		}
		if err != nil {
			return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read attestation")
		}
		if stored.State != domain.AttestationRevoked {
			return false, dErrors.New(dErrors.CodeConflict, "attestation has not been revoked")
		}
		return true, nil
	}

	// Registry state at resolve time decides, not what held at attest time.
	registered, err := s.registry.IsAuthority(ctx, data.Attester)
	if err != nil {
		return false, err
	}
	if !registered {
		return false, dErrors.New(dErrors.CodeForbidden, "attester is not a registered authority")
	}

	state, err := s.states.GetState(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return false, dErrors.New(dErrors.CodeInvariantViolation, "module not initialized")
	}
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read module state")
	}
	if state.LevyAmount == 0 {
		return true, nil
	}

	if err := s.tokens.Transfer(ctx, data.Attester, s.moduleAccount, state.LevyAmount); err != nil {
		if errors.Is(err, storage.ErrInsufficient) {
			return false, dErrors.Wrap(err, dErrors.CodeConflict, "insufficient token balance for levy")
		}
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "levy transfer failed")
	}
	if err := s.ledger.CreditLevies(ctx, data.Attester, state.LevyAmount); err != nil {
		return false, err
	}

	metrics.LevyUnits.Add(float64(state.LevyAmount))
	s.logger.InfoContext(ctx, "levy collected", "uid", data.UID, "attester", data.Attester, "amount", state.LevyAmount)
	return true, nil
}

func validateAttestation(att domain.Attestation) error {
	if att.UID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "attestation uid is required")
	}
	if att.SchemaUID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "schema uid is required")
	}
	if att.Attester.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "attester address is required")
	}
	if att.Time.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "attestation time is required")
	}
	if att.ExpirationTime != nil && !att.ExpirationTime.After(att.Time) {
		return dErrors.New(dErrors.CodeValidation, "expiration time must be after attestation time")
	}
	if att.Expired(time.Now().UTC()) {
		return dErrors.New(dErrors.CodeValidation, "attestation has expired")
	}
	return nil
}
