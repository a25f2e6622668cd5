// Package ownership implements the single-owner admin gate for the module:
// one-time initialization, ownership transfer, and irreversible renouncement.
package ownership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"attestry/internal/authproof"
	"attestry/internal/domain"
	"attestry/internal/storage"
	"attestry/internal/token"
	id "attestry/pkg/domain"
	dErrors "attestry/pkg/domain-errors"
	"attestry/pkg/platform/audit"
)

// Service guards the admin identity and module state singleton.
type Service struct {
	state     storage.ModuleStateStore
	tokens    token.Client
	proofs    authproof.Verifier
	logger    *slog.Logger
	publisher audit.Publisher
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

func New(state storage.ModuleStateStore, tokens token.Client, proofs authproof.Verifier, opts ...Option) (*Service, error) {
	if state == nil {
		return nil, fmt.Errorf("module state store is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token client is required")
	}
	if proofs == nil {
		return nil, fmt.Errorf("proof verifier is required")
	}
	svc := &Service{
		state:     state,
		tokens:    tokens,
		proofs:    proofs,
		logger:    slog.Default(),
		publisher: audit.NopPublisher{},
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// InitializeParams carries the one-time setup values.
type InitializeParams struct {
	Admin           id.Address
	Proof           string
	TokenContractID id.Address
	TokenWasmHash   string
	RegistrationFee int64
	LevyAmount      int64
}

// Initialize performs the one-time module setup. It validates the configured
// token contract by querying its decimals before any state is written, the
// same probe the ledger contract ran at deployment.
func (s *Service) Initialize(ctx context.Context, p InitializeParams) error {
	if p.Admin.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "admin address is required")
	}
	if p.TokenContractID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "token contract id is required")
	}
	if p.RegistrationFee < 0 {
		return dErrors.New(dErrors.CodeValidation, "registration fee must be non-negative")
	}
	if p.LevyAmount < 0 {
		return dErrors.New(dErrors.CodeValidation, "levy amount must be non-negative")
	}
	if err := s.proofs.Verify(ctx, p.Proof, p.Admin); err != nil {
		return err
	}
	if _, err := s.tokens.Decimals(ctx); err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "token contract does not implement the token interface")
	}

	admin := p.Admin
	state := domain.ModuleState{
		Admin:           &admin,
		TokenContractID: p.TokenContractID,
		TokenWasmHash:   p.TokenWasmHash,
		RegistrationFee: p.RegistrationFee,
		LevyAmount:      p.LevyAmount,
		InitializedAt:   time.Now().UTC(),
	}
	if err := s.state.CreateState(ctx, state); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return dErrors.New(dErrors.CodeConflict, "module already initialized")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to write module state")
	}

	s.logger.InfoContext(ctx, "module initialized",
		"admin", p.Admin,
		"token_contract", p.TokenContractID,
		"registration_fee", p.RegistrationFee,
	)
	_ = s.publisher.Emit(ctx, audit.Event{
		Action: audit.ActionModuleInitialized,
		Actor:  p.Admin,
	})
	return nil
}

// State returns the module state. Other services read configuration
// (registration fee, token identity, levy amount) through this.
func (s *Service) State(ctx context.Context) (domain.ModuleState, error) {
	state, err := s.state.GetState(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.ModuleState{}, dErrors.New(dErrors.CodeInvariantViolation, "module not initialized")
	}
	if err != nil {
		return domain.ModuleState{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read module state")
	}
	return state, nil
}

// GetOwner returns the current admin address. Fails when the module is not
// initialized or ownership was renounced.
func (s *Service) GetOwner(ctx context.Context) (id.Address, error) {
	state, err := s.State(ctx)
	if err != nil {
		return "", err
	}
	if !state.HasAdmin() {
		return "", dErrors.New(dErrors.CodeNotFound, "no owner set")
	}
	return *state.Admin, nil
}

// IsOwner reports whether addr is the current admin. Pure read; an
// uninitialized or renounced module answers false rather than failing.
func (s *Service) IsOwner(ctx context.Context, addr id.Address) (bool, error) {
	state, err := s.state.GetState(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read module state")
	}
	return state.IsAdmin(addr), nil
}

// TransferOwnership atomically replaces the admin.
func (s *Service) TransferOwnership(ctx context.Context, currentOwner id.Address, proof string, newOwner id.Address) error {
	if newOwner.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "new owner address is required")
	}
	if err := s.proofs.Verify(ctx, proof, currentOwner); err != nil {
		return err
	}
	next := newOwner
	if err := s.swapAdmin(ctx, currentOwner, &next); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "ownership transferred", "from", currentOwner, "to", newOwner)
	_ = s.publisher.Emit(ctx, audit.Event{
		Action: audit.ActionOwnershipTransferred,
		Actor:  currentOwner,
		Reason: "new owner " + newOwner.String(),
	})
	return nil
}

// RenounceOwnership sets the admin to absent permanently. There is no
// recovery path: every admin-gated call fails from here on.
func (s *Service) RenounceOwnership(ctx context.Context, currentOwner id.Address, proof string) error {
	if err := s.proofs.Verify(ctx, proof, currentOwner); err != nil {
		return err
	}
	if err := s.swapAdmin(ctx, currentOwner, nil); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "ownership renounced", "owner", currentOwner)
	_ = s.publisher.Emit(ctx, audit.Event{
		Action: audit.ActionOwnershipRenounced,
		Actor:  currentOwner,
	})
	return nil
}

func (s *Service) swapAdmin(ctx context.Context, expect id.Address, next *id.Address) error {
	err := s.state.SwapAdmin(ctx, expect, next)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return dErrors.New(dErrors.CodeInvariantViolation, "module not initialized")
	case errors.Is(err, storage.ErrInvalidState):
		return dErrors.New(dErrors.CodeUnauthorized, "ownership has been renounced")
	case errors.Is(err, storage.ErrConflict):
		return dErrors.New(dErrors.CodeUnauthorized, "caller is not the owner")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update admin")
	}
}

// RequireAdmin verifies proof for admin and checks admin is the stored owner.
// Admin-gated operations in other modules go through this.
func (s *Service) RequireAdmin(ctx context.Context, admin id.Address, proof string) error {
	if err := s.proofs.Verify(ctx, proof, admin); err != nil {
		return err
	}
	state, err := s.state.GetState(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return dErrors.New(dErrors.CodeInvariantViolation, "module not initialized")
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read module state")
	}
	if !state.IsAdmin(admin) {
		return dErrors.New(dErrors.CodeUnauthorized, "caller is not the admin")
	}
	return nil
}
