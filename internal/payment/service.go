// Package payment implements the verification-fee and levy ledger: payment
// records keyed by payer, per-authority fee/levy balances, the module's own
// collected-fee pool, and the withdrawal paths over the token contract.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"attestry/internal/authproof"
	"attestry/internal/domain"
	"attestry/internal/payment/metrics"
	"attestry/internal/storage"
	"attestry/internal/token"
	id "attestry/pkg/domain"
	dErrors "attestry/pkg/domain-errors"
	"attestry/pkg/platform/audit"
)

// Service owns all money movement for the module. Ledger writes are atomic at
// the store level; token transfers are ordered so a failed transfer always
// leaves the ledger as it was.
type Service struct {
	payments      storage.PaymentStore
	states        storage.ModuleStateStore
	tokens        token.Client
	proofs        authproof.Verifier
	moduleAccount id.Address
	logger        *slog.Logger
	publisher     audit.Publisher
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

func New(payments storage.PaymentStore, states storage.ModuleStateStore, tokens token.Client, proofs authproof.Verifier, moduleAccount id.Address, opts ...Option) (*Service, error) {
	if payments == nil {
		return nil, fmt.Errorf("payment store is required")
	}
	if states == nil {
		return nil, fmt.Errorf("module state store is required")
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
		payments:      payments,
		states:        states,
		tokens:        tokens,
		proofs:        proofs,
		moduleAccount: moduleAccount,
		logger:        slog.Default(),
		publisher:     audit.NopPublisher{},
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// PayParams carries a verification-fee payment request. Recipient is the
// authority the payer intends to register with this payment.
type PayParams struct {
	Payer        id.Address
	Proof        string
	Recipient    id.Address
	RefID        id.RefID
	TokenAddress id.Address
}

// PayVerificationFee takes the configured registration fee from the payer and
// records an unconsumed payment claim. The claim is written before the token
// transfer and deleted again if the transfer fails, so a successful call is
// exactly one claim plus one transfer and a failed call leaves nothing.
func (s *Service) PayVerificationFee(ctx context.Context, p PayParams) error {
	if p.Recipient.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "recipient address is required")
	}
	if err := s.proofs.Verify(ctx, p.Proof, p.Payer); err != nil {
		return err
	}
	state, err := s.moduleState(ctx)
	if err != nil {
		return err
	}
	if p.TokenAddress != state.TokenContractID {
		return dErrors.New(dErrors.CodeValidation, "token address does not match the configured token contract")
	}

	rec := domain.PaymentRecord{
		Payer:      p.Payer,
		Recipient:  p.Recipient,
		RefID:      p.RefID,
		AmountPaid: state.RegistrationFee,
		Timestamp:  time.Now().UTC(),
	}
	if err := s.payments.CreatePaymentRecord(ctx, rec); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return dErrors.New(dErrors.CodeConflict, "payer already holds an unconsumed payment")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record payment")
	}

	if err := s.tokens.Transfer(ctx, p.Payer, s.moduleAccount, state.RegistrationFee); err != nil {
		if delErr := s.payments.DeletePaymentRecord(ctx, p.Payer); delErr != nil {
			s.logger.ErrorContext(ctx, "failed to roll back payment record after transfer failure",
				"payer", p.Payer,
				"error", delErr,
			)
		}
		return mapTransferErr(err)
	}

	if err := s.payments.CreditPool(ctx, state.RegistrationFee); err != nil {
		s.logger.ErrorContext(ctx, "failed to credit module pool", "amount", state.RegistrationFee, "error", err)
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to credit module pool")
	}

	metrics.FeesCollected.Add(float64(state.RegistrationFee))
	s.logger.InfoContext(ctx, "verification fee collected",
		"payer", p.Payer,
		"recipient", p.Recipient,
		"amount", state.RegistrationFee,
	)
	_ = s.publisher.Emit(ctx, audit.Event{
		Action:    audit.ActionFeeCollected,
		Actor:     p.Payer,
		Authority: p.Recipient,
		Amount:    state.RegistrationFee,
		RefID:     p.RefID.String(),
	})
	return nil
}

// HasConfirmedPayment reports whether payer holds an unconsumed payment.
// Pure read; absence is false, not an error.
func (s *Service) HasConfirmedPayment(ctx context.Context, payer id.Address) (bool, error) {
	_, err := s.payments.GetPaymentRecord(ctx, payer)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read payment record")
	}
	return true, nil
}

// GetPaymentRecord returns the payer's unconsumed record, or nil when absent.
func (s *Service) GetPaymentRecord(ctx context.Context, payer id.Address) (*domain.PaymentRecord, error) {
	rec, err := s.payments.GetPaymentRecord(ctx, payer)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read payment record")
	}
	return &rec, nil
}

// CreditFees adds amount to the authority's collected-fees balance.
func (s *Service) CreditFees(ctx context.Context, authority id.Address, amount int64) error {
	if amount < 0 {
		return dErrors.New(dErrors.CodeValidation, "credit amount must be non-negative")
	}
	if err := s.payments.CreditFees(ctx, authority, amount); err != nil {
		return mapCreditErr(err)
	}
	metrics.FeesCollected.Add(float64(amount))
	return nil
}

// CreditLevies adds amount to the authority's collected-levies balance.
// Called by the resolver during onresolve accounting.
func (s *Service) CreditLevies(ctx context.Context, authority id.Address, amount int64) error {
	if amount < 0 {
		return dErrors.New(dErrors.CodeValidation, "credit amount must be non-negative")
	}
	if err := s.payments.CreditLevies(ctx, authority, amount); err != nil {
		return mapCreditErr(err)
	}
	metrics.LeviesCollected.Add(float64(amount))
	_ = s.publisher.Emit(ctx, audit.Event{
		Action:    audit.ActionLevyCollected,
		Authority: authority,
		Amount:    amount,
	})
	return nil
}

// WithdrawFees sweeps the caller's full fee balance and transfers it out.
// The sweep zeroes the balance atomically before the transfer; a failed
// transfer credits the amount back.
func (s *Service) WithdrawFees(ctx context.Context, caller id.Address, proof string) (int64, error) {
	return s.withdraw(ctx, caller, proof, "fees",
		s.payments.SweepFees, s.payments.CreditFees, audit.ActionFeesWithdrawn)
}

// WithdrawLevies sweeps the caller's full levy balance and transfers it out.
func (s *Service) WithdrawLevies(ctx context.Context, caller id.Address, proof string) (int64, error) {
	return s.withdraw(ctx, caller, proof, "levies",
		s.payments.SweepLevies, s.payments.CreditLevies, audit.ActionLeviesWithdrawn)
}

func (s *Service) withdraw(
	ctx context.Context,
	caller id.Address,
	proof string,
	kind string,
	sweep func(context.Context, id.Address) (int64, error),
	creditBack func(context.Context, id.Address, int64) error,
	action audit.Action,
) (int64, error) {
	if err := s.proofs.Verify(ctx, proof, caller); err != nil {
		metrics.Withdrawals.WithLabelValues(kind, "denied").Inc()
		return 0, err
	}
	if _, err := s.moduleState(ctx); err != nil {
		return 0, err
	}

	amount, err := sweep(ctx, caller)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sweep balance")
	}
	if amount == 0 {
		metrics.Withdrawals.WithLabelValues(kind, "empty").Inc()
		return 0, dErrors.New(dErrors.CodeConflict, "nothing to withdraw")
	}

	if err := s.tokens.Transfer(ctx, s.moduleAccount, caller, amount); err != nil {
		if backErr := creditBack(ctx, caller, amount); backErr != nil {
			s.logger.ErrorContext(ctx, "failed to restore balance after transfer failure",
				"authority", caller,
				"kind", kind,
				"amount", amount,
				"error", backErr,
			)
		}
		metrics.Withdrawals.WithLabelValues(kind, "failed").Inc()
		return 0, mapTransferErr(err)
	}

	metrics.Withdrawals.WithLabelValues(kind, "ok").Inc()
	s.logger.InfoContext(ctx, "balance withdrawn", "authority", caller, "kind", kind, "amount", amount)
	_ = s.publisher.Emit(ctx, audit.Event{
		Action:    action,
		Actor:     caller,
		Authority: caller,
		Amount:    amount,
	})
	return amount, nil
}

// AdminWithdrawFees takes a partial amount out of the module's own
// collected-fee pool. Admin only; distinct from any authority's balance.
func (s *Service) AdminWithdrawFees(ctx context.Context, admin id.Address, proof string, tokenAddress id.Address, amount int64) error {
	if amount <= 0 {
		return dErrors.New(dErrors.CodeValidation, "withdrawal amount must be positive")
	}
	if err := s.proofs.Verify(ctx, proof, admin); err != nil {
		return err
	}
	state, err := s.moduleState(ctx)
	if err != nil {
		return err
	}
	if !state.IsAdmin(admin) {
		return dErrors.New(dErrors.CodeUnauthorized, "caller is not the admin")
	}
	if tokenAddress != state.TokenContractID {
		return dErrors.New(dErrors.CodeValidation, "token address does not match the configured token contract")
	}

	if err := s.payments.DebitPool(ctx, amount); err != nil {
		if errors.Is(err, storage.ErrInsufficient) {
			return dErrors.New(dErrors.CodeConflict, "insufficient pool balance")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to debit pool")
	}

	if err := s.tokens.Transfer(ctx, s.moduleAccount, admin, amount); err != nil {
		if backErr := s.payments.CreditPool(ctx, amount); backErr != nil {
			s.logger.ErrorContext(ctx, "failed to restore pool after transfer failure",
				"amount", amount,
				"error", backErr,
			)
		}
		metrics.Withdrawals.WithLabelValues("pool", "failed").Inc()
		return mapTransferErr(err)
	}

	metrics.Withdrawals.WithLabelValues("pool", "ok").Inc()
	s.logger.InfoContext(ctx, "admin withdrawal", "admin", admin, "amount", amount)
	_ = s.publisher.Emit(ctx, audit.Event{
		Action: audit.ActionAdminWithdrawal,
		Actor:  admin,
		Amount: amount,
	})
	return nil
}

// GetCollectedFees returns the authority's fee balance. Absent reads as zero.
func (s *Service) GetCollectedFees(ctx context.Context, authority id.Address) (int64, error) {
	amount, err := s.payments.GetCollectedFees(ctx, authority)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read fee balance")
	}
	return amount, nil
}

// GetCollectedLevies returns the authority's levy balance. Absent reads as zero.
func (s *Service) GetCollectedLevies(ctx context.Context, authority id.Address) (int64, error) {
	amount, err := s.payments.GetCollectedLevies(ctx, authority)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read levy balance")
	}
	return amount, nil
}

// GetTotalCollected returns the module's own collected-fee pool balance.
func (s *Service) GetTotalCollected(ctx context.Context) (int64, error) {
	amount, err := s.payments.PoolBalance(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read pool balance")
	}
	return amount, nil
}

// GetTokenID returns the configured token contract identity.
func (s *Service) GetTokenID(ctx context.Context) (id.Address, error) {
	state, err := s.moduleState(ctx)
	if err != nil {
		return "", err
	}
	return state.TokenContractID, nil
}

func (s *Service) moduleState(ctx context.Context) (domain.ModuleState, error) {
	state, err := s.states.GetState(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.ModuleState{}, dErrors.New(dErrors.CodeInvariantViolation, "module not initialized")
	}
	if err != nil {
		return domain.ModuleState{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read module state")
	}
	return state, nil
}

func mapTransferErr(err error) error {
	if errors.Is(err, storage.ErrInsufficient) {
		return dErrors.Wrap(err, dErrors.CodeConflict, "insufficient token balance")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "token transfer failed")
}

func mapCreditErr(err error) error {
	if errors.Is(err, storage.ErrOverflow) {
		return dErrors.Wrap(err, dErrors.CodeInvariantViolation, "balance would overflow")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to credit balance")
}
