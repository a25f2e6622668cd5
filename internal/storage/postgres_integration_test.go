//go:build integration

package storage_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"attestry/internal/domain"
	"attestry/internal/storage"
	id "attestry/pkg/domain"
	"attestry/pkg/testutil/containers"
)

type PostgresLedgerSuite struct {
	suite.Suite
	ctx    context.Context
	pg     *containers.PostgresContainer
	ledger *storage.PostgresLedger
}

func TestPostgresLedgerSuite(t *testing.T) {
	suite.Run(t, new(PostgresLedgerSuite))
}

func (s *PostgresLedgerSuite) SetupSuite() {
	s.ctx = context.Background()
	s.pg = containers.NewPostgresContainer(s.T())
	s.ledger = storage.NewPostgresLedger(s.pg.DB)
	s.Require().NoError(s.ledger.Migrate(s.ctx))
}

func (s *PostgresLedgerSuite) TearDownSuite() {
	s.pg.Terminate(s.ctx)
}

func (s *PostgresLedgerSuite) SetupTest() {
	for _, table := range []string{"module_state", "payment_records", "authority_records", "authority_balances", "attestations"} {
		_, err := s.pg.DB.ExecContext(s.ctx, "TRUNCATE "+table)
		s.Require().NoError(err)
	}
	_, err := s.pg.DB.ExecContext(s.ctx, "UPDATE pool_balance SET balance = 0")
	s.Require().NoError(err)
}

func (s *PostgresLedgerSuite) TestStateLifecycle() {
	admin := id.Address("GADMIN")
	state := domain.ModuleState{
		Admin:           &admin,
		TokenContractID: id.Address("CTOKEN"),
		RegistrationFee: 100,
		LevyAmount:      10,
		InitializedAt:   time.Now().UTC(),
	}
	s.Require().NoError(s.ledger.CreateState(s.ctx, state))
	s.ErrorIs(s.ledger.CreateState(s.ctx, state), storage.ErrConflict)

	next := id.Address("GNEXT")
	s.ErrorIs(s.ledger.SwapAdmin(s.ctx, id.Address("GWRONG"), &next), storage.ErrConflict)
	s.Require().NoError(s.ledger.SwapAdmin(s.ctx, admin, &next))

	got, err := s.ledger.GetState(s.ctx)
	s.Require().NoError(err)
	s.Equal(next, *got.Admin)
	s.Equal(int64(100), got.RegistrationFee)

	s.Require().NoError(s.ledger.SwapAdmin(s.ctx, next, nil))
	s.ErrorIs(s.ledger.SwapAdmin(s.ctx, next, &admin), storage.ErrInvalidState)

	got, err = s.ledger.GetState(s.ctx)
	s.Require().NoError(err)
	s.Nil(got.Admin)
	s.True(got.Renounced)
}

func (s *PostgresLedgerSuite) TestPaymentRecordClaim() {
	rec := domain.PaymentRecord{
		Payer:      id.Address("GPAYER"),
		Recipient:  id.Address("GAUTH"),
		RefID:      id.RefID("r1"),
		AmountPaid: 100,
		Timestamp:  time.Now().UTC().Truncate(time.Microsecond),
	}
	s.Require().NoError(s.ledger.CreatePaymentRecord(s.ctx, rec))
	s.ErrorIs(s.ledger.CreatePaymentRecord(s.ctx, rec), storage.ErrConflict)

	got, err := s.ledger.GetPaymentRecord(s.ctx, rec.Payer)
	s.Require().NoError(err)
	s.Equal(rec.AmountPaid, got.AmountPaid)
	s.Equal(rec.RefID, got.RefID)

	s.Require().NoError(s.ledger.DeletePaymentRecord(s.ctx, rec.Payer))
	s.ErrorIs(s.ledger.DeletePaymentRecord(s.ctx, rec.Payer), storage.ErrNotFound)
}

func (s *PostgresLedgerSuite) TestRegisterWithPayment() {
	payer := id.Address("GPAYER")
	authority := id.Address("GAUTH")
	s.Require().NoError(s.ledger.CreatePaymentRecord(s.ctx, domain.PaymentRecord{
		Payer: payer, Recipient: authority, RefID: "r1", AmountPaid: 100, Timestamp: time.Now().UTC(),
	}))

	payment, err := s.ledger.RegisterWithPayment(s.ctx, domain.RegisteredAuthorityData{
		Address: authority, Metadata: "meta", RegistrationTime: time.Now().UTC(),
	}, payer, nil)
	s.Require().NoError(err)
	s.Equal(int64(100), payment.AmountPaid)

	_, err = s.ledger.GetPaymentRecord(s.ctx, payer)
	s.ErrorIs(err, storage.ErrNotFound)
	got, err := s.ledger.GetAuthority(s.ctx, authority)
	s.Require().NoError(err)
	s.Equal("meta", got.Metadata)

	// a consumed payment cannot back a second registration
	_, err = s.ledger.RegisterWithPayment(s.ctx, domain.RegisteredAuthorityData{
		Address: id.Address("GAUTH2"), RegistrationTime: time.Now().UTC(),
	}, payer, nil)
	s.ErrorIs(err, storage.ErrNotFound)
}

func (s *PostgresLedgerSuite) TestRegisterConcurrentSameAuthority() {
	authority := id.Address("GAUTH")
	payers := []id.Address{"GPAYER1", "GPAYER2"}
	for _, payer := range payers {
		s.Require().NoError(s.ledger.CreatePaymentRecord(s.ctx, domain.PaymentRecord{
			Payer: payer, Recipient: authority, AmountPaid: 100, Timestamp: time.Now().UTC(),
		}))
	}

	// both payers race to register the same authority
	errs := make(chan error, len(payers))
	for _, payer := range payers {
		go func() {
			_, err := s.ledger.RegisterWithPayment(s.ctx, domain.RegisteredAuthorityData{
				Address: authority, RegistrationTime: time.Now().UTC(),
			}, payer, nil)
			errs <- err
		}()
	}

	var won, lost int
	for range payers {
		err := <-errs
		if err == nil {
			won++
			continue
		}
		s.ErrorIs(err, storage.ErrConflict)
		lost++
	}
	s.Equal(1, won)
	s.Equal(1, lost)

	// the loser's payment survives the rolled-back registration
	var remaining int
	s.Require().NoError(s.pg.DB.QueryRowContext(s.ctx,
		"SELECT COUNT(*) FROM payment_records").Scan(&remaining))
	s.Equal(1, remaining)
}

func (s *PostgresLedgerSuite) TestRegisterValidateRejectionLeavesPayment() {
	payer := id.Address("GPAYER")
	s.Require().NoError(s.ledger.CreatePaymentRecord(s.ctx, domain.PaymentRecord{
		Payer: payer, Recipient: id.Address("GAUTH"), AmountPaid: 100, Timestamp: time.Now().UTC(),
	}))

	_, err := s.ledger.RegisterWithPayment(s.ctx, domain.RegisteredAuthorityData{
		Address: id.Address("GAUTH"), RegistrationTime: time.Now().UTC(),
	}, payer, func(domain.PaymentRecord) error {
		return storage.ErrInvalidState
	})
	s.ErrorIs(err, storage.ErrInvalidState)

	_, err = s.ledger.GetPaymentRecord(s.ctx, payer)
	s.NoError(err)
	_, err = s.ledger.GetAuthority(s.ctx, id.Address("GAUTH"))
	s.ErrorIs(err, storage.ErrNotFound)
}

func (s *PostgresLedgerSuite) TestBalances() {
	authority := id.Address("GAUTH")
	s.Require().NoError(s.ledger.CreditFees(s.ctx, authority, 50))
	s.Require().NoError(s.ledger.CreditFees(s.ctx, authority, 25))

	amount, err := s.ledger.SweepFees(s.ctx, authority)
	s.Require().NoError(err)
	s.Equal(int64(75), amount)

	amount, err = s.ledger.SweepFees(s.ctx, authority)
	s.Require().NoError(err)
	s.Zero(amount)

	s.Require().NoError(s.ledger.CreditPool(s.ctx, 100))
	s.ErrorIs(s.ledger.DebitPool(s.ctx, 101), storage.ErrInsufficient)
	s.Require().NoError(s.ledger.DebitPool(s.ctx, 60))

	balance, err := s.ledger.PoolBalance(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(40), balance)
}

func (s *PostgresLedgerSuite) TestAttestationLifecycle() {
	att := domain.Attestation{
		UID:       id.AttestationUID(strings.Repeat("ab", 32)),
		SchemaUID: id.SchemaUID(strings.Repeat("0f", 32)),
		Attester:  id.Address("GAUTH"),
		Recipient: id.Address("GSUBJECT"),
		Time:      time.Now().UTC().Truncate(time.Microsecond),
		Revocable: true,
	}
	s.Require().NoError(s.ledger.ClaimActive(s.ctx, att))
	s.ErrorIs(s.ledger.ClaimActive(s.ctx, att), storage.ErrConflict)

	stored, err := s.ledger.MarkRevoked(s.ctx, att.UID)
	s.Require().NoError(err)
	s.Equal(domain.AttestationRevoked, stored.State)
	s.NotNil(stored.RevokedAt)

	_, err = s.ledger.MarkRevoked(s.ctx, att.UID)
	s.ErrorIs(err, storage.ErrInvalidState)
	s.ErrorIs(s.ledger.ClaimActive(s.ctx, att), storage.ErrConflict)

	_, err = s.ledger.MarkRevoked(s.ctx, id.AttestationUID(strings.Repeat("cd", 32)))
	s.ErrorIs(err, storage.ErrNotFound)
}
