package authority_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"attestry/internal/authority"
	"attestry/internal/authproof"
	"attestry/internal/domain"
	"attestry/internal/ownership"
	"attestry/internal/storage"
	"attestry/internal/token"
	id "attestry/pkg/domain"
	dErrors "attestry/pkg/domain-errors"
)

const signingKey = "test-signing-key"

type AuthoritySuite struct {
	suite.Suite
	ctx       context.Context
	ledger    *storage.MemoryLedger
	proofs    *authproof.Service
	ownership *ownership.Service
	service   *authority.Service

	admin id.Address
	payer id.Address
	auth  id.Address
}

func TestAuthoritySuite(t *testing.T) {
	suite.Run(t, new(AuthoritySuite))
}

func (s *AuthoritySuite) SetupTest() {
	s.ctx = context.Background()
	s.ledger = storage.NewMemoryLedger()
	s.proofs = authproof.New(signingKey, "test")
	s.admin = id.Address("GADMIN")
	s.payer = id.Address("GPAYER")
	s.auth = id.Address("GAUTH")

	admin := s.admin
	s.Require().NoError(s.ledger.CreateState(s.ctx, domain.ModuleState{
		Admin:           &admin,
		TokenContractID: id.Address("CTOKEN"),
		RegistrationFee: 100,
	}))

	owners, err := ownership.New(s.ledger, token.NewMemoryClient(), s.proofs)
	s.Require().NoError(err)
	s.ownership = owners

	svc, err := authority.New(s.ledger, owners, s.proofs)
	s.Require().NoError(err)
	s.service = svc
}

func (s *AuthoritySuite) proofFor(addr id.Address) string {
	proof, err := s.proofs.Issue(addr, time.Minute)
	s.Require().NoError(err)
	return proof
}

func (s *AuthoritySuite) havePayment(refID id.RefID, recipient id.Address) {
	s.Require().NoError(s.ledger.CreatePaymentRecord(s.ctx, domain.PaymentRecord{
		Payer:      s.payer,
		Recipient:  recipient,
		RefID:      refID,
		AmountPaid: 100,
		Timestamp:  time.Now().UTC(),
	}))
}

func (s *AuthoritySuite) TestRegisterAuthority() {
	s.havePayment("r1", s.auth)

	err := s.service.RegisterAuthority(s.ctx, authority.RegisterParams{
		Caller:    s.payer,
		Proof:     s.proofFor(s.payer),
		Authority: s.auth,
		Metadata:  "meta",
		RefID:     "r1",
	})
	s.Require().NoError(err)

	registered, err := s.service.IsAuthority(s.ctx, s.auth)
	s.Require().NoError(err)
	s.True(registered)

	rec, err := s.service.GetAuthority(s.ctx, s.auth)
	s.Require().NoError(err)
	s.Require().NotNil(rec)
	s.Equal("meta", rec.Metadata)

	// payment consumed
	_, err = s.ledger.GetPaymentRecord(s.ctx, s.payer)
	s.ErrorIs(err, storage.ErrNotFound)
}

func (s *AuthoritySuite) TestOnePaymentAdmitsOneAuthority() {
	s.havePayment("r1", s.auth)

	err := s.service.RegisterAuthority(s.ctx, authority.RegisterParams{
		Caller:    s.payer,
		Proof:     s.proofFor(s.payer),
		Authority: s.auth,
	})
	s.Require().NoError(err)

	// consumed payment cannot admit a second authority
	err = s.service.RegisterAuthority(s.ctx, authority.RegisterParams{
		Caller:    s.payer,
		Proof:     s.proofFor(s.payer),
		Authority: id.Address("GAUTH2"),
	})
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *AuthoritySuite) TestRegisterWithoutPayment() {
	err := s.service.RegisterAuthority(s.ctx, authority.RegisterParams{
		Caller:    s.payer,
		Proof:     s.proofFor(s.payer),
		Authority: s.auth,
	})
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *AuthoritySuite) TestRegisterRejectsWrongRecipient() {
	s.havePayment("r1", id.Address("GSOMEONE"))

	err := s.service.RegisterAuthority(s.ctx, authority.RegisterParams{
		Caller:    s.payer,
		Proof:     s.proofFor(s.payer),
		Authority: s.auth,
	})
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	// payment survives a rejected registration
	_, err = s.ledger.GetPaymentRecord(s.ctx, s.payer)
	s.NoError(err)
}

func (s *AuthoritySuite) TestRegisterAlreadyRegistered() {
	s.Require().NoError(s.ledger.CreateAuthority(s.ctx, domain.RegisteredAuthorityData{Address: s.auth}))
	s.havePayment("r1", s.auth)

	err := s.service.RegisterAuthority(s.ctx, authority.RegisterParams{
		Caller:    s.payer,
		Proof:     s.proofFor(s.payer),
		Authority: s.auth,
	})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *AuthoritySuite) TestExactRefMatchMode() {
	svc, err := authority.New(s.ledger, s.ownership, s.proofs,
		authority.WithRefMatchMode(authority.RefMatchExact))
	s.Require().NoError(err)

	s.havePayment("r1", s.auth)

	err = svc.RegisterAuthority(s.ctx, authority.RegisterParams{
		Caller:    s.payer,
		Proof:     s.proofFor(s.payer),
		Authority: s.auth,
		RefID:     "r2",
	})
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	err = svc.RegisterAuthority(s.ctx, authority.RegisterParams{
		Caller:    s.payer,
		Proof:     s.proofFor(s.payer),
		Authority: s.auth,
		RefID:     "r1",
	})
	s.NoError(err)
}

func (s *AuthoritySuite) TestRegisterAcrossSplitLedgers() {
	// payments in one backend, authority rows in another, as the server
	// wires things when redis holds the payment ledger
	authorityLedger := storage.NewMemoryLedger()
	svc, err := authority.New(storage.NewSplitAuthorityStore(s.ledger, authorityLedger), s.ownership, s.proofs)
	s.Require().NoError(err)

	s.havePayment("r1", s.auth)

	err = svc.RegisterAuthority(s.ctx, authority.RegisterParams{
		Caller:    s.payer,
		Proof:     s.proofFor(s.payer),
		Authority: s.auth,
		RefID:     "r1",
	})
	s.Require().NoError(err)

	registered, err := svc.IsAuthority(s.ctx, s.auth)
	s.Require().NoError(err)
	s.True(registered)

	// the payment was consumed from the backend that recorded it
	_, err = s.ledger.GetPaymentRecord(s.ctx, s.payer)
	s.ErrorIs(err, storage.ErrNotFound)
}

func (s *AuthoritySuite) TestAdminRegisterAuthority() {
	err := s.service.AdminRegisterAuthority(s.ctx, s.admin, s.proofFor(s.admin), s.auth, "vetted")
	s.Require().NoError(err)

	registered, err := s.service.IsAuthority(s.ctx, s.auth)
	s.Require().NoError(err)
	s.True(registered)
}

func (s *AuthoritySuite) TestAdminRegisterRejectsNonAdmin() {
	other := id.Address("GOTHER")
	err := s.service.AdminRegisterAuthority(s.ctx, other, s.proofFor(other), s.auth, "")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *AuthoritySuite) TestIsAuthorityUnknown() {
	registered, err := s.service.IsAuthority(s.ctx, id.Address("GNOBODY"))
	s.Require().NoError(err)
	s.False(registered)

	rec, err := s.service.GetAuthority(s.ctx, id.Address("GNOBODY"))
	s.Require().NoError(err)
	s.Nil(rec)
}
