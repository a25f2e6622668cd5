package resolver_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"attestry/internal/authority"
	"attestry/internal/authproof"
	"attestry/internal/domain"
	"attestry/internal/ownership"
	"attestry/internal/payment"
	"attestry/internal/resolver"
	"attestry/internal/storage"
	"attestry/internal/token"
	id "attestry/pkg/domain"
	dErrors "attestry/pkg/domain-errors"
)

const (
	signingKey    = "test-signing-key"
	moduleAccount = id.Address("GMODULE")
	levyAmount    = int64(10)
)

type ResolverSuite struct {
	suite.Suite
	ctx     context.Context
	ledger  *storage.MemoryLedger
	tokens  *token.MemoryClient
	proofs  *authproof.Service
	service *resolver.Service

	admin    id.Address
	attester id.Address
}

func TestResolverSuite(t *testing.T) {
	suite.Run(t, new(ResolverSuite))
}

func (s *ResolverSuite) SetupTest() {
	s.ctx = context.Background()
	s.ledger = storage.NewMemoryLedger()
	s.tokens = token.NewMemoryClient()
	s.proofs = authproof.New(signingKey, "test")
	s.admin = id.Address("GADMIN")
	s.attester = id.Address("GAUTH")

	admin := s.admin
	s.Require().NoError(s.ledger.CreateState(s.ctx, domain.ModuleState{
		Admin:           &admin,
		TokenContractID: id.Address("CTOKEN"),
		RegistrationFee: 100,
		LevyAmount:      levyAmount,
	}))

	owners, err := ownership.New(s.ledger, s.tokens, s.proofs)
	s.Require().NoError(err)
	registry, err := authority.New(s.ledger, owners, s.proofs)
	s.Require().NoError(err)
	payments, err := payment.New(s.ledger, s.ledger, s.tokens, s.proofs, moduleAccount)
	s.Require().NoError(err)

	svc, err := resolver.New(s.ledger, s.ledger, registry, payments, owners, s.tokens, s.proofs, moduleAccount)
	s.Require().NoError(err)
	s.service = svc

	// the attester is a registered authority with token balance for levies
	s.Require().NoError(s.ledger.CreateAuthority(s.ctx, domain.RegisteredAuthorityData{Address: s.attester}))
	s.tokens.Mint(s.attester, 1_000)
}

func (s *ResolverSuite) proofFor(addr id.Address) string {
	proof, err := s.proofs.Issue(addr, time.Minute)
	s.Require().NoError(err)
	return proof
}

func (s *ResolverSuite) uid(seed string) id.AttestationUID {
	return id.AttestationUID(strings.Repeat(seed, 32))
}

func (s *ResolverSuite) attestation(uidSeed string) domain.Attestation {
	return domain.Attestation{
		UID:       s.uid(uidSeed),
		SchemaUID: id.SchemaUID(strings.Repeat("0f", 32)),
		Attester:  s.attester,
		Recipient: id.Address("GSUBJECT"),
		Time:      time.Now().UTC(),
		Revocable: true,
	}
}

func (s *ResolverSuite) TestMetadata() {
	meta := s.service.Metadata()
	s.Equal(domain.ResolverTypeAuthority, meta.ResolverType)
	s.NotEmpty(meta.Name)
	s.NotEmpty(meta.Version)
}

func (s *ResolverSuite) TestOnAttestAccepts() {
	accepted, err := s.service.OnAttest(s.ctx, s.attestation("aa"))
	s.Require().NoError(err)
	s.True(accepted)
}

func (s *ResolverSuite) TestOnAttestRejectsUnregisteredAttester() {
	att := s.attestation("aa")
	att.Attester = id.Address("GSTRANGER")

	accepted, err := s.service.OnAttest(s.ctx, att)
	s.False(accepted)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *ResolverSuite) TestOnAttestRejectsMalformed() {
	att := s.attestation("aa")
	att.Time = time.Time{}

	accepted, err := s.service.OnAttest(s.ctx, att)
	s.False(accepted)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ResolverSuite) TestOnAttestRejectsPastExpiration() {
	att := s.attestation("aa")
	past := att.Time.Add(-time.Hour)
	att.ExpirationTime = &past

	accepted, err := s.service.OnAttest(s.ctx, att)
	s.False(accepted)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ResolverSuite) TestOnAttestRejectsDuplicateUID() {
	att := s.attestation("aa")
	accepted, err := s.service.OnAttest(s.ctx, att)
	s.Require().NoError(err)
	s.Require().True(accepted)

	accepted, err = s.service.OnAttest(s.ctx, att)
	s.False(accepted)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ResolverSuite) TestAttestRequiresAttesterProof() {
	att := s.attestation("aa")
	err := s.service.Attest(s.ctx, att, s.proofFor(id.Address("GSTRANGER")))
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *ResolverSuite) TestRevokeByAttester() {
	att := s.attestation("aa")
	s.Require().NoError(s.service.Attest(s.ctx, att, s.proofFor(s.attester)))

	err := s.service.Revoke(s.ctx, att.UID, s.attester, s.proofFor(s.attester))
	s.Require().NoError(err)

	stored, err := s.ledger.GetAttestation(s.ctx, att.UID)
	s.Require().NoError(err)
	s.Equal(domain.AttestationRevoked, stored.State)
}

func (s *ResolverSuite) TestRevokeByAdmin() {
	att := s.attestation("aa")
	s.Require().NoError(s.service.Attest(s.ctx, att, s.proofFor(s.attester)))

	err := s.service.Revoke(s.ctx, att.UID, s.admin, s.proofFor(s.admin))
	s.NoError(err)
}

func (s *ResolverSuite) TestRevokeRejectsThirdParty() {
	att := s.attestation("aa")
	s.Require().NoError(s.service.Attest(s.ctx, att, s.proofFor(s.attester)))

	other := id.Address("GOTHER")
	err := s.service.Revoke(s.ctx, att.UID, other, s.proofFor(other))
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *ResolverSuite) TestRevokeRejectsNonRevocable() {
	att := s.attestation("aa")
	att.Revocable = false
	s.Require().NoError(s.service.Attest(s.ctx, att, s.proofFor(s.attester)))

	err := s.service.Revoke(s.ctx, att.UID, s.attester, s.proofFor(s.attester))
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *ResolverSuite) TestRevocationIsIrreversible() {
	att := s.attestation("aa")
	s.Require().NoError(s.service.Attest(s.ctx, att, s.proofFor(s.attester)))
	s.Require().NoError(s.service.Revoke(s.ctx, att.UID, s.attester, s.proofFor(s.attester)))

	// the uid can never become active again
	accepted, err := s.service.OnAttest(s.ctx, att)
	s.False(accepted)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	// nor revoked twice
	err = s.service.Revoke(s.ctx, att.UID, s.attester, s.proofFor(s.attester))
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ResolverSuite) resolveData(uidSeed string) domain.ResolverAttestationData {
	att := s.attestation(uidSeed)
	return domain.ResolverAttestationData{
		UID:       att.UID,
		SchemaUID: att.SchemaUID,
		Attester:  att.Attester,
		Recipient: att.Recipient,
		Time:      att.Time,
		Revocable: att.Revocable,
	}
}

func (s *ResolverSuite) TestOnResolveCollectsLevy() {
	accepted, err := s.service.OnResolve(s.ctx, s.resolveData("aa"))
	s.Require().NoError(err)
	s.True(accepted)

	s.Equal(int64(990), s.tokens.Balance(s.attester))
	s.Equal(levyAmount, s.tokens.Balance(moduleAccount))

	levies, err := s.ledger.GetCollectedLevies(s.ctx, s.attester)
	s.Require().NoError(err)
	s.Equal(levyAmount, levies)
}

func (s *ResolverSuite) TestOnResolveUnregisteredAuthority() {
	data := s.resolveData("aa")
	data.Attester = id.Address("GSTRANGER")

	accepted, err := s.service.OnResolve(s.ctx, data)
	s.False(accepted)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	// no levy credited
	levies, err := s.ledger.GetCollectedLevies(s.ctx, data.Attester)
	s.Require().NoError(err)
	s.Zero(levies)
}

func (s *ResolverSuite) TestOnResolveZeroLevyShortCircuits() {
	ledger := storage.NewMemoryLedger()
	admin := s.admin
	s.Require().NoError(ledger.CreateState(s.ctx, domain.ModuleState{
		Admin:           &admin,
		TokenContractID: id.Address("CTOKEN"),
		LevyAmount:      0,
	}))
	s.Require().NoError(ledger.CreateAuthority(s.ctx, domain.RegisteredAuthorityData{Address: s.attester}))

	owners, err := ownership.New(ledger, s.tokens, s.proofs)
	s.Require().NoError(err)
	registry, err := authority.New(ledger, owners, s.proofs)
	s.Require().NoError(err)
	payments, err := payment.New(ledger, ledger, s.tokens, s.proofs, moduleAccount)
	s.Require().NoError(err)
	svc, err := resolver.New(ledger, ledger, registry, payments, owners, s.tokens, s.proofs, moduleAccount)
	s.Require().NoError(err)

	before := s.tokens.Balance(s.attester)
	accepted, err := svc.OnResolve(s.ctx, s.resolveData("aa"))
	s.Require().NoError(err)
	s.True(accepted)
	s.Equal(before, s.tokens.Balance(s.attester), "zero levy must not touch the token contract")
}

func (s *ResolverSuite) TestOnResolveLevyTransferFailure() {
	s.tokens.FailNext = true

	accepted, err := s.service.OnResolve(s.ctx, s.resolveData("aa"))
	s.False(accepted)
	s.Require().Error(err)

	levies, err := s.ledger.GetCollectedLevies(s.ctx, s.attester)
	s.Require().NoError(err)
	s.Zero(levies, "failed levy transfer must not credit the ledger")
}

func (s *ResolverSuite) TestOnResolveRevocation() {
	att := s.attestation("aa")
	s.Require().NoError(s.service.Attest(s.ctx, att, s.proofFor(s.attester)))
	s.Require().NoError(s.service.Revoke(s.ctx, att.UID, s.attester, s.proofFor(s.attester)))

	now := time.Now().UTC()
	data := s.resolveData("aa")
	data.RevocationTime = &now

	accepted, err := s.service.OnResolve(s.ctx, data)
	s.Require().NoError(err)
	s.True(accepted)
}

func (s *ResolverSuite) TestOnResolveRevocationRequiresRevokedState() {
	att := s.attestation("aa")
	s.Require().NoError(s.service.Attest(s.ctx, att, s.proofFor(s.attester)))

	now := time.Now().UTC()
	data := s.resolveData("aa")
	data.RevocationTime = &now

	accepted, err := s.service.OnResolve(s.ctx, data)
	s.False(accepted)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}
