package ownership_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"attestry/internal/authproof"
	"attestry/internal/ownership"
	"attestry/internal/storage"
	"attestry/internal/token"
	tokenmock "attestry/mocks/token"
	id "attestry/pkg/domain"
	dErrors "attestry/pkg/domain-errors"
)

const signingKey = "test-signing-key"

type OwnershipSuite struct {
	suite.Suite
	ctx     context.Context
	ledger  *storage.MemoryLedger
	tokens  *token.MemoryClient
	proofs  *authproof.Service
	service *ownership.Service

	admin id.Address
}

func TestOwnershipSuite(t *testing.T) {
	suite.Run(t, new(OwnershipSuite))
}

func (s *OwnershipSuite) SetupTest() {
	s.ctx = context.Background()
	s.ledger = storage.NewMemoryLedger()
	s.tokens = token.NewMemoryClient()
	s.proofs = authproof.New(signingKey, "test")
	s.admin = id.Address("GADMIN")

	svc, err := ownership.New(s.ledger, s.tokens, s.proofs)
	s.Require().NoError(err)
	s.service = svc
}

func (s *OwnershipSuite) proofFor(addr id.Address) string {
	proof, err := s.proofs.Issue(addr, time.Minute)
	s.Require().NoError(err)
	return proof
}

func (s *OwnershipSuite) initialize() {
	err := s.service.Initialize(s.ctx, ownership.InitializeParams{
		Admin:           s.admin,
		Proof:           s.proofFor(s.admin),
		TokenContractID: id.Address("CTOKEN"),
		RegistrationFee: 100,
		LevyAmount:      10,
	})
	s.Require().NoError(err)
}

func (s *OwnershipSuite) TestInitializeOnce() {
	s.initialize()

	owner, err := s.service.GetOwner(s.ctx)
	s.Require().NoError(err)
	s.Equal(s.admin, owner)

	err = s.service.Initialize(s.ctx, ownership.InitializeParams{
		Admin:           s.admin,
		Proof:           s.proofFor(s.admin),
		TokenContractID: id.Address("CTOKEN"),
	})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *OwnershipSuite) TestInitializeRejectsNegativeFee() {
	err := s.service.Initialize(s.ctx, ownership.InitializeParams{
		Admin:           s.admin,
		Proof:           s.proofFor(s.admin),
		TokenContractID: id.Address("CTOKEN"),
		RegistrationFee: -1,
	})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *OwnershipSuite) TestInitializeRequiresProof() {
	err := s.service.Initialize(s.ctx, ownership.InitializeParams{
		Admin:           s.admin,
		Proof:           "",
		TokenContractID: id.Address("CTOKEN"),
	})
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	_, err = s.service.GetOwner(s.ctx)
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func (s *OwnershipSuite) TestGetOwnerBeforeInitialize() {
	_, err := s.service.GetOwner(s.ctx)
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func (s *OwnershipSuite) TestIsOwner() {
	isOwner, err := s.service.IsOwner(s.ctx, s.admin)
	s.Require().NoError(err)
	s.False(isOwner, "uninitialized module has no owner")

	s.initialize()

	isOwner, err = s.service.IsOwner(s.ctx, s.admin)
	s.Require().NoError(err)
	s.True(isOwner)

	isOwner, err = s.service.IsOwner(s.ctx, id.Address("GOTHER"))
	s.Require().NoError(err)
	s.False(isOwner)
}

func (s *OwnershipSuite) TestTransferOwnership() {
	s.initialize()
	next := id.Address("GNEXT")

	err := s.service.TransferOwnership(s.ctx, s.admin, s.proofFor(s.admin), next)
	s.Require().NoError(err)

	owner, err := s.service.GetOwner(s.ctx)
	s.Require().NoError(err)
	s.Equal(next, owner)

	// old admin can no longer transfer
	err = s.service.TransferOwnership(s.ctx, s.admin, s.proofFor(s.admin), s.admin)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *OwnershipSuite) TestTransferRejectsMismatchedProof() {
	s.initialize()
	impostor := id.Address("GIMPOSTOR")

	err := s.service.TransferOwnership(s.ctx, s.admin, s.proofFor(impostor), id.Address("GNEXT"))
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *OwnershipSuite) TestRenounceIsTerminal() {
	s.initialize()

	err := s.service.RenounceOwnership(s.ctx, s.admin, s.proofFor(s.admin))
	s.Require().NoError(err)

	_, err = s.service.GetOwner(s.ctx)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	err = s.service.TransferOwnership(s.ctx, s.admin, s.proofFor(s.admin), id.Address("GNEXT"))
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	err = s.service.RequireAdmin(s.ctx, s.admin, s.proofFor(s.admin))
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	isOwner, err := s.service.IsOwner(s.ctx, s.admin)
	s.Require().NoError(err)
	s.False(isOwner)
}

func TestInitializeProbesTokenContract(t *testing.T) {
	ctrl := gomock.NewController(t)
	tokens := tokenmock.NewMockClient(ctrl)
	tokens.EXPECT().Decimals(gomock.Any()).Return(uint32(0), errors.New("no such contract"))

	proofs := authproof.New(signingKey, "test")
	svc, err := ownership.New(storage.NewMemoryLedger(), tokens, proofs)
	require.NoError(t, err)

	admin := id.Address("GADMIN")
	proof, err := proofs.Issue(admin, time.Minute)
	require.NoError(t, err)

	err = svc.Initialize(context.Background(), ownership.InitializeParams{
		Admin:           admin,
		Proof:           proof,
		TokenContractID: id.Address("CBOGUS"),
	})
	require.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *OwnershipSuite) TestRequireAdmin() {
	s.initialize()

	s.NoError(s.service.RequireAdmin(s.ctx, s.admin, s.proofFor(s.admin)))

	other := id.Address("GOTHER")
	err := s.service.RequireAdmin(s.ctx, other, s.proofFor(other))
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}
