package secrets_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "attestry/pkg/domain-errors"
	"attestry/pkg/platform/secrets"
)

func TestGenerateProducesUniqueSecrets(t *testing.T) {
	a, err := secrets.Generate()
	require.NoError(t, err)
	b, err := secrets.Generate()
	require.NoError(t, err)

	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestHashAndVerify(t *testing.T) {
	hash, err := secrets.Hash("operator-token")
	require.NoError(t, err)

	assert.NoError(t, secrets.Verify("operator-token", hash))
	assert.Error(t, secrets.Verify("wrong-token", hash))
}

func TestHashRejectsEmptySecret(t *testing.T) {
	_, err := secrets.Hash("")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
