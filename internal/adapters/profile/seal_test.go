package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealUnsealRoundTrip(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)

	sealed, err := Seal("my-api-token", "correct horse", salt)
	require.NoError(t, err)
	require.NotEqual(t, "my-api-token", sealed)

	plain, err := Unseal(sealed, "correct horse", salt)
	require.NoError(t, err)
	assert.Equal(t, "my-api-token", plain)
}

func TestUnsealWrongPassword(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)
	sealed, err := Seal("my-api-token", "right", salt)
	require.NoError(t, err)

	_, err = Unseal(sealed, "wrong", salt)
	assert.ErrorIs(t, err, ErrWrongPassword)
}

func TestUnsealWrongSalt(t *testing.T) {
	salt1, err := NewSalt()
	require.NoError(t, err)
	salt2, err := NewSalt()
	require.NoError(t, err)

	sealed, err := Seal("token", "pw", salt1)
	require.NoError(t, err)

	_, err = Unseal(sealed, "pw", salt2)
	assert.ErrorIs(t, err, ErrWrongPassword)
}

func TestSealRandomizesNonce(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)

	a, err := Seal("token", "pw", salt)
	require.NoError(t, err)
	b, err := Seal("token", "pw", salt)
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "two seals of the same token must differ")
}

func TestUnsealGarbage(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)

	_, err = Unseal("not base64 at all!!!", "pw", salt)
	assert.Error(t, err)

	_, err = Unseal("AAAA", "pw", salt)
	assert.ErrorIs(t, err, ErrWrongPassword)
}
