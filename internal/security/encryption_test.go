package security

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEncryptor(t *testing.T) *Encryptor {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	e, err := NewEncryptor(key)
	require.NoError(t, err)
	return e
}

func TestEncryptor_SealOpen(t *testing.T) {
	e := newTestEncryptor(t)

	testCases := []struct {
		name      string
		plaintext []byte
	}{
		{name: "tag record", plaintext: []byte(`{"rxId":"rx-1","patient":"p-1","meds":[]}`)},
		{name: "binary", plaintext: []byte{0xd2, 0x2a, 0x00, 0x7b}},
		{name: "unicode", plaintext: []byte("Amoxicilina 500mg cada 8 horas")},
		{name: "empty", plaintext: []byte{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sealed, err := e.Seal(tc.plaintext, []byte("rx-1"))
			require.NoError(t, err)
			assert.NotEqual(t, tc.plaintext, sealed)

			opened, err := e.Open(sealed, []byte("rx-1"))
			require.NoError(t, err)
			assert.Equal(t, string(tc.plaintext), string(opened))
		})
	}
}

func TestEncryptor_InvalidKey(t *testing.T) {
	for _, size := range []int{0, 16, 64} {
		_, err := NewEncryptor(make([]byte, size))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "encryption key must be 32 bytes")
	}
}

func TestEncryptor_DifferentCiphertexts(t *testing.T) {
	e := newTestEncryptor(t)
	plaintext := []byte("same payload")

	a, err := e.Seal(plaintext, nil)
	require.NoError(t, err)
	b, err := e.Seal(plaintext, nil)
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "sealing the same plaintext twice must use different nonces")
}

func TestEncryptor_OpenRejectsTampering(t *testing.T) {
	e := newTestEncryptor(t)

	sealed, err := e.Seal([]byte("payload"), []byte("rx-1"))
	require.NoError(t, err)

	_, err = e.Open(sealed, []byte("rx-2"))
	assert.Error(t, err, "wrong associated data")

	corrupted := append([]byte{}, sealed...)
	corrupted[len(corrupted)-1] ^= 0xff
	_, err = e.Open(corrupted, []byte("rx-1"))
	assert.Error(t, err)

	_, err = e.Open([]byte{1, 2, 3}, nil)
	assert.ErrorIs(t, err, ErrCiphertextTooShort)
}
