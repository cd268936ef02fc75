package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestNewRejectsShortKey(t *testing.T) {
	_, err := New("too-short")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc, err := New(testKey)
	require.NoError(t, err)
	assert.True(t, enc.Enabled())

	tests := []struct {
		name      string
		plaintext string
	}{
		{name: "api key", plaintext: "sk-1234567890abcdef"},
		{name: "empty", plaintext: ""},
		{name: "unicode", plaintext: "通义千问-密钥"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ciphertext, err := enc.Encrypt(tt.plaintext)
			require.NoError(t, err)
			if tt.plaintext != "" {
				assert.NotEqual(t, tt.plaintext, ciphertext)
			}

			plaintext, err := enc.Decrypt(ciphertext)
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, plaintext)
		})
	}
}

func TestEncryptUsesFreshNonce(t *testing.T) {
	enc, err := New(testKey)
	require.NoError(t, err)

	a, err := enc.Encrypt("sk-same")
	require.NoError(t, err)
	b, err := enc.Encrypt("sk-same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDecryptLegacyPlaintext(t *testing.T) {
	enc, err := New(testKey)
	require.NoError(t, err)

	for _, legacy := range []string{"sk-plain-key", "YWJj", "your-api-key"} {
		plaintext, err := enc.Decrypt(legacy)
		require.NoError(t, err)
		assert.Equal(t, legacy, plaintext)
	}
}

func TestPassthroughWithoutKey(t *testing.T) {
	enc, err := New("")
	require.NoError(t, err)
	assert.False(t, enc.Enabled())

	out, err := enc.Encrypt("sk-abc")
	require.NoError(t, err)
	assert.Equal(t, "sk-abc", out)

	out, err = enc.Decrypt("sk-abc")
	require.NoError(t, err)
	assert.Equal(t, "sk-abc", out)
}

func TestMask(t *testing.T) {
	assert.Equal(t, "", Mask(""))
	assert.Equal(t, "*****", Mask("short"))
	assert.Equal(t, "sk-1********cdef", Mask("sk-1234567890abcdef"))
}
