package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKeyAndRoundTrip(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "keys", "examload.key")

	cipher, err := GenerateKey(keyPath)
	require.NoError(t, err)

	info, err := os.Stat(keyPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	ciphertext, err := cipher.Encrypt("instructor-password")
	require.NoError(t, err)
	assert.True(t, IsEncrypted(ciphertext))
	assert.NotContains(t, ciphertext, "instructor-password")

	plaintext, err := cipher.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "instructor-password", plaintext)
}

func TestGenerateKeyReloadsExisting(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "examload.key")

	first, err := GenerateKey(keyPath)
	require.NoError(t, err)
	ciphertext, err := first.Encrypt("secret")
	require.NoError(t, err)

	// A second start must load the same identity, not replace it.
	second, err := GenerateKey(keyPath)
	require.NoError(t, err)
	plaintext, err := second.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "secret", plaintext)
}

func TestDecryptPassesThroughPlaintext(t *testing.T) {
	cipher, err := GenerateKey(filepath.Join(t.TempDir(), "examload.key"))
	require.NoError(t, err)

	plaintext, err := cipher.Decrypt("legacy-plaintext")
	require.NoError(t, err)
	assert.Equal(t, "legacy-plaintext", plaintext)
}

func TestNewCipherErrors(t *testing.T) {
	t.Run("missing path", func(t *testing.T) {
		_, err := NewCipher("")
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := NewCipher(filepath.Join(t.TempDir(), "nope.key"))
		assert.Error(t, err)
	})

	t.Run("no identities", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty.key")
		require.NoError(t, os.WriteFile(path, []byte("# just a comment\n"), 0o600))
		_, err := NewCipher(path)
		assert.Error(t, err)
	})
}
