package keystore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	f, err := Encrypt("0xabc", "deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef", "correct horse battery staple")
	require.NoError(t, err)

	got, err := Decrypt(f, "correct horse battery staple")
	require.NoError(t, err)
	assert.Equal(t, "deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef", got)
}

func TestDecryptWrongPassphrase(t *testing.T) {
	f, err := Encrypt("0xabc", "secretkey", "right passphrase")
	require.NoError(t, err)

	_, err = Decrypt(f, "wrong passphrase")
	assert.Error(t, err)
}

func TestSaveLoad(t *testing.T) {
	dir := t.TempDir()
	f, err := Encrypt("0xabc", "secretkey", "pw")
	require.NoError(t, err)

	path := filepath.Join(dir, "agent.json")
	require.NoError(t, Save(path, f))

	loaded, err := Load(path)
	require.NoError(t, err)

	got, err := Decrypt(loaded, "pw")
	require.NoError(t, err)
	assert.Equal(t, "secretkey", got)
}
