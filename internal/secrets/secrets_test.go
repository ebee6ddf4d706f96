package secrets

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/piyasasohbet/piyasabot/internal/errors"
)

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	keys := map[string]string{
		"passphrase": "correct horse battery staple",
		"base64 key": base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef")),
	}
	for name, key := range keys {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			box, err := NewBox(key)
			require.NoError(t, err)

			blob, err := box.Encrypt("123456:ABC-DEF")
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(blob, "v1:"))
			assert.NotContains(t, blob, "ABC-DEF")

			plain, err := box.Decrypt(blob)
			require.NoError(t, err)
			assert.Equal(t, "123456:ABC-DEF", plain)
		})
	}
}

func TestNonceIsRandom(t *testing.T) {
	t.Parallel()

	box, err := NewBox("k")
	require.NoError(t, err)
	a, err := box.Encrypt("same")
	require.NoError(t, err)
	b, err := box.Encrypt("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestFailuresAreConfigErrors(t *testing.T) {
	t.Parallel()

	_, err := NewBox("  ")
	assert.Equal(t, errs.CodeConfig, errs.Code(err))

	box, err := NewBox("key-one")
	require.NoError(t, err)
	other, err := NewBox("key-two")
	require.NoError(t, err)

	blob, err := box.Encrypt("token")
	require.NoError(t, err)

	for name, input := range map[string]string{
		"wrong key":  blob,
		"no prefix":  "plaintext-token",
		"bad base64": "v1:%%%",
		"too short":  "v1:" + base64.StdEncoding.EncodeToString([]byte("x")),
	} {
		_, err := other.Decrypt(input)
		require.Error(t, err, name)
		assert.Equal(t, errs.CodeConfig, errs.Code(err), name)
	}
}
