package cryptox

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

type account struct {
	Name   string `json:"name"`
	Secret string `json:"secret"`
}

func TestDeriveMasterKey_Deterministic(t *testing.T) {
	salt := bytes.Repeat([]byte{7}, SaltSize)

	k1 := DeriveMasterKey([]byte("pw"), salt)
	k2 := DeriveMasterKey([]byte("pw"), salt)
	k3 := DeriveMasterKey([]byte("other"), salt)

	require.Len(t, k1, 32)
	require.Equal(t, k1, k2)
	require.NotEqual(t, k1, k3)
	require.Equal(t, MakeVerifier(k1), MakeVerifier(k2))
}

func TestSealOpen_RoundTrip(t *testing.T) {
	key := DeriveMasterKey([]byte("pw"), []byte("salt-salt-salt-salt"))
	in := account{Name: "home", Secret: "s3cr3t"}

	ct, nonce, err := Seal(in, key)
	require.NoError(t, err)
	require.NotContains(t, string(ct), "s3cr3t")

	var out account
	require.NoError(t, Open(ct, nonce, key, &out))
	require.Equal(t, in, out)
}

func TestOpen_WrongKeyFails(t *testing.T) {
	key := bytes.Repeat([]byte{1}, 32)
	other := bytes.Repeat([]byte{2}, 32)

	ct, nonce, err := Seal(account{Name: "x"}, key)
	require.NoError(t, err)

	var out account
	require.Error(t, Open(ct, nonce, other, &out))
}

func TestSeal_FreshNonceEachCall(t *testing.T) {
	key := bytes.Repeat([]byte{3}, 32)
	_, n1, err := Seal("a", key)
	require.NoError(t, err)
	_, n2, err := Seal("a", key)
	require.NoError(t, err)
	require.NotEqual(t, n1, n2)
}

func TestSeal_BadKeyLength(t *testing.T) {
	_, _, err := Seal("a", []byte("short"))
	require.Error(t, err)
}
