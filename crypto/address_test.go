package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddressRoundTrip(t *testing.T) {
	raw := make([]byte, AddressLength)
	raw[19] = 0x2a
	addr, err := NewAddress(KylixPrefix, raw)
	require.NoError(t, err)

	encoded := addr.String()
	require.Contains(t, encoded, "kylix1")

	decoded, err := DecodeAddress(encoded)
	require.NoError(t, err)
	require.Equal(t, addr, decoded)
	require.Equal(t, KylixPrefix, decoded.Prefix())
}

func TestNewAddressRejectsWrongLength(t *testing.T) {
	_, err := NewAddress(KylixPrefix, []byte{1, 2, 3})
	require.Error(t, err)
}

func TestDeriveAccountIsDeterministic(t *testing.T) {
	first := DeriveAccount("lending/custody")
	second := DeriveAccount(" lending/custody ")
	require.Equal(t, first, second)
	require.False(t, first.IsZero())
	require.NotEqual(t, first, DeriveAccount("lending/other"))
}

func TestAddressTextMarshalling(t *testing.T) {
	addr := DeriveAccount("alice")
	text, err := addr.MarshalText()
	require.NoError(t, err)

	var out Address
	require.NoError(t, out.UnmarshalText(text))
	require.True(t, addr.Equal(out))
}
