package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateKeypairSignVerify(t *testing.T) {
	kp := GenerateKeypair()
	require.Equal(t, kp.Public, kp.Private.PublicKey())

	msg := []byte("pay alice 10 coins")
	sig := Sign(kp.Private, msg)
	require.True(t, Verify(kp.Public, msg, sig))

	require.False(t, Verify(kp.Public, []byte("pay alice 11 coins"), sig))

	other := GenerateKeypair()
	require.False(t, Verify(other.Public, msg, sig))
}

func TestGenerateKeypairUnique(t *testing.T) {
	a := GenerateKeypair()
	b := GenerateKeypair()
	require.NotEqual(t, a.Public, b.Public)
}

func TestHashBytesDeterministic(t *testing.T) {
	require.Equal(t, HashBytes([]byte("abc")), HashBytes([]byte("abc")))
	require.NotEqual(t, HashBytes([]byte("abc")), HashBytes([]byte("abd")))
}

func TestCalcAddressDeterministic(t *testing.T) {
	kp := GenerateKeypair()
	require.Equal(t, CalcAddress(kp.Public), CalcAddress(kp.Public))
}

func TestHasherStreaming(t *testing.T) {
	h := NewHasher()
	h.Write([]byte("hello, "))
	h.Write([]byte("world"))
	streamed := h.Sum()

	require.Equal(t, HashBytes([]byte("hello, world")), streamed)

	h.Reset()
	h.Write([]byte("next"))
	require.NotEqual(t, streamed, h.Sum())
}
