// Package crypto is the cryptographic oracle the rest of the module treats
// as a black box: keypair generation, address derivation, signing, and
// verification. Nothing above this package knows or cares that the
// underlying primitives are Ed25519 and BLAKE2b.
package crypto

import (
	"crypto/ed25519"

	"golang.org/x/crypto/blake2b"
	"lukechampine.com/frand"
)

// A PublicKey identifies a keyholder and is used to verify their signatures.
type PublicKey [ed25519.PublicKeySize]byte

// A PrivateKey signs messages on behalf of a PublicKey.
type PrivateKey []byte

// PublicKey returns the PublicKey derived from priv.
func (priv PrivateKey) PublicKey() (pk PublicKey) {
	copy(pk[:], priv[ed25519.PublicKeySize:])
	return
}

// A Signature authenticates a message as having been signed by a PrivateKey.
type Signature [ed25519.SignatureSize]byte

// A Hash is a generic 256-bit digest.
type Hash [32]byte

// A Keypair is a matched PublicKey/PrivateKey pair.
type Keypair struct {
	Public  PublicKey
	Private PrivateKey
}

// GenerateKeypair creates a new Keypair from a secure entropy source.
func GenerateKeypair() Keypair {
	seed := make([]byte, ed25519.SeedSize)
	frand.Read(seed)
	priv := PrivateKey(ed25519.NewKeyFromSeed(seed))
	for i := range seed {
		seed[i] = 0
	}
	return Keypair{Public: priv.PublicKey(), Private: priv}
}

// HashBytes computes the oracle's generic hash of b.
func HashBytes(b []byte) Hash {
	return blake2b.Sum256(b)
}

// CalcAddress derives the address that corresponds to pub: hash(pub).
func CalcAddress(pub PublicKey) Hash {
	return HashBytes(pub[:])
}

// Sign signs msg with priv.
func Sign(priv PrivateKey, msg []byte) Signature {
	var sig Signature
	copy(sig[:], ed25519.Sign(ed25519.PrivateKey(priv), msg))
	return sig
}

// Verify reports whether sig is a valid signature of msg by pub.
func Verify(pub PublicKey, msg []byte, sig Signature) bool {
	return ed25519.Verify(pub[:], msg, sig[:])
}

// NewHasher returns a streaming BLAKE2b hasher, for objects that hash their
// canonical encoding incrementally instead of allocating a single buffer.
func NewHasher() *Hasher {
	h, err := blake2b.New256(nil)
	if err != nil {
		panic(err) // only possible if passed a key, which we never do
	}
	return &Hasher{h: h}
}

// A Hasher streams bytes into the oracle's hash function.
type Hasher struct {
	h interface {
		Write([]byte) (int, error)
		Sum([]byte) []byte
		Reset()
	}
}

// Write implements io.Writer.
func (h *Hasher) Write(p []byte) (int, error) { return h.h.Write(p) }

// Reset resets the hasher's state.
func (h *Hasher) Reset() { h.h.Reset() }

// Sum returns the digest of the bytes written so far.
func (h *Hasher) Sum() (sum Hash) {
	h.h.Sum(sum[:0])
	return
}
