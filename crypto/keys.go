package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength is the size of a recoverable secp256k1 signature.
const SignatureLength = 65

// PrivateKey wraps a secp256k1 private key controlling an identity address.
type PrivateKey struct {
	*ecdsa.PrivateKey
}

// PublicKey wraps the public half of an identity key.
type PublicKey struct {
	*ecdsa.PublicKey
}

// GeneratePrivateKey creates a fresh random identity key.
func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// PrivateKeyFromBytes parses a raw 32-byte secp256k1 scalar.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// PrivateKeyFromHex parses a hex encoded private key, with or without 0x.
func PrivateKeyFromHex(s string) (*PrivateKey, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	return PrivateKeyFromBytes(raw)
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

// PubKey returns the public key for k.
func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

// Address returns the identity address controlled by k.
func (k *PrivateKey) Address() Address {
	return k.PubKey().Address()
}

// Sign produces a recoverable signature over a 32-byte digest.
func (k *PrivateKey) Sign(digest []byte) ([]byte, error) {
	return crypto.Sign(digest, k.PrivateKey)
}

// Address returns the x-coordinate of the compressed public key.
func (k *PublicKey) Address() Address {
	compressed := crypto.CompressPubkey(k.PublicKey)
	var addr Address
	copy(addr[:], compressed[1:])
	return addr
}

// RecoverSigner returns the identity address that produced sig over digest.
func RecoverSigner(digest, sig []byte) (Address, error) {
	if len(sig) != SignatureLength {
		return Address{}, fmt.Errorf("signature must be %d bytes, got %d", SignatureLength, len(sig))
	}
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return Address{}, fmt.Errorf("recover signer: %w", err)
	}
	return (&PublicKey{pub}).Address(), nil
}

// Keccak256 hashes the concatenation of data.
func Keccak256(data ...[]byte) []byte {
	return crypto.Keccak256(data...)
}
