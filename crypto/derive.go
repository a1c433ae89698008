package crypto

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// MaxSeeds bounds the number of seeds accepted by the derivation.
	MaxSeeds = 16
	// MaxSeedLength bounds the size of a single seed.
	MaxSeedLength = 32
)

var derivedAddressMarker = []byte("ProgramDerivedAddress")

var (
	// ErrMaxSeedLengthExceeded is returned when a seed or the seed count is out of range.
	ErrMaxSeedLengthExceeded = errors.New("crypto: derivation seeds out of range")
	// ErrInvalidSeeds is returned when the candidate lands on the curve.
	ErrInvalidSeeds = errors.New("crypto: derived address lies on the curve")
	// ErrNoViableNonce is returned when no nonce yields an off-curve address.
	ErrNoViableNonce = errors.New("crypto: unable to find a viable derivation nonce")
)

// IsOnCurve reports whether addr is the x-coordinate of a secp256k1 point,
// that is, whether some private key could sign for it.
func IsOnCurve(addr Address) bool {
	compressed := make([]byte, 33)
	compressed[0] = 0x02
	copy(compressed[1:], addr[:])
	_, err := crypto.DecompressPubkey(compressed)
	return err == nil
}

// CreateProgramAddress hashes seeds under the program namespace. The seeds
// must already include the nonce when one is used. The result is rejected
// when it lies on the curve.
func CreateProgramAddress(seeds [][]byte, program Address) (Address, error) {
	if len(seeds) > MaxSeeds {
		return Address{}, ErrMaxSeedLengthExceeded
	}
	parts := make([][]byte, 0, len(seeds)+2)
	for _, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return Address{}, ErrMaxSeedLengthExceeded
		}
		parts = append(parts, seed)
	}
	parts = append(parts, program[:], derivedAddressMarker)
	var addr Address
	copy(addr[:], crypto.Keccak256(parts...))
	if IsOnCurve(addr) {
		return Address{}, ErrInvalidSeeds
	}
	return addr, nil
}

// FindProgramAddress searches nonces from 255 downwards and returns the first
// off-curve address for seeds under program together with that nonce.
func FindProgramAddress(seeds [][]byte, program Address) (Address, uint8, error) {
	if len(seeds) >= MaxSeeds {
		return Address{}, 0, ErrMaxSeedLengthExceeded
	}
	withNonce := make([][]byte, len(seeds)+1)
	copy(withNonce, seeds)
	for nonce := 255; nonce >= 0; nonce-- {
		withNonce[len(seeds)] = []byte{uint8(nonce)}
		addr, err := CreateProgramAddress(withNonce, program)
		switch {
		case err == nil:
			return addr, uint8(nonce), nil
		case errors.Is(err, ErrInvalidSeeds):
			continue
		default:
			return Address{}, 0, err
		}
	}
	return Address{}, 0, ErrNoViableNonce
}

// MustFindProgramAddress is FindProgramAddress for seeds known to be valid.
func MustFindProgramAddress(seeds [][]byte, program Address) (Address, uint8) {
	addr, nonce, err := FindProgramAddress(seeds, program)
	if err != nil {
		panic(fmt.Sprintf("derive program address: %v", err))
	}
	return addr, nonce
}

// ProgramID derives a stable program identity from a namespace label.
func ProgramID(label string) Address {
	var id Address
	copy(id[:], crypto.Keccak256([]byte("tally/program/"), []byte(label)))
	return id
}

var (
	// TokenProgramID owns every token mint and token account.
	TokenProgramID = ProgramID("token")
	// AssociatedTokenProgramID namespaces canonical per-owner token accounts.
	AssociatedTokenProgramID = ProgramID("associated-token")
)

// AssociatedTokenAddress returns the canonical token account for owner and
// mint together with its derivation nonce.
func AssociatedTokenAddress(owner, mint Address) (Address, uint8) {
	return MustFindProgramAddress([][]byte{owner[:], TokenProgramID[:], mint[:]}, AssociatedTokenProgramID)
}
