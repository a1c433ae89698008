package crypto

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
)

// AddressLength is the size in bytes of every ledger address. Identity
// addresses are the x-coordinate of a secp256k1 public key; derived addresses
// are hashes that deliberately fall off the curve.
const AddressLength = 32

// AddressHRP is the human-readable prefix used for the bech32 form.
const AddressHRP = "tly"

// Address identifies an account on the ledger.
type Address [AddressLength]byte

// ZeroAddress is the all-zero address. It is never a valid identity.
var ZeroAddress Address

// BytesToAddress copies b into an Address. It fails unless b is exactly
// AddressLength bytes long.
func BytesToAddress(b []byte) (Address, error) {
	var addr Address
	if len(b) != AddressLength {
		return addr, fmt.Errorf("address must be %d bytes, got %d", AddressLength, len(b))
	}
	copy(addr[:], b)
	return addr, nil
}

// Bytes returns a copy of the raw address bytes.
func (a Address) Bytes() []byte {
	out := make([]byte, AddressLength)
	copy(out, a[:])
	return out
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool { return a == ZeroAddress }

// Equal compares two addresses byte for byte.
func (a Address) Equal(other Address) bool { return bytes.Equal(a[:], other[:]) }

// Hex returns the lowercase hex encoding without prefix.
func (a Address) Hex() string { return hex.EncodeToString(a[:]) }

// String renders the address in bech32 form.
func (a Address) String() string {
	conv, err := bech32.ConvertBits(a[:], 8, 5, true)
	if err != nil {
		return a.Hex()
	}
	encoded, err := bech32.Encode(AddressHRP, conv)
	if err != nil {
		return a.Hex()
	}
	return encoded
}

// MarshalText encodes the address in bech32 form so JSON payloads stay
// readable.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText accepts either the bech32 or the hex form.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddress decodes a bech32 ("tly1...") or hex encoded address.
func ParseAddress(s string) (Address, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Address{}, fmt.Errorf("empty address")
	}
	if strings.HasPrefix(strings.ToLower(trimmed), AddressHRP+"1") {
		return DecodeAddress(trimmed)
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(trimmed, "0x"))
	if err != nil {
		return Address{}, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return BytesToAddress(raw)
}

// DecodeAddress decodes the bech32 representation of an address.
func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	if prefix != AddressHRP {
		return Address{}, fmt.Errorf("unexpected address prefix %q", prefix)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	return BytesToAddress(conv)
}
