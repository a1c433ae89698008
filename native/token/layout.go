package token

import (
	"encoding/binary"
	"fmt"

	"tally/crypto"
)

// Fixed record sizes. Token records use a positional little-endian layout so
// their size alone identifies the record kind.
const (
	AccountSize = 32 + 32 + 8 + 1 + 32 + 8 + 1
	MintSize    = 1 + 32 + 8 + 1 + 1
)

// AccountState tracks whether an account can move funds.
type AccountState uint8

const (
	AccountUninitialized AccountState = iota
	AccountInitialized
	AccountFrozen
)

// Account is a holding of one mint owned by one identity. A single delegate
// may be approved to spend up to DelegatedAmount on the owner's behalf.
type Account struct {
	Mint            crypto.Address
	Owner           crypto.Address
	Amount          uint64
	Delegate        *crypto.Address
	DelegatedAmount uint64
	State           AccountState
}

// DelegateIs reports whether addr is the currently approved delegate.
func (a *Account) DelegateIs(addr crypto.Address) bool {
	return a != nil && a.Delegate != nil && *a.Delegate == addr
}

// Mint describes a fungible medium.
type Mint struct {
	Authority   *crypto.Address
	Supply      uint64
	Decimals    uint8
	Initialized bool
}

// EncodeAccount serialises a into its fixed layout.
func EncodeAccount(a *Account) []byte {
	buf := make([]byte, AccountSize)
	off := 0
	off += copy(buf[off:], a.Mint[:])
	off += copy(buf[off:], a.Owner[:])
	binary.LittleEndian.PutUint64(buf[off:], a.Amount)
	off += 8
	if a.Delegate != nil {
		buf[off] = 1
		copy(buf[off+1:], a.Delegate[:])
	}
	off += 1 + 32
	binary.LittleEndian.PutUint64(buf[off:], a.DelegatedAmount)
	off += 8
	buf[off] = byte(a.State)
	return buf
}

// DecodeAccount parses the fixed layout. The data must be exactly
// AccountSize bytes.
func DecodeAccount(data []byte) (*Account, error) {
	if len(data) != AccountSize {
		return nil, fmt.Errorf("%w: account size %d, want %d", ErrInvalidAccountData, len(data), AccountSize)
	}
	a := &Account{}
	off := 0
	off += copy(a.Mint[:], data[off:off+32])
	off += copy(a.Owner[:], data[off:off+32])
	a.Amount = binary.LittleEndian.Uint64(data[off:])
	off += 8
	switch data[off] {
	case 0:
	case 1:
		var d crypto.Address
		copy(d[:], data[off+1:off+33])
		a.Delegate = &d
	default:
		return nil, fmt.Errorf("%w: bad delegate flag %d", ErrInvalidAccountData, data[off])
	}
	off += 1 + 32
	a.DelegatedAmount = binary.LittleEndian.Uint64(data[off:])
	off += 8
	a.State = AccountState(data[off])
	if a.State > AccountFrozen {
		return nil, fmt.Errorf("%w: bad state %d", ErrInvalidAccountData, a.State)
	}
	return a, nil
}

// EncodeMint serialises m into its fixed layout.
func EncodeMint(m *Mint) []byte {
	buf := make([]byte, MintSize)
	if m.Authority != nil {
		buf[0] = 1
		copy(buf[1:33], m.Authority[:])
	}
	binary.LittleEndian.PutUint64(buf[33:41], m.Supply)
	buf[41] = m.Decimals
	if m.Initialized {
		buf[42] = 1
	}
	return buf
}

// DecodeMint parses the fixed mint layout.
func DecodeMint(data []byte) (*Mint, error) {
	if len(data) != MintSize {
		return nil, fmt.Errorf("%w: mint size %d, want %d", ErrInvalidAccountData, len(data), MintSize)
	}
	m := &Mint{
		Supply:      binary.LittleEndian.Uint64(data[33:41]),
		Decimals:    data[41],
		Initialized: data[42] == 1,
	}
	if data[0] == 1 {
		var auth crypto.Address
		copy(auth[:], data[1:33])
		m.Authority = &auth
	}
	return m, nil
}
