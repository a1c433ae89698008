package types

import "tally/crypto"

// Account is the unit of ledger state. Owner names the program allowed to
// mutate Data; identity accounts are owned by the zero address and only carry
// a native Balance, which is what record deposits are paid in.
type Account struct {
	Address crypto.Address `json:"address"`
	Owner   crypto.Address `json:"owner"`
	Balance uint64         `json:"balance"`
	Data    []byte         `json:"data,omitempty"`
}

// NewAccount returns an empty account owned by program.
func NewAccount(addr, program crypto.Address) *Account {
	return &Account{Address: addr, Owner: program}
}

// Copy returns a deep copy so callers can mutate without aliasing journal
// entries.
func (a *Account) Copy() *Account {
	if a == nil {
		return nil
	}
	out := *a
	if a.Data != nil {
		out.Data = append([]byte(nil), a.Data...)
	}
	return &out
}

// OwnedBy reports whether program controls the account data.
func (a *Account) OwnedBy(program crypto.Address) bool {
	return a != nil && a.Owner == program
}
