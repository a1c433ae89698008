package subscriptions

import (
	"fmt"

	"tally/crypto"
	"tally/native/token"
)

// tokenAccount reads addr as a token holding and checks its structure: it
// must exist, be owned by the token program and carry the exact layout.
func (e *Engine) tokenAccount(kind string, addr crypto.Address) (*token.Account, error) {
	raw, err := e.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: %s %s missing", ErrInvalidAccountStructure, kind, addr)
	}
	if !raw.OwnedBy(token.ProgramID) {
		return nil, fmt.Errorf("%w: %s %s not owned by token program", ErrInvalidAccountStructure, kind, addr)
	}
	if len(raw.Data) != token.AccountSize {
		return nil, fmt.Errorf("%w: %s %s has %d bytes", ErrInvalidAccountStructure, kind, addr, len(raw.Data))
	}
	acct, err := token.DecodeAccount(raw.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrInvalidAccountStructure, kind, addr, err)
	}
	return acct, nil
}

// holding validates a token account by contents only: the holder and medium
// must match. Payment accounts need not be canonical.
func (e *Engine) holding(kind string, addr, holder, mint crypto.Address) (*token.Account, error) {
	acct, err := e.tokenAccount(kind, addr)
	if err != nil {
		return nil, err
	}
	if acct.Mint != mint {
		return nil, fmt.Errorf("%w: %s %s holds %s", ErrWrongMedium, kind, addr, acct.Mint)
	}
	if acct.Owner != holder {
		return nil, fmt.Errorf("%w: %s %s held by %s", ErrUnauthorized, kind, addr, acct.Owner)
	}
	return acct, nil
}

// treasury validates that supplied is the canonical associated account of
// holder for mint and that the stored account agrees with that derivation.
// Contents alone are never sufficient.
func (e *Engine) treasury(kind string, supplied, holder, mint crypto.Address) (*token.Account, error) {
	expected, _ := crypto.AssociatedTokenAddress(holder, mint)
	if err := expectAddress(kind, supplied, expected); err != nil {
		return nil, err
	}
	return e.holding(kind, supplied, holder, mint)
}

// platformTreasury checks the fee destination against the current authority.
// The check runs on every charge so a rotated authority takes effect at once.
func (e *Engine) platformTreasury(cfg *Config, supplied crypto.Address) (*token.Account, error) {
	return e.treasury("platform treasury", supplied, cfg.Authority, cfg.AllowedMint)
}
