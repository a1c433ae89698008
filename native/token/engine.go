package token

import (
	"fmt"
	"math"

	"tally/core/events"
	"tally/core/types"
	"tally/crypto"
)

// ProgramID owns mints and token accounts.
var ProgramID = crypto.TokenProgramID

type engineState interface {
	GetAccount(addr crypto.Address) (*types.Account, error)
	PutAccount(acc *types.Account) error
}

type tokenEvent struct {
	evt *types.Event
}

func (e tokenEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e tokenEvent) Event() *types.Event { return e.evt }

// Engine implements the value-transfer medium: mints, holdings, transfers and
// single-delegate spend approvals.
type Engine struct {
	state   engineState
	emitter events.Emitter
}

// NewEngine creates a token engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(tokenEvent{evt: evt})
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return fmt.Errorf("token engine: state not configured")
	}
	return nil
}

// InitializeMint creates a mint at addr controlled by authority.
func (e *Engine) InitializeMint(addr, authority crypto.Address, decimals uint8) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.ensureVacant(addr); err != nil {
		return err
	}
	auth := authority
	mint := &Mint{Authority: &auth, Decimals: decimals, Initialized: true}
	if err := e.state.PutAccount(&types.Account{Address: addr, Owner: ProgramID, Data: EncodeMint(mint)}); err != nil {
		return err
	}
	e.emit(types.NewEvent(EventTypeMintInitialized).
		With("mint", addr.String()).
		With("authority", authority.String()).
		With("decimals", fmt.Sprint(decimals)))
	return nil
}

// CreateAssociatedAccount creates the canonical token account for owner and
// mint and returns its address.
func (e *Engine) CreateAssociatedAccount(owner, mint crypto.Address) (crypto.Address, error) {
	addr, _ := crypto.AssociatedTokenAddress(owner, mint)
	if err := e.InitializeAccount(addr, owner, mint); err != nil {
		return crypto.Address{}, err
	}
	return addr, nil
}

// InitializeAccount creates a token account at an arbitrary address. Such
// accounts are valid holdings but are not canonical for their owner.
func (e *Engine) InitializeAccount(addr, owner, mint crypto.Address) error {
	if err := e.ready(); err != nil {
		return err
	}
	if _, err := e.LoadMint(mint); err != nil {
		return err
	}
	if err := e.ensureVacant(addr); err != nil {
		return err
	}
	acct := &Account{Mint: mint, Owner: owner, State: AccountInitialized}
	if err := e.storeAccount(addr, acct); err != nil {
		return err
	}
	e.emit(types.NewEvent(EventTypeAccountCreated).
		With("account", addr.String()).
		With("owner", owner.String()).
		With("mint", mint.String()))
	return nil
}

// MintTo issues amount new units of mint into dest. Only the mint authority
// may call it.
func (e *Engine) MintTo(authority, mintAddr, dest crypto.Address, amount uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if amount == 0 {
		return ErrInvalidAmount
	}
	mint, err := e.LoadMint(mintAddr)
	if err != nil {
		return err
	}
	if mint.Authority == nil || *mint.Authority != authority {
		return ErrUnauthorized
	}
	acct, err := e.LoadAccount(dest)
	if err != nil {
		return err
	}
	if acct.Mint != mintAddr {
		return ErrMintMismatch
	}
	if mint.Supply > math.MaxUint64-amount || acct.Amount > math.MaxUint64-amount {
		return ErrOverflow
	}
	mint.Supply += amount
	acct.Amount += amount
	if err := e.storeMint(mintAddr, mint); err != nil {
		return err
	}
	if err := e.storeAccount(dest, acct); err != nil {
		return err
	}
	e.emit(types.NewEvent(EventTypeMinted).
		With("mint", mintAddr.String()).
		With("account", dest.String()).
		With("amount", fmt.Sprint(amount)))
	return nil
}

// Transfer moves amount from source to dest. The authority must be the
// source owner or its approved delegate; delegated spends consume the
// approval and clear it once exhausted.
func (e *Engine) Transfer(authority, source, dest crypto.Address, amount uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	src, err := e.LoadAccount(source)
	if err != nil {
		return err
	}
	dst, err := e.LoadAccount(dest)
	if err != nil {
		return err
	}
	if src.Mint != dst.Mint {
		return ErrMintMismatch
	}
	if src.State == AccountFrozen || dst.State == AccountFrozen {
		return ErrAccountFrozen
	}
	if src.Amount < amount {
		return ErrInsufficientFunds
	}
	viaDelegate := false
	switch {
	case src.Owner == authority:
	case src.DelegateIs(authority):
		if src.DelegatedAmount < amount {
			return ErrInsufficientDelegate
		}
		viaDelegate = true
	default:
		return ErrUnauthorized
	}
	if viaDelegate {
		src.DelegatedAmount -= amount
		if src.DelegatedAmount == 0 {
			src.Delegate = nil
		}
	}
	if source == dest {
		if err := e.storeAccount(source, src); err != nil {
			return err
		}
	} else {
		if dst.Amount > math.MaxUint64-amount {
			return ErrOverflow
		}
		src.Amount -= amount
		dst.Amount += amount
		if err := e.storeAccount(source, src); err != nil {
			return err
		}
		if err := e.storeAccount(dest, dst); err != nil {
			return err
		}
	}
	e.emit(types.NewEvent(EventTypeTransfer).
		With("from", source.String()).
		With("to", dest.String()).
		With("authority", authority.String()).
		With("amount", fmt.Sprint(amount)))
	return nil
}

// TransferChecked is Transfer with the mint and its decimals asserted by the
// caller.
func (e *Engine) TransferChecked(authority, source, mintAddr, dest crypto.Address, amount uint64, decimals uint8) error {
	if err := e.ready(); err != nil {
		return err
	}
	mint, err := e.LoadMint(mintAddr)
	if err != nil {
		return err
	}
	if mint.Decimals != decimals {
		return ErrDecimalsMismatch
	}
	src, err := e.LoadAccount(source)
	if err != nil {
		return err
	}
	if src.Mint != mintAddr {
		return ErrMintMismatch
	}
	return e.Transfer(authority, source, dest, amount)
}

// Approve lets delegate spend up to amount from account. Any previous
// approval is replaced.
func (e *Engine) Approve(owner, account, delegate crypto.Address, amount uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	acct, err := e.LoadAccount(account)
	if err != nil {
		return err
	}
	if acct.Owner != owner {
		return ErrUnauthorized
	}
	d := delegate
	acct.Delegate = &d
	acct.DelegatedAmount = amount
	if err := e.storeAccount(account, acct); err != nil {
		return err
	}
	e.emit(types.NewEvent(EventTypeApproved).
		With("account", account.String()).
		With("delegate", delegate.String()).
		With("amount", fmt.Sprint(amount)))
	return nil
}

// Revoke clears the delegate of account.
func (e *Engine) Revoke(owner, account crypto.Address) error {
	if err := e.ready(); err != nil {
		return err
	}
	acct, err := e.LoadAccount(account)
	if err != nil {
		return err
	}
	if acct.Owner != owner {
		return ErrUnauthorized
	}
	acct.Delegate = nil
	acct.DelegatedAmount = 0
	if err := e.storeAccount(account, acct); err != nil {
		return err
	}
	e.emit(types.NewEvent(EventTypeRevoked).With("account", account.String()))
	return nil
}

// LoadAccount reads and validates the token account at addr: it must be owned
// by the token program and carry the exact account layout.
func (e *Engine) LoadAccount(addr crypto.Address) (*Account, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	raw, err := e.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, addr)
	}
	if !raw.OwnedBy(ProgramID) {
		return nil, fmt.Errorf("%w: %s not owned by token program", ErrInvalidAccountData, addr)
	}
	acct, err := DecodeAccount(raw.Data)
	if err != nil {
		return nil, err
	}
	if acct.State == AccountUninitialized {
		return nil, fmt.Errorf("%w: %s uninitialized", ErrInvalidAccountData, addr)
	}
	return acct, nil
}

// LoadMint reads and validates the mint at addr.
func (e *Engine) LoadMint(addr crypto.Address) (*Mint, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	raw, err := e.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: mint %s", ErrAccountNotFound, addr)
	}
	if !raw.OwnedBy(ProgramID) {
		return nil, fmt.Errorf("%w: mint %s not owned by token program", ErrInvalidAccountData, addr)
	}
	mint, err := DecodeMint(raw.Data)
	if err != nil {
		return nil, err
	}
	if !mint.Initialized {
		return nil, fmt.Errorf("%w: mint %s uninitialized", ErrInvalidAccountData, addr)
	}
	return mint, nil
}

func (e *Engine) ensureVacant(addr crypto.Address) error {
	existing, err := e.state.GetAccount(addr)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: %s", ErrAccountExists, addr)
	}
	return nil
}

func (e *Engine) storeAccount(addr crypto.Address, acct *Account) error {
	return e.state.PutAccount(&types.Account{Address: addr, Owner: ProgramID, Data: EncodeAccount(acct)})
}

func (e *Engine) storeMint(addr crypto.Address, mint *Mint) error {
	return e.state.PutAccount(&types.Account{Address: addr, Owner: ProgramID, Data: EncodeMint(mint)})
}
