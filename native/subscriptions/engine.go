package subscriptions

import (
	"errors"
	"fmt"
	"time"

	"tally/core/events"
	"tally/core/types"
	"tally/crypto"
	"tally/native/token"
)

var errNilState = errors.New("subscriptions engine: state not configured")

type engineState interface {
	GetAccount(addr crypto.Address) (*types.Account, error)
	PutAccount(acc *types.Account) error
	DeleteAccount(addr crypto.Address) error
}

// tokenLedger is the slice of the token program the protocol relies on.
// Transfers authorised by a derived delegate are issued by this engine on the
// delegate's behalf.
type tokenLedger interface {
	LoadAccount(addr crypto.Address) (*token.Account, error)
	LoadMint(addr crypto.Address) (*token.Mint, error)
	Transfer(authority, source, dest crypto.Address, amount uint64) error
	Revoke(owner, account crypto.Address) error
}

type subscriptionEvent struct {
	evt *types.Event
}

func (e subscriptionEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e subscriptionEvent) Event() *types.Event { return e.evt }

// Engine applies the recurring-payment state transitions. Every method takes
// the verified signer of the instruction as caller.
type Engine struct {
	state            engineState
	tokens           tokenLedger
	emitter          events.Emitter
	upgradeAuthority crypto.Address
	nowFn            func() int64
}

// NewEngine creates an engine with a no-op emitter and the wall clock.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetTokens configures the token program used to move funds.
func (e *Engine) SetTokens(tokens tokenLedger) { e.tokens = tokens }

// SetUpgradeAuthority sets the only identity allowed to initialise config.
func (e *Engine) SetUpgradeAuthority(addr crypto.Address) { e.upgradeAuthority = addr }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(subscriptionEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.tokens == nil {
		return fmt.Errorf("subscriptions engine: token ledger not configured")
	}
	return nil
}

// loadRecord fetches a protocol-owned account. Accounts owned by any other
// program are structurally invalid for the protocol.
func (e *Engine) loadRecord(kind string, addr crypto.Address) (*types.Account, error) {
	acc, err := e.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, fmt.Errorf("%w: %s %s", ErrAccountNotFound, kind, addr)
	}
	if !acc.OwnedBy(ProgramID) {
		return nil, fmt.Errorf("%w: %s %s not owned by program", ErrInvalidAccountStructure, kind, addr)
	}
	return acc, nil
}

func (e *Engine) ensureVacant(kind string, addr crypto.Address) error {
	acc, err := e.state.GetAccount(addr)
	if err != nil {
		return err
	}
	if acc != nil {
		return fmt.Errorf("%w: %s %s", ErrAccountExists, kind, addr)
	}
	return nil
}

func (e *Engine) storeRecord(addr crypto.Address, balance uint64, data []byte) error {
	return e.state.PutAccount(&types.Account{Address: addr, Owner: ProgramID, Balance: balance, Data: data})
}

// Config returns the protocol configuration.
func (e *Engine) Config() (*Config, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	addr, _ := ConfigAddress()
	acc, err := e.loadRecord("config", addr)
	if err != nil {
		return nil, err
	}
	return DecodeConfig(acc.Data)
}

func (e *Engine) putConfig(c *Config) error {
	data, err := EncodeConfig(c)
	if err != nil {
		return err
	}
	addr, _ := ConfigAddress()
	return e.storeRecord(addr, 0, data)
}

// Payee loads the payee record at addr and verifies it sits at the address
// derived from its authority.
func (e *Engine) Payee(addr crypto.Address) (*Payee, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	acc, err := e.loadRecord("payee", addr)
	if err != nil {
		return nil, err
	}
	payee, err := DecodePayee(acc.Data)
	if err != nil {
		return nil, err
	}
	expected, _ := PayeeAddress(payee.Authority)
	if err := expectAddress("payee", addr, expected); err != nil {
		return nil, err
	}
	return payee, nil
}

func (e *Engine) putPayee(p *Payee) error {
	data, err := EncodePayee(p)
	if err != nil {
		return err
	}
	addr, _ := PayeeAddress(p.Authority)
	return e.storeRecord(addr, 0, data)
}

// Plan loads the plan record at addr and verifies its derivation.
func (e *Engine) Plan(addr crypto.Address) (*Plan, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	acc, err := e.loadRecord("plan", addr)
	if err != nil {
		return nil, err
	}
	plan, err := DecodePlan(acc.Data)
	if err != nil {
		return nil, err
	}
	expected, _, err := PlanAddress(plan.Payee, plan.TermsID)
	if err != nil {
		return nil, err
	}
	if err := expectAddress("plan", addr, expected); err != nil {
		return nil, err
	}
	return plan, nil
}

func (e *Engine) putPlan(addr crypto.Address, p *Plan) error {
	data, err := EncodePlan(p)
	if err != nil {
		return err
	}
	return e.storeRecord(addr, 0, data)
}

// Subscription loads the agreement at addr. A vacant address yields a zero
// record and a nil account; callers branch on the account.
func (e *Engine) Subscription(addr crypto.Address) (*Subscription, *types.Account, error) {
	if e == nil || e.state == nil {
		return nil, nil, errNilState
	}
	acc, err := e.state.GetAccount(addr)
	if err != nil {
		return nil, nil, err
	}
	if acc == nil {
		return &Subscription{}, nil, nil
	}
	if !acc.OwnedBy(ProgramID) {
		return nil, nil, fmt.Errorf("%w: subscription %s not owned by program", ErrInvalidAccountStructure, addr)
	}
	sub, err := DecodeSubscription(acc.Data)
	if err != nil {
		return nil, nil, err
	}
	return sub, acc, nil
}

func (e *Engine) putSubscription(addr crypto.Address, balance uint64, s *Subscription) error {
	data, err := EncodeSubscription(s)
	if err != nil {
		return err
	}
	return e.storeRecord(addr, balance, data)
}

func (e *Engine) requireUnpaused(cfg *Config) error {
	if cfg.Paused {
		return ErrPaused
	}
	return nil
}
