package subscriptions

import (
	"bytes"
	"testing"

	"tally/core/events"
	"tally/core/types"
	"tally/crypto"
	"tally/native/token"
)

type mockState struct {
	accounts map[crypto.Address]*types.Account
}

func newMockState() *mockState {
	return &mockState{accounts: make(map[crypto.Address]*types.Account)}
}

func (m *mockState) GetAccount(addr crypto.Address) (*types.Account, error) {
	acc, ok := m.accounts[addr]
	if !ok {
		return nil, nil
	}
	return acc.Copy(), nil
}

func (m *mockState) PutAccount(acc *types.Account) error {
	m.accounts[acc.Address] = acc.Copy()
	return nil
}

func (m *mockState) DeleteAccount(addr crypto.Address) error {
	delete(m.accounts, addr)
	return nil
}

type recorder struct{ events []*types.Event }

func (r *recorder) Emit(evt events.Event) {
	if w, ok := evt.(events.WireEvent); ok {
		r.events = append(r.events, w.Event())
	}
}

func (r *recorder) ofType(eventType string) []*types.Event {
	var out []*types.Event
	for _, evt := range r.events {
		if evt.Type == eventType {
			out = append(out, evt)
		}
	}
	return out
}

func newTestAddress(fill byte) crypto.Address {
	var addr crypto.Address
	copy(addr[:], bytes.Repeat([]byte{fill}, crypto.AddressLength))
	return addr
}

const (
	testRecordDeposit  = 100
	testStartingFunds  = 1_000_000_000
	testNativeBalance  = 10_000
	testMaxGrace       = 40_000_000
	testMaxWithdrawal  = 1_000_000_000_000
	testAllowanceTerms = 3
)

type harness struct {
	t       *testing.T
	st      *mockState
	tokens  *token.Engine
	eng     *Engine
	events  *recorder
	now     int64
	mintKey crypto.Address

	upgrade    crypto.Address
	platform   crypto.Address
	payeeAuth  crypto.Address
	subscriber crypto.Address
	keeper     crypto.Address
	mint       crypto.Address

	platformTreasury crypto.Address
	payeeTreasury    crypto.Address
	payment          crypto.Address
	keeperAccount    crypto.Address
	payee            crypto.Address
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:          t,
		st:         newMockState(),
		events:     &recorder{},
		now:        1_700_000_000,
		mintKey:    newTestAddress(0xA0),
		upgrade:    newTestAddress(0xA1),
		platform:   newTestAddress(0xA2),
		payeeAuth:  newTestAddress(0xA3),
		subscriber: newTestAddress(0xA4),
		keeper:     newTestAddress(0xA5),
		mint:       newTestAddress(0x4D),
	}
	h.tokens = token.NewEngine()
	h.tokens.SetState(h.st)
	h.eng = NewEngine()
	h.eng.SetState(h.st)
	h.eng.SetTokens(h.tokens)
	h.eng.SetEmitter(h.events)
	h.eng.SetUpgradeAuthority(h.upgrade)
	h.eng.SetNowFunc(func() int64 { return h.now })

	h.must(h.tokens.InitializeMint(h.mint, h.mintKey, 6))
	if _, err := h.eng.InitConfig(h.upgrade, h.configParams()); err != nil {
		t.Fatalf("init config: %v", err)
	}
	h.platformTreasury = h.ata(h.platform)
	h.payeeTreasury = h.ata(h.payeeAuth)
	h.keeperAccount = h.ata(h.keeper)
	h.payment = h.ata(h.subscriber)
	h.must(h.tokens.MintTo(h.mintKey, h.mint, h.payment, testStartingFunds))
	h.must(h.st.PutAccount(&types.Account{Address: h.subscriber, Balance: testNativeBalance}))

	payee, err := h.eng.InitPayee(h.payeeAuth, InitPayeeParams{Mint: h.mint, Treasury: h.payeeTreasury, Tier: TierStandard})
	if err != nil {
		t.Fatalf("init payee: %v", err)
	}
	h.payee = payee
	return h
}

func (h *harness) configParams() InitConfigParams {
	return InitConfigParams{
		Authority:               h.platform,
		MinFeeBps:               10,
		MaxFeeBps:               50,
		KeeperFeeBps:            15,
		MinPeriodSeconds:        1,
		MaxGraceSeconds:         testMaxGrace,
		MaxWithdrawalAmount:     testMaxWithdrawal,
		DefaultAllowancePeriods: testAllowanceTerms,
		AllowedMint:             h.mint,
		RecordDeposit:           testRecordDeposit,
	}
}

func (h *harness) must(err error) {
	h.t.Helper()
	if err != nil {
		h.t.Fatalf("unexpected error: %v", err)
	}
}

func (h *harness) ata(owner crypto.Address) crypto.Address {
	h.t.Helper()
	addr, err := h.tokens.CreateAssociatedAccount(owner, h.mint)
	if err != nil {
		h.t.Fatalf("create associated account: %v", err)
	}
	return addr
}

func (h *harness) createPlan(termsID string, price uint64, period, grace int64) crypto.Address {
	h.t.Helper()
	addr, err := h.eng.CreatePlan(h.payeeAuth, CreatePlanParams{
		Payee:         h.payee,
		TermsID:       termsID,
		Price:         price,
		PeriodSeconds: period,
		GraceSeconds:  grace,
		Name:          "plan " + termsID,
	})
	if err != nil {
		h.t.Fatalf("create plan %s: %v", termsID, err)
	}
	return addr
}

func (h *harness) approve(plan crypto.Address, amount uint64) {
	h.t.Helper()
	delegate, _ := DelegateAddress(plan)
	h.must(h.tokens.Approve(h.subscriber, h.payment, delegate, amount))
}

func (h *harness) subscriptionAddr(plan crypto.Address) crypto.Address {
	addr, _ := SubscriptionAddress(plan, h.subscriber)
	return addr
}

func (h *harness) startParams(plan crypto.Address) StartSubscriptionParams {
	return StartSubscriptionParams{
		Plan:             plan,
		Subscription:     h.subscriptionAddr(plan),
		PaymentAccount:   h.payment,
		PayeeTreasury:    h.payeeTreasury,
		PlatformTreasury: h.platformTreasury,
	}
}

func (h *harness) start(plan crypto.Address) (*Subscription, error) {
	return h.eng.StartSubscription(h.subscriber, h.startParams(plan))
}

func (h *harness) renewParams(plan crypto.Address) RenewSubscriptionParams {
	return RenewSubscriptionParams{
		Subscription:     h.subscriptionAddr(plan),
		PaymentAccount:   h.payment,
		PayeeTreasury:    h.payeeTreasury,
		PlatformTreasury: h.platformTreasury,
		KeeperAccount:    h.keeperAccount,
	}
}

func (h *harness) renew(plan crypto.Address) (*Subscription, error) {
	return h.eng.RenewSubscription(h.keeper, h.renewParams(plan))
}

func (h *harness) cancel(plan crypto.Address) error {
	return h.eng.CancelSubscription(h.subscriber, CancelSubscriptionParams{
		Subscription:   h.subscriptionAddr(plan),
		PaymentAccount: h.payment,
	})
}

func (h *harness) stored(plan crypto.Address) *Subscription {
	h.t.Helper()
	sub, record, err := h.eng.Subscription(h.subscriptionAddr(plan))
	if err != nil {
		h.t.Fatalf("load subscription: %v", err)
	}
	if record == nil {
		h.t.Fatalf("subscription record missing")
	}
	return sub
}

func (h *harness) holding(addr crypto.Address) *token.Account {
	h.t.Helper()
	acct, err := h.tokens.LoadAccount(addr)
	if err != nil {
		h.t.Fatalf("load token account: %v", err)
	}
	return acct
}

func (h *harness) nativeBalance(addr crypto.Address) uint64 {
	acc, _ := h.st.GetAccount(addr)
	if acc == nil {
		return 0
	}
	return acc.Balance
}
