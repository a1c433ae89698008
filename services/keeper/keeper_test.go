package keeper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tally/core"
	"tally/core/genesis"
	"tally/core/state"
	"tally/core/types"
	"tally/crypto"
	"tally/native/subscriptions"
	"tally/native/token"
	"tally/storage"
)

const month = 30 * 24 * time.Hour

type fixture struct {
	t    *testing.T
	sp   *core.StateProcessor
	db   storage.Database
	now  time.Time
	mint crypto.Address

	platform, payee, keeper *crypto.PrivateKey
	subscribers             []*crypto.PrivateKey
}

func newKey(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	return key
}

func newFixture(t *testing.T, subscribers int) *fixture {
	t.Helper()
	f := &fixture{
		t:        t,
		now:      time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		platform: newKey(t),
		payee:    newKey(t),
		keeper:   newKey(t),
		mint:     newKey(t).Address(),
	}
	upgrade := newKey(t)
	alloc := make(map[string]genesis.AllocSpec)
	for i := 0; i < subscribers; i++ {
		key := newKey(t)
		f.subscribers = append(f.subscribers, key)
		alloc[key.Address().String()] = genesis.AllocSpec{Tokens: 100_000_000}
	}
	spec := &genesis.Spec{
		GenesisTime:      "2024-01-01T00:00:00Z",
		UpgradeAuthority: upgrade.Address().String(),
		Mint: genesis.MintSpec{
			Address:   f.mint.String(),
			Authority: newKey(t).Address().String(),
			Decimals:  6,
		},
		Alloc: alloc,
		Protocol: &genesis.ProtocolSpec{
			Authority:               f.platform.Address().String(),
			MinFeeBps:               10,
			MaxFeeBps:               50,
			KeeperFeeBps:            15,
			MinPeriodSeconds:        86_400,
			MaxGraceSeconds:         604_800,
			MaxWithdrawalAmount:     1_000_000_000,
			DefaultAllowancePeriods: 3,
		},
	}
	require.NoError(t, spec.Validate())
	f.db = storage.NewMemDB()
	_, err := genesis.Build(spec, f.db)
	require.NoError(t, err)

	f.sp, err = core.NewStateProcessor(f.db,
		core.WithClock(func() time.Time { return f.now }),
		core.WithUpgradeAuthority(upgrade.Address()),
	)
	require.NoError(t, err)
	return f
}

func (f *fixture) clock() time.Time { return f.now }

func (f *fixture) ata(owner crypto.Address) crypto.Address {
	addr, _ := crypto.AssociatedTokenAddress(owner, f.mint)
	return addr
}

func (f *fixture) exec(key *crypto.PrivateKey, txType types.TxType, args interface{}) {
	f.t.Helper()
	nonce, err := f.sp.NextNonce(key.Address())
	require.NoError(f.t, err)
	tx, err := types.NewTransaction(txType, nonce, args)
	require.NoError(f.t, err)
	require.NoError(f.t, tx.Sign(key))
	receipt, err := f.sp.ApplyTransaction(context.Background(), tx)
	require.NoError(f.t, err)
	if !receipt.Success {
		f.t.Fatalf("%s failed: code %d: %s", txType, receipt.Code, receipt.Error)
	}
}

func (f *fixture) balance(addr crypto.Address) uint64 {
	f.t.Helper()
	tokens := token.NewEngine()
	tokens.SetState(state.NewJournal(f.db))
	acct, err := tokens.LoadAccount(addr)
	require.NoError(f.t, err)
	return acct.Amount
}

// onboard registers a payee with one monthly plan and subscribes everyone.
func (f *fixture) onboard() crypto.Address {
	f.t.Helper()
	payeeAddr := f.payee.Address()
	f.exec(f.payee, types.TxCreateAssociatedAccount, core.CreateAssociatedAccountArgs{Owner: payeeAddr, Mint: f.mint})
	f.exec(f.payee, types.TxInitPayee, subscriptions.InitPayeeParams{
		Mint:     f.mint,
		Treasury: f.ata(payeeAddr),
		Tier:     subscriptions.TierStandard,
	})
	payeeRecord, _ := subscriptions.PayeeAddress(payeeAddr)
	f.exec(f.payee, types.TxCreatePlan, subscriptions.CreatePlanParams{
		Payee:         payeeRecord,
		TermsID:       "monthly",
		Price:         1_000_000,
		PeriodSeconds: int64(month / time.Second),
		GraceSeconds:  86_400,
		Name:          "Monthly",
	})
	plan, _, err := subscriptions.PlanAddress(payeeRecord, "monthly")
	require.NoError(f.t, err)
	delegate, _ := subscriptions.DelegateAddress(plan)
	for _, sub := range f.subscribers {
		f.exec(sub, types.TxApprove, core.ApproveArgs{
			Account:  f.ata(sub.Address()),
			Delegate: delegate,
			Amount:   3_000_000,
		})
		record, _ := subscriptions.SubscriptionAddress(plan, sub.Address())
		f.exec(sub, types.TxStartSubscription, subscriptions.StartSubscriptionParams{
			Plan:             plan,
			Subscription:     record,
			PaymentAccount:   f.ata(sub.Address()),
			PayeeTreasury:    f.ata(payeeAddr),
			PlatformTreasury: f.ata(f.platform.Address()),
		})
	}
	return plan
}

func TestKeeperRenewsDueSubscriptions(t *testing.T) {
	f := newFixture(t, 2)
	f.onboard()

	k, err := New(f.sp, f.keeper, DefaultConfig(), WithClock(f.clock))
	require.NoError(t, err)

	first, err := k.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, first.Scanned)
	require.Zero(t, first.Due, "nothing is due inside the first period")
	require.NotEmpty(t, first.RunID)

	f.now = f.now.Add(month)
	second, err := k.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, second.Due)
	require.Equal(t, 2, second.Renewed)
	require.Zero(t, second.Failed)
	require.Equal(t, uint64(2*1_500), f.balance(f.ata(f.keeper.Address())))

	third, err := k.RunOnce(context.Background())
	require.NoError(t, err)
	require.Zero(t, third.Due, "renewed subscriptions are not due again until the next period")
}

func TestKeeperSkipsInactiveAndLapsed(t *testing.T) {
	f := newFixture(t, 2)
	plan := f.onboard()

	cancelled := f.subscribers[0]
	record, _ := subscriptions.SubscriptionAddress(plan, cancelled.Address())
	f.exec(cancelled, types.TxCancelSubscription, subscriptions.CancelSubscriptionParams{
		Subscription:   record,
		PaymentAccount: f.ata(cancelled.Address()),
	})

	k, err := New(f.sp, f.keeper, DefaultConfig(), WithClock(f.clock))
	require.NoError(t, err)

	f.now = f.now.Add(month)
	scanned, due, err := k.Scan(f.ata(f.keeper.Address()))
	require.NoError(t, err)
	require.Equal(t, 2, scanned)
	require.Len(t, due, 1)
	require.Equal(t, f.subscribers[1].Address(), due[0].Subscription.Subscriber)
	require.Equal(t, f.ata(f.payee.Address()), due[0].Params.PayeeTreasury)
	require.Equal(t, f.ata(f.platform.Address()), due[0].Params.PlatformTreasury)

	// Past the grace window nothing can be renewed.
	f.now = f.now.Add(2 * 24 * time.Hour)
	_, due, err = k.Scan(f.ata(f.keeper.Address()))
	require.NoError(t, err)
	require.Empty(t, due)
}

func TestKeeperPause(t *testing.T) {
	f := newFixture(t, 1)
	f.onboard()

	cfg := DefaultConfig()
	cfg.PauseOnStart = true
	k, err := New(f.sp, f.keeper, cfg, WithClock(f.clock))
	require.NoError(t, err)

	_, err = k.RunOnce(context.Background())
	require.True(t, errors.Is(err, ErrKeeperPaused))

	k.Resume()
	_, err = k.RunOnce(context.Background())
	require.NoError(t, err)
}

func TestKeeperMaxPerScan(t *testing.T) {
	f := newFixture(t, 3)
	f.onboard()

	cfg := DefaultConfig()
	cfg.MaxPerScan = 2
	k, err := New(f.sp, f.keeper, cfg, WithClock(f.clock))
	require.NoError(t, err)

	f.now = f.now.Add(month)
	result, err := k.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, result.Renewed)

	result, err = k.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Renewed)
}

func TestKeeperScanSkipsUnreadablePlans(t *testing.T) {
	f := newFixture(t, 2)
	broken := f.onboard()

	payeeRecord, _ := subscriptions.PayeeAddress(f.payee.Address())
	f.exec(f.payee, types.TxCreatePlan, subscriptions.CreatePlanParams{
		Payee:         payeeRecord,
		TermsID:       "monthly-b",
		Price:         1_000_000,
		PeriodSeconds: int64(month / time.Second),
		GraceSeconds:  86_400,
		Name:          "Monthly B",
	})
	healthy, _, err := subscriptions.PlanAddress(payeeRecord, "monthly-b")
	require.NoError(t, err)
	delegate, _ := subscriptions.DelegateAddress(healthy)
	sub := f.subscribers[1]
	f.exec(sub, types.TxApprove, core.ApproveArgs{
		Account:  f.ata(sub.Address()),
		Delegate: delegate,
		Amount:   3_000_000,
	})
	record, _ := subscriptions.SubscriptionAddress(healthy, sub.Address())
	f.exec(sub, types.TxStartSubscription, subscriptions.StartSubscriptionParams{
		Plan:             healthy,
		Subscription:     record,
		PaymentAccount:   f.ata(sub.Address()),
		PayeeTreasury:    f.ata(f.payee.Address()),
		PlatformTreasury: f.ata(f.platform.Address()),
	})

	journal := state.NewJournal(f.db)
	acct, err := journal.GetAccount(broken)
	require.NoError(t, err)
	acct.Data = []byte{0xff, 0x00}
	require.NoError(t, journal.PutAccount(acct))
	require.NoError(t, journal.Commit())

	k, err := New(f.sp, f.keeper, DefaultConfig(), WithClock(f.clock))
	require.NoError(t, err)

	f.now = f.now.Add(month)
	scanned, due, err := k.Scan(f.ata(f.keeper.Address()))
	require.NoError(t, err)
	require.Equal(t, 3, scanned)
	require.Len(t, due, 1)
	require.Equal(t, record, due[0].Params.Subscription)

	journal = state.NewJournal(f.db)
	require.NoError(t, journal.DeleteAccount(healthy))
	require.NoError(t, journal.Commit())
	scanned, due, err = k.Scan(f.ata(f.keeper.Address()))
	require.NoError(t, err)
	require.Equal(t, 3, scanned)
	require.Empty(t, due, "subscriptions of a missing plan are skipped")
}
