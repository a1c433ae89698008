package keeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"tally/core"
	"tally/core/state"
	"tally/core/types"
	"tally/crypto"
	"tally/native/subscriptions"
)

// ErrKeeperPaused is returned when a run is attempted while the keeper is paused.
var ErrKeeperPaused = errors.New("keeper: paused")

// Ledger is the slice of the state processor the keeper drives.
type Ledger interface {
	Reader() state.Reader
	NextNonce(addr crypto.Address) (uint64, error)
	ApplyTransaction(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

// Candidate is a subscription found due for renewal, with every account the
// renewal instruction names already resolved.
type Candidate struct {
	Subscription *subscriptions.Subscription
	Params       subscriptions.RenewSubscriptionParams
	Price        uint64
}

// Result summarises one scan-and-renew pass.
type Result struct {
	RunID     string
	Scanned   int
	Due       int
	Renewed   int
	Failed    int
	Receipts  []*types.Receipt
	StartedAt time.Time
}

// Keeper periodically renews due subscriptions and collects the keeper fee.
type Keeper struct {
	ledger  Ledger
	key     *crypto.PrivateKey
	cfg     Config
	limiter *rate.Limiter
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time

	mu     sync.Mutex
	paused bool
}

// Option customises the keeper instance.
type Option func(*Keeper)

// WithMetrics overrides the default metrics registry.
func WithMetrics(m *Metrics) Option {
	return func(k *Keeper) { k.metrics = m }
}

// WithLogger overrides the default slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(k *Keeper) { k.logger = logger }
}

// WithClock sets the function used to decide whether a subscription is due.
func WithClock(clock func() time.Time) Option {
	return func(k *Keeper) { k.now = clock }
}

// New constructs a keeper that signs renewals with key.
func New(ledger Ledger, key *crypto.PrivateKey, cfg Config, opts ...Option) (*Keeper, error) {
	if ledger == nil {
		return nil, fmt.Errorf("keeper: ledger required")
	}
	if key == nil {
		return nil, fmt.Errorf("keeper: signing key required")
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("keeper: %w", err)
	}
	k := &Keeper{
		ledger:  ledger,
		key:     key,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		metrics: NewMetrics(),
		logger:  slog.Default(),
		now:     time.Now,
		paused:  cfg.PauseOnStart,
	}
	for _, opt := range opts {
		opt(k)
	}
	if k.metrics == nil {
		k.metrics = NewMetrics()
	}
	if k.logger == nil {
		k.logger = slog.Default()
	}
	k.logger = k.logger.With(slog.String("keeper", key.Address().String()))
	return k, nil
}

// Address returns the identity renewals are signed with.
func (k *Keeper) Address() crypto.Address { return k.key.Address() }

// Pause halts renewals until Resume is called.
func (k *Keeper) Pause() {
	k.mu.Lock()
	k.paused = true
	k.mu.Unlock()
}

// Resume re-enables renewals.
func (k *Keeper) Resume() {
	k.mu.Lock()
	k.paused = false
	k.mu.Unlock()
}

// Paused reports whether the keeper is paused.
func (k *Keeper) Paused() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.paused
}

// Run scans on the configured interval until ctx is cancelled.
func (k *Keeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(k.cfg.Interval.Duration)
	defer ticker.Stop()
	for {
		if _, err := k.RunOnce(ctx); err != nil && !errors.Is(err, ErrKeeperPaused) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			k.logger.Error("keeper run failed", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce scans for due subscriptions and submits one renewal per candidate.
func (k *Keeper) RunOnce(ctx context.Context) (*Result, error) {
	if k.Paused() {
		return nil, ErrKeeperPaused
	}
	result := &Result{RunID: uuid.NewString(), StartedAt: k.now()}
	logger := k.logger.With(slog.String("run", result.RunID))

	keeperAccount, err := k.ensureFeeAccount(ctx)
	if err != nil {
		k.metrics.RecordError("fee_account")
		return result, err
	}

	scanned, candidates, err := k.Scan(keeperAccount)
	result.Scanned = scanned
	if err != nil {
		k.metrics.RecordError("scan")
		return result, err
	}
	result.Due = len(candidates)
	k.metrics.RecordScan(len(candidates), k.now().Sub(result.StartedAt))

	for _, cand := range candidates {
		if err := k.limiter.Wait(ctx); err != nil {
			return result, err
		}
		receipt, err := k.submit(ctx, types.TxRenewSubscription, cand.Params)
		if err != nil {
			k.metrics.RecordError("submit")
			return result, err
		}
		result.Receipts = append(result.Receipts, receipt)
		k.metrics.RecordRenewal(receipt.Success)
		if receipt.Success {
			result.Renewed++
			continue
		}
		result.Failed++
		logger.Warn("renewal failed",
			slog.String("subscription", cand.Params.Subscription.String()),
			slog.Uint64("code", uint64(receipt.Code)),
			slog.String("error", receipt.Error))
	}
	logger.Info("keeper run complete",
		slog.Int("scanned", result.Scanned),
		slog.Int("due", result.Due),
		slog.Int("renewed", result.Renewed),
		slog.Int("failed", result.Failed))
	return result, nil
}

// Scan reads every protocol record and returns the active subscriptions due
// at the keeper's clock, earliest first, capped at MaxPerScan.
func (k *Keeper) Scan(keeperAccount crypto.Address) (int, []Candidate, error) {
	reader := k.ledger.Reader()
	records, err := reader.AccountsByOwner(subscriptions.ProgramID)
	if err != nil {
		return 0, nil, err
	}
	cfg, err := loadConfig(reader)
	if err != nil {
		return 0, nil, err
	}
	if cfg.Paused {
		return 0, nil, nil
	}
	platformTreasury, _ := crypto.AssociatedTokenAddress(cfg.Authority, cfg.AllowedMint)

	now := k.now().Unix()
	plans := make(map[crypto.Address]*subscriptions.Plan)
	payees := make(map[crypto.Address]*subscriptions.Payee)
	scanned := 0
	var due []Candidate
	for _, record := range records {
		if !subscriptions.IsSubscriptionRecord(record.Data) {
			continue
		}
		scanned++
		sub, err := subscriptions.DecodeSubscription(record.Data)
		if err != nil {
			k.logger.Warn("skipping undecodable subscription", slog.String("address", record.Address.String()), slog.Any("error", err))
			continue
		}
		if !sub.Active {
			continue
		}
		// A nil entry marks a record that already failed to load this scan.
		plan, ok := plans[sub.Plan]
		if !ok {
			if plan, err = loadPlan(reader, sub.Plan); err != nil {
				k.logger.Warn("skipping subscriptions of unreadable plan",
					slog.String("plan", sub.Plan.String()), slog.Any("error", err))
				plan = nil
			}
			plans[sub.Plan] = plan
		}
		if plan == nil || !subscriptions.Due(sub, plan, now) {
			continue
		}
		payee, ok := payees[plan.Payee]
		if !ok {
			if payee, err = loadPayee(reader, plan.Payee); err != nil {
				k.logger.Warn("skipping subscriptions of unreadable payee",
					slog.String("payee", plan.Payee.String()), slog.Any("error", err))
				payee = nil
			}
			payees[plan.Payee] = payee
		}
		if payee == nil {
			continue
		}
		payment, _ := crypto.AssociatedTokenAddress(sub.Subscriber, payee.Mint)
		due = append(due, Candidate{
			Subscription: sub,
			Price:        plan.Price,
			Params: subscriptions.RenewSubscriptionParams{
				Subscription:     record.Address,
				PaymentAccount:   payment,
				PayeeTreasury:    payee.TreasuryAccount,
				PlatformTreasury: platformTreasury,
				KeeperAccount:    keeperAccount,
			},
		})
	}
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].Subscription.NextRenewalAt < due[j].Subscription.NextRenewalAt
	})
	if k.cfg.MaxPerScan > 0 && len(due) > k.cfg.MaxPerScan {
		due = due[:k.cfg.MaxPerScan]
	}
	return scanned, due, nil
}

// ensureFeeAccount makes sure the keeper's associated account for the
// protocol medium exists so renewals can pay the keeper fee into it.
func (k *Keeper) ensureFeeAccount(ctx context.Context) (crypto.Address, error) {
	cfg, err := loadConfig(k.ledger.Reader())
	if err != nil {
		return crypto.Address{}, err
	}
	addr, _ := crypto.AssociatedTokenAddress(k.Address(), cfg.AllowedMint)
	existing, err := k.ledger.Reader().GetAccount(addr)
	if err != nil {
		return crypto.Address{}, err
	}
	if existing != nil {
		return addr, nil
	}
	receipt, err := k.submit(ctx, types.TxCreateAssociatedAccount, core.CreateAssociatedAccountArgs{
		Owner: k.Address(),
		Mint:  cfg.AllowedMint,
	})
	if err != nil {
		return crypto.Address{}, err
	}
	if !receipt.Success {
		return crypto.Address{}, fmt.Errorf("keeper: create fee account: code %d: %s", receipt.Code, receipt.Error)
	}
	k.logger.Info("keeper fee account created", slog.String("account", addr.String()))
	return addr, nil
}

func (k *Keeper) submit(ctx context.Context, txType types.TxType, args interface{}) (*types.Receipt, error) {
	nonce, err := k.ledger.NextNonce(k.Address())
	if err != nil {
		return nil, err
	}
	tx, err := types.NewTransaction(txType, nonce, args)
	if err != nil {
		return nil, err
	}
	if err := tx.Sign(k.key); err != nil {
		return nil, err
	}
	return k.ledger.ApplyTransaction(ctx, tx)
}

func loadConfig(reader state.Reader) (*subscriptions.Config, error) {
	addr, _ := subscriptions.ConfigAddress()
	acct, err := reader.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, fmt.Errorf("keeper: protocol config not initialised")
	}
	return subscriptions.DecodeConfig(acct.Data)
}

func loadPlan(reader state.Reader, addr crypto.Address) (*subscriptions.Plan, error) {
	acct, err := reader.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, fmt.Errorf("keeper: plan %s missing", addr)
	}
	return subscriptions.DecodePlan(acct.Data)
}

func loadPayee(reader state.Reader, addr crypto.Address) (*subscriptions.Payee, error) {
	acct, err := reader.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, fmt.Errorf("keeper: payee %s missing", addr)
	}
	return subscriptions.DecodePayee(acct.Data)
}
