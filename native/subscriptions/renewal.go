package subscriptions

import (
	"fmt"
	"math"

	"tally/core/types"
	"tally/crypto"
)

// RenewSubscriptionParams names the accounts a renewal touches. The caller is
// the keeper and receives the keeper fee in KeeperAccount.
type RenewSubscriptionParams struct {
	Subscription     crypto.Address `json:"subscription"`
	PaymentAccount   crypto.Address `json:"paymentAccount"`
	PayeeTreasury    crypto.Address `json:"payeeTreasury"`
	PlatformTreasury crypto.Address `json:"platformTreasury"`
	KeeperAccount    crypto.Address `json:"keeperAccount,omitempty"`
}

// checkRenewalWindow enforces the renewal timing rules. A renewal at exactly
// lastRenewed+period is accepted; one second earlier is not.
func checkRenewalWindow(now, lastRenewed, nextRenewal, period, grace int64) error {
	if now < nextRenewal {
		return fmt.Errorf("%w: now %d before next renewal %d", ErrNotDue, now, nextRenewal)
	}
	deadline, ok := checkedAddInt64(nextRenewal, grace)
	if !ok {
		return ErrArithmeticOverflow
	}
	if now > deadline {
		return fmt.Errorf("%w: now %d after deadline %d", ErrPastGrace, now, deadline)
	}
	minNext, ok := checkedAddInt64(lastRenewed, period)
	if !ok {
		return ErrArithmeticOverflow
	}
	if now < minNext {
		return fmt.Errorf("%w: now %d before period end %d", ErrNotDue, now, minNext)
	}
	return nil
}

// Due reports whether sub may be renewed at now under plan.
func Due(sub *Subscription, plan *Plan, now int64) bool {
	if sub == nil || plan == nil || !sub.Active {
		return false
	}
	return checkRenewalWindow(now, sub.LastRenewedAt, sub.NextRenewalAt, plan.PeriodSeconds, plan.GraceSeconds) == nil
}

// RenewSubscription charges the next period of an active agreement. Anyone
// may submit it; the submitter is paid the keeper fee.
func (e *Engine) RenewSubscription(caller crypto.Address, params RenewSubscriptionParams) (*Subscription, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	cfg, err := e.Config()
	if err != nil {
		return nil, err
	}
	if err := e.requireUnpaused(cfg); err != nil {
		return nil, err
	}
	sub, record, err := e.loadAgreement(params.Subscription)
	if err != nil {
		return nil, err
	}
	if !sub.Active {
		return nil, fmt.Errorf("%w: subscription %s", ErrInactive, params.Subscription)
	}
	plan, err := e.Plan(sub.Plan)
	if err != nil {
		return nil, err
	}
	now := e.now()
	if err := checkRenewalWindow(now, sub.LastRenewedAt, sub.NextRenewalAt, plan.PeriodSeconds, plan.GraceSeconds); err != nil {
		return nil, err
	}
	payee, err := e.Payee(plan.Payee)
	if err != nil {
		return nil, err
	}
	payment, err := e.holding("payment account", params.PaymentAccount, sub.Subscriber, payee.Mint)
	if err != nil {
		return nil, err
	}
	if err := expectAddress("payee treasury", params.PayeeTreasury, payee.TreasuryAccount); err != nil {
		return nil, err
	}
	if _, err := e.holding("payee treasury", params.PayeeTreasury, payee.Authority, payee.Mint); err != nil {
		return nil, err
	}
	if _, err := e.platformTreasury(cfg, params.PlatformTreasury); err != nil {
		return nil, err
	}
	split, err := splitCharge(plan.Price, cfg.KeeperFeeBps, payee.FeeBps)
	if err != nil {
		return nil, err
	}
	if split.Keeper > 0 {
		if _, err := e.holding("keeper account", params.KeeperAccount, caller, payee.Mint); err != nil {
			return nil, err
		}
	}
	if err := e.requireRenewalAllowance(payment, sub.Plan, sub.Subscriber, plan.Price); err != nil {
		return nil, err
	}
	if payment.Amount < plan.Price {
		return nil, fmt.Errorf("%w: balance %d, price %d", ErrInsufficientFunds, payment.Amount, plan.Price)
	}
	next, ok := checkedAddInt64(now, plan.PeriodSeconds)
	if !ok {
		return nil, ErrArithmeticOverflow
	}

	if err := e.collect(sub.Plan, params.PaymentAccount, split, params.PayeeTreasury, params.PlatformTreasury, params.KeeperAccount); err != nil {
		return nil, err
	}
	e.recordVolume(cfg, plan.Payee, payee, plan.Price, now)
	if err := e.putPayee(payee); err != nil {
		return nil, err
	}
	if sub.Renewals < math.MaxUint32 {
		sub.Renewals++
	}
	sub.LastRenewedAt = now
	sub.NextRenewalAt = next
	sub.LastAmount = plan.Price
	if err := e.putSubscription(params.Subscription, record.Balance, sub); err != nil {
		return nil, err
	}
	e.emit(types.NewEvent(EventTypeRenewed).
		With("subscription", params.Subscription.String()).
		With("plan", sub.Plan.String()).
		With("subscriber", sub.Subscriber.String()).
		With("keeper", caller.String()).
		With("amount", fmt.Sprint(plan.Price)).
		With("keeperFee", fmt.Sprint(split.Keeper)).
		With("platformFee", fmt.Sprint(split.Platform)).
		With("renewals", fmt.Sprint(sub.Renewals)).
		With("nextRenewalAt", fmt.Sprint(sub.NextRenewalAt)))
	return sub, nil
}
