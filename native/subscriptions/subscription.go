package subscriptions

import (
	"fmt"
	"math"

	"tally/core/types"
	"tally/crypto"
)

// StartSubscriptionParams names the accounts a start or reactivation touches.
// AllowancePeriods of zero selects the configured default.
type StartSubscriptionParams struct {
	Plan             crypto.Address `json:"plan"`
	Subscription     crypto.Address `json:"subscription"`
	PaymentAccount   crypto.Address `json:"paymentAccount"`
	PayeeTreasury    crypto.Address `json:"payeeTreasury"`
	PlatformTreasury crypto.Address `json:"platformTreasury"`
	AllowancePeriods uint8          `json:"allowancePeriods,omitempty"`
}

// CancelSubscriptionParams names the agreement and, optionally, the payment
// account whose delegate may be revoked.
type CancelSubscriptionParams struct {
	Subscription   crypto.Address `json:"subscription"`
	PaymentAccount crypto.Address `json:"paymentAccount,omitempty"`
}

// CloseSubscriptionParams names the agreement to destroy.
type CloseSubscriptionParams struct {
	Subscription crypto.Address `json:"subscription"`
}

// StartSubscription subscribes the caller to a plan, or resumes the caller's
// existing inactive agreement in place. Both paths charge the first period.
func (e *Engine) StartSubscription(caller crypto.Address, params StartSubscriptionParams) (*Subscription, error) {
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
	plan, err := e.Plan(params.Plan)
	if err != nil {
		return nil, err
	}
	if !plan.Active {
		return nil, fmt.Errorf("%w: plan %s", ErrInactive, params.Plan)
	}
	payee, err := e.Payee(plan.Payee)
	if err != nil {
		return nil, err
	}
	expected, bump := SubscriptionAddress(params.Plan, caller)
	if err := expectAddress("subscription", params.Subscription, expected); err != nil {
		return nil, err
	}
	sub, record, err := e.Subscription(params.Subscription)
	if err != nil {
		return nil, err
	}
	now := e.now()
	reactivation := record != nil
	deposit := uint64(0)
	if reactivation {
		if sub.Active {
			return nil, ErrAlreadyActive
		}
		if sub.Plan != params.Plan || sub.Subscriber != caller {
			return nil, fmt.Errorf("%w: agreement belongs to another plan or subscriber", ErrUnauthorized)
		}
	} else {
		sub = &Subscription{
			Plan:       params.Plan,
			Subscriber: caller,
			CreatedAt:  now,
			Renewals:   0,
			Bump:       bump,
		}
		deposit = cfg.RecordDeposit
	}

	payment, err := e.holding("payment account", params.PaymentAccount, caller, payee.Mint)
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
	periods := params.AllowancePeriods
	if periods == 0 {
		periods = cfg.DefaultAllowancePeriods
	}
	planDelegate, _ := DelegateAddress(params.Plan)
	if err := requireStartAllowance(payment, planDelegate, plan.Price, periods); err != nil {
		return nil, err
	}
	if payment.Amount < plan.Price {
		return nil, fmt.Errorf("%w: balance %d, price %d", ErrInsufficientFunds, payment.Amount, plan.Price)
	}
	split, err := splitCharge(plan.Price, 0, payee.FeeBps)
	if err != nil {
		return nil, err
	}

	balance := uint64(0)
	if record != nil {
		balance = record.Balance
	}
	if deposit > 0 {
		if err := e.debitNative(caller, deposit); err != nil {
			return nil, err
		}
		balance = saturatingAdd(balance, deposit)
		sub.Deposit = deposit
	}
	if err := e.collect(params.Plan, params.PaymentAccount, split, params.PayeeTreasury, params.PlatformTreasury, crypto.Address{}); err != nil {
		return nil, err
	}
	e.recordVolume(cfg, plan.Payee, payee, plan.Price, now)
	if err := e.putPayee(payee); err != nil {
		return nil, err
	}
	if err := activate(sub, plan, now); err != nil {
		return nil, err
	}
	if err := e.putSubscription(params.Subscription, balance, sub); err != nil {
		return nil, err
	}

	eventType := EventTypeSubscribed
	if reactivation {
		eventType = EventTypeReactivated
	}
	e.emit(types.NewEvent(eventType).
		With("subscription", params.Subscription.String()).
		With("plan", params.Plan.String()).
		With("subscriber", caller.String()).
		With("amount", fmt.Sprint(plan.Price)).
		With("platformFee", fmt.Sprint(split.Platform)).
		With("renewals", fmt.Sprint(sub.Renewals)).
		With("nextRenewalAt", fmt.Sprint(sub.NextRenewalAt)))
	return sub, nil
}

// activate is the mutation shared by new subscriptions and reactivations.
// It never touches CreatedAt, Renewals or Bump.
func activate(sub *Subscription, plan *Plan, now int64) error {
	next, ok := checkedAddInt64(now, plan.PeriodSeconds)
	if !ok {
		return ErrArithmeticOverflow
	}
	sub.Active = true
	sub.NextRenewalAt = next
	sub.LastAmount = plan.Price
	sub.LastRenewedAt = now
	return nil
}

// loadAgreement fetches an existing agreement and checks that it sits at the
// address derived from its own plan and subscriber.
func (e *Engine) loadAgreement(addr crypto.Address) (*Subscription, *types.Account, error) {
	sub, record, err := e.Subscription(addr)
	if err != nil {
		return nil, nil, err
	}
	if record == nil {
		return nil, nil, fmt.Errorf("%w: subscription %s", ErrAccountNotFound, addr)
	}
	expected, _ := SubscriptionAddress(sub.Plan, sub.Subscriber)
	if err := expectAddress("subscription", addr, expected); err != nil {
		return nil, nil, err
	}
	return sub, record, nil
}

// CancelSubscription deactivates the caller's agreement. The plan delegate is
// revoked from the payment account only when it is the current delegate.
// Cancelling an inactive agreement succeeds.
func (e *Engine) CancelSubscription(caller crypto.Address, params CancelSubscriptionParams) error {
	if err := e.ready(); err != nil {
		return err
	}
	sub, record, err := e.loadAgreement(params.Subscription)
	if err != nil {
		return err
	}
	if caller != sub.Subscriber {
		return ErrUnauthorized
	}
	revoked := false
	if !params.PaymentAccount.IsZero() {
		plan, err := e.Plan(sub.Plan)
		if err != nil {
			return err
		}
		payee, err := e.Payee(plan.Payee)
		if err != nil {
			return err
		}
		payment, err := e.holding("payment account", params.PaymentAccount, caller, payee.Mint)
		if err != nil {
			return err
		}
		planDelegate, _ := DelegateAddress(sub.Plan)
		if shouldRevoke(payment, planDelegate) {
			if err := e.tokens.Revoke(caller, params.PaymentAccount); err != nil {
				return err
			}
			revoked = true
		}
	}
	wasActive := sub.Active
	sub.Active = false
	if err := e.putSubscription(params.Subscription, record.Balance, sub); err != nil {
		return err
	}
	e.emit(types.NewEvent(EventTypeCanceled).
		With("subscription", params.Subscription.String()).
		With("plan", sub.Plan.String()).
		With("subscriber", caller.String()).
		With("wasActive", fmt.Sprint(wasActive)).
		With("revoked", fmt.Sprint(revoked)))
	return nil
}

// CloseSubscription destroys an inactive agreement and refunds its deposit
// to the subscriber.
func (e *Engine) CloseSubscription(caller crypto.Address, params CloseSubscriptionParams) error {
	if err := e.ready(); err != nil {
		return err
	}
	sub, record, err := e.loadAgreement(params.Subscription)
	if err != nil {
		return err
	}
	if caller != sub.Subscriber {
		return ErrUnauthorized
	}
	if sub.Active {
		return ErrAlreadyActive
	}
	if err := e.state.DeleteAccount(params.Subscription); err != nil {
		return err
	}
	if record.Balance > 0 {
		if err := e.creditNative(caller, record.Balance); err != nil {
			return err
		}
	}
	e.emit(types.NewEvent(EventTypeClosed).
		With("subscription", params.Subscription.String()).
		With("plan", sub.Plan.String()).
		With("subscriber", caller.String()).
		With("refund", fmt.Sprint(record.Balance)).
		With("renewals", fmt.Sprint(sub.Renewals)))
	return nil
}

func (e *Engine) debitNative(addr crypto.Address, amount uint64) error {
	acc, err := e.state.GetAccount(addr)
	if err != nil {
		return err
	}
	if acc == nil || acc.Balance < amount {
		return fmt.Errorf("%w: record deposit of %d", ErrInsufficientFunds, amount)
	}
	acc.Balance -= amount
	return e.state.PutAccount(acc)
}

func (e *Engine) creditNative(addr crypto.Address, amount uint64) error {
	acc, err := e.state.GetAccount(addr)
	if err != nil {
		return err
	}
	if acc == nil {
		acc = &types.Account{Address: addr}
	}
	if acc.Balance > math.MaxUint64-amount {
		return ErrArithmeticOverflow
	}
	acc.Balance += amount
	return e.state.PutAccount(acc)
}
