package subscriptions

import (
	"fmt"

	"tally/core/types"
	"tally/crypto"
	"tally/native/token"
)

// shouldRevoke reports whether cancelling may clear the payment account's
// delegate. Only this plan's delegate is ever revoked; an absent or foreign
// delegate is left in place.
func shouldRevoke(acct *token.Account, planDelegate crypto.Address) bool {
	return acct.DelegateIs(planDelegate)
}

// requireStartAllowance checks the approval a new or resumed subscription
// needs: the plan delegate with room for the requested number of periods.
func requireStartAllowance(acct *token.Account, planDelegate crypto.Address, price uint64, periods uint8) error {
	required, ok := checkedMulUint64(price, uint64(periods))
	if !ok {
		return ErrArithmeticOverflow
	}
	if acct.DelegatedAmount < required {
		return fmt.Errorf("%w: delegated %d, need %d for %d periods", ErrInsufficientAllowance, acct.DelegatedAmount, required, periods)
	}
	if !acct.DelegateIs(planDelegate) {
		return fmt.Errorf("%w: payment account delegate is not the plan delegate", ErrUnauthorized)
	}
	return nil
}

// requireRenewalAllowance checks the approval a renewal needs. A delegate
// mismatch is reported through an event before failing, and an allowance
// below two periods raises a warning without failing.
func (e *Engine) requireRenewalAllowance(acct *token.Account, planAddr, subscriber crypto.Address, price uint64) error {
	planDelegate, _ := DelegateAddress(planAddr)
	if !acct.DelegateIs(planDelegate) {
		actual := "none"
		if acct.Delegate != nil {
			actual = acct.Delegate.String()
		}
		e.emit(types.NewEvent(EventTypeDelegateMismatchWarning).
			With("plan", planAddr.String()).
			With("subscriber", subscriber.String()).
			With("expectedDelegate", planDelegate.String()).
			With("actualDelegate", actual))
		return fmt.Errorf("%w: payment account delegate is not the plan delegate", ErrUnauthorized)
	}
	if acct.DelegatedAmount < price {
		return fmt.Errorf("%w: delegated %d, price %d", ErrInsufficientAllowance, acct.DelegatedAmount, price)
	}
	recommended, ok := checkedMulUint64(price, 2)
	if !ok {
		return ErrArithmeticOverflow
	}
	if acct.DelegatedAmount < recommended {
		e.emit(types.NewEvent(EventTypeLowAllowanceWarning).
			With("plan", planAddr.String()).
			With("subscriber", subscriber.String()).
			With("currentAllowance", fmt.Sprint(acct.DelegatedAmount)).
			With("recommendedAllowance", fmt.Sprint(recommended)).
			With("price", fmt.Sprint(price)))
	}
	return nil
}

// collect moves one charge out of the payment account using the plan
// delegate's approval. Zero legs are skipped.
func (e *Engine) collect(planAddr, source crypto.Address, split Split, payeeTreasury, platformTreasury, keeperAccount crypto.Address) error {
	delegate, _ := DelegateAddress(planAddr)
	legs := []struct {
		dest   crypto.Address
		amount uint64
	}{
		{payeeTreasury, split.Payee},
		{platformTreasury, split.Platform},
		{keeperAccount, split.Keeper},
	}
	for _, leg := range legs {
		if leg.amount == 0 {
			continue
		}
		if err := e.tokens.Transfer(delegate, source, leg.dest, leg.amount); err != nil {
			return err
		}
	}
	return nil
}
