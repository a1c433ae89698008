package subscriptions

import (
	"fmt"

	"tally/core/types"
	"tally/crypto"
)

// AdminWithdrawFeesParams moves accumulated platform fees out of the
// platform treasury.
type AdminWithdrawFeesParams struct {
	Treasury    crypto.Address `json:"treasury"`
	Destination crypto.Address `json:"destination"`
	Amount      uint64         `json:"amount"`
}

// AdminWithdrawFees transfers platform fees to a destination holding of the
// allowed medium. Each withdrawal is bounded by MaxWithdrawalAmount.
func (e *Engine) AdminWithdrawFees(caller crypto.Address, params AdminWithdrawFeesParams) error {
	if err := e.ready(); err != nil {
		return err
	}
	cfg, err := e.Config()
	if err != nil {
		return err
	}
	if caller != cfg.Authority {
		return ErrUnauthorized
	}
	if params.Amount == 0 {
		return ErrInvalidAmount
	}
	if params.Amount > cfg.MaxWithdrawalAmount {
		return fmt.Errorf("%w: %d above %d", ErrWithdrawLimitExceeded, params.Amount, cfg.MaxWithdrawalAmount)
	}
	treasury, err := e.platformTreasury(cfg, params.Treasury)
	if err != nil {
		return err
	}
	dest, err := e.tokenAccount("destination", params.Destination)
	if err != nil {
		return err
	}
	if dest.Mint != cfg.AllowedMint {
		return fmt.Errorf("%w: destination holds %s", ErrWrongMedium, dest.Mint)
	}
	if treasury.Amount < params.Amount {
		return fmt.Errorf("%w: treasury holds %d", ErrInsufficientFunds, treasury.Amount)
	}
	if err := e.tokens.Transfer(caller, params.Treasury, params.Destination, params.Amount); err != nil {
		return err
	}
	e.emit(types.NewEvent(EventTypeFeesWithdrawn).
		With("authority", caller.String()).
		With("destination", params.Destination.String()).
		With("amount", fmt.Sprint(params.Amount)))
	return nil
}
