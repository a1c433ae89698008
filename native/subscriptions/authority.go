package subscriptions

import (
	"tally/core/types"
	"tally/crypto"
)

// TransferAuthority starts a two-step handover of the platform authority to
// target. Calling it again while a transfer is pending replaces the target.
func (e *Engine) TransferAuthority(caller, target crypto.Address) error {
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
	if target.IsZero() || target == cfg.Authority {
		return ErrInvalidTransferTarget
	}
	pending := target
	cfg.PendingAuthority = &pending
	if err := e.putConfig(cfg); err != nil {
		return err
	}
	e.emit(types.NewEvent(EventTypeAuthorityTransferInitiated).
		With("authority", cfg.Authority.String()).
		With("pending", target.String()))
	return nil
}

// AcceptAuthority completes a pending handover. Only the pending authority
// may accept.
func (e *Engine) AcceptAuthority(caller crypto.Address) error {
	if err := e.ready(); err != nil {
		return err
	}
	cfg, err := e.Config()
	if err != nil {
		return err
	}
	pending, ok := cfg.Pending()
	if !ok {
		return ErrNoPendingTransfer
	}
	if caller != pending {
		return ErrUnauthorized
	}
	previous := cfg.Authority
	cfg.Authority = pending
	cfg.PendingAuthority = nil
	if err := e.putConfig(cfg); err != nil {
		return err
	}
	e.emit(types.NewEvent(EventTypeAuthorityTransferAccepted).
		With("previous", previous.String()).
		With("authority", pending.String()))
	return nil
}

// CancelAuthorityTransfer withdraws a pending handover. Only the current
// authority may cancel; the pending party cannot.
func (e *Engine) CancelAuthorityTransfer(caller crypto.Address) error {
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
	pending, ok := cfg.Pending()
	if !ok {
		return ErrNoPendingTransfer
	}
	cfg.PendingAuthority = nil
	if err := e.putConfig(cfg); err != nil {
		return err
	}
	e.emit(types.NewEvent(EventTypeAuthorityTransferCancelled).
		With("authority", cfg.Authority.String()).
		With("cancelled", pending.String()))
	return nil
}
