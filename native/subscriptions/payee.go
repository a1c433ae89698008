package subscriptions

import (
	"fmt"

	"tally/core/types"
	"tally/crypto"
)

const (
	volumeWindowSeconds int64  = 2_592_000
	growthTierThreshold uint64 = 10_000_000_000
	scaleTierThreshold  uint64 = 100_000_000_000
)

// InitPayeeParams registers the caller as a payee.
type InitPayeeParams struct {
	Mint     crypto.Address `json:"mint"`
	Treasury crypto.Address `json:"treasury"`
	Tier     Tier           `json:"tier"`
}

// UpdatePayeeTierParams moves a payee to another tier.
type UpdatePayeeTierParams struct {
	Payee crypto.Address `json:"payee"`
	Tier  Tier           `json:"tier"`
}

func tierWithinBounds(cfg *Config, tier Tier) error {
	if !tier.Valid() {
		return fmt.Errorf("%w: unknown tier %d", ErrInvalidConfiguration, tier)
	}
	fee := tier.FeeBps()
	if fee < cfg.MinFeeBps || fee > cfg.MaxFeeBps {
		return fmt.Errorf("%w: tier %s fee %d outside [%d, %d]", ErrInvalidConfiguration, tier, fee, cfg.MinFeeBps, cfg.MaxFeeBps)
	}
	return nil
}

// InitPayee registers the caller as a payee. The medium must be the allowed
// one and the treasury must be the caller's canonical associated account for
// it, structurally sound and holding that medium.
func (e *Engine) InitPayee(caller crypto.Address, params InitPayeeParams) (crypto.Address, error) {
	if err := e.ready(); err != nil {
		return crypto.Address{}, err
	}
	cfg, err := e.Config()
	if err != nil {
		return crypto.Address{}, err
	}
	addr, bump := PayeeAddress(caller)
	if err := e.ensureVacant("payee", addr); err != nil {
		return crypto.Address{}, err
	}
	if params.Mint != cfg.AllowedMint {
		return crypto.Address{}, fmt.Errorf("%w: mint %s not allowed", ErrWrongMedium, params.Mint)
	}
	if _, err := e.treasury("payee treasury", params.Treasury, caller, params.Mint); err != nil {
		return crypto.Address{}, err
	}
	if err := tierWithinBounds(cfg, params.Tier); err != nil {
		return crypto.Address{}, err
	}
	payee := &Payee{
		Authority:         caller,
		Mint:              params.Mint,
		TreasuryAccount:   params.Treasury,
		Tier:              params.Tier,
		FeeBps:            params.Tier.FeeBps(),
		VolumeWindowStart: e.now(),
		Bump:              bump,
	}
	if err := e.putPayee(payee); err != nil {
		return crypto.Address{}, err
	}
	e.emit(types.NewEvent(EventTypePayeeInitialized).
		With("payee", addr.String()).
		With("authority", caller.String()).
		With("treasury", params.Treasury.String()).
		With("tier", params.Tier.String()))
	return addr, nil
}

// UpdatePayeeTier changes a payee's tier. The payee or the platform
// authority may call it.
func (e *Engine) UpdatePayeeTier(caller crypto.Address, params UpdatePayeeTierParams) error {
	if err := e.ready(); err != nil {
		return err
	}
	cfg, err := e.Config()
	if err != nil {
		return err
	}
	payee, err := e.Payee(params.Payee)
	if err != nil {
		return err
	}
	if caller != payee.Authority && caller != cfg.Authority {
		return ErrUnauthorized
	}
	if err := tierWithinBounds(cfg, params.Tier); err != nil {
		return err
	}
	previous := payee.Tier
	payee.Tier = params.Tier
	payee.FeeBps = params.Tier.FeeBps()
	if err := e.putPayee(payee); err != nil {
		return err
	}
	e.emit(types.NewEvent(EventTypePayeeTierChanged).
		With("payee", params.Payee.String()).
		With("from", previous.String()).
		With("to", params.Tier.String()).
		With("feeBps", fmt.Sprint(payee.FeeBps)))
	return nil
}

// recordVolume adds amount to the payee's rolling volume and upgrades the
// tier when a threshold is crossed. Upgrades whose fee falls outside the
// configured bounds are skipped.
func (e *Engine) recordVolume(cfg *Config, payeeAddr crypto.Address, payee *Payee, amount uint64, now int64) {
	if now-payee.VolumeWindowStart >= volumeWindowSeconds || now < payee.VolumeWindowStart {
		payee.MonthlyVolume = 0
		payee.VolumeWindowStart = now
	}
	payee.MonthlyVolume = saturatingAdd(payee.MonthlyVolume, amount)

	target := payee.Tier
	switch {
	case payee.MonthlyVolume >= scaleTierThreshold:
		target = TierScale
	case payee.MonthlyVolume >= growthTierThreshold:
		target = TierGrowth
	}
	if target <= payee.Tier || tierWithinBounds(cfg, target) != nil {
		return
	}
	previous := payee.Tier
	payee.Tier = target
	payee.FeeBps = target.FeeBps()
	e.emit(types.NewEvent(EventTypeVolumeTierUpgraded).
		With("payee", payeeAddr.String()).
		With("from", previous.String()).
		With("to", target.String()).
		With("volume", fmt.Sprint(payee.MonthlyVolume)))
}
