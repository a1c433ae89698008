package subscriptions

import (
	"fmt"

	"tally/core/types"
	"tally/crypto"
)

const (
	feeBpsDivisor   = 10_000
	maxKeeperFeeBps = 100
)

// InitConfigParams seeds the protocol configuration.
type InitConfigParams struct {
	Authority               crypto.Address `json:"authority"`
	MinFeeBps               uint16         `json:"minFeeBps"`
	MaxFeeBps               uint16         `json:"maxFeeBps"`
	KeeperFeeBps            uint16         `json:"keeperFeeBps"`
	MinPeriodSeconds        int64          `json:"minPeriodSeconds"`
	MaxGraceSeconds         int64          `json:"maxGraceSeconds"`
	MaxWithdrawalAmount     uint64         `json:"maxWithdrawalAmount"`
	DefaultAllowancePeriods uint8          `json:"defaultAllowancePeriods"`
	AllowedMint             crypto.Address `json:"allowedMint"`
	RecordDeposit           uint64         `json:"recordDeposit"`
}

// UpdateConfigParams carries optional changes; nil fields are left alone.
type UpdateConfigParams struct {
	KeeperFeeBps            *uint16 `json:"keeperFeeBps,omitempty"`
	MinFeeBps               *uint16 `json:"minFeeBps,omitempty"`
	MaxFeeBps               *uint16 `json:"maxFeeBps,omitempty"`
	MinPeriodSeconds        *int64  `json:"minPeriodSeconds,omitempty"`
	MaxGraceSeconds         *int64  `json:"maxGraceSeconds,omitempty"`
	MaxWithdrawalAmount     *uint64 `json:"maxWithdrawalAmount,omitempty"`
	DefaultAllowancePeriods *uint8  `json:"defaultAllowancePeriods,omitempty"`
	RecordDeposit           *uint64 `json:"recordDeposit,omitempty"`
}

func (p UpdateConfigParams) empty() bool {
	return p.KeeperFeeBps == nil && p.MinFeeBps == nil && p.MaxFeeBps == nil &&
		p.MinPeriodSeconds == nil && p.MaxGraceSeconds == nil &&
		p.MaxWithdrawalAmount == nil && p.DefaultAllowancePeriods == nil &&
		p.RecordDeposit == nil
}

func validateConfig(c *Config) error {
	switch {
	case c.Authority.IsZero():
		return fmt.Errorf("%w: authority required", ErrInvalidConfiguration)
	case c.AllowedMint.IsZero():
		return fmt.Errorf("%w: allowed mint required", ErrInvalidConfiguration)
	case c.MinFeeBps > c.MaxFeeBps:
		return fmt.Errorf("%w: min fee %d exceeds max fee %d", ErrInvalidConfiguration, c.MinFeeBps, c.MaxFeeBps)
	case c.MaxFeeBps > feeBpsDivisor:
		return fmt.Errorf("%w: max fee %d above 100%%", ErrInvalidConfiguration, c.MaxFeeBps)
	case c.KeeperFeeBps > maxKeeperFeeBps:
		return fmt.Errorf("%w: keeper fee %d above %d bps", ErrInvalidConfiguration, c.KeeperFeeBps, maxKeeperFeeBps)
	case c.MinPeriodSeconds <= 0:
		return fmt.Errorf("%w: min period must be positive", ErrInvalidConfiguration)
	case c.MaxGraceSeconds <= 0:
		return fmt.Errorf("%w: max grace must be positive", ErrInvalidConfiguration)
	case c.MaxWithdrawalAmount == 0:
		return fmt.Errorf("%w: max withdrawal must be positive", ErrInvalidConfiguration)
	case c.DefaultAllowancePeriods == 0:
		return fmt.Errorf("%w: default allowance periods must be positive", ErrInvalidConfiguration)
	}
	return nil
}

// InitConfig creates the singleton configuration. Only the upgrade authority
// may call it, once.
func (e *Engine) InitConfig(caller crypto.Address, params InitConfigParams) (*Config, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if e.upgradeAuthority.IsZero() || caller != e.upgradeAuthority {
		return nil, ErrUnauthorized
	}
	addr, bump := ConfigAddress()
	if err := e.ensureVacant("config", addr); err != nil {
		return nil, err
	}
	cfg := &Config{
		Authority:               params.Authority,
		MinFeeBps:               params.MinFeeBps,
		MaxFeeBps:               params.MaxFeeBps,
		KeeperFeeBps:            params.KeeperFeeBps,
		MinPeriodSeconds:        params.MinPeriodSeconds,
		MaxGraceSeconds:         params.MaxGraceSeconds,
		MaxWithdrawalAmount:     params.MaxWithdrawalAmount,
		DefaultAllowancePeriods: params.DefaultAllowancePeriods,
		AllowedMint:             params.AllowedMint,
		RecordDeposit:           params.RecordDeposit,
		Bump:                    bump,
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if _, err := e.tokens.LoadMint(cfg.AllowedMint); err != nil {
		return nil, fmt.Errorf("%w: allowed mint: %v", ErrWrongMedium, err)
	}
	if err := e.putConfig(cfg); err != nil {
		return nil, err
	}
	e.emit(configEvent(EventTypeConfigInitialized, cfg, caller))
	return cfg, nil
}

// UpdateConfig applies the supplied changes. Fee bounds are validated against
// each other after merging with the stored values.
func (e *Engine) UpdateConfig(caller crypto.Address, params UpdateConfigParams) (*Config, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	cfg, err := e.Config()
	if err != nil {
		return nil, err
	}
	if caller != cfg.Authority {
		return nil, ErrUnauthorized
	}
	if params.empty() {
		return nil, ErrNoUpdatesSpecified
	}
	next := *cfg
	if params.KeeperFeeBps != nil {
		next.KeeperFeeBps = *params.KeeperFeeBps
	}
	if params.MinFeeBps != nil {
		next.MinFeeBps = *params.MinFeeBps
	}
	if params.MaxFeeBps != nil {
		next.MaxFeeBps = *params.MaxFeeBps
	}
	if params.MinPeriodSeconds != nil {
		next.MinPeriodSeconds = *params.MinPeriodSeconds
	}
	if params.MaxGraceSeconds != nil {
		next.MaxGraceSeconds = *params.MaxGraceSeconds
	}
	if params.MaxWithdrawalAmount != nil {
		next.MaxWithdrawalAmount = *params.MaxWithdrawalAmount
	}
	if params.DefaultAllowancePeriods != nil {
		next.DefaultAllowancePeriods = *params.DefaultAllowancePeriods
	}
	if params.RecordDeposit != nil {
		next.RecordDeposit = *params.RecordDeposit
	}
	if err := validateConfig(&next); err != nil {
		return nil, err
	}
	if err := e.putConfig(&next); err != nil {
		return nil, err
	}
	e.emit(configEvent(EventTypeConfigUpdated, &next, caller))
	return &next, nil
}

// Pause halts subscription starts, renewals and plan creation.
func (e *Engine) Pause(caller crypto.Address) error {
	return e.setPaused(caller, true)
}

// Unpause lifts a pause.
func (e *Engine) Unpause(caller crypto.Address) error {
	return e.setPaused(caller, false)
}

func (e *Engine) setPaused(caller crypto.Address, paused bool) error {
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
	cfg.Paused = paused
	if err := e.putConfig(cfg); err != nil {
		return err
	}
	eventType := EventTypeUnpaused
	if paused {
		eventType = EventTypePaused
	}
	e.emit(types.NewEvent(eventType).With("authority", caller.String()))
	return nil
}
