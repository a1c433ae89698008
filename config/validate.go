package config

import "fmt"

var (
	MaxKeeperFeeBps = uint16(100)
	MaxFeeBps       = uint16(10_000)
)

// ValidateGenesis checks the genesis section for internal consistency before
// the node touches storage.
func ValidateGenesis(g *Genesis) error {
	if g == nil {
		return fmt.Errorf("genesis: section missing")
	}
	if err := g.Spec().Validate(); err != nil {
		return fmt.Errorf("genesis: %w", err)
	}
	p := g.Protocol
	if p == nil {
		return nil
	}
	if p.MinFeeBps > p.MaxFeeBps {
		return fmt.Errorf("genesis.protocol: MinFeeBps > MaxFeeBps")
	}
	if p.MaxFeeBps > MaxFeeBps {
		return fmt.Errorf("genesis.protocol: MaxFeeBps above 100%%")
	}
	if p.KeeperFeeBps > MaxKeeperFeeBps {
		return fmt.Errorf("genesis.protocol: KeeperFeeBps above %d", MaxKeeperFeeBps)
	}
	if p.MinPeriodSeconds <= 0 {
		return fmt.Errorf("genesis.protocol: MinPeriodSeconds <= 0")
	}
	if p.MaxGraceSeconds <= 0 {
		return fmt.Errorf("genesis.protocol: MaxGraceSeconds <= 0")
	}
	if p.MaxWithdrawalAmount == 0 {
		return fmt.Errorf("genesis.protocol: MaxWithdrawalAmount == 0")
	}
	if p.DefaultAllowancePeriods == 0 {
		return fmt.Errorf("genesis.protocol: DefaultAllowancePeriods == 0")
	}
	return nil
}
