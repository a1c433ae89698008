package config

import (
	"tally/core/genesis"
	"tally/crypto"
)

// Genesis is the inline TOML form of the genesis spec. A GenesisFile, when
// set, takes precedence.
type Genesis struct {
	GenesisTime      string                `toml:"GenesisTime"`
	UpgradeAuthority string                `toml:"UpgradeAuthority"`
	MintAddress      string                `toml:"MintAddress"`
	MintAuthority    string                `toml:"MintAuthority"`
	MintDecimals     uint8                 `toml:"MintDecimals"`
	Alloc            map[string]Allocation `toml:"alloc,omitempty"`
	Protocol         *Protocol             `toml:"protocol,omitempty"`
}

type Allocation struct {
	Native uint64 `toml:"Native"`
	Tokens uint64 `toml:"Tokens"`
}

// Protocol holds the subscriptions parameters applied at genesis.
type Protocol struct {
	Authority               string `toml:"Authority"`
	MinFeeBps               uint16 `toml:"MinFeeBps"`
	MaxFeeBps               uint16 `toml:"MaxFeeBps"`
	KeeperFeeBps            uint16 `toml:"KeeperFeeBps"`
	MinPeriodSeconds        int64  `toml:"MinPeriodSeconds"`
	MaxGraceSeconds         int64  `toml:"MaxGraceSeconds"`
	MaxWithdrawalAmount     uint64 `toml:"MaxWithdrawalAmount"`
	DefaultAllowancePeriods uint8  `toml:"DefaultAllowancePeriods"`
	RecordDeposit           uint64 `toml:"RecordDeposit"`
}

// DefaultGenesis returns a local genesis controlled entirely by operator.
func DefaultGenesis(operator crypto.Address) *Genesis {
	op := operator.String()
	return &Genesis{
		GenesisTime:      "2024-01-01T00:00:00Z",
		UpgradeAuthority: op,
		MintAddress:      crypto.ProgramID("local-mint").String(),
		MintAuthority:    op,
		MintDecimals:     6,
		Alloc: map[string]Allocation{
			op: {Native: 1_000_000, Tokens: 1_000_000_000_000},
		},
		Protocol: &Protocol{
			Authority:               op,
			MinFeeBps:               10,
			MaxFeeBps:               50,
			KeeperFeeBps:            15,
			MinPeriodSeconds:        86_400,
			MaxGraceSeconds:         604_800,
			MaxWithdrawalAmount:     1_000_000_000_000,
			DefaultAllowancePeriods: 3,
			RecordDeposit:           2_039_280,
		},
	}
}

// Spec converts the TOML section into a genesis spec. The result still has
// to be validated.
func (g *Genesis) Spec() *genesis.Spec {
	spec := &genesis.Spec{
		GenesisTime:      g.GenesisTime,
		UpgradeAuthority: g.UpgradeAuthority,
		Mint: genesis.MintSpec{
			Address:   g.MintAddress,
			Authority: g.MintAuthority,
			Decimals:  g.MintDecimals,
		},
		Alloc: make(map[string]genesis.AllocSpec, len(g.Alloc)),
	}
	for addr, alloc := range g.Alloc {
		spec.Alloc[addr] = genesis.AllocSpec{Native: alloc.Native, Tokens: alloc.Tokens}
	}
	if p := g.Protocol; p != nil {
		spec.Protocol = &genesis.ProtocolSpec{
			Authority:               p.Authority,
			MinFeeBps:               p.MinFeeBps,
			MaxFeeBps:               p.MaxFeeBps,
			KeeperFeeBps:            p.KeeperFeeBps,
			MinPeriodSeconds:        p.MinPeriodSeconds,
			MaxGraceSeconds:         p.MaxGraceSeconds,
			MaxWithdrawalAmount:     p.MaxWithdrawalAmount,
			DefaultAllowancePeriods: p.DefaultAllowancePeriods,
			RecordDeposit:           p.RecordDeposit,
		}
	}
	return spec
}
