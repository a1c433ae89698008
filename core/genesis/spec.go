// core/genesis/spec.go
package genesis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"tally/crypto"
	"tally/native/subscriptions"
)

// Spec describes the initial ledger: the allowed medium, opening balances and
// optionally the protocol configuration.
type Spec struct {
	GenesisTime      string               `json:"genesisTime"`
	UpgradeAuthority string               `json:"upgradeAuthority"`
	Mint             MintSpec             `json:"mint"`
	Alloc            map[string]AllocSpec `json:"alloc"` // addr -> balances
	Protocol         *ProtocolSpec        `json:"protocol,omitempty"`

	genesisTimestamp time.Time
	upgradeAuthority crypto.Address
}

type MintSpec struct {
	Address   string `json:"address"`
	Authority string `json:"authority"`
	Decimals  uint8  `json:"decimals"`

	address   crypto.Address
	authority crypto.Address
}

// AllocSpec funds an address. Tokens are minted into the address's
// associated account for the genesis mint.
type AllocSpec struct {
	Native uint64 `json:"native"`
	Tokens uint64 `json:"tokens"`
}

// ProtocolSpec seeds the subscriptions config as if the upgrade authority had
// submitted init_config at genesis.
type ProtocolSpec struct {
	Authority               string `json:"authority"`
	MinFeeBps               uint16 `json:"minFeeBps"`
	MaxFeeBps               uint16 `json:"maxFeeBps"`
	KeeperFeeBps            uint16 `json:"keeperFeeBps"`
	MinPeriodSeconds        int64  `json:"minPeriodSeconds"`
	MaxGraceSeconds         int64  `json:"maxGraceSeconds"`
	MaxWithdrawalAmount     uint64 `json:"maxWithdrawalAmount"`
	DefaultAllowancePeriods uint8  `json:"defaultAllowancePeriods"`
	RecordDeposit           uint64 `json:"recordDeposit"`

	authority crypto.Address
}

// LoadSpec reads and validates a JSON genesis file.
func LoadSpec(path string) (*Spec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	var spec Spec
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode genesis spec %q: %w", path, err)
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis spec %q: %w", path, err)
	}
	return &spec, nil
}

func (s *Spec) GenesisTimestamp() time.Time { return s.genesisTimestamp }

func (s *Spec) UpgradeAuthorityAddress() crypto.Address { return s.upgradeAuthority }

func (s *Spec) MintAddress() crypto.Address { return s.Mint.address }

// Validate parses every address in the spec and checks the protocol
// parameters. It must succeed before Build.
func (s *Spec) Validate() error {
	ts, err := parseGenesisTime(s.GenesisTime)
	if err != nil {
		return err
	}
	s.genesisTimestamp = ts

	if s.upgradeAuthority, err = parseRequired("upgradeAuthority", s.UpgradeAuthority); err != nil {
		return err
	}
	if s.Mint.address, err = parseRequired("mint.address", s.Mint.Address); err != nil {
		return err
	}
	if s.Mint.authority, err = parseRequired("mint.authority", s.Mint.Authority); err != nil {
		return err
	}
	for addr := range s.Alloc {
		if _, err := crypto.ParseAddress(addr); err != nil {
			return fmt.Errorf("alloc[%q]: %w", addr, err)
		}
	}
	if s.Protocol != nil {
		if s.Protocol.authority, err = parseRequired("protocol.authority", s.Protocol.Authority); err != nil {
			return err
		}
		if s.Protocol.MinFeeBps > s.Protocol.MaxFeeBps {
			return fmt.Errorf("protocol: minFeeBps %d exceeds maxFeeBps %d", s.Protocol.MinFeeBps, s.Protocol.MaxFeeBps)
		}
	}
	return nil
}

func (p *ProtocolSpec) params(mint crypto.Address) subscriptions.InitConfigParams {
	return subscriptions.InitConfigParams{
		Authority:               p.authority,
		MinFeeBps:               p.MinFeeBps,
		MaxFeeBps:               p.MaxFeeBps,
		KeeperFeeBps:            p.KeeperFeeBps,
		MinPeriodSeconds:        p.MinPeriodSeconds,
		MaxGraceSeconds:         p.MaxGraceSeconds,
		MaxWithdrawalAmount:     p.MaxWithdrawalAmount,
		DefaultAllowancePeriods: p.DefaultAllowancePeriods,
		AllowedMint:             mint,
		RecordDeposit:           p.RecordDeposit,
	}
}

func parseRequired(field, value string) (crypto.Address, error) {
	if strings.TrimSpace(value) == "" {
		return crypto.Address{}, fmt.Errorf("%s must be provided", field)
	}
	addr, err := crypto.ParseAddress(value)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("%s: %w", field, err)
	}
	return addr, nil
}

func parseGenesisTime(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("genesisTime must be provided")
	}
	ts, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid genesisTime %q: %w", value, err)
	}
	return ts.UTC(), nil
}
