package subscriptions

import (
	"fmt"
	"strings"

	"tally/crypto"
)

// Tier is a payee's volume-based fee tier.
type Tier uint8

const (
	TierStandard Tier = iota
	TierGrowth
	TierScale
)

// FeeBps returns the platform fee charged to payees on the tier.
func (t Tier) FeeBps() uint16 {
	switch t {
	case TierGrowth:
		return 20
	case TierScale:
		return 15
	default:
		return 25
	}
}

func (t Tier) String() string {
	switch t {
	case TierStandard:
		return "standard"
	case TierGrowth:
		return "growth"
	case TierScale:
		return "scale"
	default:
		return fmt.Sprintf("tier(%d)", uint8(t))
	}
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool { return t <= TierScale }

// ParseTier resolves a tier name.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "standard":
		return TierStandard, nil
	case "growth":
		return TierGrowth, nil
	case "scale":
		return TierScale, nil
	default:
		return 0, fmt.Errorf("%w: unknown tier %q", ErrInvalidConfiguration, s)
	}
}

// MarshalText encodes the tier by name.
func (t Tier) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// UnmarshalText decodes a tier name.
func (t *Tier) UnmarshalText(text []byte) error {
	parsed, err := ParseTier(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Config is the protocol-wide singleton. PendingAuthority is non-nil only
// while an authority transfer awaits acceptance.
type Config struct {
	Authority               crypto.Address
	PendingAuthority        *crypto.Address
	MinFeeBps               uint16
	MaxFeeBps               uint16
	KeeperFeeBps            uint16
	MinPeriodSeconds        int64
	MaxGraceSeconds         int64
	MaxWithdrawalAmount     uint64
	DefaultAllowancePeriods uint8
	AllowedMint             crypto.Address
	RecordDeposit           uint64
	Paused                  bool
	Bump                    uint8
}

// Pending returns the in-flight transfer target, if any.
func (c *Config) Pending() (crypto.Address, bool) {
	if c == nil || c.PendingAuthority == nil {
		return crypto.Address{}, false
	}
	return *c.PendingAuthority, true
}

// Payee is a merchant registration. Authority and Mint never change.
type Payee struct {
	Authority         crypto.Address
	Mint              crypto.Address
	TreasuryAccount   crypto.Address
	Tier              Tier
	FeeBps            uint16
	MonthlyVolume     uint64
	VolumeWindowStart int64
	Bump              uint8
}

// Plan holds the pricing terms a payee offers.
type Plan struct {
	Payee         crypto.Address
	TermsID       string
	Price         uint64
	PeriodSeconds int64
	GraceSeconds  int64
	Name          string
	Active        bool
	Bump          uint8
}

// Subscription is the agreement between one subscriber and one plan. It is
// created on the first start and reused on every reactivation; CreatedAt,
// Renewals and Bump survive cancel and reactivate cycles. Whether an
// agreement exists is decided by the stored record alone, since CreatedAt may
// be zero or negative.
type Subscription struct {
	Plan          crypto.Address
	Subscriber    crypto.Address
	Active        bool
	CreatedAt     int64
	LastRenewedAt int64
	NextRenewalAt int64
	LastAmount    uint64
	Renewals      uint32
	Deposit       uint64
	Bump          uint8
}
