package subscriptions

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"tally/crypto"
)

const discriminatorLength = 8

func discriminator(kind string) []byte {
	return crypto.Keccak256([]byte("account:" + kind))[:discriminatorLength]
}

var (
	configDiscriminator       = discriminator("Config")
	payeeDiscriminator        = discriminator("Payee")
	planDiscriminator         = discriminator("Plan")
	subscriptionDiscriminator = discriminator("Subscription")
)

// rlp has no signed integers; timestamps travel as their two's complement
// bit pattern.

type configRLP struct {
	Authority               crypto.Address
	HasPending              bool
	PendingAuthority        crypto.Address
	MinFeeBps               uint16
	MaxFeeBps               uint16
	KeeperFeeBps            uint16
	MinPeriodSeconds        uint64
	MaxGraceSeconds         uint64
	MaxWithdrawalAmount     uint64
	DefaultAllowancePeriods uint8
	AllowedMint             crypto.Address
	RecordDeposit           uint64
	Paused                  bool
	Bump                    uint8
}

type payeeRLP struct {
	Authority         crypto.Address
	Mint              crypto.Address
	TreasuryAccount   crypto.Address
	Tier              uint8
	FeeBps            uint16
	MonthlyVolume     uint64
	VolumeWindowStart uint64
	Bump              uint8
}

type planRLP struct {
	Payee         crypto.Address
	TermsID       string
	Price         uint64
	PeriodSeconds uint64
	GraceSeconds  uint64
	Name          string
	Active        bool
	Bump          uint8
}

type subscriptionRLP struct {
	Plan          crypto.Address
	Subscriber    crypto.Address
	Active        bool
	CreatedAt     uint64
	LastRenewedAt uint64
	NextRenewalAt uint64
	LastAmount    uint64
	Renewals      uint32
	Deposit       uint64
	Bump          uint8
}

func encodeRecord(disc []byte, body interface{}) ([]byte, error) {
	enc, err := rlp.EncodeToBytes(body)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(disc)+len(enc))
	out = append(out, disc...)
	return append(out, enc...), nil
}

func decodeRecord(kind string, disc, data []byte, body interface{}) error {
	if len(data) < discriminatorLength || !bytes.Equal(data[:discriminatorLength], disc) {
		return fmt.Errorf("%w: not a %s record", ErrInvalidAccountStructure, kind)
	}
	if err := rlp.DecodeBytes(data[discriminatorLength:], body); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrInvalidAccountStructure, kind, err)
	}
	return nil
}

// EncodeConfig serialises c with its discriminator.
func EncodeConfig(c *Config) ([]byte, error) {
	body := configRLP{
		Authority:               c.Authority,
		MinFeeBps:               c.MinFeeBps,
		MaxFeeBps:               c.MaxFeeBps,
		KeeperFeeBps:            c.KeeperFeeBps,
		MinPeriodSeconds:        uint64(c.MinPeriodSeconds),
		MaxGraceSeconds:         uint64(c.MaxGraceSeconds),
		MaxWithdrawalAmount:     c.MaxWithdrawalAmount,
		DefaultAllowancePeriods: c.DefaultAllowancePeriods,
		AllowedMint:             c.AllowedMint,
		RecordDeposit:           c.RecordDeposit,
		Paused:                  c.Paused,
		Bump:                    c.Bump,
	}
	if pending, ok := c.Pending(); ok {
		body.HasPending = true
		body.PendingAuthority = pending
	}
	return encodeRecord(configDiscriminator, body)
}

// DecodeConfig parses a config record.
func DecodeConfig(data []byte) (*Config, error) {
	var body configRLP
	if err := decodeRecord("config", configDiscriminator, data, &body); err != nil {
		return nil, err
	}
	c := &Config{
		Authority:               body.Authority,
		MinFeeBps:               body.MinFeeBps,
		MaxFeeBps:               body.MaxFeeBps,
		KeeperFeeBps:            body.KeeperFeeBps,
		MinPeriodSeconds:        int64(body.MinPeriodSeconds),
		MaxGraceSeconds:         int64(body.MaxGraceSeconds),
		MaxWithdrawalAmount:     body.MaxWithdrawalAmount,
		DefaultAllowancePeriods: body.DefaultAllowancePeriods,
		AllowedMint:             body.AllowedMint,
		RecordDeposit:           body.RecordDeposit,
		Paused:                  body.Paused,
		Bump:                    body.Bump,
	}
	if body.HasPending {
		pending := body.PendingAuthority
		c.PendingAuthority = &pending
	}
	return c, nil
}

// EncodePayee serialises p with its discriminator.
func EncodePayee(p *Payee) ([]byte, error) {
	return encodeRecord(payeeDiscriminator, payeeRLP{
		Authority:         p.Authority,
		Mint:              p.Mint,
		TreasuryAccount:   p.TreasuryAccount,
		Tier:              uint8(p.Tier),
		FeeBps:            p.FeeBps,
		MonthlyVolume:     p.MonthlyVolume,
		VolumeWindowStart: uint64(p.VolumeWindowStart),
		Bump:              p.Bump,
	})
}

// DecodePayee parses a payee record.
func DecodePayee(data []byte) (*Payee, error) {
	var body payeeRLP
	if err := decodeRecord("payee", payeeDiscriminator, data, &body); err != nil {
		return nil, err
	}
	return &Payee{
		Authority:         body.Authority,
		Mint:              body.Mint,
		TreasuryAccount:   body.TreasuryAccount,
		Tier:              Tier(body.Tier),
		FeeBps:            body.FeeBps,
		MonthlyVolume:     body.MonthlyVolume,
		VolumeWindowStart: int64(body.VolumeWindowStart),
		Bump:              body.Bump,
	}, nil
}

// EncodePlan serialises p with its discriminator.
func EncodePlan(p *Plan) ([]byte, error) {
	return encodeRecord(planDiscriminator, planRLP{
		Payee:         p.Payee,
		TermsID:       p.TermsID,
		Price:         p.Price,
		PeriodSeconds: uint64(p.PeriodSeconds),
		GraceSeconds:  uint64(p.GraceSeconds),
		Name:          p.Name,
		Active:        p.Active,
		Bump:          p.Bump,
	})
}

// DecodePlan parses a plan record.
func DecodePlan(data []byte) (*Plan, error) {
	var body planRLP
	if err := decodeRecord("plan", planDiscriminator, data, &body); err != nil {
		return nil, err
	}
	return &Plan{
		Payee:         body.Payee,
		TermsID:       body.TermsID,
		Price:         body.Price,
		PeriodSeconds: int64(body.PeriodSeconds),
		GraceSeconds:  int64(body.GraceSeconds),
		Name:          body.Name,
		Active:        body.Active,
		Bump:          body.Bump,
	}, nil
}

// EncodeSubscription serialises s with its discriminator.
func EncodeSubscription(s *Subscription) ([]byte, error) {
	return encodeRecord(subscriptionDiscriminator, subscriptionRLP{
		Plan:          s.Plan,
		Subscriber:    s.Subscriber,
		Active:        s.Active,
		CreatedAt:     uint64(s.CreatedAt),
		LastRenewedAt: uint64(s.LastRenewedAt),
		NextRenewalAt: uint64(s.NextRenewalAt),
		LastAmount:    s.LastAmount,
		Renewals:      s.Renewals,
		Deposit:       s.Deposit,
		Bump:          s.Bump,
	})
}

// DecodeSubscription parses a subscription record.
func DecodeSubscription(data []byte) (*Subscription, error) {
	var body subscriptionRLP
	if err := decodeRecord("subscription", subscriptionDiscriminator, data, &body); err != nil {
		return nil, err
	}
	return &Subscription{
		Plan:          body.Plan,
		Subscriber:    body.Subscriber,
		Active:        body.Active,
		CreatedAt:     int64(body.CreatedAt),
		LastRenewedAt: int64(body.LastRenewedAt),
		NextRenewalAt: int64(body.NextRenewalAt),
		LastAmount:    body.LastAmount,
		Renewals:      body.Renewals,
		Deposit:       body.Deposit,
		Bump:          body.Bump,
	}, nil
}

// IsSubscriptionRecord reports whether data carries the subscription
// discriminator.
func IsSubscriptionRecord(data []byte) bool {
	return len(data) >= discriminatorLength && bytes.Equal(data[:discriminatorLength], subscriptionDiscriminator)
}
