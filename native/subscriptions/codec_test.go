package subscriptions

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigRecordRoundTrip(t *testing.T) {
	pending := newTestAddress(0x07)
	cfg := &Config{
		Authority:               newTestAddress(0x01),
		PendingAuthority:        &pending,
		MinFeeBps:               10,
		MaxFeeBps:               50,
		KeeperFeeBps:            15,
		MinPeriodSeconds:        86_400,
		MaxGraceSeconds:         604_800,
		MaxWithdrawalAmount:     1_000_000,
		DefaultAllowancePeriods: 3,
		AllowedMint:             newTestAddress(0x4D),
		RecordDeposit:           100,
		Paused:                  true,
		Bump:                    254,
	}
	data, err := EncodeConfig(cfg)
	require.NoError(t, err)
	decoded, err := DecodeConfig(data)
	require.NoError(t, err)
	require.Equal(t, cfg, decoded)

	cfg.PendingAuthority = nil
	data, err = EncodeConfig(cfg)
	require.NoError(t, err)
	decoded, err = DecodeConfig(data)
	require.NoError(t, err)
	_, ok := decoded.Pending()
	require.False(t, ok)
}

func TestSubscriptionRecordKeepsNegativeTimestamps(t *testing.T) {
	sub := &Subscription{
		Plan:          newTestAddress(0x02),
		Subscriber:    newTestAddress(0x03),
		Active:        true,
		CreatedAt:     -86_400_000,
		LastRenewedAt: -1,
		NextRenewalAt: 2_591_999,
		LastAmount:    42,
		Renewals:      7,
		Deposit:       100,
		Bump:          251,
	}
	data, err := EncodeSubscription(sub)
	require.NoError(t, err)
	require.True(t, IsSubscriptionRecord(data))
	decoded, err := DecodeSubscription(data)
	require.NoError(t, err)
	require.Equal(t, sub, decoded)
}

func TestDecodeRejectsForeignDiscriminator(t *testing.T) {
	plan := &Plan{Payee: newTestAddress(0x05), TermsID: "gold", Price: 9, PeriodSeconds: 60, Name: "Gold", Active: true}
	data, err := EncodePlan(plan)
	require.NoError(t, err)
	decoded, err := DecodePlan(data)
	require.NoError(t, err)
	require.Equal(t, plan, decoded)

	require.False(t, IsSubscriptionRecord(data))
	if _, err := DecodeSubscription(data); !errors.Is(err, ErrInvalidAccountStructure) {
		t.Fatalf("expected ErrInvalidAccountStructure, got %v", err)
	}
	if _, err := DecodePayee(data[:4]); !errors.Is(err, ErrInvalidAccountStructure) {
		t.Fatalf("expected ErrInvalidAccountStructure for short data, got %v", err)
	}
}
