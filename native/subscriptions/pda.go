package subscriptions

import (
	"fmt"

	"tally/crypto"
)

// ProgramID owns every protocol record and signs for derived delegates.
var ProgramID = crypto.ProgramID("subscriptions")

// Seed prefixes.
var (
	seedConfig       = []byte("config")
	seedPayee        = []byte("payee")
	seedPlan         = []byte("plan")
	seedSubscription = []byte("subscription")
	seedDelegate     = []byte("delegate")
)

const maxTermsIDLength = 32

func termsSeed(termsID string) []byte {
	seed := make([]byte, maxTermsIDLength)
	copy(seed, termsID)
	return seed
}

// ConfigAddress returns the singleton config address.
func ConfigAddress() (crypto.Address, uint8) {
	return crypto.MustFindProgramAddress([][]byte{seedConfig}, ProgramID)
}

// PayeeAddress returns the payee record of authority.
func PayeeAddress(authority crypto.Address) (crypto.Address, uint8) {
	return crypto.MustFindProgramAddress([][]byte{seedPayee, authority[:]}, ProgramID)
}

// PlanAddress returns the plan record for the payee's terms id. Terms ids
// longer than 32 bytes cannot be derived.
func PlanAddress(payee crypto.Address, termsID string) (crypto.Address, uint8, error) {
	if len(termsID) == 0 || len(termsID) > maxTermsIDLength {
		return crypto.Address{}, 0, fmt.Errorf("%w: terms id must be 1..%d bytes", ErrInvalidPlan, maxTermsIDLength)
	}
	return crypto.FindProgramAddress([][]byte{seedPlan, payee[:], termsSeed(termsID)}, ProgramID)
}

// SubscriptionAddress returns the agreement record for (plan, subscriber).
func SubscriptionAddress(plan, subscriber crypto.Address) (crypto.Address, uint8) {
	return crypto.MustFindProgramAddress([][]byte{seedSubscription, plan[:], subscriber[:]}, ProgramID)
}

// DelegateAddress returns the plan-specific spend delegate. Subscribers
// approve this address on their payment account; nobody holds its key.
func DelegateAddress(plan crypto.Address) (crypto.Address, uint8) {
	return crypto.MustFindProgramAddress([][]byte{seedDelegate, plan[:]}, ProgramID)
}

func expectAddress(kind string, supplied, expected crypto.Address) error {
	if supplied != expected {
		return fmt.Errorf("%w: %s %s, expected %s", ErrBadDerivation, kind, supplied, expected)
	}
	return nil
}
