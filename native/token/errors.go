package token

import "errors"

var (
	ErrUnauthorized         = errors.New("token: unauthorized")
	ErrAccountExists        = errors.New("token: account already exists")
	ErrAccountNotFound      = errors.New("token: account not found")
	ErrInvalidAccountData   = errors.New("token: invalid account data")
	ErrMintMismatch         = errors.New("token: mint mismatch")
	ErrInsufficientFunds    = errors.New("token: insufficient funds")
	ErrInsufficientDelegate = errors.New("token: delegated amount exceeded")
	ErrAccountFrozen        = errors.New("token: account frozen")
	ErrOverflow             = errors.New("token: arithmetic overflow")
	ErrInvalidAmount        = errors.New("token: invalid amount")
	ErrDecimalsMismatch     = errors.New("token: decimals mismatch")
)

var errorCodes = []error{
	ErrUnauthorized,
	ErrAccountExists,
	ErrAccountNotFound,
	ErrInvalidAccountData,
	ErrMintMismatch,
	ErrInsufficientFunds,
	ErrInsufficientDelegate,
	ErrAccountFrozen,
	ErrOverflow,
	ErrInvalidAmount,
	ErrDecimalsMismatch,
}

// ErrorCode maps a token failure to its receipt code, starting at 7000. It
// returns 0 for nil and for errors outside the token taxonomy.
func ErrorCode(err error) uint32 {
	if err == nil {
		return 0
	}
	for i, known := range errorCodes {
		if errors.Is(err, known) {
			return 7000 + uint32(i)
		}
	}
	return 0
}
