package subscriptions

import "errors"

var (
	ErrUnauthorized            = errors.New("subscriptions: unauthorized")
	ErrBadDerivation           = errors.New("subscriptions: account does not match derived address")
	ErrWrongMedium             = errors.New("subscriptions: wrong transfer medium")
	ErrInvalidAccountStructure = errors.New("subscriptions: invalid account structure")
	ErrNotDue                  = errors.New("subscriptions: renewal not due")
	ErrPastGrace               = errors.New("subscriptions: renewal past grace period")
	ErrAlreadyActive           = errors.New("subscriptions: subscription already active")
	ErrInactive                = errors.New("subscriptions: inactive")
	ErrPaused                  = errors.New("subscriptions: protocol paused")
	ErrNoPendingTransfer       = errors.New("subscriptions: no pending authority transfer")
	ErrInvalidTransferTarget   = errors.New("subscriptions: invalid authority transfer target")
	ErrArithmeticOverflow      = errors.New("subscriptions: arithmetic overflow")
	ErrNoUpdatesSpecified      = errors.New("subscriptions: no updates specified")
	ErrInvalidPlan             = errors.New("subscriptions: invalid plan")
	ErrInvalidConfiguration    = errors.New("subscriptions: invalid configuration")
	ErrInsufficientAllowance   = errors.New("subscriptions: insufficient allowance")
	ErrInsufficientFunds       = errors.New("subscriptions: insufficient funds")
	ErrWithdrawLimitExceeded   = errors.New("subscriptions: withdrawal limit exceeded")
	ErrInvalidAmount           = errors.New("subscriptions: invalid amount")
	ErrAccountExists           = errors.New("subscriptions: account already exists")
	ErrAccountNotFound         = errors.New("subscriptions: account not found")
)

// ErrorCodeUnknown is reported for failures outside the protocol taxonomy,
// such as storage or decoding errors.
const ErrorCodeUnknown uint32 = 1

var errorCodes = []error{
	ErrUnauthorized,
	ErrBadDerivation,
	ErrWrongMedium,
	ErrInvalidAccountStructure,
	ErrNotDue,
	ErrPastGrace,
	ErrAlreadyActive,
	ErrInactive,
	ErrPaused,
	ErrNoPendingTransfer,
	ErrInvalidTransferTarget,
	ErrArithmeticOverflow,
	ErrNoUpdatesSpecified,
	ErrInvalidPlan,
	ErrInvalidConfiguration,
	ErrInsufficientAllowance,
	ErrInsufficientFunds,
	ErrWithdrawLimitExceeded,
	ErrInvalidAmount,
	ErrAccountExists,
	ErrAccountNotFound,
}

// ErrorCode maps err to its stable numeric code. Codes start at 6000 in
// declaration order and must never be renumbered. nil maps to 0.
func ErrorCode(err error) uint32 {
	if err == nil {
		return 0
	}
	for i, known := range errorCodes {
		if errors.Is(err, known) {
			return 6000 + uint32(i)
		}
	}
	return ErrorCodeUnknown
}
