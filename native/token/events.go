package token

const (
	EventTypeMintInitialized = "token.mint_initialized"
	EventTypeAccountCreated  = "token.account_created"
	EventTypeMinted          = "token.minted"
	EventTypeTransfer        = "token.transfer"
	EventTypeApproved        = "token.approved"
	EventTypeRevoked         = "token.revoked"
)
