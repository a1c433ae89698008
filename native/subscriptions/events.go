package subscriptions

import (
	"fmt"

	"tally/core/types"
	"tally/crypto"
)

const (
	EventTypeConfigInitialized          = "subscriptions.config_initialized"
	EventTypeConfigUpdated              = "subscriptions.config_updated"
	EventTypePaused                     = "subscriptions.paused"
	EventTypeUnpaused                   = "subscriptions.unpaused"
	EventTypeAuthorityTransferInitiated = "subscriptions.authority_transfer_initiated"
	EventTypeAuthorityTransferAccepted  = "subscriptions.authority_transfer_accepted"
	EventTypeAuthorityTransferCancelled = "subscriptions.authority_transfer_cancelled"
	EventTypePayeeInitialized           = "subscriptions.payee_initialized"
	EventTypePayeeTierChanged           = "subscriptions.payee_tier_changed"
	EventTypeVolumeTierUpgraded         = "subscriptions.volume_tier_upgraded"
	EventTypePlanCreated                = "subscriptions.plan_created"
	EventTypePlanUpdated                = "subscriptions.plan_updated"
	EventTypePlanStatusChanged          = "subscriptions.plan_status_changed"
	EventTypeSubscribed                 = "subscriptions.subscribed"
	EventTypeReactivated                = "subscriptions.reactivated"
	EventTypeRenewed                    = "subscriptions.renewed"
	EventTypeCanceled                   = "subscriptions.canceled"
	EventTypeClosed                     = "subscriptions.closed"
	EventTypeFeesWithdrawn              = "subscriptions.fees_withdrawn"
	EventTypeLowAllowanceWarning        = "subscriptions.low_allowance_warning"
	EventTypeDelegateMismatchWarning    = "subscriptions.delegate_mismatch_warning"
)

func configEvent(eventType string, cfg *Config, by crypto.Address) *types.Event {
	return types.NewEvent(eventType).
		With("authority", cfg.Authority.String()).
		With("by", by.String()).
		With("allowedMint", cfg.AllowedMint.String()).
		With("minFeeBps", fmt.Sprint(cfg.MinFeeBps)).
		With("maxFeeBps", fmt.Sprint(cfg.MaxFeeBps)).
		With("keeperFeeBps", fmt.Sprint(cfg.KeeperFeeBps)).
		With("maxWithdrawalAmount", fmt.Sprint(cfg.MaxWithdrawalAmount)).
		With("maxGraceSeconds", fmt.Sprint(cfg.MaxGraceSeconds))
}
