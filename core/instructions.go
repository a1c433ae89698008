package core

import (
	"fmt"

	"tally/core/types"
	"tally/crypto"
	"tally/native/subscriptions"
)

// TransferAuthorityArgs is the payload of transfer_authority.
type TransferAuthorityArgs struct {
	Target crypto.Address `json:"target"`
}

// CreateAssociatedAccountArgs is the payload of create_associated_account.
// Anyone may pay for the creation of another owner's canonical account.
type CreateAssociatedAccountArgs struct {
	Owner crypto.Address `json:"owner"`
	Mint  crypto.Address `json:"mint"`
}

// InitializeAccountArgs is the payload of initialize_account. The new
// account is owned by the signer.
type InitializeAccountArgs struct {
	Account crypto.Address `json:"account"`
	Mint    crypto.Address `json:"mint"`
}

type MintToArgs struct {
	Mint        crypto.Address `json:"mint"`
	Destination crypto.Address `json:"destination"`
	Amount      uint64         `json:"amount"`
}

type ApproveArgs struct {
	Account  crypto.Address `json:"account"`
	Delegate crypto.Address `json:"delegate"`
	Amount   uint64         `json:"amount"`
}

type RevokeArgs struct {
	Account crypto.Address `json:"account"`
}

type TransferArgs struct {
	Source      crypto.Address `json:"source"`
	Destination crypto.Address `json:"destination"`
	Amount      uint64         `json:"amount"`
}

func (sp *StateProcessor) handleInstruction(signer crypto.Address, tx *types.Transaction) error {
	switch tx.Type {
	case types.TxInitConfig:
		var params subscriptions.InitConfigParams
		if err := tx.DecodePayload(&params); err != nil {
			return err
		}
		_, err := sp.subs.InitConfig(signer, params)
		return err
	case types.TxUpdateConfig:
		var params subscriptions.UpdateConfigParams
		if err := tx.DecodePayload(&params); err != nil {
			return err
		}
		_, err := sp.subs.UpdateConfig(signer, params)
		return err
	case types.TxPause:
		return sp.subs.Pause(signer)
	case types.TxUnpause:
		return sp.subs.Unpause(signer)
	case types.TxTransferAuthority:
		var args TransferAuthorityArgs
		if err := tx.DecodePayload(&args); err != nil {
			return err
		}
		return sp.subs.TransferAuthority(signer, args.Target)
	case types.TxAcceptAuthority:
		return sp.subs.AcceptAuthority(signer)
	case types.TxCancelAuthorityTransfer:
		return sp.subs.CancelAuthorityTransfer(signer)
	case types.TxInitPayee:
		var params subscriptions.InitPayeeParams
		if err := tx.DecodePayload(&params); err != nil {
			return err
		}
		_, err := sp.subs.InitPayee(signer, params)
		return err
	case types.TxUpdatePayeeTier:
		var params subscriptions.UpdatePayeeTierParams
		if err := tx.DecodePayload(&params); err != nil {
			return err
		}
		return sp.subs.UpdatePayeeTier(signer, params)
	case types.TxCreatePlan:
		var params subscriptions.CreatePlanParams
		if err := tx.DecodePayload(&params); err != nil {
			return err
		}
		_, err := sp.subs.CreatePlan(signer, params)
		return err
	case types.TxUpdatePlan:
		var params subscriptions.UpdatePlanParams
		if err := tx.DecodePayload(&params); err != nil {
			return err
		}
		_, err := sp.subs.UpdatePlan(signer, params)
		return err
	case types.TxSetPlanStatus:
		var params subscriptions.SetPlanStatusParams
		if err := tx.DecodePayload(&params); err != nil {
			return err
		}
		return sp.subs.SetPlanStatus(signer, params)
	case types.TxStartSubscription:
		var params subscriptions.StartSubscriptionParams
		if err := tx.DecodePayload(&params); err != nil {
			return err
		}
		_, err := sp.subs.StartSubscription(signer, params)
		return err
	case types.TxRenewSubscription:
		var params subscriptions.RenewSubscriptionParams
		if err := tx.DecodePayload(&params); err != nil {
			return err
		}
		_, err := sp.subs.RenewSubscription(signer, params)
		return err
	case types.TxCancelSubscription:
		var params subscriptions.CancelSubscriptionParams
		if err := tx.DecodePayload(&params); err != nil {
			return err
		}
		return sp.subs.CancelSubscription(signer, params)
	case types.TxCloseSubscription:
		var params subscriptions.CloseSubscriptionParams
		if err := tx.DecodePayload(&params); err != nil {
			return err
		}
		return sp.subs.CloseSubscription(signer, params)
	case types.TxAdminWithdrawFees:
		var params subscriptions.AdminWithdrawFeesParams
		if err := tx.DecodePayload(&params); err != nil {
			return err
		}
		return sp.subs.AdminWithdrawFees(signer, params)

	// --- token module ---
	case types.TxCreateAssociatedAccount:
		var args CreateAssociatedAccountArgs
		if err := tx.DecodePayload(&args); err != nil {
			return err
		}
		_, err := sp.tokens.CreateAssociatedAccount(args.Owner, args.Mint)
		return err
	case types.TxInitializeAccount:
		var args InitializeAccountArgs
		if err := tx.DecodePayload(&args); err != nil {
			return err
		}
		return sp.tokens.InitializeAccount(args.Account, signer, args.Mint)
	case types.TxMintTo:
		var args MintToArgs
		if err := tx.DecodePayload(&args); err != nil {
			return err
		}
		return sp.tokens.MintTo(signer, args.Mint, args.Destination, args.Amount)
	case types.TxApprove:
		var args ApproveArgs
		if err := tx.DecodePayload(&args); err != nil {
			return err
		}
		return sp.tokens.Approve(signer, args.Account, args.Delegate, args.Amount)
	case types.TxRevoke:
		var args RevokeArgs
		if err := tx.DecodePayload(&args); err != nil {
			return err
		}
		return sp.tokens.Revoke(signer, args.Account)
	case types.TxTransfer:
		var args TransferArgs
		if err := tx.DecodePayload(&args); err != nil {
			return err
		}
		return sp.tokens.Transfer(signer, args.Source, args.Destination, args.Amount)
	}
	return fmt.Errorf("%w: %q", ErrUnknownInstruction, tx.Type)
}
