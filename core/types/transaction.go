package types

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"tally/crypto"
)

// TxType names the instruction carried by a transaction.
type TxType string

const (
	TxInitConfig              TxType = "init_config"
	TxUpdateConfig            TxType = "update_config"
	TxPause                   TxType = "pause"
	TxUnpause                 TxType = "unpause"
	TxTransferAuthority       TxType = "transfer_authority"
	TxAcceptAuthority         TxType = "accept_authority"
	TxCancelAuthorityTransfer TxType = "cancel_authority_transfer"
	TxInitPayee               TxType = "init_payee"
	TxUpdatePayeeTier         TxType = "update_payee_tier"
	TxCreatePlan              TxType = "create_plan"
	TxUpdatePlan              TxType = "update_plan"
	TxSetPlanStatus           TxType = "set_plan_status"
	TxStartSubscription       TxType = "start_subscription"
	TxRenewSubscription       TxType = "renew_subscription"
	TxCancelSubscription      TxType = "cancel_subscription"
	TxCloseSubscription       TxType = "close_subscription"
	TxAdminWithdrawFees       TxType = "admin_withdraw_fees"

	TxCreateAssociatedAccount TxType = "create_associated_account"
	TxInitializeAccount       TxType = "initialize_account"
	TxMintTo                  TxType = "mint_to"
	TxApprove                 TxType = "approve"
	TxRevoke                  TxType = "revoke"
	TxTransfer                TxType = "transfer"
)

var (
	errMissingSignature = errors.New("transaction: missing signature")
	errEmptyType        = errors.New("transaction: empty type")
)

// Transaction is a signed instruction envelope. Payload holds the JSON
// encoded arguments of the instruction named by Type.
type Transaction struct {
	Type      TxType          `json:"type"`
	Nonce     uint64          `json:"nonce"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Signature []byte          `json:"signature,omitempty"`

	from *crypto.Address
}

// NewTransaction encodes args as the payload of a new unsigned transaction.
func NewTransaction(txType TxType, nonce uint64, args interface{}) (*Transaction, error) {
	tx := &Transaction{Type: txType, Nonce: nonce}
	if args != nil {
		payload, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", txType, err)
		}
		tx.Payload = payload
	}
	return tx, nil
}

// Hash returns the signing digest: keccak256 over the rlp encoding of the
// type, nonce and payload.
func (tx *Transaction) Hash() ([]byte, error) {
	if tx.Type == "" {
		return nil, errEmptyType
	}
	enc, err := rlp.EncodeToBytes([]interface{}{string(tx.Type), tx.Nonce, []byte(tx.Payload)})
	if err != nil {
		return nil, err
	}
	return crypto.Keccak256(enc), nil
}

// Sign attaches a recoverable signature produced by key.
func (tx *Transaction) Sign(key *crypto.PrivateKey) error {
	hash, err := tx.Hash()
	if err != nil {
		return err
	}
	sig, err := key.Sign(hash)
	if err != nil {
		return err
	}
	tx.Signature = sig
	tx.from = nil
	return nil
}

// From recovers the identity address that signed the transaction.
func (tx *Transaction) From() (crypto.Address, error) {
	if tx.from != nil {
		return *tx.from, nil
	}
	if len(tx.Signature) != crypto.SignatureLength {
		return crypto.Address{}, errMissingSignature
	}
	hash, err := tx.Hash()
	if err != nil {
		return crypto.Address{}, err
	}
	signer, err := crypto.RecoverSigner(hash, tx.Signature)
	if err != nil {
		return crypto.Address{}, err
	}
	tx.from = &signer
	return signer, nil
}

// DecodePayload unmarshals the payload into out.
func (tx *Transaction) DecodePayload(out interface{}) error {
	if len(tx.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", tx.Type)
	}
	if err := json.Unmarshal(tx.Payload, out); err != nil {
		return fmt.Errorf("%s: decode payload: %w", tx.Type, err)
	}
	return nil
}

// Receipt records the outcome of one applied transaction.
type Receipt struct {
	ID      string         `json:"id"`
	TxHash  string         `json:"txHash"`
	Type    TxType         `json:"type"`
	Signer  crypto.Address `json:"signer"`
	Success bool           `json:"success"`
	Code    uint32         `json:"code,omitempty"`
	Error   string         `json:"error,omitempty"`
	Events  []*Event       `json:"events,omitempty"`
}
