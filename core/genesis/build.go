package genesis

import (
	"encoding/json"
	"fmt"
	"sort"

	"tally/core/state"
	"tally/core/types"
	"tally/crypto"
	"tally/native/subscriptions"
	"tally/native/token"
	"tally/storage"
)

// MarkerKey is the meta entry recording that genesis has been applied. Its
// value is the keccak hash of the applied spec.
const MarkerKey = "genesis"

// Build applies spec to db in one batch. It returns false without touching
// db when a genesis marker is already present.
func Build(spec *Spec, db storage.Database) (bool, error) {
	if spec == nil {
		return false, fmt.Errorf("genesis spec must not be nil")
	}
	if db == nil {
		return false, fmt.Errorf("database must not be nil")
	}
	journal := state.NewJournal(db)
	marker, err := journal.GetMeta(MarkerKey)
	if err != nil {
		return false, err
	}
	if marker != nil {
		return false, nil
	}
	if spec.Mint.address.IsZero() {
		if err := spec.Validate(); err != nil {
			return false, err
		}
	}

	tokens := token.NewEngine()
	tokens.SetState(journal)
	mint := spec.Mint.address
	if err := tokens.InitializeMint(mint, spec.Mint.authority, spec.Mint.Decimals); err != nil {
		return false, fmt.Errorf("initialize mint: %w", err)
	}

	addresses := make([]string, 0, len(spec.Alloc))
	for addr := range spec.Alloc {
		addresses = append(addresses, addr)
	}
	sort.Strings(addresses)
	for _, raw := range addresses {
		addr, err := crypto.ParseAddress(raw)
		if err != nil {
			return false, fmt.Errorf("alloc[%q]: %w", raw, err)
		}
		alloc := spec.Alloc[raw]
		if alloc.Native > 0 {
			if err := credit(journal, addr, alloc.Native); err != nil {
				return false, fmt.Errorf("alloc[%q]: %w", raw, err)
			}
		}
		if alloc.Tokens > 0 {
			holding, err := ensureAssociated(journal, tokens, addr, mint)
			if err != nil {
				return false, fmt.Errorf("alloc[%q]: %w", raw, err)
			}
			if err := tokens.MintTo(spec.Mint.authority, mint, holding, alloc.Tokens); err != nil {
				return false, fmt.Errorf("alloc[%q]: mint: %w", raw, err)
			}
		}
	}

	if spec.Protocol != nil {
		engine := subscriptions.NewEngine()
		engine.SetState(journal)
		engine.SetTokens(tokens)
		engine.SetUpgradeAuthority(spec.upgradeAuthority)
		ts := spec.genesisTimestamp.Unix()
		engine.SetNowFunc(func() int64 { return ts })
		if _, err := engine.InitConfig(spec.upgradeAuthority, spec.Protocol.params(mint)); err != nil {
			return false, fmt.Errorf("protocol config: %w", err)
		}
		if _, err := ensureAssociated(journal, tokens, spec.Protocol.authority, mint); err != nil {
			return false, fmt.Errorf("platform treasury: %w", err)
		}
	}

	encoded, err := json.Marshal(spec)
	if err != nil {
		return false, err
	}
	if err := journal.SetMeta(MarkerKey, crypto.Keccak256(encoded)); err != nil {
		return false, err
	}
	if err := journal.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func credit(journal *state.Journal, addr crypto.Address, amount uint64) error {
	acc, err := journal.GetAccount(addr)
	if err != nil {
		return err
	}
	if acc == nil {
		acc = &types.Account{Address: addr}
	}
	acc.Balance += amount
	return journal.PutAccount(acc)
}

func ensureAssociated(journal *state.Journal, tokens *token.Engine, owner, mint crypto.Address) (crypto.Address, error) {
	addr, _ := crypto.AssociatedTokenAddress(owner, mint)
	existing, err := journal.GetAccount(addr)
	if err != nil {
		return crypto.Address{}, err
	}
	if existing != nil {
		return addr, nil
	}
	return tokens.CreateAssociatedAccount(owner, mint)
}
