package state

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/rlp"

	"tally/core/types"
	"tally/crypto"
	"tally/storage"
)

// Reader is the read-only view of ledger state.
type Reader interface {
	GetAccount(addr crypto.Address) (*types.Account, error)
	AccountsByOwner(owner crypto.Address) ([]*types.Account, error)
	Nonce(addr crypto.Address) (uint64, error)
}

var errCommitted = errors.New("state: journal already committed")

type storedAccount struct {
	Owner   crypto.Address
	Balance uint64
	Data    []byte
}

// Journal buffers writes over a database. Nothing reaches the database until
// Commit, which flushes every buffered write in one batch. Discard drops the
// buffer, leaving the database untouched.
type Journal struct {
	db    storage.Database
	dirty map[string][]byte
	// deleted keys are tracked separately so a nil value is unambiguous.
	deleted map[string]struct{}
	done    bool
}

// NewJournal opens an empty write buffer over db.
func NewJournal(db storage.Database) *Journal {
	return &Journal{
		db:      db,
		dirty:   make(map[string][]byte),
		deleted: make(map[string]struct{}),
	}
}

func (j *Journal) get(key []byte) ([]byte, bool, error) {
	k := string(key)
	if _, gone := j.deleted[k]; gone {
		return nil, false, nil
	}
	if v, ok := j.dirty[k]; ok {
		return v, true, nil
	}
	v, err := j.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (j *Journal) put(key, value []byte) error {
	if j.done {
		return errCommitted
	}
	k := string(key)
	delete(j.deleted, k)
	j.dirty[k] = append([]byte(nil), value...)
	return nil
}

func (j *Journal) remove(key []byte) error {
	if j.done {
		return errCommitted
	}
	k := string(key)
	delete(j.dirty, k)
	j.deleted[k] = struct{}{}
	return nil
}

// GetAccount loads the account at addr. A missing account yields (nil, nil).
func (j *Journal) GetAccount(addr crypto.Address) (*types.Account, error) {
	raw, ok, err := j.get(AccountKey(addr))
	if err != nil || !ok {
		return nil, err
	}
	return decodeAccount(addr, raw)
}

// PutAccount stores acc under its address.
func (j *Journal) PutAccount(acc *types.Account) error {
	if acc == nil {
		return fmt.Errorf("state: nil account")
	}
	if acc.Address.IsZero() {
		return fmt.Errorf("state: account address must be set")
	}
	enc, err := rlp.EncodeToBytes(storedAccount{Owner: acc.Owner, Balance: acc.Balance, Data: acc.Data})
	if err != nil {
		return fmt.Errorf("state: encode account %s: %w", acc.Address, err)
	}
	return j.put(AccountKey(acc.Address), enc)
}

// DeleteAccount removes the account at addr. Removing a missing account is a
// no-op.
func (j *Journal) DeleteAccount(addr crypto.Address) error {
	return j.remove(AccountKey(addr))
}

// AccountsByOwner returns every account whose Owner is owner, ordered by
// address. Buffered writes shadow the database.
func (j *Journal) AccountsByOwner(owner crypto.Address) ([]*types.Account, error) {
	seen := make(map[string]struct{})
	var out []*types.Account
	collect := func(key, value []byte) error {
		addr, err := crypto.BytesToAddress(key[len(accountPrefix):])
		if err != nil {
			return fmt.Errorf("state: malformed account key %x: %w", key, err)
		}
		acc, err := decodeAccount(addr, value)
		if err != nil {
			return err
		}
		if acc.Owner == owner {
			out = append(out, acc)
		}
		return nil
	}
	for k, v := range j.dirty {
		if !bytes.HasPrefix([]byte(k), accountPrefix) {
			continue
		}
		seen[k] = struct{}{}
		if err := collect([]byte(k), v); err != nil {
			return nil, err
		}
	}
	var iterErr error
	err := j.db.Iterate(accountPrefix, func(key, value []byte) bool {
		k := string(key)
		if _, ok := seen[k]; ok {
			return true
		}
		if _, gone := j.deleted[k]; gone {
			return true
		}
		if iterErr = collect(key, value); iterErr != nil {
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if iterErr != nil {
		return nil, iterErr
	}
	sort.Slice(out, func(a, b int) bool {
		return bytes.Compare(out[a].Address[:], out[b].Address[:]) < 0
	})
	return out, nil
}

// Nonce returns the next expected nonce for the signer addr.
func (j *Journal) Nonce(addr crypto.Address) (uint64, error) {
	raw, ok, err := j.get(NonceKey(addr))
	if err != nil || !ok {
		return 0, err
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("state: malformed nonce for %s", addr)
	}
	return binary.BigEndian.Uint64(raw), nil
}

// SetNonce records the next expected nonce for addr.
func (j *Journal) SetNonce(addr crypto.Address, nonce uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], nonce)
	return j.put(NonceKey(addr), buf[:])
}

// GetMeta reads a node-level value such as the genesis marker.
func (j *Journal) GetMeta(name string) ([]byte, error) {
	raw, _, err := j.get(MetaKey(name))
	return raw, err
}

// SetMeta writes a node-level value.
func (j *Journal) SetMeta(name string, value []byte) error {
	return j.put(MetaKey(name), value)
}

// Len reports the number of buffered writes and deletes.
func (j *Journal) Len() int { return len(j.dirty) + len(j.deleted) }

// Commit flushes the buffer to the database in a single batch. The journal
// cannot be used afterwards.
func (j *Journal) Commit() error {
	if j.done {
		return errCommitted
	}
	batch := j.db.NewBatch()
	keys := make([]string, 0, len(j.dirty))
	for k := range j.dirty {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		batch.Put([]byte(k), j.dirty[k])
	}
	for k := range j.deleted {
		batch.Delete([]byte(k))
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	j.done = true
	j.dirty = nil
	j.deleted = nil
	return nil
}

// Discard drops every buffered write.
func (j *Journal) Discard() {
	j.dirty = make(map[string][]byte)
	j.deleted = make(map[string]struct{})
}

func decodeAccount(addr crypto.Address, raw []byte) (*types.Account, error) {
	var stored storedAccount
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, fmt.Errorf("state: decode account %s: %w", addr, err)
	}
	return &types.Account{
		Address: addr,
		Owner:   stored.Owner,
		Balance: stored.Balance,
		Data:    stored.Data,
	}, nil
}
