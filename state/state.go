// Package state is the account store: per-account balances, key/value
// storage and deployed code blobs, kept behind a PrimitiveStorage backend.
// Storage entries are mutated exclusively by committing the mutation set of
// an executed receipt whose receiver is that account; the scheduler never
// writes here directly.
package state

import (
	"context"
	"encoding/hex"
	"errors"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/chainsim-dev/chainsim/codec"
	"github.com/chainsim-dev/chainsim/types"
)

// DefaultBalance is assigned to accounts created implicitly by Deploy.
const DefaultBalance types.Balance = 1_000_000_000

// ErrInsufficientBalance is returned by Transfer when the sender cannot
// cover the amount.
var ErrInsufficientBalance = eris.New("insufficient balance")

const (
	accountKeyPrefix = "ACCT:"
	codeKeyPrefix    = "CODE:"
	storageKeyPrefix = "STORE:"
)

// AccountState is a point-in-time copy of one account: its balance, its
// storage entries and its code blob (nil for wallet-only accounts). The
// scheduler hands snapshots of this shape to the executor; mutating a
// snapshot never touches the store.
type AccountState struct {
	Balance types.Balance
	Storage map[string][]byte
	Code    []byte
}

// HasContract reports whether the account has code deployed.
func (a AccountState) HasContract() bool {
	return len(a.Code) > 0
}

type accountMeta struct {
	Balance types.Balance `json:"balance"`
}

// Store manages every account in a simulation session.
type Store struct {
	db PrimitiveStorage
}

func NewStore(db PrimitiveStorage) *Store {
	return &Store{db: db}
}

func accountKey(id types.AccountID) string { return accountKeyPrefix + id.String() }
func codeKey(id types.AccountID) string    { return codeKeyPrefix + id.String() }

func storageEntryKey(id types.AccountID, key []byte) string {
	return storageKeyPrefix + id.String() + ":" + hex.EncodeToString(key)
}

func storageEntryPrefix(id types.AccountID) string {
	return storageKeyPrefix + id.String() + ":"
}

// CreateAccount creates the account if needed and sets its balance.
func (s *Store) CreateAccount(ctx context.Context, id types.AccountID, balance types.Balance) error {
	return s.setMeta(ctx, id, accountMeta{Balance: balance})
}

// Deploy stores code under the account, creating the account with
// DefaultBalance if it does not exist yet. Deploying twice overwrites the
// previous code blob.
func (s *Store) Deploy(ctx context.Context, id types.AccountID, code []byte) error {
	exists, err := s.HasAccount(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		if err := s.CreateAccount(ctx, id, DefaultBalance); err != nil {
			return err
		}
	}
	return s.db.Set(ctx, codeKey(id), code)
}

// HasAccount reports whether the account has been created.
func (s *Store) HasAccount(ctx context.Context, id types.AccountID) (bool, error) {
	return s.db.Has(ctx, accountKey(id))
}

// HasContract reports whether the account has code deployed.
func (s *Store) HasContract(ctx context.Context, id types.AccountID) (bool, error) {
	return s.db.Has(ctx, codeKey(id))
}

// Code returns the account's code blob, or ErrNotFound if none is deployed.
func (s *Store) Code(ctx context.Context, id types.AccountID) ([]byte, error) {
	return s.db.GetBytes(ctx, codeKey(id))
}

// Balance returns the account's balance. Unknown accounts have balance zero.
func (s *Store) Balance(ctx context.Context, id types.AccountID) (types.Balance, error) {
	meta, err := s.getMeta(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return meta.Balance, nil
}

// SetBalance overwrites the account's balance, creating the account if
// needed.
func (s *Store) SetBalance(ctx context.Context, id types.AccountID, balance types.Balance) error {
	return s.setMeta(ctx, id, accountMeta{Balance: balance})
}

// Transfer moves amount from one account to another. The receiving account
// is created if it does not exist.
func (s *Store) Transfer(ctx context.Context, from, to types.AccountID, amount types.Balance) error {
	if amount == 0 {
		return nil
	}
	fromBalance, err := s.Balance(ctx, from)
	if err != nil {
		return err
	}
	if fromBalance < amount {
		return eris.Wrapf(ErrInsufficientBalance, "account %s holds %d, needs %d", from, fromBalance, amount)
	}
	toBalance, err := s.Balance(ctx, to)
	if err != nil {
		return err
	}
	if err := s.SetBalance(ctx, from, fromBalance-amount); err != nil {
		return err
	}
	return s.SetBalance(ctx, to, toBalance+amount)
}

// Snapshot returns a copy of the account's full state. Mutating the returned
// value does not affect the store.
func (s *Store) Snapshot(ctx context.Context, id types.AccountID) (AccountState, error) {
	balance, err := s.Balance(ctx, id)
	if err != nil {
		return AccountState{}, err
	}
	storage, err := s.StorageDump(ctx, id)
	if err != nil {
		return AccountState{}, err
	}
	code, err := s.Code(ctx, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return AccountState{}, err
	}
	return AccountState{
		Balance: balance,
		Storage: storage,
		Code:    code,
	}, nil
}

// StorageRead returns the value stored under key for the account, or
// ErrNotFound. It never triggers execution.
func (s *Store) StorageRead(ctx context.Context, id types.AccountID, key []byte) ([]byte, error) {
	return s.db.GetBytes(ctx, storageEntryKey(id, key))
}

// StorageDump returns a copy of all storage entries for the account, keyed
// by the raw entry key bytes (as a string).
func (s *Store) StorageDump(ctx context.Context, id types.AccountID) (map[string][]byte, error) {
	prefix := storageEntryPrefix(id)
	keys, err := s.db.Keys(ctx, prefix)
	if err != nil {
		return nil, err
	}
	dump := make(map[string][]byte, len(keys))
	for _, dbKey := range keys {
		rawKey, err := hex.DecodeString(strings.TrimPrefix(dbKey, prefix))
		if err != nil {
			return nil, eris.Wrapf(err, "malformed storage key %q", dbKey)
		}
		value, err := s.db.GetBytes(ctx, dbKey)
		if err != nil {
			return nil, err
		}
		dump[string(rawKey)] = value
	}
	return dump, nil
}

// StorageKeys returns the account's storage entry keys in lexicographic
// order.
func (s *Store) StorageKeys(ctx context.Context, id types.AccountID) ([]string, error) {
	dump, err := s.StorageDump(ctx, id)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(dump))
	for k := range dump {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Accounts returns every created account id in lexicographic order.
func (s *Store) Accounts(ctx context.Context) ([]types.AccountID, error) {
	keys, err := s.db.Keys(ctx, accountKeyPrefix)
	if err != nil {
		return nil, err
	}
	ids := make([]types.AccountID, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, types.AccountID(strings.TrimPrefix(k, accountKeyPrefix)))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Mutation is one proposed storage change: a write (or delete) of a single
// entry under the given account. The executor proposes mutations; the
// scheduler validates the target account and commits or discards the whole
// set at receipt completion.
type Mutation struct {
	Account types.AccountID
	Key     []byte
	Value   []byte
	Delete  bool
}

// ApplyMutations commits the given mutation set atomically. This is the
// commit half of commit-on-success / discard-on-failure: the scheduler calls
// it only for receipts that completed successfully; for failed receipts the
// proposed set is discarded entirely and this is never called.
func (s *Store) ApplyMutations(ctx context.Context, mutations []Mutation) error {
	if len(mutations) == 0 {
		return nil
	}
	tx, err := s.db.StartTransaction(ctx)
	if err != nil {
		return err
	}
	for _, m := range mutations {
		dbKey := storageEntryKey(m.Account, m.Key)
		if m.Delete {
			err = tx.Delete(ctx, dbKey)
		} else {
			err = tx.Set(ctx, dbKey, m.Value)
		}
		if err != nil {
			return err
		}
	}
	return tx.EndTransaction(ctx)
}

// Close releases the underlying storage backend.
func (s *Store) Close(ctx context.Context) error {
	return s.db.Close(ctx)
}

func (s *Store) getMeta(ctx context.Context, id types.AccountID) (accountMeta, error) {
	bz, err := s.db.GetBytes(ctx, accountKey(id))
	if err != nil {
		return accountMeta{}, err
	}
	return codec.Decode[accountMeta](bz)
}

func (s *Store) setMeta(ctx context.Context, id types.AccountID, meta accountMeta) error {
	bz, err := codec.Encode(meta)
	if err != nil {
		return err
	}
	return s.db.Set(ctx, accountKey(id), bz)
}
