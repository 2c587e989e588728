package state

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"dropchain/core/types"
	"dropchain/native/registry"
	"dropchain/native/rights"
	"dropchain/storage"
)

// kvStore is the subset of storage.Database the manager needs. The
// transaction overlay satisfies it too.
type kvStore interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Delete(key []byte) error
	Has(key []byte) (bool, error)
}

// Manager implements every engine state interface over a key-value store.
// Records are RLP encoded under prefixed keys.
type Manager struct {
	kv kvStore
}

// NewManager wraps the supplied database.
func NewManager(db storage.Database) *Manager {
	return &Manager{kv: db}
}

// --- transaction overlay ---

// Txn is a copy-on-write view over the manager's store. Engine mutations land
// in the overlay; Commit flushes them, dropping the Txn discards them. This
// is how every public operation gets whole-call atomicity.
type Txn struct {
	*Manager
	ov *overlay
}

// Begin opens a transaction overlay over the manager's current state.
func (m *Manager) Begin() *Txn {
	ov := &overlay{
		base:    m.kv,
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
	return &Txn{Manager: &Manager{kv: ov}, ov: ov}
}

// Commit applies the overlay's pending writes and deletes to the underlying
// store.
func (t *Txn) Commit() error {
	return t.ov.commit()
}

type overlay struct {
	base    kvStore
	writes  map[string][]byte
	deletes map[string]struct{}
}

func (o *overlay) Put(key, value []byte) error {
	k := string(key)
	delete(o.deletes, k)
	o.writes[k] = append([]byte(nil), value...)
	return nil
}

func (o *overlay) Get(key []byte) ([]byte, error) {
	k := string(key)
	if v, ok := o.writes[k]; ok {
		return append([]byte(nil), v...), nil
	}
	if _, ok := o.deletes[k]; ok {
		return nil, storage.ErrNotFound
	}
	return o.base.Get(key)
}

func (o *overlay) Delete(key []byte) error {
	k := string(key)
	delete(o.writes, k)
	o.deletes[k] = struct{}{}
	return nil
}

func (o *overlay) Has(key []byte) (bool, error) {
	k := string(key)
	if _, ok := o.writes[k]; ok {
		return true, nil
	}
	if _, ok := o.deletes[k]; ok {
		return false, nil
	}
	return o.base.Has(key)
}

func (o *overlay) commit() error {
	for k := range o.deletes {
		if err := o.base.Delete([]byte(k)); err != nil {
			return err
		}
	}
	for k, v := range o.writes {
		if err := o.base.Put([]byte(k), v); err != nil {
			return err
		}
	}
	return nil
}

// --- codec helpers ---

func (m *Manager) load(key []byte, out interface{}) (bool, error) {
	raw, err := m.kv.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, fmt.Errorf("state: decode %q: %w", key, err)
	}
	return true, nil
}

func (m *Manager) store(key []byte, v interface{}) error {
	raw, err := rlp.EncodeToBytes(v)
	if err != nil {
		return fmt.Errorf("state: encode %q: %w", key, err)
	}
	return m.kv.Put(key, raw)
}

func (m *Manager) loadCounter(key []byte) (uint64, error) {
	var n uint64
	if _, err := m.load(key, &n); err != nil {
		return 0, err
	}
	return n, nil
}

// --- registry state ---

type storedToken struct {
	ID            uint64
	URI           string
	CommissionBps uint32
	UnitPrice     *big.Int
	Supply        *big.Int
	CreatedAt     uint64
}

func (m *Manager) RegistryTokenGet(id uint64) (*registry.Token, bool, error) {
	var stored storedToken
	ok, err := m.load(registryTokenKey(id), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &registry.Token{
		ID:            stored.ID,
		URI:           stored.URI,
		CommissionBps: stored.CommissionBps,
		UnitPrice:     stored.UnitPrice,
		Supply:        stored.Supply,
		CreatedAt:     int64(stored.CreatedAt),
	}, true, nil
}

func (m *Manager) RegistryTokenPut(token *registry.Token) error {
	if token == nil {
		return errors.New("state: nil token")
	}
	stored := storedToken{
		ID:            token.ID,
		URI:           token.URI,
		CommissionBps: token.CommissionBps,
		UnitPrice:     bigOrZero(token.UnitPrice),
		Supply:        bigOrZero(token.Supply),
		CreatedAt:     uint64(token.CreatedAt),
	}
	return m.store(registryTokenKey(token.ID), &stored)
}

func (m *Manager) RegistryDigestGet(digest string) (uint64, bool, error) {
	var id uint64
	ok, err := m.load(registryDigestKey(digest), &id)
	return id, ok, err
}

func (m *Manager) RegistryDigestPut(digest string, id uint64) error {
	return m.store(registryDigestKey(digest), id)
}

func (m *Manager) RegistryHoldingGet(tokenID uint64, holder [20]byte) (*big.Int, error) {
	amount := new(big.Int)
	ok, err := m.load(registryHoldingKey(tokenID, holder), amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return amount, nil
}

func (m *Manager) RegistryHoldingPut(tokenID uint64, holder [20]byte, amount *big.Int) error {
	return m.store(registryHoldingKey(tokenID, holder), bigOrZero(amount))
}

func (m *Manager) RegistryCounterGet() (uint64, error) {
	return m.loadCounter(registryCounterKey)
}

func (m *Manager) RegistryCounterPut(n uint64) error {
	return m.store(registryCounterKey, n)
}

// --- rights state ---

type storedRequest struct {
	ID            uint64
	TokenID       uint64
	Producer      [20]byte
	Publisher     [20]byte
	CommissionBps uint32
	Status        uint8
	CreatedAt     uint64
	DecidedAt     uint64
}

func (m *Manager) RightsRequestGet(id uint64) (*rights.Request, bool, error) {
	var stored storedRequest
	ok, err := m.load(rightsRequestKey(id), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &rights.Request{
		ID:            stored.ID,
		TokenID:       stored.TokenID,
		Producer:      stored.Producer,
		Publisher:     stored.Publisher,
		CommissionBps: stored.CommissionBps,
		Status:        rights.RequestStatus(stored.Status),
		CreatedAt:     int64(stored.CreatedAt),
		DecidedAt:     int64(stored.DecidedAt),
	}, true, nil
}

func (m *Manager) RightsRequestPut(req *rights.Request) error {
	if req == nil {
		return errors.New("state: nil request")
	}
	stored := storedRequest{
		ID:            req.ID,
		TokenID:       req.TokenID,
		Producer:      req.Producer,
		Publisher:     req.Publisher,
		CommissionBps: req.CommissionBps,
		Status:        uint8(req.Status),
		CreatedAt:     uint64(req.CreatedAt),
		DecidedAt:     uint64(req.DecidedAt),
	}
	return m.store(rightsRequestKey(req.ID), &stored)
}

func (m *Manager) RightsRequestDelete(id uint64) error {
	return m.kv.Delete(rightsRequestKey(id))
}

func (m *Manager) RightsCounterGet() (uint64, error) {
	return m.loadCounter(rightsCounterKey)
}

func (m *Manager) RightsCounterPut(n uint64) error {
	return m.store(rightsCounterKey, n)
}

func (m *Manager) RightsDedupGet(key string) (bool, error) {
	return m.kv.Has(rightsDedupKey(key))
}

func (m *Manager) RightsDedupPut(key string, pending bool) error {
	if !pending {
		return m.kv.Delete(rightsDedupKey(key))
	}
	return m.kv.Put(rightsDedupKey(key), []byte{1})
}

func (m *Manager) RightsProducerIndexAdd(addr [20]byte, id uint64) error {
	return m.indexAdd(rightsProducerIndexKey(addr), id)
}

func (m *Manager) RightsProducerIndexRemove(addr [20]byte, id uint64) error {
	return m.indexRemove(rightsProducerIndexKey(addr), id)
}

func (m *Manager) RightsProducerIndexList(addr [20]byte) ([]uint64, error) {
	return m.indexList(rightsProducerIndexKey(addr))
}

func (m *Manager) RightsPublisherIndexAdd(addr [20]byte, id uint64) error {
	return m.indexAdd(rightsPublisherIndexKey(addr), id)
}

func (m *Manager) RightsPublisherIndexRemove(addr [20]byte, id uint64) error {
	return m.indexRemove(rightsPublisherIndexKey(addr), id)
}

func (m *Manager) RightsPublisherIndexList(addr [20]byte) ([]uint64, error) {
	return m.indexList(rightsPublisherIndexKey(addr))
}

func (m *Manager) indexList(key []byte) ([]uint64, error) {
	var ids []uint64
	if _, err := m.load(key, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (m *Manager) indexAdd(key []byte, id uint64) error {
	ids, err := m.indexList(key)
	if err != nil {
		return err
	}
	for _, existing := range ids {
		if existing == id {
			return nil
		}
	}
	return m.store(key, append(ids, id))
}

// indexRemove drops the id with swap-remove: order within an index is not
// meaningful.
func (m *Manager) indexRemove(key []byte, id uint64) error {
	ids, err := m.indexList(key)
	if err != nil {
		return err
	}
	for i, existing := range ids {
		if existing != id {
			continue
		}
		ids[i] = ids[len(ids)-1]
		ids = ids[:len(ids)-1]
		if len(ids) == 0 {
			return m.kv.Delete(key)
		}
		return m.store(key, ids)
	}
	return nil
}

// --- accounts ---

type storedAccount struct {
	Balance *big.Int
	Nonce   uint64
}

func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	if len(addr) == 0 {
		return nil, errors.New("state: address must not be empty")
	}
	var stored storedAccount
	ok, err := m.load(accountKey(addr), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &types.Account{Balance: stored.Balance, Nonce: stored.Nonce}, nil
}

func (m *Manager) PutAccount(addr []byte, account *types.Account) error {
	if len(addr) == 0 {
		return errors.New("state: address must not be empty")
	}
	if account == nil {
		return m.kv.Delete(accountKey(addr))
	}
	stored := storedAccount{Balance: bigOrZero(account.Balance), Nonce: account.Nonce}
	return m.store(accountKey(addr), &stored)
}

// GenesisApplied reports whether the one-time genesis allocation ran.
func (m *Manager) GenesisApplied() (bool, error) {
	return m.kv.Has(genesisAppliedKey)
}

// SetGenesisApplied marks the genesis allocation as done.
func (m *Manager) SetGenesisApplied() error {
	return m.kv.Put(genesisAppliedKey, []byte{1})
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
