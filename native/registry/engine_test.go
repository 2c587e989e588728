package registry

import (
	"errors"
	"math/big"
	"testing"
)

type holdingKey struct {
	tokenID uint64
	holder  [20]byte
}

type mockState struct {
	tokens   map[uint64]*Token
	digests  map[string]uint64
	holdings map[holdingKey]*big.Int
	counter  uint64
}

func newMockState() *mockState {
	return &mockState{
		tokens:   make(map[uint64]*Token),
		digests:  make(map[string]uint64),
		holdings: make(map[holdingKey]*big.Int),
	}
}

func (m *mockState) RegistryTokenGet(id uint64) (*Token, bool, error) {
	token, ok := m.tokens[id]
	if !ok {
		return nil, false, nil
	}
	return token.Clone(), true, nil
}

func (m *mockState) RegistryTokenPut(token *Token) error {
	m.tokens[token.ID] = token.Clone()
	return nil
}

func (m *mockState) RegistryDigestGet(digest string) (uint64, bool, error) {
	id, ok := m.digests[digest]
	return id, ok, nil
}

func (m *mockState) RegistryDigestPut(digest string, id uint64) error {
	m.digests[digest] = id
	return nil
}

func (m *mockState) RegistryHoldingGet(tokenID uint64, holder [20]byte) (*big.Int, error) {
	if amount, ok := m.holdings[holdingKey{tokenID, holder}]; ok {
		return new(big.Int).Set(amount), nil
	}
	return big.NewInt(0), nil
}

func (m *mockState) RegistryHoldingPut(tokenID uint64, holder [20]byte, amount *big.Int) error {
	m.holdings[holdingKey{tokenID, holder}] = new(big.Int).Set(amount)
	return nil
}

func (m *mockState) RegistryCounterGet() (uint64, error) { return m.counter, nil }

func (m *mockState) RegistryCounterPut(n uint64) error {
	m.counter = n
	return nil
}

func addr(last byte) [20]byte {
	var out [20]byte
	out[19] = last
	return out
}

func newTestEngine(state *mockState) *Engine {
	engine := NewEngine()
	engine.SetState(state)
	engine.SetNowFunc(func() int64 { return 1_700_000_000 })
	return engine
}

func TestMintDeduplicatesByContent(t *testing.T) {
	state := newMockState()
	engine := newTestEngine(state)

	producerA := addr(0x01)
	producerB := addr(0x02)

	first, err := engine.Mint(producerA, "ipfs://QmContent", big.NewInt(1999), big.NewInt(10), 500)
	if err != nil {
		t.Fatalf("first mint failed: %v", err)
	}
	second, err := engine.Mint(producerB, "ipfs://QmContent", big.NewInt(1999), big.NewInt(5), 500)
	if err != nil {
		t.Fatalf("second mint failed: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("identical triples minted different tokens: %d vs %d", first.ID, second.ID)
	}

	balA, err := engine.BalanceOf(first.ID, producerA)
	if err != nil {
		t.Fatalf("balance lookup failed: %v", err)
	}
	balB, err := engine.BalanceOf(first.ID, producerB)
	if err != nil {
		t.Fatalf("balance lookup failed: %v", err)
	}
	if balA.Cmp(big.NewInt(10)) != 0 || balB.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("unexpected balances: %s / %s", balA, balB)
	}
	combined := new(big.Int).Add(balA, balB)
	if combined.Cmp(second.Supply) != 0 {
		t.Fatalf("holding sum %s does not match supply %s", combined, second.Supply)
	}
}

func TestMintAllocatesNewIDForNewContent(t *testing.T) {
	state := newMockState()
	engine := newTestEngine(state)
	caller := addr(0x01)

	first, err := engine.Mint(caller, "ipfs://QmOne", big.NewInt(100), big.NewInt(1), 100)
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}
	second, err := engine.Mint(caller, "ipfs://QmTwo", big.NewInt(100), big.NewInt(1), 100)
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}
	if first.ID == second.ID {
		t.Fatalf("distinct content resolved to the same token id %d", first.ID)
	}
	if second.ID != first.ID+1 {
		t.Fatalf("token ids are not monotonic: %d then %d", first.ID, second.ID)
	}
}

func TestMintSupplyAccumulates(t *testing.T) {
	state := newMockState()
	engine := newTestEngine(state)
	caller := addr(0x03)

	if _, err := engine.Mint(caller, "ipfs://QmSupply", big.NewInt(50), big.NewInt(7), 250); err != nil {
		t.Fatalf("mint failed: %v", err)
	}
	token, err := engine.Mint(caller, "ipfs://QmSupply", big.NewInt(50), big.NewInt(3), 250)
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}
	if token.Supply.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("expected supply 10, got %s", token.Supply)
	}
	balance, err := engine.BalanceOf(token.ID, caller)
	if err != nil {
		t.Fatalf("balance lookup failed: %v", err)
	}
	if balance.Cmp(token.Supply) != 0 {
		t.Fatalf("holding %s does not match supply %s", balance, token.Supply)
	}
}

func TestMintRejectsInvalidInput(t *testing.T) {
	engine := newTestEngine(newMockState())
	caller := addr(0x04)

	if _, err := engine.Mint(caller, "ipfs://QmZero", big.NewInt(10), big.NewInt(0), 100); !errors.Is(err, errInvalidAmount) {
		t.Fatalf("expected invalid amount error, got %v", err)
	}
	if _, err := engine.Mint(caller, "ipfs://QmZero", big.NewInt(10), nil, 100); !errors.Is(err, errInvalidAmount) {
		t.Fatalf("expected invalid amount error for nil, got %v", err)
	}
	if _, err := engine.Mint(caller, "   ", big.NewInt(10), big.NewInt(1), 100); !errors.Is(err, errEmptyURI) {
		t.Fatalf("expected empty uri error, got %v", err)
	}
	if _, err := engine.Mint(caller, "ipfs://QmFee", big.NewInt(10), big.NewInt(1), 10_001); !errors.Is(err, errInvalidCommission) {
		t.Fatalf("expected commission error, got %v", err)
	}
	if _, err := engine.Mint(caller, "ipfs://QmPrice", big.NewInt(0), big.NewInt(1), 100); !errors.Is(err, errInvalidPrice) {
		t.Fatalf("expected price error, got %v", err)
	}
}

func TestRemintKeepsMetadataImmutable(t *testing.T) {
	state := newMockState()
	engine := newTestEngine(state)
	caller := addr(0x05)

	first, err := engine.Mint(caller, "ipfs://QmMeta", big.NewInt(1200), big.NewInt(1), 750)
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}
	again, err := engine.Mint(caller, "ipfs://QmMeta", big.NewInt(1200), big.NewInt(4), 750)
	if err != nil {
		t.Fatalf("remint failed: %v", err)
	}
	if again.URI != first.URI || again.CommissionBps != first.CommissionBps || again.UnitPrice.Cmp(first.UnitPrice) != 0 {
		t.Fatalf("remint mutated token metadata: %+v vs %+v", again, first)
	}
	if again.CreatedAt != first.CreatedAt {
		t.Fatalf("remint changed creation time")
	}
}

func TestLookupsReportNotFound(t *testing.T) {
	state := newMockState()
	engine := newTestEngine(state)

	if _, ok, err := engine.Metadata(42); err != nil || ok {
		t.Fatalf("expected clean not-found, got ok=%v err=%v", ok, err)
	}
	if _, ok, err := engine.DigestByToken(42); err != nil || ok {
		t.Fatalf("expected clean not-found, got ok=%v err=%v", ok, err)
	}
	if _, ok, err := engine.TokenByDigest("deadbeef"); err != nil || ok {
		t.Fatalf("expected clean not-found, got ok=%v err=%v", ok, err)
	}
	if _, err := engine.MustMetadata(42); !errors.Is(err, errTokenNotFound) {
		t.Fatalf("expected token not found, got %v", err)
	}
	balance, err := engine.BalanceOf(42, addr(0x09))
	if err != nil {
		t.Fatalf("balance lookup failed: %v", err)
	}
	if balance.Sign() != 0 {
		t.Fatalf("unknown holding should be zero, got %s", balance)
	}
}

func TestDigestRoundTrip(t *testing.T) {
	state := newMockState()
	engine := newTestEngine(state)
	caller := addr(0x06)

	token, err := engine.Mint(caller, "ipfs://QmRound", big.NewInt(900), big.NewInt(2), 125)
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}
	digest, ok, err := engine.DigestByToken(token.ID)
	if err != nil || !ok {
		t.Fatalf("digest lookup failed: ok=%v err=%v", ok, err)
	}
	id, ok, err := engine.TokenByDigest(digest)
	if err != nil || !ok {
		t.Fatalf("token lookup failed: ok=%v err=%v", ok, err)
	}
	if id != token.ID {
		t.Fatalf("digest round trip resolved %d, want %d", id, token.ID)
	}
}
