package settlement

import (
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"math/big"
	"testing"

	"dropchain/core/types"
	"dropchain/native/oracle"
	"dropchain/native/registry"
	"dropchain/native/rights"
)

type mockState struct {
	tokens   map[uint64]*registry.Token
	requests map[uint64]*rights.Request
	accounts map[string]*types.Account
}

func newMockState() *mockState {
	return &mockState{
		tokens:   make(map[uint64]*registry.Token),
		requests: make(map[uint64]*rights.Request),
		accounts: make(map[string]*types.Account),
	}
}

func (m *mockState) RegistryTokenGet(id uint64) (*registry.Token, bool, error) {
	token, ok := m.tokens[id]
	if !ok {
		return nil, false, nil
	}
	return token.Clone(), true, nil
}

func (m *mockState) RightsRequestGet(id uint64) (*rights.Request, bool, error) {
	req, ok := m.requests[id]
	if !ok {
		return nil, false, nil
	}
	return req.Clone(), true, nil
}

func (m *mockState) GetAccount(addr []byte) (*types.Account, error) {
	acc, ok := m.accounts[string(addr)]
	if !ok {
		return nil, nil
	}
	return acc.Clone(), nil
}

func (m *mockState) PutAccount(addr []byte, account *types.Account) error {
	m.accounts[string(addr)] = account.Clone()
	return nil
}

func (m *mockState) fund(addr [20]byte, amount *big.Int) {
	m.accounts[string(addr[:])] = &types.Account{Balance: new(big.Int).Set(amount)}
}

func (m *mockState) balance(addr [20]byte) *big.Int {
	acc, ok := m.accounts[string(addr[:])]
	if !ok || acc.Balance == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(acc.Balance)
}

func (m *mockState) snapshot() map[string]string {
	out := make(map[string]string, len(m.accounts))
	for k, acc := range m.accounts {
		out[k] = acc.Balance.String()
	}
	return out
}

func addr(last byte) [20]byte {
	var out [20]byte
	out[19] = last
	return out
}

var (
	platform  = addr(0xaa)
	producer  = addr(0x01)
	publisher = addr(0x02)
	buyer     = addr(0x03)
)

const (
	heartbeatMs = uint64(120)
	nowMs       = uint64(1_700_000_000_000)
)

type fixture struct {
	state  *mockState
	engine *Engine
	priv   ed25519.PrivateKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("failed to generate oracle key: %v", err)
	}
	verifier, err := oracle.NewVerifier(pub)
	if err != nil {
		t.Fatalf("failed to build verifier: %v", err)
	}
	state := newMockState()
	engine := NewEngine()
	engine.SetState(state)
	engine.SetVerifier(verifier)
	engine.SetPlatformOwner(platform)
	engine.SetPlatformFeeBps(100)
	engine.SetHeartbeat(heartbeatMs)
	engine.SetNowFunc(func() uint64 { return nowMs })
	return &fixture{state: state, engine: engine, priv: priv}
}

// attest signs a rate at the ledger's own clock so staleness never interferes
// unless a test moves the timestamp on purpose.
func (f *fixture) attest(rate *big.Int, ts uint64) *oracle.Attestation {
	digest := sha256.Sum256(oracle.CanonicalMessage(rate, ts))
	return &oracle.Attestation{
		Rate:        new(big.Int).Set(rate),
		TimestampMs: ts,
		Signature:   ed25519.Sign(f.priv, digest[:]),
	}
}

// unitRate makes one fiat unit convert to exactly one native unit, so split
// arithmetic in the tests works on round decimal numbers.
func unitRate() *big.Int {
	return new(big.Int).Set(NativeUnit)
}

func (f *fixture) addToken(id uint64, unitPrice int64, commission uint32, supply int64) {
	f.state.tokens[id] = &registry.Token{
		ID:            id,
		URI:           "ipfs://QmFixture",
		CommissionBps: commission,
		UnitPrice:     big.NewInt(unitPrice),
		Supply:        big.NewInt(supply),
	}
}

func (f *fixture) addRequest(id, tokenID uint64, commission uint32, status rights.RequestStatus) {
	f.state.requests[id] = &rights.Request{
		ID:            id,
		TokenID:       tokenID,
		Producer:      producer,
		Publisher:     publisher,
		CommissionBps: commission,
		Status:        status,
	}
}

func TestAffiliateBuySplitsThreeWays(t *testing.T) {
	f := newFixture(t)
	f.addToken(1, 1_000_000, 500, 10)
	f.addRequest(1, 1, 500, rights.StatusApproved)
	f.state.fund(buyer, big.NewInt(2_000_000))

	att := f.attest(unitRate(), nowMs)
	receipt, err := f.engine.AffiliateBuy(buyer, 1, big.NewInt(1), nil, nil, att, big.NewInt(1_000_000))
	if err != nil {
		t.Fatalf("affiliate buy failed: %v", err)
	}

	if receipt.Total.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("unexpected total: %s", receipt.Total)
	}
	if receipt.PlatformShare.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("unexpected platform share: %s", receipt.PlatformShare)
	}
	if receipt.PublisherShare.Cmp(big.NewInt(49_500)) != 0 {
		t.Fatalf("unexpected publisher share: %s", receipt.PublisherShare)
	}
	if receipt.ProducerShare.Cmp(big.NewInt(940_500)) != 0 {
		t.Fatalf("unexpected producer share: %s", receipt.ProducerShare)
	}
	sum := new(big.Int).Add(receipt.PlatformShare, receipt.PublisherShare)
	sum = sum.Add(sum, receipt.ProducerShare)
	if sum.Cmp(receipt.Total) != 0 {
		t.Fatalf("shares %s do not sum to total %s", sum, receipt.Total)
	}

	if got := f.state.balance(buyer); got.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("buyer balance wrong: %s", got)
	}
	if got := f.state.balance(platform); got.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("platform balance wrong: %s", got)
	}
	if got := f.state.balance(publisher); got.Cmp(big.NewInt(49_500)) != 0 {
		t.Fatalf("publisher balance wrong: %s", got)
	}
	if got := f.state.balance(producer); got.Cmp(big.NewInt(940_500)) != 0 {
		t.Fatalf("producer balance wrong: %s", got)
	}
}

func TestAffiliateBuyShippingAndTaxGoToProducer(t *testing.T) {
	f := newFixture(t)
	f.addToken(1, 1_000_000, 500, 10)
	f.addRequest(1, 1, 500, rights.StatusApproved)
	f.state.fund(buyer, big.NewInt(2_000_000))

	att := f.attest(unitRate(), nowMs)
	receipt, err := f.engine.AffiliateBuy(buyer, 1, big.NewInt(1), big.NewInt(30_000), big.NewInt(20_000), att, big.NewInt(1_050_000))
	if err != nil {
		t.Fatalf("affiliate buy failed: %v", err)
	}
	if receipt.Total.Cmp(big.NewInt(1_050_000)) != 0 {
		t.Fatalf("unexpected total: %s", receipt.Total)
	}
	// Fee and commission still apply only to the product price.
	if receipt.PlatformShare.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("unexpected platform share: %s", receipt.PlatformShare)
	}
	if receipt.PublisherShare.Cmp(big.NewInt(49_500)) != 0 {
		t.Fatalf("unexpected publisher share: %s", receipt.PublisherShare)
	}
	if receipt.ProducerShare.Cmp(big.NewInt(990_500)) != 0 {
		t.Fatalf("extras did not reach producer: %s", receipt.ProducerShare)
	}
}

func TestAffiliateBuyRequiresApprovedRequest(t *testing.T) {
	f := newFixture(t)
	f.addToken(1, 1_000_000, 500, 10)
	f.addRequest(1, 1, 500, rights.StatusPending)
	f.state.fund(buyer, big.NewInt(2_000_000))

	att := f.attest(unitRate(), nowMs)
	if _, err := f.engine.AffiliateBuy(buyer, 1, big.NewInt(1), nil, nil, att, big.NewInt(1_000_000)); !errors.Is(err, ErrRequestNotApproved) {
		t.Fatalf("pending request should fail, got %v", err)
	}
	if _, err := f.engine.AffiliateBuy(buyer, 99, big.NewInt(1), nil, nil, att, big.NewInt(1_000_000)); !errors.Is(err, errRequestNotFound) {
		t.Fatalf("unknown request should fail, got %v", err)
	}
}

func TestStalenessBoundary(t *testing.T) {
	f := newFixture(t)
	f.addToken(1, 1_000_000, 500, 10)
	f.addRequest(1, 1, 500, rights.StatusApproved)
	f.state.fund(buyer, big.NewInt(4_000_000))

	// Exactly twice the heartbeat behind is still fresh.
	onBoundary := f.attest(unitRate(), nowMs-2*heartbeatMs)
	if _, err := f.engine.AffiliateBuy(buyer, 1, big.NewInt(1), nil, nil, onBoundary, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("attestation on the boundary rejected: %v", err)
	}

	// One millisecond past the boundary is stale.
	past := f.attest(unitRate(), nowMs-2*heartbeatMs-1)
	if _, err := f.engine.AffiliateBuy(buyer, 1, big.NewInt(1), nil, nil, past, big.NewInt(1_000_000)); !errors.Is(err, ErrStalePrice) {
		t.Fatalf("expected stale price, got %v", err)
	}

	// Timestamps ahead of the ledger clock are accepted as-is.
	future := f.attest(unitRate(), nowMs+1_000)
	if _, err := f.engine.AffiliateBuy(buyer, 1, big.NewInt(1), nil, nil, future, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("future attestation rejected: %v", err)
	}
}

func TestBadSignatureLeavesBalancesUntouched(t *testing.T) {
	f := newFixture(t)
	f.addToken(1, 1_000_000, 500, 10)
	f.addRequest(1, 1, 500, rights.StatusApproved)
	f.state.fund(buyer, big.NewInt(2_000_000))

	before := f.state.snapshot()
	att := f.attest(unitRate(), nowMs)
	att.Signature[0] ^= 0x01
	if _, err := f.engine.AffiliateBuy(buyer, 1, big.NewInt(1), nil, nil, att, big.NewInt(1_000_000)); !errors.Is(err, oracle.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}
	after := f.state.snapshot()
	if len(before) != len(after) {
		t.Fatalf("failed purchase created accounts")
	}
	for k, v := range before {
		if after[k] != v {
			t.Fatalf("balance moved on failed purchase: %s -> %s", v, after[k])
		}
	}
}

func TestAffiliateBuyValidation(t *testing.T) {
	f := newFixture(t)
	f.addToken(1, 1_000_000, 500, 2)
	f.addRequest(1, 1, 500, rights.StatusApproved)
	f.state.fund(buyer, big.NewInt(10_000_000))

	att := f.attest(unitRate(), nowMs)

	if _, err := f.engine.AffiliateBuy(buyer, 1, big.NewInt(0), nil, nil, att, big.NewInt(1_000_000)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero amount should fail, got %v", err)
	}
	if _, err := f.engine.AffiliateBuy(buyer, 1, big.NewInt(3), nil, nil, att, big.NewInt(1_000_000)); !errors.Is(err, ErrInsufficientSupply) {
		t.Fatalf("amount above supply should fail, got %v", err)
	}
	if _, err := f.engine.AffiliateBuy(buyer, 1, big.NewInt(1), nil, nil, att, big.NewInt(999_999)); !errors.Is(err, ErrInsufficientPayment) {
		t.Fatalf("short deposit should fail, got %v", err)
	}
	if _, err := f.engine.AffiliateBuy(buyer, 1, big.NewInt(1), big.NewInt(-1), nil, att, big.NewInt(1_000_000)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("negative shipping should fail, got %v", err)
	}
}

func TestAffiliateBuyRequiresBuyerFunds(t *testing.T) {
	f := newFixture(t)
	f.addToken(1, 1_000_000, 500, 10)
	f.addRequest(1, 1, 500, rights.StatusApproved)
	f.state.fund(buyer, big.NewInt(999_999))

	att := f.attest(unitRate(), nowMs)
	if _, err := f.engine.AffiliateBuy(buyer, 1, big.NewInt(1), nil, nil, att, big.NewInt(1_000_000)); !errors.Is(err, errInsufficientFunds) {
		t.Fatalf("underfunded buyer should fail, got %v", err)
	}
}

func TestRecordedBuySplitsTwoWays(t *testing.T) {
	f := newFixture(t)
	f.addToken(1, 1_000_000, 500, 10)
	f.state.fund(buyer, big.NewInt(2_000_000))

	att := f.attest(unitRate(), nowMs)
	receipt, err := f.engine.RecordedBuy(buyer, producer, 1, big.NewInt(2), big.NewInt(10_000), nil, att, big.NewInt(1_010_000))
	if err != nil {
		t.Fatalf("recorded buy failed: %v", err)
	}
	if receipt.Total.Cmp(big.NewInt(1_010_000)) != 0 {
		t.Fatalf("unexpected total: %s", receipt.Total)
	}
	if receipt.PlatformShare.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("unexpected platform share: %s", receipt.PlatformShare)
	}
	if receipt.ProducerShare.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("unexpected producer share: %s", receipt.ProducerShare)
	}
	if receipt.PublisherShare != nil {
		t.Fatalf("recorded buy should have no publisher share")
	}
	if got := f.state.balance(producer); got.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("producer balance wrong: %s", got)
	}
}

func TestRecordedBuyUnknownToken(t *testing.T) {
	f := newFixture(t)
	f.state.fund(buyer, big.NewInt(2_000_000))
	att := f.attest(unitRate(), nowMs)
	if _, err := f.engine.RecordedBuy(buyer, producer, 7, big.NewInt(1), nil, nil, att, big.NewInt(1_000_000)); !errors.Is(err, errTokenNotFound) {
		t.Fatalf("unknown token should fail, got %v", err)
	}
}

func TestDirectBuySplitsPriceOnly(t *testing.T) {
	f := newFixture(t)
	recipient := addr(0x04)
	f.state.fund(buyer, big.NewInt(1_000_000))

	att := f.attest(unitRate(), nowMs)
	receipt, err := f.engine.DirectBuy(buyer, recipient, big.NewInt(500_000), att, big.NewInt(500_000))
	if err != nil {
		t.Fatalf("direct buy failed: %v", err)
	}
	if receipt.Total.Cmp(big.NewInt(500_000)) != 0 {
		t.Fatalf("unexpected total: %s", receipt.Total)
	}
	if receipt.PlatformShare.Cmp(big.NewInt(5_000)) != 0 {
		t.Fatalf("unexpected platform share: %s", receipt.PlatformShare)
	}
	if receipt.RecipientShare.Cmp(big.NewInt(495_000)) != 0 {
		t.Fatalf("unexpected recipient share: %s", receipt.RecipientShare)
	}
	if got := f.state.balance(recipient); got.Cmp(big.NewInt(495_000)) != 0 {
		t.Fatalf("recipient balance wrong: %s", got)
	}
	if got := f.state.balance(buyer); got.Cmp(big.NewInt(500_000)) != 0 {
		t.Fatalf("buyer balance wrong: %s", got)
	}
}

func TestDirectBuyRejectsZeroPrice(t *testing.T) {
	f := newFixture(t)
	att := f.attest(unitRate(), nowMs)
	if _, err := f.engine.DirectBuy(buyer, addr(0x04), big.NewInt(0), att, big.NewInt(1)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero price should fail, got %v", err)
	}
}

func TestRateConversionFloors(t *testing.T) {
	f := newFixture(t)
	f.addToken(1, 1_000, 0, 10)
	f.state.fund(buyer, big.NewInt(1_000_000))

	// Rate of 3 native units per fiat unit: 1000 * 1e18 / 3e18 floors to 333.
	rate := new(big.Int).Mul(NativeUnit, big.NewInt(3))
	att := f.attest(rate, nowMs)
	receipt, err := f.engine.RecordedBuy(buyer, producer, 1, big.NewInt(1), nil, nil, att, big.NewInt(333))
	if err != nil {
		t.Fatalf("recorded buy failed: %v", err)
	}
	if receipt.Total.Cmp(big.NewInt(333)) != 0 {
		t.Fatalf("expected floored total 333, got %s", receipt.Total)
	}
}
