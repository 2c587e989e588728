package settlement

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"dropchain/core/events"
	"dropchain/core/types"
	"dropchain/native/oracle"
	"dropchain/native/registry"
	"dropchain/native/rights"
)

var (
	errNilState            = errors.New("settlement engine: state not configured")
	errNilVerifier         = errors.New("settlement engine: oracle verifier not configured")
	errInvalidAmount       = errors.New("settlement engine: amount must be positive")
	errInvalidRate         = errors.New("settlement engine: exchange rate must be positive")
	errStalePrice          = errors.New("settlement engine: price attestation is stale")
	errTokenNotFound       = errors.New("settlement engine: token not found")
	errRequestNotFound     = errors.New("settlement engine: request not found")
	errRequestNotApproved  = errors.New("settlement engine: request is not approved")
	errInsufficientPayment = errors.New("settlement engine: attached payment below total")
	errInsufficientSupply  = errors.New("settlement engine: insufficient token supply")
	errInsufficientFunds   = errors.New("settlement engine: insufficient buyer balance")
)

// Exported aliases so collaborators can match failures with errors.Is.
var (
	ErrStalePrice          = errStalePrice
	ErrInsufficientPayment = errInsufficientPayment
	ErrInsufficientSupply  = errInsufficientSupply
	ErrInvalidAmount       = errInvalidAmount
	ErrRequestNotApproved  = errRequestNotApproved
)

type engineState interface {
	RegistryTokenGet(id uint64) (*registry.Token, bool, error)
	RightsRequestGet(id uint64) (*rights.Request, bool, error)
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
}

// Engine executes the purchase variants: it trusts prices through the oracle
// verifier, converts fiat to native value and splits payment among platform,
// producer and publisher.
type Engine struct {
	state       engineState
	emitter     events.Emitter
	verifier    *oracle.Verifier
	platform    [20]byte
	feeBps      uint32
	heartbeatMs uint64
	nowMsFn     func() uint64
}

// NewEngine constructs a settlement engine with default dependencies.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowMsFn: func() uint64 { return uint64(time.Now().UnixMilli()) },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetVerifier configures the oracle signature verifier.
func (e *Engine) SetVerifier(v *oracle.Verifier) { e.verifier = v }

// SetPlatformOwner configures the account receiving platform fees.
func (e *Engine) SetPlatformOwner(addr [20]byte) { e.platform = addr }

// SetPlatformFeeBps configures the platform fee in basis points.
func (e *Engine) SetPlatformFeeBps(bps uint32) { e.feeBps = bps }

// SetHeartbeat configures the maximum tolerated attestation age in
// milliseconds. An attestation older than twice the heartbeat is rejected.
func (e *Engine) SetHeartbeat(ms uint64) { e.heartbeatMs = ms }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the millisecond clock used for staleness checks.
func (e *Engine) SetNowFunc(now func() uint64) {
	if now == nil {
		e.nowMsFn = func() uint64 { return uint64(time.Now().UnixMilli()) }
		return
	}
	e.nowMsFn = now
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || evt == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(WrapEvent(evt))
}

func (e *Engine) nowMs() uint64 {
	if e == nil || e.nowMsFn == nil {
		return uint64(time.Now().UnixMilli())
	}
	return e.nowMsFn()
}

func hexAddr(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func nonNegative(v *big.Int) (*big.Int, error) {
	if v == nil {
		return big.NewInt(0), nil
	}
	if v.Sign() < 0 {
		return nil, errInvalidAmount
	}
	return v, nil
}

// checkAttestation verifies the oracle signature and the heartbeat rule. An
// attestation exactly 2*heartbeat behind the ledger clock is still accepted.
func (e *Engine) checkAttestation(att *oracle.Attestation) error {
	if e.verifier == nil {
		return errNilVerifier
	}
	if att == nil || att.Rate == nil || att.Rate.Sign() <= 0 {
		return errInvalidRate
	}
	if err := e.verifier.Verify(att); err != nil {
		return err
	}
	now := e.nowMs()
	if now > att.TimestampMs && now-att.TimestampMs > 2*e.heartbeatMs {
		return errStalePrice
	}
	return nil
}

type payout struct {
	to     [20]byte
	amount *big.Int
}

// settle moves the converted total from the buyer to the parties. Everything
// before this call must be a pure check: the debit and credits are the only
// state mutations of a purchase.
func (e *Engine) settle(buyer [20]byte, deposit, total *big.Int, payouts []payout) error {
	if deposit == nil || deposit.Cmp(total) < 0 {
		return errInsufficientPayment
	}
	distributed := big.NewInt(0)
	for _, p := range payouts {
		if p.amount.Sign() < 0 {
			return fmt.Errorf("settlement engine: negative payout of %s", p.amount)
		}
		distributed = distributed.Add(distributed, p.amount)
	}
	if distributed.Cmp(total) != 0 {
		return fmt.Errorf("settlement engine: payouts %s do not sum to total %s", distributed, total)
	}
	buyerAcc, err := e.state.GetAccount(buyer[:])
	if err != nil {
		return err
	}
	buyerAcc = ensureAccount(buyerAcc)
	if buyerAcc.Balance.Cmp(total) < 0 {
		return errInsufficientFunds
	}
	buyerAcc.Balance = new(big.Int).Sub(buyerAcc.Balance, total)
	if err := e.state.PutAccount(buyer[:], buyerAcc); err != nil {
		return err
	}
	for _, p := range payouts {
		acc, err := e.state.GetAccount(p.to[:])
		if err != nil {
			return err
		}
		acc = ensureAccount(acc)
		acc.Balance = new(big.Int).Add(acc.Balance, p.amount)
		if err := e.state.PutAccount(p.to[:], acc); err != nil {
			return err
		}
	}
	return nil
}

func ensureAccount(acc *types.Account) *types.Account {
	if acc == nil {
		return &types.Account{Balance: big.NewInt(0)}
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc
}

// AffiliateBuy settles a purchase through an approved publish request: the
// platform takes its fee from the product price, the publisher earns the
// commission snapshotted on the request, and the producer receives the
// remainder of the total (including converted shipping and tax).
func (e *Engine) AffiliateBuy(buyer [20]byte, requestID uint64, amount, shipping, tax *big.Int, att *oracle.Attestation, deposit *big.Int) (*Receipt, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	shipping, err := nonNegative(shipping)
	if err != nil {
		return nil, err
	}
	tax, err = nonNegative(tax)
	if err != nil {
		return nil, err
	}
	if err := e.checkAttestation(att); err != nil {
		return nil, err
	}
	req, ok, err := e.state.RightsRequestGet(requestID)
	if err != nil {
		return nil, err
	}
	if !ok || req == nil {
		return nil, errRequestNotFound
	}
	if req.Status != rights.StatusApproved {
		return nil, errRequestNotApproved
	}
	token, ok, err := e.state.RegistryTokenGet(req.TokenID)
	if err != nil {
		return nil, err
	}
	if !ok || token == nil {
		return nil, errTokenNotFound
	}
	productPrice := toNative(token.UnitPrice, att.Rate)
	extras := toNative(new(big.Int).Add(shipping, tax), att.Rate)
	total := new(big.Int).Add(productPrice, extras)
	if token.Supply == nil || token.Supply.Cmp(amount) < 0 {
		return nil, errInsufficientSupply
	}
	platformShare := bpsShare(productPrice, e.feeBps)
	publisherShare := bpsShare(new(big.Int).Sub(productPrice, platformShare), req.CommissionBps)
	producerShare := new(big.Int).Sub(total, platformShare)
	producerShare = producerShare.Sub(producerShare, publisherShare)
	payouts := []payout{
		{to: e.platform, amount: platformShare},
		{to: req.Producer, amount: producerShare},
		{to: req.Publisher, amount: publisherShare},
	}
	if err := e.settle(buyer, deposit, total, payouts); err != nil {
		return nil, err
	}
	e.emit(PurchaseEvent(VariantAffiliate, fmt.Sprintf("%d", token.ID), hexAddr(buyer), total.String(), platformShare.String()))
	return &Receipt{
		Variant:        VariantAffiliate,
		TokenID:        token.ID,
		RequestID:      requestID,
		Buyer:          buyer,
		Producer:       req.Producer,
		Publisher:      req.Publisher,
		Rate:           new(big.Int).Set(att.Rate),
		TimestampMs:    att.TimestampMs,
		Total:          total,
		PlatformShare:  platformShare,
		ProducerShare:  producerShare,
		PublisherShare: publisherShare,
	}, nil
}

// RecordedBuy settles a purchase directly against a producer's token with no
// publisher involved: platform fee over the product price, remainder of the
// total to the producer.
func (e *Engine) RecordedBuy(buyer, producer [20]byte, tokenID uint64, amount, shipping, tax *big.Int, att *oracle.Attestation, deposit *big.Int) (*Receipt, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	shipping, err := nonNegative(shipping)
	if err != nil {
		return nil, err
	}
	tax, err = nonNegative(tax)
	if err != nil {
		return nil, err
	}
	if err := e.checkAttestation(att); err != nil {
		return nil, err
	}
	token, ok, err := e.state.RegistryTokenGet(tokenID)
	if err != nil {
		return nil, err
	}
	if !ok || token == nil {
		return nil, errTokenNotFound
	}
	productPrice := toNative(token.UnitPrice, att.Rate)
	extras := toNative(new(big.Int).Add(shipping, tax), att.Rate)
	total := new(big.Int).Add(productPrice, extras)
	if token.Supply == nil || token.Supply.Cmp(amount) < 0 {
		return nil, errInsufficientSupply
	}
	platformShare := bpsShare(productPrice, e.feeBps)
	producerShare := new(big.Int).Sub(total, platformShare)
	payouts := []payout{
		{to: e.platform, amount: platformShare},
		{to: producer, amount: producerShare},
	}
	if err := e.settle(buyer, deposit, total, payouts); err != nil {
		return nil, err
	}
	e.emit(PurchaseEvent(VariantRecorded, fmt.Sprintf("%d", token.ID), hexAddr(buyer), total.String(), platformShare.String()))
	return &Receipt{
		Variant:       VariantRecorded,
		TokenID:       token.ID,
		Buyer:         buyer,
		Producer:      producer,
		Rate:          new(big.Int).Set(att.Rate),
		TimestampMs:   att.TimestampMs,
		Total:         total,
		PlatformShare: platformShare,
		ProducerShare: producerShare,
	}, nil
}

// DirectBuy settles a bare fiat price between buyer and recipient: the
// platform fee is taken from the converted total, the recipient receives the
// rest. No token, shipping or tax is involved.
func (e *Engine) DirectBuy(buyer, recipient [20]byte, price *big.Int, att *oracle.Attestation, deposit *big.Int) (*Receipt, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if price == nil || price.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	if err := e.checkAttestation(att); err != nil {
		return nil, err
	}
	total := toNative(price, att.Rate)
	platformShare := bpsShare(total, e.feeBps)
	recipientShare := new(big.Int).Sub(total, platformShare)
	payouts := []payout{
		{to: e.platform, amount: platformShare},
		{to: recipient, amount: recipientShare},
	}
	if err := e.settle(buyer, deposit, total, payouts); err != nil {
		return nil, err
	}
	e.emit(PurchaseEvent(VariantDirect, "0", hexAddr(buyer), total.String(), platformShare.String()))
	return &Receipt{
		Variant:        VariantDirect,
		Buyer:          buyer,
		Recipient:      recipient,
		Rate:           new(big.Int).Set(att.Rate),
		TimestampMs:    att.TimestampMs,
		Total:          total,
		PlatformShare:  platformShare,
		RecipientShare: recipientShare,
	}, nil
}
