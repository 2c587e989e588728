package core

import (
	"math/big"
	"sync"

	"dropchain/core/events"
	"dropchain/core/state"
	"dropchain/core/types"
	"dropchain/native/oracle"
	"dropchain/native/registry"
	"dropchain/native/rights"
	"dropchain/native/settlement"
)

// Config carries the construction-time marketplace parameters. They are
// read-only to the node after NewNode.
type Config struct {
	Name          string
	Symbol        string
	PlatformOwner [20]byte
	PlatformFee   uint32
	HeartbeatMs   uint64
}

// Node is the single logical writer over marketplace state. Every public
// operation takes the node mutex, runs the engines against a fresh state
// overlay and commits only on full success, so an operation either applies
// completely or not at all.
type Node struct {
	mu         sync.Mutex
	state      *state.Manager
	cfg        Config
	emitter    events.Emitter
	registry   *registry.Engine
	rights     *rights.Engine
	settlement *settlement.Engine
}

// NewNode wires the engines over the supplied state manager.
func NewNode(manager *state.Manager, verifier *oracle.Verifier, cfg Config, emitter events.Emitter) *Node {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	reg := registry.NewEngine()
	reg.SetEmitter(emitter)
	rgt := rights.NewEngine()
	rgt.SetEmitter(emitter)
	stl := settlement.NewEngine()
	stl.SetEmitter(emitter)
	stl.SetVerifier(verifier)
	stl.SetPlatformOwner(cfg.PlatformOwner)
	stl.SetPlatformFeeBps(cfg.PlatformFee)
	stl.SetHeartbeat(cfg.HeartbeatMs)
	return &Node{
		state:      manager,
		cfg:        cfg,
		emitter:    emitter,
		registry:   reg,
		rights:     rgt,
		settlement: stl,
	}
}

// Name returns the marketplace's human-readable name.
func (n *Node) Name() string { return n.cfg.Name }

// Symbol returns the marketplace's ticker symbol.
func (n *Node) Symbol() string { return n.cfg.Symbol }

// Owner returns the platform owner account.
func (n *Node) Owner() [20]byte { return n.cfg.PlatformOwner }

// PlatformFeeBps returns the configured platform fee.
func (n *Node) PlatformFeeBps() uint32 { return n.cfg.PlatformFee }

// HeartbeatMs returns the configured oracle staleness window in milliseconds.
func (n *Node) HeartbeatMs() uint64 { return n.cfg.HeartbeatMs }

// withTxn binds all engines to a fresh overlay, runs fn, and commits the
// overlay only when fn succeeds.
func (n *Node) withTxn(fn func() error) error {
	txn := n.state.Begin()
	n.registry.SetState(txn)
	n.rights.SetState(txn)
	n.settlement.SetState(txn)
	if err := fn(); err != nil {
		return err
	}
	return txn.Commit()
}

// bindRead points the engines at the committed state for read-only calls.
func (n *Node) bindRead() {
	n.registry.SetState(n.state)
	n.rights.SetState(n.state)
	n.settlement.SetState(n.state)
}

// Mint registers product metadata (or adds supply to an existing triple) for
// the caller.
func (n *Node) Mint(caller [20]byte, uri string, unitPrice, amount *big.Int, commissionBps uint32) (*registry.Token, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	var token *registry.Token
	err := n.withTxn(func() error {
		var err error
		token, err = n.registry.Mint(caller, uri, unitPrice, amount, commissionBps)
		return err
	})
	if err != nil {
		return nil, err
	}
	return token, nil
}

// BalanceOf returns the holding balance for (token, account).
func (n *Node) BalanceOf(tokenID uint64, holder [20]byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.bindRead()
	return n.registry.BalanceOf(tokenID, holder)
}

// TokenByDigest resolves a content digest to a token id.
func (n *Node) TokenByDigest(digest string) (uint64, bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.bindRead()
	return n.registry.TokenByDigest(digest)
}

// DigestByToken returns the content digest for a token id.
func (n *Node) DigestByToken(tokenID uint64) (string, bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.bindRead()
	return n.registry.DigestByToken(tokenID)
}

// TokenMetadata returns the stored token record.
func (n *Node) TokenMetadata(tokenID uint64) (*registry.Token, bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.bindRead()
	return n.registry.Metadata(tokenID)
}

// PublishRequest files a publish request; the caller becomes the publisher.
func (n *Node) PublishRequest(caller [20]byte, producer [20]byte, tokenID uint64) (*rights.Request, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	var req *rights.Request
	err := n.withTxn(func() error {
		var err error
		req, err = n.rights.Submit(caller, producer, tokenID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// ApproveRequest grants the publisher commission rights; producer only.
func (n *Node) ApproveRequest(caller [20]byte, requestID uint64) (*rights.Request, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	var req *rights.Request
	err := n.withTxn(func() error {
		var err error
		req, err = n.rights.Approve(caller, requestID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// DisapproveRequest revokes an approval; producer only.
func (n *Node) DisapproveRequest(caller [20]byte, requestID uint64) (*rights.Request, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	var req *rights.Request
	err := n.withTxn(func() error {
		var err error
		req, err = n.rights.Disapprove(caller, requestID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// CancelRequest withdraws a pending request; publisher only.
func (n *Node) CancelRequest(caller [20]byte, requestID uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.withTxn(func() error {
		return n.rights.Cancel(caller, requestID)
	})
}

// Request returns the stored publish request, if any.
func (n *Node) Request(requestID uint64) (*rights.Request, bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.bindRead()
	return n.rights.Get(requestID)
}

// RequestsByProducer enumerates the live requests naming the producer.
func (n *Node) RequestsByProducer(addr [20]byte) ([]*rights.Request, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.bindRead()
	return n.rights.RequestsByProducer(addr)
}

// RequestsByPublisher enumerates the live requests filed by the publisher.
func (n *Node) RequestsByPublisher(addr [20]byte) ([]*rights.Request, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.bindRead()
	return n.rights.RequestsByPublisher(addr)
}

// AffiliateBuy settles a purchase through an approved publish request.
func (n *Node) AffiliateBuy(buyer [20]byte, requestID uint64, amount, shipping, tax *big.Int, att *oracle.Attestation, deposit *big.Int) (*settlement.Receipt, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	var receipt *settlement.Receipt
	err := n.withTxn(func() error {
		var err error
		receipt, err = n.settlement.AffiliateBuy(buyer, requestID, amount, shipping, tax, att, deposit)
		return err
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// RecordedBuy settles a two-party purchase against a producer's token.
func (n *Node) RecordedBuy(buyer, producer [20]byte, tokenID uint64, amount, shipping, tax *big.Int, att *oracle.Attestation, deposit *big.Int) (*settlement.Receipt, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	var receipt *settlement.Receipt
	err := n.withTxn(func() error {
		var err error
		receipt, err = n.settlement.RecordedBuy(buyer, producer, tokenID, amount, shipping, tax, att, deposit)
		return err
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// DirectBuy settles a bare converted price between buyer and recipient.
func (n *Node) DirectBuy(buyer, recipient [20]byte, price *big.Int, att *oracle.Attestation, deposit *big.Int) (*settlement.Receipt, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	var receipt *settlement.Receipt
	err := n.withTxn(func() error {
		var err error
		receipt, err = n.settlement.DirectBuy(buyer, recipient, price, att, deposit)
		return err
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// Account returns the stored ledger account, or nil when unknown.
func (n *Node) Account(addr []byte) (*types.Account, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	acc, err := n.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	return acc.Clone(), nil
}

// ApplyGenesis funds the supplied accounts exactly once per data directory.
func (n *Node) ApplyGenesis(allocs map[[20]byte]*big.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	applied, err := n.state.GenesisApplied()
	if err != nil {
		return err
	}
	if applied {
		return nil
	}
	txn := n.state.Begin()
	for addr, balance := range allocs {
		if balance == nil || balance.Sign() <= 0 {
			continue
		}
		if err := txn.PutAccount(addr[:], &types.Account{Balance: new(big.Int).Set(balance)}); err != nil {
			return err
		}
	}
	if err := txn.SetGenesisApplied(); err != nil {
		return err
	}
	return txn.Commit()
}
