package registry

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"dropchain/core/events"
	"dropchain/core/types"
)

var (
	errNilState          = errors.New("registry engine: state not configured")
	errInvalidAmount     = errors.New("registry engine: amount must be positive")
	errInvalidPrice      = errors.New("registry engine: unit price must be positive")
	errInvalidCommission = errors.New("registry engine: commission exceeds 10000 bps")
	errEmptyURI          = errors.New("registry engine: content uri required")
	errTokenNotFound     = errors.New("registry engine: token not found")
)

// Exported aliases so collaborators can match failures with errors.Is.
var (
	ErrInvalidAmount = errInvalidAmount
	ErrTokenNotFound = errTokenNotFound
)

const maxCommissionBps = 10_000

type engineState interface {
	RegistryTokenGet(id uint64) (*Token, bool, error)
	RegistryTokenPut(token *Token) error
	RegistryDigestGet(digest string) (uint64, bool, error)
	RegistryDigestPut(digest string, id uint64) error
	RegistryHoldingGet(tokenID uint64, holder [20]byte) (*big.Int, error)
	RegistryHoldingPut(tokenID uint64, holder [20]byte, amount *big.Int) error
	RegistryCounterGet() (uint64, error)
	RegistryCounterPut(n uint64) error
}

// Engine wires the content-addressed token registry with persistence and
// event emission.
type Engine struct {
	state   engineState
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine constructs a registry engine with default dependencies.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used for deterministic testing.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || evt == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(WrapEvent(evt))
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func hexAddr(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func newBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// Mint registers `amount` units of the metadata triple for the caller. Two
// mints with an identical triple resolve to the same token id via the content
// digest; only a genuinely new triple allocates a fresh id. The caller's
// holding and the token's cumulative supply both grow by `amount`.
func (e *Engine) Mint(caller [20]byte, uri string, unitPrice *big.Int, amount *big.Int, commissionBps uint32) (*Token, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	trimmedURI := strings.TrimSpace(uri)
	if trimmedURI == "" {
		return nil, errEmptyURI
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	if unitPrice == nil || unitPrice.Sign() <= 0 {
		return nil, errInvalidPrice
	}
	if commissionBps > maxCommissionBps {
		return nil, errInvalidCommission
	}
	digest := ContentDigest(trimmedURI, commissionBps, unitPrice)
	var token *Token
	if id, ok, err := e.state.RegistryDigestGet(digest); err != nil {
		return nil, err
	} else if ok {
		existing, found, err := e.state.RegistryTokenGet(id)
		if err != nil {
			return nil, err
		}
		if !found || existing == nil {
			return nil, fmt.Errorf("registry engine: digest index references missing token %d", id)
		}
		token = existing
	} else {
		next, err := e.state.RegistryCounterGet()
		if err != nil {
			return nil, err
		}
		next++
		if err := e.state.RegistryCounterPut(next); err != nil {
			return nil, err
		}
		if err := e.state.RegistryDigestPut(digest, next); err != nil {
			return nil, err
		}
		token = &Token{
			ID:            next,
			URI:           trimmedURI,
			CommissionBps: commissionBps,
			UnitPrice:     newBigInt(unitPrice),
			Supply:        big.NewInt(0),
			CreatedAt:     e.now(),
		}
	}
	holding, err := e.state.RegistryHoldingGet(token.ID, caller)
	if err != nil {
		return nil, err
	}
	holding = new(big.Int).Add(newBigInt(holding), amount)
	if err := e.state.RegistryHoldingPut(token.ID, caller, holding); err != nil {
		return nil, err
	}
	token.Supply = new(big.Int).Add(newBigInt(token.Supply), amount)
	if err := e.state.RegistryTokenPut(token); err != nil {
		return nil, err
	}
	e.emit(MintEvent(fmt.Sprintf("%d", token.ID), hexAddr(caller), amount.String()))
	return token.Clone(), nil
}

// BalanceOf returns the caller-visible holding for (token, account). Unknown
// pairs yield zero rather than an error.
func (e *Engine) BalanceOf(tokenID uint64, holder [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	holding, err := e.state.RegistryHoldingGet(tokenID, holder)
	if err != nil {
		return nil, err
	}
	return newBigInt(holding), nil
}

// TokenByDigest resolves a content digest to its token id.
func (e *Engine) TokenByDigest(digest string) (uint64, bool, error) {
	if e == nil || e.state == nil {
		return 0, false, errNilState
	}
	return e.state.RegistryDigestGet(strings.ToLower(strings.TrimSpace(digest)))
}

// DigestByToken recomputes the content digest for a stored token.
func (e *Engine) DigestByToken(tokenID uint64) (string, bool, error) {
	if e == nil || e.state == nil {
		return "", false, errNilState
	}
	token, ok, err := e.state.RegistryTokenGet(tokenID)
	if err != nil || !ok {
		return "", ok, err
	}
	return ContentDigest(token.URI, token.CommissionBps, token.UnitPrice), true, nil
}

// Metadata returns the stored token record, if any.
func (e *Engine) Metadata(tokenID uint64) (*Token, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	token, ok, err := e.state.RegistryTokenGet(tokenID)
	if err != nil || !ok {
		return nil, ok, err
	}
	return token.Clone(), true, nil
}

// MustMetadata is Metadata with the not-found case folded into the error.
func (e *Engine) MustMetadata(tokenID uint64) (*Token, error) {
	token, ok, err := e.Metadata(tokenID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errTokenNotFound
	}
	return token, nil
}
