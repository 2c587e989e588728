package rights

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"dropchain/core/events"
	"dropchain/core/types"
	"dropchain/native/registry"
)

var (
	errNilState         = errors.New("rights engine: state not configured")
	errTokenNotFound    = errors.New("rights engine: token not found")
	errRequestNotFound  = errors.New("rights engine: request not found")
	errAccessDenied     = errors.New("rights engine: access denied")
	errDuplicateRequest = errors.New("rights engine: pending request already exists")
	errNotPending       = errors.New("rights engine: request is not pending")
	errNotApproved      = errors.New("rights engine: request is not approved")
)

// Exported aliases so collaborators can match failures with errors.Is.
var (
	ErrTokenNotFound    = errTokenNotFound
	ErrRequestNotFound  = errRequestNotFound
	ErrAccessDenied     = errAccessDenied
	ErrDuplicateRequest = errDuplicateRequest
	ErrNotPending       = errNotPending
	ErrNotApproved      = errNotApproved
)

type engineState interface {
	RegistryTokenGet(id uint64) (*registry.Token, bool, error)
	RightsRequestGet(id uint64) (*Request, bool, error)
	RightsRequestPut(req *Request) error
	RightsRequestDelete(id uint64) error
	RightsCounterGet() (uint64, error)
	RightsCounterPut(n uint64) error
	RightsDedupGet(key string) (bool, error)
	RightsDedupPut(key string, pending bool) error
	RightsProducerIndexAdd(addr [20]byte, id uint64) error
	RightsProducerIndexRemove(addr [20]byte, id uint64) error
	RightsProducerIndexList(addr [20]byte) ([]uint64, error)
	RightsPublisherIndexAdd(addr [20]byte, id uint64) error
	RightsPublisherIndexRemove(addr [20]byte, id uint64) error
	RightsPublisherIndexList(addr [20]byte) ([]uint64, error)
}

// Engine owns the publish-request lifecycle and the per-account request
// indexes.
type Engine struct {
	state   engineState
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine constructs a rights engine with default dependencies.
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

// dedupKey identifies a (producer, publisher, token) triple. At most one
// pending request may exist per key at any time.
func dedupKey(producer, publisher [20]byte, tokenID uint64) string {
	buf := make([]byte, 0, 48)
	buf = append(buf, producer[:]...)
	buf = append(buf, publisher[:]...)
	buf = binary.BigEndian.AppendUint64(buf, tokenID)
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:])
}

// Submit files a new publish request: the caller becomes the publisher asking
// the named producer for commission rights over the token. The commission is
// snapshotted from the token's current metadata.
func (e *Engine) Submit(publisher [20]byte, producer [20]byte, tokenID uint64) (*Request, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	token, ok, err := e.state.RegistryTokenGet(tokenID)
	if err != nil {
		return nil, err
	}
	if !ok || token == nil {
		return nil, errTokenNotFound
	}
	key := dedupKey(producer, publisher, tokenID)
	if pending, err := e.state.RightsDedupGet(key); err != nil {
		return nil, err
	} else if pending {
		return nil, errDuplicateRequest
	}
	next, err := e.state.RightsCounterGet()
	if err != nil {
		return nil, err
	}
	next++
	if err := e.state.RightsCounterPut(next); err != nil {
		return nil, err
	}
	req := &Request{
		ID:            next,
		TokenID:       tokenID,
		Producer:      producer,
		Publisher:     publisher,
		CommissionBps: token.CommissionBps,
		Status:        StatusPending,
		CreatedAt:     e.now(),
	}
	if err := e.state.RightsRequestPut(req); err != nil {
		return nil, err
	}
	if err := e.state.RightsDedupPut(key, true); err != nil {
		return nil, err
	}
	if err := e.state.RightsProducerIndexAdd(producer, req.ID); err != nil {
		return nil, err
	}
	if err := e.state.RightsPublisherIndexAdd(publisher, req.ID); err != nil {
		return nil, err
	}
	e.emit(PublishRequestEvent(fmt.Sprintf("%d", req.ID), fmt.Sprintf("%d", tokenID)))
	return req.Clone(), nil
}

// Approve transitions a pending request to approved. Only the request's
// recorded producer may call it.
func (e *Engine) Approve(caller [20]byte, requestID uint64) (*Request, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	req, ok, err := e.state.RightsRequestGet(requestID)
	if err != nil {
		return nil, err
	}
	if !ok || req == nil {
		return nil, errRequestNotFound
	}
	if req.Producer != caller {
		return nil, errAccessDenied
	}
	if req.Status != StatusPending {
		return nil, errNotPending
	}
	req.Status = StatusApproved
	req.DecidedAt = e.now()
	if err := e.state.RightsRequestPut(req); err != nil {
		return nil, err
	}
	e.emit(ApproveEvent(fmt.Sprintf("%d", requestID)))
	return req.Clone(), nil
}

// Disapprove revokes an approved request. Only the recorded producer may call
// it. The dedup flag for the triple is cleared so a fresh request can be
// filed, and the request leaves both account indexes.
func (e *Engine) Disapprove(caller [20]byte, requestID uint64) (*Request, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	req, ok, err := e.state.RightsRequestGet(requestID)
	if err != nil {
		return nil, err
	}
	if !ok || req == nil {
		return nil, errRequestNotFound
	}
	if req.Producer != caller {
		return nil, errAccessDenied
	}
	if req.Status != StatusApproved {
		return nil, errNotApproved
	}
	req.Status = StatusDisapproved
	req.DecidedAt = e.now()
	if err := e.state.RightsRequestPut(req); err != nil {
		return nil, err
	}
	if err := e.state.RightsDedupPut(dedupKey(req.Producer, req.Publisher, req.TokenID), false); err != nil {
		return nil, err
	}
	if err := e.state.RightsProducerIndexRemove(req.Producer, requestID); err != nil {
		return nil, err
	}
	if err := e.state.RightsPublisherIndexRemove(req.Publisher, requestID); err != nil {
		return nil, err
	}
	e.emit(DisapproveEvent(fmt.Sprintf("%d", requestID)))
	return req.Clone(), nil
}

// Cancel withdraws a pending request. Only the recorded publisher may call
// it. The request record, its dedup flag and its index entries are removed.
func (e *Engine) Cancel(caller [20]byte, requestID uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	req, ok, err := e.state.RightsRequestGet(requestID)
	if err != nil {
		return err
	}
	if !ok || req == nil {
		return errRequestNotFound
	}
	if req.Publisher != caller {
		return errAccessDenied
	}
	if req.Status != StatusPending {
		return errNotPending
	}
	if err := e.state.RightsDedupPut(dedupKey(req.Producer, req.Publisher, req.TokenID), false); err != nil {
		return err
	}
	if err := e.state.RightsProducerIndexRemove(req.Producer, requestID); err != nil {
		return err
	}
	if err := e.state.RightsPublisherIndexRemove(req.Publisher, requestID); err != nil {
		return err
	}
	if err := e.state.RightsRequestDelete(requestID); err != nil {
		return err
	}
	e.emit(CancelEvent(fmt.Sprintf("%d", requestID)))
	return nil
}

// Commission returns the basis points captured when the request was created.
func (e *Engine) Commission(requestID uint64) (uint32, error) {
	req, err := e.mustGet(requestID)
	if err != nil {
		return 0, err
	}
	return req.CommissionBps, nil
}

// Get returns the stored request, if any.
func (e *Engine) Get(requestID uint64) (*Request, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	req, ok, err := e.state.RightsRequestGet(requestID)
	if err != nil || !ok {
		return nil, ok, err
	}
	return req.Clone(), true, nil
}

func (e *Engine) mustGet(requestID uint64) (*Request, error) {
	req, ok, err := e.Get(requestID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errRequestNotFound
	}
	return req, nil
}

// RequestsByProducer enumerates the live requests indexed under a producer.
func (e *Engine) RequestsByProducer(addr [20]byte) ([]*Request, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	ids, err := e.state.RightsProducerIndexList(addr)
	if err != nil {
		return nil, err
	}
	return e.loadAll(ids)
}

// RequestsByPublisher enumerates the live requests indexed under a publisher.
func (e *Engine) RequestsByPublisher(addr [20]byte) ([]*Request, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	ids, err := e.state.RightsPublisherIndexList(addr)
	if err != nil {
		return nil, err
	}
	return e.loadAll(ids)
}

func (e *Engine) loadAll(ids []uint64) ([]*Request, error) {
	out := make([]*Request, 0, len(ids))
	for _, id := range ids {
		req, ok, err := e.state.RightsRequestGet(id)
		if err != nil {
			return nil, err
		}
		if !ok || req == nil {
			continue
		}
		out = append(out, req.Clone())
	}
	return out, nil
}
