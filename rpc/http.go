package rpc

import (
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dropchain/core"
	"dropchain/crypto"
	"dropchain/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
)

// RPCRequest is a JSON-RPC 2.0 call envelope.
type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

// RPCError is the JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string { return e.Message }

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

type handlerFunc func(req *RPCRequest) (interface{}, *RPCError)

// Server exposes the marketplace node over JSON-RPC.
type Server struct {
	node      *core.Node
	authToken string
	methods   map[string]handlerFunc
}

// NewServer wires the RPC method table for the supplied node. When the
// DROP_RPC_TOKEN environment variable is set, every call must carry it as a
// bearer token.
func NewServer(node *core.Node) *Server {
	s := &Server{
		node:      node,
		authToken: strings.TrimSpace(os.Getenv("DROP_RPC_TOKEN")),
	}
	s.methods = map[string]handlerFunc{
		"drop_info":                s.handleInfo,
		"drop_mint":                s.handleMint,
		"drop_getToken":            s.handleGetToken,
		"drop_getTokenByHash":      s.handleGetTokenByHash,
		"drop_getHashByToken":      s.handleGetHashByToken,
		"drop_balanceOf":           s.handleBalanceOf,
		"drop_publishRequest":      s.handlePublishRequest,
		"drop_approve":             s.handleApprove,
		"drop_disapprove":          s.handleDisapprove,
		"drop_cancelRequest":       s.handleCancelRequest,
		"drop_getRequest":          s.handleGetRequest,
		"drop_requestsByProducer":  s.handleRequestsByProducer,
		"drop_requestsByPublisher": s.handleRequestsByPublisher,
		"drop_affiliateBuy":        s.handleAffiliateBuy,
		"drop_recordedBuy":         s.handleRecordedBuy,
		"drop_directBuy":           s.handleDirectBuy,
		"drop_getAccount":          s.handleGetAccount,
	}
	return s
}

// Router returns the HTTP handler serving the RPC endpoint plus health and
// metrics.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/", s.handle)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Start serves the router on addr until the listener fails.
func (s *Server) Start(addr string) error {
	return http.ListenAndServe(addr, s.Router())
}

func (s *Server) authorized(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	supplied := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	return subtle.ConstantTimeCompare([]byte(supplied), []byte(s.authToken)) == 1
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeResponse(w, http.StatusBadRequest, nil, nil, &RPCError{Code: codeParseError, Message: "unable to read request body"})
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeResponse(w, http.StatusBadRequest, nil, nil, &RPCError{Code: codeParseError, Message: "invalid JSON payload"})
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeResponse(w, http.StatusBadRequest, req.ID, nil, &RPCError{Code: codeInvalidRequest, Message: "unsupported jsonrpc version"})
		return
	}
	handler, ok := s.methods[req.Method]
	if !ok {
		writeResponse(w, http.StatusNotFound, req.ID, nil, &RPCError{Code: codeMethodNotFound, Message: fmt.Sprintf("method %q not found", req.Method)})
		return
	}
	if !s.authorized(r) {
		observability.RPCMetrics().RecordRequest(req.Method, "unauthorized")
		writeResponse(w, http.StatusUnauthorized, req.ID, nil, &RPCError{Code: codeUnauthorized, Message: "unauthorized"})
		return
	}
	result, rpcErr := handler(&req)
	if rpcErr != nil {
		observability.RPCMetrics().RecordRequest(req.Method, "error")
		observability.RPCMetrics().RecordError(req.Method)
		writeResponse(w, http.StatusBadRequest, req.ID, nil, rpcErr)
		return
	}
	observability.RPCMetrics().RecordRequest(req.Method, "ok")
	writeResponse(w, http.StatusOK, req.ID, result, nil)
}

func writeResponse(w http.ResponseWriter, status int, id json.RawMessage, result interface{}, rpcErr *RPCError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(rpcResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result, Error: rpcErr})
}

// --- shared param helpers ---

func invalidParams(message string, data interface{}) *RPCError {
	return &RPCError{Code: codeInvalidParams, Message: message, Data: data}
}

func serverError(message string, err error) *RPCError {
	var data interface{}
	if err != nil {
		data = err.Error()
	}
	return &RPCError{Code: codeServerError, Message: message, Data: data}
}

func decodeParams(req *RPCRequest, out interface{}) *RPCError {
	if len(req.Params) != 1 {
		return invalidParams("exactly one parameter object expected", nil)
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return invalidParams("invalid parameter object", err.Error())
	}
	return nil
}

func decodeBech32(value string) ([20]byte, *RPCError) {
	var out [20]byte
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return out, invalidParams("invalid account address", err.Error())
	}
	copy(out[:], addr.Bytes())
	return out, nil
}

func formatAddress(addr [20]byte) string {
	return crypto.MustNewAddress(crypto.DropPrefix, addr[:]).String()
}

func parseAmount(value string) (*big.Int, *RPCError) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, invalidParams("amount is required", nil)
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, invalidParams(fmt.Sprintf("invalid amount %q", value), nil)
	}
	if amount.Sign() < 0 {
		return nil, invalidParams("amount must not be negative", nil)
	}
	return amount, nil
}

func parseOptionalAmount(value string) (*big.Int, *RPCError) {
	if strings.TrimSpace(value) == "" {
		return big.NewInt(0), nil
	}
	return parseAmount(value)
}

func parseSignature(value string) ([]byte, *RPCError) {
	trimmed := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(value), "0x"))
	if trimmed == "" {
		return nil, invalidParams("signature is required", nil)
	}
	sig, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, invalidParams("invalid signature encoding", err.Error())
	}
	return sig, nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
