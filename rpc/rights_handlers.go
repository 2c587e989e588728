package rpc

import (
	"dropchain/native/rights"
)

type publishRequestParams struct {
	Caller   string `json:"caller"`
	Producer string `json:"producer"`
	TokenID  uint64 `json:"tokenId"`
}

type requestIDParams struct {
	Caller    string `json:"caller,omitempty"`
	RequestID uint64 `json:"requestId"`
}

type accountParams struct {
	Account string `json:"account"`
}

type requestResult struct {
	ID            uint64 `json:"id"`
	TokenID       uint64 `json:"tokenId"`
	Producer      string `json:"producer"`
	Publisher     string `json:"publisher"`
	CommissionBps uint32 `json:"commissionBps"`
	Status        string `json:"status"`
	CreatedAt     int64  `json:"createdAt"`
	DecidedAt     int64  `json:"decidedAt,omitempty"`
}

func formatRequest(req *rights.Request) requestResult {
	return requestResult{
		ID:            req.ID,
		TokenID:       req.TokenID,
		Producer:      formatAddress(req.Producer),
		Publisher:     formatAddress(req.Publisher),
		CommissionBps: req.CommissionBps,
		Status:        req.Status.String(),
		CreatedAt:     req.CreatedAt,
		DecidedAt:     req.DecidedAt,
	}
}

func formatRequests(reqs []*rights.Request) []requestResult {
	out := make([]requestResult, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, formatRequest(req))
	}
	return out
}

func (s *Server) handlePublishRequest(req *RPCRequest) (interface{}, *RPCError) {
	var params publishRequestParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := decodeBech32(params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	producer, rpcErr := decodeBech32(params.Producer)
	if rpcErr != nil {
		return nil, rpcErr
	}
	request, err := s.node.PublishRequest(caller, producer, params.TokenID)
	if err != nil {
		return nil, serverError("failed to file publish request", err)
	}
	return formatRequest(request), nil
}

func (s *Server) handleApprove(req *RPCRequest) (interface{}, *RPCError) {
	var params requestIDParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := decodeBech32(params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	request, err := s.node.ApproveRequest(caller, params.RequestID)
	if err != nil {
		return nil, serverError("failed to approve request", err)
	}
	return formatRequest(request), nil
}

func (s *Server) handleDisapprove(req *RPCRequest) (interface{}, *RPCError) {
	var params requestIDParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := decodeBech32(params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	request, err := s.node.DisapproveRequest(caller, params.RequestID)
	if err != nil {
		return nil, serverError("failed to disapprove request", err)
	}
	return formatRequest(request), nil
}

func (s *Server) handleCancelRequest(req *RPCRequest) (interface{}, *RPCError) {
	var params requestIDParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := decodeBech32(params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.node.CancelRequest(caller, params.RequestID); err != nil {
		return nil, serverError("failed to cancel request", err)
	}
	return map[string]bool{"cancelled": true}, nil
}

func (s *Server) handleGetRequest(req *RPCRequest) (interface{}, *RPCError) {
	var params requestIDParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	request, ok, err := s.node.Request(params.RequestID)
	if err != nil {
		return nil, serverError("failed to load request", err)
	}
	if !ok {
		return nil, invalidParams("request not found", nil)
	}
	return formatRequest(request), nil
}

func (s *Server) handleRequestsByProducer(req *RPCRequest) (interface{}, *RPCError) {
	var params accountParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := decodeBech32(params.Account)
	if rpcErr != nil {
		return nil, rpcErr
	}
	requests, err := s.node.RequestsByProducer(addr)
	if err != nil {
		return nil, serverError("failed to list requests", err)
	}
	return formatRequests(requests), nil
}

func (s *Server) handleRequestsByPublisher(req *RPCRequest) (interface{}, *RPCError) {
	var params accountParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := decodeBech32(params.Account)
	if rpcErr != nil {
		return nil, rpcErr
	}
	requests, err := s.node.RequestsByPublisher(addr)
	if err != nil {
		return nil, serverError("failed to list requests", err)
	}
	return formatRequests(requests), nil
}
