package rpc

import (
	"dropchain/native/registry"
)

type mintParams struct {
	Caller        string `json:"caller"`
	URI           string `json:"uri"`
	UnitPrice     string `json:"unitPrice"`
	Amount        string `json:"amount"`
	CommissionBps uint32 `json:"commissionBps"`
}

type tokenResult struct {
	ID            uint64 `json:"id"`
	URI           string `json:"uri"`
	CommissionBps uint32 `json:"commissionBps"`
	UnitPrice     string `json:"unitPrice"`
	Supply        string `json:"supply"`
	CreatedAt     int64  `json:"createdAt"`
}

type tokenIDParams struct {
	TokenID uint64 `json:"tokenId"`
}

type tokenByHashParams struct {
	Hash string `json:"hash"`
}

type balanceOfParams struct {
	TokenID uint64 `json:"tokenId"`
	Account string `json:"account"`
}

type infoResult struct {
	Name            string `json:"name"`
	Symbol          string `json:"symbol"`
	Owner           string `json:"owner"`
	PlatformFeeBps  uint32 `json:"platformFeeBps"`
	HeartbeatMillis uint64 `json:"heartbeatMillis"`
}

func formatToken(token *registry.Token) tokenResult {
	return tokenResult{
		ID:            token.ID,
		URI:           token.URI,
		CommissionBps: token.CommissionBps,
		UnitPrice:     bigString(token.UnitPrice),
		Supply:        bigString(token.Supply),
		CreatedAt:     token.CreatedAt,
	}
}

func (s *Server) handleInfo(_ *RPCRequest) (interface{}, *RPCError) {
	return infoResult{
		Name:            s.node.Name(),
		Symbol:          s.node.Symbol(),
		Owner:           formatAddress(s.node.Owner()),
		PlatformFeeBps:  s.node.PlatformFeeBps(),
		HeartbeatMillis: s.node.HeartbeatMs(),
	}, nil
}

func (s *Server) handleMint(req *RPCRequest) (interface{}, *RPCError) {
	var params mintParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := decodeBech32(params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	price, rpcErr := parseAmount(params.UnitPrice)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmount(params.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	token, err := s.node.Mint(caller, params.URI, price, amount, params.CommissionBps)
	if err != nil {
		return nil, serverError("failed to mint", err)
	}
	return formatToken(token), nil
}

func (s *Server) handleGetToken(req *RPCRequest) (interface{}, *RPCError) {
	var params tokenIDParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	token, ok, err := s.node.TokenMetadata(params.TokenID)
	if err != nil {
		return nil, serverError("failed to load token", err)
	}
	if !ok {
		return nil, invalidParams("token not found", nil)
	}
	return formatToken(token), nil
}

func (s *Server) handleGetTokenByHash(req *RPCRequest) (interface{}, *RPCError) {
	var params tokenByHashParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	id, ok, err := s.node.TokenByDigest(params.Hash)
	if err != nil {
		return nil, serverError("failed to resolve hash", err)
	}
	if !ok {
		return nil, invalidParams("token not found", nil)
	}
	return map[string]uint64{"tokenId": id}, nil
}

func (s *Server) handleGetHashByToken(req *RPCRequest) (interface{}, *RPCError) {
	var params tokenIDParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	digest, ok, err := s.node.DigestByToken(params.TokenID)
	if err != nil {
		return nil, serverError("failed to resolve token", err)
	}
	if !ok {
		return nil, invalidParams("token not found", nil)
	}
	return map[string]string{"hash": digest}, nil
}

func (s *Server) handleBalanceOf(req *RPCRequest) (interface{}, *RPCError) {
	var params balanceOfParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	holder, rpcErr := decodeBech32(params.Account)
	if rpcErr != nil {
		return nil, rpcErr
	}
	balance, err := s.node.BalanceOf(params.TokenID, holder)
	if err != nil {
		return nil, serverError("failed to load balance", err)
	}
	return map[string]string{"balance": bigString(balance)}, nil
}
