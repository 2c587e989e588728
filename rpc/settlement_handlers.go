package rpc

import (
	"dropchain/native/oracle"
	"dropchain/native/settlement"
)

type attestationParams struct {
	Rate        string `json:"rate"`
	TimestampMs uint64 `json:"timestampMs"`
	Signature   string `json:"signature"`
}

type affiliateBuyParams struct {
	Caller      string            `json:"caller"`
	RequestID   uint64            `json:"requestId"`
	Amount      string            `json:"amount"`
	Shipping    string            `json:"shipping,omitempty"`
	Tax         string            `json:"tax,omitempty"`
	Deposit     string            `json:"deposit"`
	Attestation attestationParams `json:"attestation"`
}

type recordedBuyParams struct {
	Caller      string            `json:"caller"`
	Producer    string            `json:"producer"`
	TokenID     uint64            `json:"tokenId"`
	Amount      string            `json:"amount"`
	Shipping    string            `json:"shipping,omitempty"`
	Tax         string            `json:"tax,omitempty"`
	Deposit     string            `json:"deposit"`
	Attestation attestationParams `json:"attestation"`
}

type directBuyParams struct {
	Caller      string            `json:"caller"`
	Recipient   string            `json:"recipient"`
	Price       string            `json:"price"`
	Deposit     string            `json:"deposit"`
	Attestation attestationParams `json:"attestation"`
}

type receiptResult struct {
	Variant        string `json:"variant"`
	TokenID        uint64 `json:"tokenId,omitempty"`
	RequestID      uint64 `json:"requestId,omitempty"`
	Buyer          string `json:"buyer"`
	Producer       string `json:"producer,omitempty"`
	Publisher      string `json:"publisher,omitempty"`
	Recipient      string `json:"recipient,omitempty"`
	Rate           string `json:"rate"`
	TimestampMs    uint64 `json:"timestampMs"`
	Total          string `json:"total"`
	PlatformShare  string `json:"platformShare"`
	ProducerShare  string `json:"producerShare,omitempty"`
	PublisherShare string `json:"publisherShare,omitempty"`
	RecipientShare string `json:"recipientShare,omitempty"`
}

func parseAttestation(params attestationParams) (*oracle.Attestation, *RPCError) {
	rate, rpcErr := parseAmount(params.Rate)
	if rpcErr != nil {
		return nil, rpcErr
	}
	sig, rpcErr := parseSignature(params.Signature)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return &oracle.Attestation{Rate: rate, TimestampMs: params.TimestampMs, Signature: sig}, nil
}

func formatReceipt(receipt *settlement.Receipt) receiptResult {
	out := receiptResult{
		Variant:       receipt.Variant,
		TokenID:       receipt.TokenID,
		RequestID:     receipt.RequestID,
		Buyer:         formatAddress(receipt.Buyer),
		Rate:          bigString(receipt.Rate),
		TimestampMs:   receipt.TimestampMs,
		Total:         bigString(receipt.Total),
		PlatformShare: bigString(receipt.PlatformShare),
	}
	var zero [20]byte
	if receipt.Producer != zero {
		out.Producer = formatAddress(receipt.Producer)
		out.ProducerShare = bigString(receipt.ProducerShare)
	}
	if receipt.Publisher != zero {
		out.Publisher = formatAddress(receipt.Publisher)
		out.PublisherShare = bigString(receipt.PublisherShare)
	}
	if receipt.Recipient != zero {
		out.Recipient = formatAddress(receipt.Recipient)
		out.RecipientShare = bigString(receipt.RecipientShare)
	}
	return out
}

func (s *Server) handleAffiliateBuy(req *RPCRequest) (interface{}, *RPCError) {
	var params affiliateBuyParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	buyer, rpcErr := decodeBech32(params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmount(params.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	shipping, rpcErr := parseOptionalAmount(params.Shipping)
	if rpcErr != nil {
		return nil, rpcErr
	}
	tax, rpcErr := parseOptionalAmount(params.Tax)
	if rpcErr != nil {
		return nil, rpcErr
	}
	deposit, rpcErr := parseAmount(params.Deposit)
	if rpcErr != nil {
		return nil, rpcErr
	}
	att, rpcErr := parseAttestation(params.Attestation)
	if rpcErr != nil {
		return nil, rpcErr
	}
	receipt, err := s.node.AffiliateBuy(buyer, params.RequestID, amount, shipping, tax, att, deposit)
	if err != nil {
		return nil, serverError("failed to settle affiliate purchase", err)
	}
	return formatReceipt(receipt), nil
}

func (s *Server) handleRecordedBuy(req *RPCRequest) (interface{}, *RPCError) {
	var params recordedBuyParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	buyer, rpcErr := decodeBech32(params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	producer, rpcErr := decodeBech32(params.Producer)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmount(params.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	shipping, rpcErr := parseOptionalAmount(params.Shipping)
	if rpcErr != nil {
		return nil, rpcErr
	}
	tax, rpcErr := parseOptionalAmount(params.Tax)
	if rpcErr != nil {
		return nil, rpcErr
	}
	deposit, rpcErr := parseAmount(params.Deposit)
	if rpcErr != nil {
		return nil, rpcErr
	}
	att, rpcErr := parseAttestation(params.Attestation)
	if rpcErr != nil {
		return nil, rpcErr
	}
	receipt, err := s.node.RecordedBuy(buyer, producer, params.TokenID, amount, shipping, tax, att, deposit)
	if err != nil {
		return nil, serverError("failed to settle recorded purchase", err)
	}
	return formatReceipt(receipt), nil
}

func (s *Server) handleDirectBuy(req *RPCRequest) (interface{}, *RPCError) {
	var params directBuyParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	buyer, rpcErr := decodeBech32(params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	recipient, rpcErr := decodeBech32(params.Recipient)
	if rpcErr != nil {
		return nil, rpcErr
	}
	price, rpcErr := parseAmount(params.Price)
	if rpcErr != nil {
		return nil, rpcErr
	}
	deposit, rpcErr := parseAmount(params.Deposit)
	if rpcErr != nil {
		return nil, rpcErr
	}
	att, rpcErr := parseAttestation(params.Attestation)
	if rpcErr != nil {
		return nil, rpcErr
	}
	receipt, err := s.node.DirectBuy(buyer, recipient, price, att, deposit)
	if err != nil {
		return nil, serverError("failed to settle direct purchase", err)
	}
	return formatReceipt(receipt), nil
}

func (s *Server) handleGetAccount(req *RPCRequest) (interface{}, *RPCError) {
	var params accountParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := decodeBech32(params.Account)
	if rpcErr != nil {
		return nil, rpcErr
	}
	acc, err := s.node.Account(addr[:])
	if err != nil {
		return nil, serverError("failed to load account", err)
	}
	balance := "0"
	nonce := uint64(0)
	if acc != nil {
		balance = bigString(acc.Balance)
		nonce = acc.Nonce
	}
	return map[string]interface{}{"balance": balance, "nonce": nonce}, nil
}
