package settlement

import "math/big"

// Receipt summarises a settled purchase: the converted totals and the exact
// split issued to each party, all in smallest native units.
type Receipt struct {
	Variant        string   `json:"variant"`
	TokenID        uint64   `json:"tokenId,omitempty"`
	RequestID      uint64   `json:"requestId,omitempty"`
	Buyer          [20]byte `json:"buyer"`
	Producer       [20]byte `json:"producer,omitempty"`
	Publisher      [20]byte `json:"publisher,omitempty"`
	Recipient      [20]byte `json:"recipient,omitempty"`
	Rate           *big.Int `json:"rate"`
	TimestampMs    uint64   `json:"timestampMs"`
	Total          *big.Int `json:"total"`
	PlatformShare  *big.Int `json:"platformShare"`
	ProducerShare  *big.Int `json:"producerShare,omitempty"`
	PublisherShare *big.Int `json:"publisherShare,omitempty"`
	RecipientShare *big.Int `json:"recipientShare,omitempty"`
}

// Purchase variant identifiers carried on receipts and events.
const (
	VariantAffiliate = "affiliate"
	VariantRecorded  = "recorded"
	VariantDirect    = "direct"
)
