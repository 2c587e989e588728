package registry

import "math/big"

// Token is the deduplicated record for one metadata triple (URI, commission,
// unit price). URI, commission and price are immutable after creation; a
// remint of the same triple only grows Supply.
type Token struct {
	ID            uint64   `json:"id"`
	URI           string   `json:"uri"`
	CommissionBps uint32   `json:"commissionBps"`
	UnitPrice     *big.Int `json:"unitPrice"`
	Supply        *big.Int `json:"supply"`
	CreatedAt     int64    `json:"createdAt"`
}

// Clone returns a deep copy of the token so callers can safely mutate the
// copy without affecting the stored instance.
func (t *Token) Clone() *Token {
	if t == nil {
		return nil
	}
	clone := *t
	if t.UnitPrice != nil {
		clone.UnitPrice = new(big.Int).Set(t.UnitPrice)
	} else {
		clone.UnitPrice = big.NewInt(0)
	}
	if t.Supply != nil {
		clone.Supply = new(big.Int).Set(t.Supply)
	} else {
		clone.Supply = big.NewInt(0)
	}
	return &clone
}
