package settlement

import "math/big"

// NativeUnit is the scale between one whole native asset and its smallest
// unit (18 decimals, the chain's denomination). Fiat amounts are expressed in
// the oracle's smallest fiat unit and converted with
// `fiat * NativeUnit / rate`.
var NativeUnit = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

const bpsDenominator = 10_000

// toNative converts a fiat-denominated amount into smallest native units at
// the attested exchange rate. Division floors, matching on-ledger fee
// accounting bit-for-bit.
func toNative(fiat *big.Int, rate *big.Int) *big.Int {
	if fiat == nil || fiat.Sign() == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(fiat, NativeUnit)
	return out.Div(out, rate)
}

// bpsShare returns `amount * bps / 10000`, floored.
func bpsShare(amount *big.Int, bps uint32) *big.Int {
	if amount == nil || amount.Sign() == 0 || bps == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(amount, big.NewInt(int64(bps)))
	return out.Div(out, big.NewInt(bpsDenominator))
}
