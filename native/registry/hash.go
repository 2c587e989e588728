package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
)

// ContentDigest maps a metadata triple to its stable content hash. The
// preimage is the URI followed by the decimal renderings of commission and
// price, hashed with sha256 and encoded hex-lowercase. The registry treats
// the digest as the unique identity of the triple, so the preimage layout
// must never change.
func ContentDigest(uri string, commissionBps uint32, price *big.Int) string {
	p := big.NewInt(0)
	if price != nil {
		p = price
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s%d%s", uri, commissionBps, p.String())))
	return hex.EncodeToString(sum[:])
}
