package state

import "encoding/binary"

var (
	registryTokenPrefix   = []byte("registry/token/")
	registryDigestPrefix  = []byte("registry/digest/")
	registryHoldingPrefix = []byte("registry/holding/")
	registryCounterKey    = []byte("registry/counter")
	rightsRequestPrefix   = []byte("rights/request/")
	rightsCounterKey      = []byte("rights/counter")
	rightsDedupPrefix     = []byte("rights/dedup/")
	rightsProducerPrefix  = []byte("rights/index/producer/")
	rightsPublisherPrefix = []byte("rights/index/publisher/")
	accountPrefix         = []byte("account/")
	genesisAppliedKey     = []byte("genesis/applied")
)

func appendUint64(buf []byte, v uint64) []byte {
	return binary.BigEndian.AppendUint64(buf, v)
}

func registryTokenKey(id uint64) []byte {
	return appendUint64(append([]byte(nil), registryTokenPrefix...), id)
}

func registryDigestKey(digest string) []byte {
	return append(append([]byte(nil), registryDigestPrefix...), digest...)
}

func registryHoldingKey(tokenID uint64, holder [20]byte) []byte {
	buf := appendUint64(append([]byte(nil), registryHoldingPrefix...), tokenID)
	return append(buf, holder[:]...)
}

func rightsRequestKey(id uint64) []byte {
	return appendUint64(append([]byte(nil), rightsRequestPrefix...), id)
}

func rightsDedupKey(key string) []byte {
	return append(append([]byte(nil), rightsDedupPrefix...), key...)
}

func rightsProducerIndexKey(addr [20]byte) []byte {
	return append(append([]byte(nil), rightsProducerPrefix...), addr[:]...)
}

func rightsPublisherIndexKey(addr [20]byte) []byte {
	return append(append([]byte(nil), rightsPublisherPrefix...), addr[:]...)
}

func accountKey(addr []byte) []byte {
	return append(append([]byte(nil), accountPrefix...), addr...)
}
