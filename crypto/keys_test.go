package crypto

import (
	"bytes"
	"strings"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	raw := make([]byte, 20)
	for i := range raw {
		raw[i] = byte(i)
	}
	addr, err := NewAddress(DropPrefix, raw)
	if err != nil {
		t.Fatalf("failed to build address: %v", err)
	}
	encoded := addr.String()
	if !strings.HasPrefix(encoded, string(DropPrefix)+"1") {
		t.Fatalf("unexpected encoding: %s", encoded)
	}
	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("failed to decode address: %v", err)
	}
	if !bytes.Equal(decoded.Bytes(), raw) {
		t.Fatalf("round trip mismatch: %x vs %x", decoded.Bytes(), raw)
	}
	if decoded.Prefix() != DropPrefix {
		t.Fatalf("unexpected prefix: %s", decoded.Prefix())
	}
}

func TestNewAddressRejectsWrongLength(t *testing.T) {
	if _, err := NewAddress(DropPrefix, make([]byte, 19)); err == nil {
		t.Fatalf("19-byte payload accepted")
	}
	if _, err := NewAddress(DropPrefix, nil); err == nil {
		t.Fatalf("nil payload accepted")
	}
}

func TestDecodeAddressRejectsGarbage(t *testing.T) {
	if _, err := DecodeAddress("not-bech32"); err == nil {
		t.Fatalf("garbage address accepted")
	}
	if _, err := DecodeAddress(""); err == nil {
		t.Fatalf("empty address accepted")
	}
}

func TestGeneratedKeyDerivesAddress(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	addr := key.PubKey().Address()
	if len(addr.Bytes()) != 20 {
		t.Fatalf("derived address has %d bytes", len(addr.Bytes()))
	}

	restored, err := PrivateKeyFromBytes(key.Bytes())
	if err != nil {
		t.Fatalf("failed to restore key: %v", err)
	}
	if restored.PubKey().Address().String() != addr.String() {
		t.Fatalf("restored key derives a different address")
	}
}
