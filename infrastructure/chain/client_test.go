package chain

import (
	"context"
	"testing"
	"time"
)

func TestNewClientRequiresRPCURL(t *testing.T) {
	_, err := NewClient(context.Background(), Config{})
	if err == nil {
		t.Fatal("expected error for missing RPC URL")
	}
}

func TestTrimHexPrefix(t *testing.T) {
	cases := map[string]string{
		"0xabc": "abc",
		"0XABC": "ABC",
		"abc":   "abc",
		"":      "",
	}
	for in, want := range cases {
		if got := trimHexPrefix(in); got != want {
			t.Errorf("trimHexPrefix(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAddressFromKeyInvalid(t *testing.T) {
	_, err := AddressFromKey("not-a-key")
	if err == nil {
		t.Fatal("expected error for invalid private key")
	}
}

func TestSignerInvalidKey(t *testing.T) {
	_, err := Signer("not-a-key", 1)
	if err == nil {
		t.Fatal("expected error for invalid private key")
	}
}

func TestClientChainID(t *testing.T) {
	c := &Client{chainID: 8453, timeout: time.Second}
	if c.ChainID() != 8453 {
		t.Errorf("ChainID() = %d, want 8453", c.ChainID())
	}
}
