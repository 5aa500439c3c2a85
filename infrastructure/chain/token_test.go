package chain

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestTokenABIPack(t *testing.T) {
	if _, err := tokenABI.Pack("balanceOf", common.HexToAddress("0xabc")); err != nil {
		t.Fatalf("pack balanceOf: %v", err)
	}
}

func TestNewToken(t *testing.T) {
	tok := NewToken(&Client{}, "0x1234567890123456789012345678901234567890")
	if tok.address != common.HexToAddress("0x1234567890123456789012345678901234567890") {
		t.Errorf("unexpected address %s", tok.address.Hex())
	}
}
