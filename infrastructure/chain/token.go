package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const tokenABIJSON = `[
	{"name":"balanceOf","type":"function","stateMutability":"view",
	 "inputs":[{"name":"account","type":"address"}],
	 "outputs":[{"name":"balance","type":"uint256"}]}
]`

var tokenABI abi.ABI

func init() {
	var err error
	tokenABI, err = abi.JSON(strings.NewReader(tokenABIJSON))
	if err != nil {
		panic(fmt.Sprintf("chain: parse token ABI: %v", err))
	}
}

// Token is a read-only caller against an ERC20-compatible token contract,
// used by pre-cycle maintenance's fund top-up scan.
type Token struct {
	client  *Client
	address common.Address
}

// NewToken binds a Token caller to the given contract address.
func NewToken(client *Client, address string) *Token {
	return &Token{client: client, address: common.HexToAddress(address)}
}

// BalanceOf returns the token balance of account.
func (t *Token) BalanceOf(ctx context.Context, account string) (*big.Int, error) {
	var balance *big.Int
	if err := viewCall(ctx, t.client, tokenABI, t.address, &balance, "balanceOf", common.HexToAddress(account)); err != nil {
		return nil, err
	}
	return balance, nil
}
