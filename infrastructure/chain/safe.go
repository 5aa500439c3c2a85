package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// safeABIJSON is the subset of the Gnosis/Zodiac Safe interface the
// Deliverer and Staking coordinator need to route a transaction through
// a service's multisig.
const safeABIJSON = `[
	{"name":"execTransaction","type":"function","stateMutability":"nonpayable",
	 "inputs":[
		{"name":"to","type":"address"},
		{"name":"value","type":"uint256"},
		{"name":"data","type":"bytes"},
		{"name":"operation","type":"uint8"},
		{"name":"safeTxGas","type":"uint256"},
		{"name":"baseGas","type":"uint256"},
		{"name":"gasPrice","type":"uint256"},
		{"name":"gasToken","type":"address"},
		{"name":"refundReceiver","type":"address"},
		{"name":"signatures","type":"bytes"}
	 ],"outputs":[{"name":"success","type":"bool"}]},
	{"name":"getTransactionHash","type":"function","stateMutability":"view",
	 "inputs":[
		{"name":"to","type":"address"},
		{"name":"value","type":"uint256"},
		{"name":"data","type":"bytes"},
		{"name":"operation","type":"uint8"},
		{"name":"safeTxGas","type":"uint256"},
		{"name":"baseGas","type":"uint256"},
		{"name":"gasPrice","type":"uint256"},
		{"name":"gasToken","type":"address"},
		{"name":"refundReceiver","type":"address"},
		{"name":"_nonce","type":"uint256"}
	 ],"outputs":[{"name":"","type":"bytes32"}]},
	{"name":"nonce","type":"function","stateMutability":"view",
	 "inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

var safeABI abi.ABI

func init() {
	var err error
	safeABI, err = abi.JSON(strings.NewReader(safeABIJSON))
	if err != nil {
		panic(fmt.Sprintf("chain: parse safe ABI: %v", err))
	}
}

// callOperation matches the Safe contract's Enum.Operation (0 = Call).
const callOperation uint8 = 0

// Safe is a caller against one service's Gnosis-style multisig wallet
// ("service safe" per domain.ServiceRecord.ServiceSafe).
type Safe struct {
	client  *Client
	address common.Address
}

// NewSafe binds a Safe caller to a service's multisig address.
func NewSafe(client *Client, address string) *Safe {
	return &Safe{client: client, address: common.HexToAddress(address)}
}

// Nonce returns the Safe's current transaction nonce.
func (s *Safe) Nonce(ctx context.Context) (*big.Int, error) {
	var nonce *big.Int
	if err := viewCall(ctx, s.client, safeABI, s.address, &nonce, "nonce"); err != nil {
		return nil, err
	}
	return nonce, nil
}

// transactionHash asks the Safe contract itself for the hash the owner
// must sign, rather than reproducing its EIP-712 domain/struct encoding
// client-side — the contract is the single source of truth for its own
// hashing scheme across Safe versions.
func (s *Safe) transactionHash(ctx context.Context, to common.Address, data []byte, nonce *big.Int) ([32]byte, error) {
	var hash [32]byte
	err := viewCall(ctx, s.client, safeABI, s.address, &hash, "getTransactionHash",
		to, big.NewInt(0), data, callOperation,
		big.NewInt(0), big.NewInt(0), big.NewInt(0),
		common.Address{}, common.Address{}, nonce)
	return hash, err
}

// ExecuteSingleOwner submits a call to `to` with `data` through the Safe,
// signed by the single EOA owning it.
func (s *Safe) ExecuteSingleOwner(ctx context.Context, to common.Address, data []byte, opts *bind.TransactOpts, privateKeyHex string) (*types.Transaction, error) {
	nonce, err := s.Nonce(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain: safe nonce: %w", err)
	}

	hash, err := s.transactionHash(ctx, to, data, nonce)
	if err != nil {
		return nil, fmt.Errorf("chain: safe transaction hash: %w", err)
	}

	key, err := crypto.HexToECDSA(trimHexPrefix(privateKeyHex))
	if err != nil {
		return nil, fmt.Errorf("chain: parse signing key: %w", err)
	}
	sig, err := crypto.Sign(hash[:], key)
	if err != nil {
		return nil, fmt.Errorf("chain: sign safe transaction: %w", err)
	}
	// go-ethereum's crypto.Sign returns a recovery id of 0/1; Safe expects
	// the traditional Ethereum v of 27/28 in its signature encoding.
	sig[64] += 27

	return sendTx(ctx, s.client, safeABI, s.address, opts, "execTransaction",
		to, big.NewInt(0), data, callOperation,
		big.NewInt(0), big.NewInt(0), big.NewInt(0),
		common.Address{}, common.Address{}, sig)
}
