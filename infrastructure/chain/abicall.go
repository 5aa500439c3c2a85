package chain

import (
	"context"
	"fmt"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/Jinn-Network/jinn-worker/infrastructure/resilience"
)

// viewCallRetryConfig governs the retry of one-shot view calls: view
// calls are read-only and idempotent, so a handful of retries against a
// flaky RPC endpoint is safe in a way retrying sendTx is not.
var viewCallRetryConfig = resilience.DefaultRetryConfig()

// viewCall packs a view-function call against contractABI at address,
// executes it, and unpacks the result into out. The RPC round trip is
// wrapped in resilience.Retry so a single dropped connection to the RPC
// endpoint doesn't fail an entire worker cycle.
func viewCall(ctx context.Context, client *Client, contractABI abi.ABI, address common.Address, out any, method string, args ...any) error {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("chain: pack %s: %w", method, err)
	}

	var result []byte
	err = resilience.Retry(ctx, viewCallRetryConfig, func() error {
		var callErr error
		result, callErr = client.Raw().CallContract(ctx, ethereum.CallMsg{To: &address, Data: data}, nil)
		return callErr
	})
	if err != nil {
		return fmt.Errorf("chain: call %s: %w", method, err)
	}

	if out == nil {
		return nil
	}
	if err := contractABI.UnpackIntoInterface(out, method, result); err != nil {
		return fmt.Errorf("chain: unpack %s: %w", method, err)
	}
	return nil
}

// sendTx packs and submits a state-changing call through a
// *bind.TransactOpts, returning the submitted transaction.
func sendTx(ctx context.Context, client *Client, contractABI abi.ABI, address common.Address, opts *bind.TransactOpts, method string, args ...any) (*types.Transaction, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("chain: pack %s: %w", method, err)
	}

	boundContract := bind.NewBoundContract(address, contractABI, client.Raw(), client.Raw(), client.Raw())
	tx, err := boundContract.RawTransact(opts, data)
	if err != nil {
		return nil, fmt.Errorf("chain: send %s: %w", method, err)
	}
	_ = ctx
	return tx, nil
}
