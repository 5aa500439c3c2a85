// Package chain provides EVM-compatible RPC access to the marketplace,
// staking, and token contracts the worker core reads and occasionally
// writes to, built around go-ethereum's client with the usual
// Config/NewClient/mutex-guarded-client shape.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client wraps an ethclient.Client, rebuilt only when the RPC URL changes.
type Client struct {
	mu      sync.RWMutex
	rpcURL  string
	chainID uint64
	eth     *ethclient.Client
	timeout time.Duration
}

// Config configures a Client.
type Config struct {
	RPCURL  string
	ChainID uint64
	Timeout time.Duration
}

// NewClient dials the configured RPC endpoint.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("chain: RPC URL required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", cfg.RPCURL, err)
	}

	return &Client{
		rpcURL:  cfg.RPCURL,
		chainID: cfg.ChainID,
		eth:     eth,
		timeout: timeout,
	}, nil
}

// Rebind re-dials if rpcURL differs from the currently cached one,
// otherwise returns the cached client unchanged.
func (c *Client) Rebind(ctx context.Context, rpcURL string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rpcURL == c.rpcURL && c.eth != nil {
		return nil
	}
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return fmt.Errorf("chain: rebind to %s: %w", rpcURL, err)
	}
	if c.eth != nil {
		c.eth.Close()
	}
	c.eth = eth
	c.rpcURL = rpcURL
	return nil
}

// Raw returns the underlying ethclient.Client for callers that need it
// directly (contract callers in this package).
func (c *Client) Raw() *ethclient.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.eth
}

// ChainID returns the configured chain id.
func (c *Client) ChainID() uint64 {
	return c.chainID
}

// Close releases the underlying connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.eth != nil {
		c.eth.Close()
	}
}

// callCtx returns a context bounded by the client's configured timeout.
func (c *Client) callCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, c.timeout)
}

// Signer builds a *bind.TransactOpts for the given private key, used by
// the Staking Coordinator's checkpoint() and heartbeat submissions and
// by the Deliverer's multisig delivery.
func Signer(privateKeyHex string, chainID uint64) (*bind.TransactOpts, error) {
	key, err := crypto.HexToECDSA(trimHexPrefix(privateKeyHex))
	if err != nil {
		return nil, fmt.Errorf("chain: parse private key: %w", err)
	}
	opts, err := bind.NewKeyedTransactorWithChainID(key, new(big.Int).SetUint64(chainID))
	if err != nil {
		return nil, fmt.Errorf("chain: build transactor: %w", err)
	}
	return opts, nil
}

// AddressFromKey derives the EOA address for a private key.
func AddressFromKey(privateKeyHex string) (common.Address, error) {
	key, err := crypto.HexToECDSA(trimHexPrefix(privateKeyHex))
	if err != nil {
		return common.Address{}, fmt.Errorf("chain: parse private key: %w", err)
	}
	return crypto.PubkeyToAddress(key.PublicKey), nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// BlockTimestamp returns the timestamp of the latest observed block.
func (c *Client) BlockTimestamp(ctx context.Context) (time.Time, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	header, err := c.Raw().HeaderByNumber(ctx, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("chain: header by number: %w", err)
	}
	return time.Unix(int64(header.Time), 0), nil
}

// WaitMined blocks until tx is mined or ctx is done.
func (c *Client) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	return bind.WaitMined(ctx, c.Raw(), tx)
}
