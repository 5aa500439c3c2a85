package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const marketplaceABIJSON = `[
	{"name":"mapRequestIdInfos","type":"function","stateMutability":"view",
	 "inputs":[{"name":"requestId","type":"uint256"}],
	 "outputs":[
		{"name":"requester","type":"address"},
		{"name":"deliveryMech","type":"address"},
		{"name":"responseTimeout","type":"uint256"},
		{"name":"delivered","type":"bool"}
	 ]},
	{"name":"mapRequestCounts","type":"function","stateMutability":"view",
	 "inputs":[{"name":"safe","type":"address"}],
	 "outputs":[{"name":"count","type":"uint256"}]},
	{"name":"deliverToMarketplace","type":"function","stateMutability":"nonpayable",
	 "inputs":[
		{"name":"requestId","type":"uint256"},
		{"name":"data","type":"bytes"}
	 ],"outputs":[]},
	{"name":"request","type":"function","stateMutability":"payable",
	 "inputs":[
		{"name":"requestData","type":"bytes"},
		{"name":"priorityMech","type":"address"},
		{"name":"responseTimeout","type":"uint256"}
	 ],"outputs":[{"name":"requestId","type":"uint256"}]}
]`

var marketplaceABI abi.ABI

func init() {
	var err error
	marketplaceABI, err = abi.JSON(strings.NewReader(marketplaceABIJSON))
	if err != nil {
		panic(fmt.Sprintf("chain: parse marketplace ABI: %v", err))
	}
}

// Marketplace is a read-only caller against the marketplace contract.
type Marketplace struct {
	client  *Client
	address common.Address
}

// NewMarketplace binds a Marketplace caller to the given contract
// address.
func NewMarketplace(client *Client, address string) *Marketplace {
	return &Marketplace{client: client, address: common.HexToAddress(address)}
}

// RequestInfo is the subset of mapRequestIdInfos this worker cares about.
type RequestInfo struct {
	DeliveryMech    common.Address
	ResponseTimeout time.Time
	Delivered       bool
}

// IsUndelivered reports whether no mech has delivered this request yet.
func (r RequestInfo) IsUndelivered() bool {
	return r.DeliveryMech == (common.Address{})
}

// RequestInfo queries mapRequestIdInfos for requestID, an opaque
// identifier accepted as either a decimal or hex string.
func (m *Marketplace) RequestInfo(ctx context.Context, requestID string) (RequestInfo, error) {
	id, ok := new(big.Int).SetString(requestID, 0)
	if !ok {
		return RequestInfo{}, fmt.Errorf("chain: invalid request id %q", requestID)
	}

	var raw struct {
		Requester       common.Address
		DeliveryMech    common.Address
		ResponseTimeout *big.Int
		Delivered       bool
	}
	if err := viewCall(ctx, m.client, marketplaceABI, m.address, &raw, "mapRequestIdInfos", id); err != nil {
		return RequestInfo{}, err
	}

	info := RequestInfo{
		DeliveryMech: raw.DeliveryMech,
		Delivered:    raw.Delivered,
	}
	if raw.ResponseTimeout != nil && raw.ResponseTimeout.Sign() > 0 {
		info.ResponseTimeout = time.Unix(raw.ResponseTimeout.Int64(), 0)
	}
	return info, nil
}

// RequestCount queries mapRequestCounts for a given service safe address.
func (m *Marketplace) RequestCount(ctx context.Context, safe string) (uint64, error) {
	var count *big.Int
	if err := viewCall(ctx, m.client, marketplaceABI, m.address, &count, "mapRequestCounts", common.HexToAddress(safe)); err != nil {
		return 0, err
	}
	return count.Uint64(), nil
}

// Address returns the contract address this Marketplace is bound to, used
// by the Deliverer to address the multisig call it wraps around
// deliverToMarketplace.
func (m *Marketplace) Address() common.Address {
	return m.address
}

// PackDeliver encodes the deliverToMarketplace(requestId, data) calldata
// the Deliverer's multisig transaction wraps.
func (m *Marketplace) PackDeliver(requestID string, data []byte) ([]byte, error) {
	id, ok := new(big.Int).SetString(requestID, 0)
	if !ok {
		return nil, fmt.Errorf("chain: invalid request id %q", requestID)
	}
	return marketplaceABI.Pack("deliverToMarketplace", id, data)
}

// PackRequest encodes the request(requestData, priorityMech,
// responseTimeout) calldata the Staking coordinator's heartbeat
// submission wraps.
func (m *Marketplace) PackRequest(requestData []byte, priorityMech string, responseTimeout time.Duration) ([]byte, error) {
	return marketplaceABI.Pack("request", requestData, common.HexToAddress(priorityMech), big.NewInt(int64(responseTimeout.Seconds())))
}
