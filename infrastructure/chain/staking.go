package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const stakingABIJSON = `[
	{"name":"getServiceIds","type":"function","stateMutability":"view",
	 "inputs":[],"outputs":[{"name":"serviceIds","type":"uint256[]"}]},
	{"name":"getServiceInfo","type":"function","stateMutability":"view",
	 "inputs":[{"name":"serviceId","type":"uint256"}],
	 "outputs":[{"name":"info","type":"bytes"}]},
	{"name":"getStakingState","type":"function","stateMutability":"view",
	 "inputs":[{"name":"serviceId","type":"uint256"}],
	 "outputs":[{"name":"state","type":"uint8"}]},
	{"name":"tsCheckpoint","type":"function","stateMutability":"view",
	 "inputs":[],"outputs":[{"name":"ts","type":"uint256"}]},
	{"name":"livenessPeriod","type":"function","stateMutability":"view",
	 "inputs":[],"outputs":[{"name":"period","type":"uint256"}]},
	{"name":"getNextRewardCheckpointTimestamp","type":"function","stateMutability":"view",
	 "inputs":[],"outputs":[{"name":"ts","type":"uint256"}]},
	{"name":"availableRewards","type":"function","stateMutability":"view",
	 "inputs":[],"outputs":[{"name":"amount","type":"uint256"}]},
	{"name":"maxNumServices","type":"function","stateMutability":"view",
	 "inputs":[],"outputs":[{"name":"max","type":"uint256"}]},
	{"name":"getServiceUnstakeAvailableAt","type":"function","stateMutability":"view",
	 "inputs":[{"name":"serviceId","type":"uint256"}],
	 "outputs":[{"name":"ts","type":"uint256"}]},
	{"name":"checkpoint","type":"function","stateMutability":"nonpayable",
	 "inputs":[],"outputs":[]}
]`

var stakingABI abi.ABI

func init() {
	var err error
	stakingABI, err = abi.JSON(strings.NewReader(stakingABIJSON))
	if err != nil {
		panic(fmt.Sprintf("chain: parse staking ABI: %v", err))
	}
}

// Staking is a caller against the staking contract.
type Staking struct {
	client  *Client
	address common.Address
}

// NewStaking binds a Staking caller to the given contract address.
func NewStaking(client *Client, address string) *Staking {
	return &Staking{client: client, address: common.HexToAddress(address)}
}

// GetServiceIds returns every service id currently registered in the
// staking contract, used to resolve mech addresses when the worker's
// mech filter mode is "staking".
func (s *Staking) GetServiceIds(ctx context.Context) ([]*big.Int, error) {
	var ids []*big.Int
	if err := viewCall(ctx, s.client, stakingABI, s.address, &ids, "getServiceIds"); err != nil {
		return nil, err
	}
	return ids, nil
}

// GetServiceInfo returns the raw on-chain service info blob for serviceID.
// The contract's encoding of this field is implementation-defined per
// staking program; callers that need the mech address decode it
// themselves against the program they are pointed at.
func (s *Staking) GetServiceInfo(ctx context.Context, serviceID *big.Int) ([]byte, error) {
	var info []byte
	if err := viewCall(ctx, s.client, stakingABI, s.address, &info, "getServiceInfo", serviceID); err != nil {
		return nil, err
	}
	return info, nil
}

// StakingState mirrors domain.StakingState's wire encoding.
type StakingState uint8

// GetStakingState returns the raw on-chain staking state for serviceID
// (0 unstaked, 1 staked, 2 evicted).
func (s *Staking) GetStakingState(ctx context.Context, serviceID *big.Int) (StakingState, error) {
	var state uint8
	if err := viewCall(ctx, s.client, stakingABI, s.address, &state, "getStakingState", serviceID); err != nil {
		return 0, err
	}
	return StakingState(state), nil
}

// TSCheckpoint returns the timestamp the current epoch began.
func (s *Staking) TSCheckpoint(ctx context.Context) (time.Time, error) {
	var ts *big.Int
	if err := viewCall(ctx, s.client, stakingABI, s.address, &ts, "tsCheckpoint"); err != nil {
		return time.Time{}, err
	}
	return time.Unix(ts.Int64(), 0), nil
}

// LivenessPeriod returns the epoch length.
func (s *Staking) LivenessPeriod(ctx context.Context) (time.Duration, error) {
	var period *big.Int
	if err := viewCall(ctx, s.client, stakingABI, s.address, &period, "livenessPeriod"); err != nil {
		return 0, err
	}
	return time.Duration(period.Int64()) * time.Second, nil
}

// GetNextRewardCheckpointTimestamp returns when checkpoint() next becomes
// callable.
func (s *Staking) GetNextRewardCheckpointTimestamp(ctx context.Context) (time.Time, error) {
	var ts *big.Int
	if err := viewCall(ctx, s.client, stakingABI, s.address, &ts, "getNextRewardCheckpointTimestamp"); err != nil {
		return time.Time{}, err
	}
	return time.Unix(ts.Int64(), 0), nil
}

// AvailableRewards returns the staking contract's remaining reward pool.
func (s *Staking) AvailableRewards(ctx context.Context) (*big.Int, error) {
	var amount *big.Int
	if err := viewCall(ctx, s.client, stakingABI, s.address, &amount, "availableRewards"); err != nil {
		return nil, err
	}
	return amount, nil
}

// MaxNumServices returns the staking program's service slot cap, used by
// the auto-restake pre-flight check.
func (s *Staking) MaxNumServices(ctx context.Context) (*big.Int, error) {
	var max *big.Int
	if err := viewCall(ctx, s.client, stakingABI, s.address, &max, "maxNumServices"); err != nil {
		return nil, err
	}
	return max, nil
}

// UnstakeAvailableAt returns when serviceID becomes eligible for
// restaking again, used by the auto-restake pre-flight cooldown check.
func (s *Staking) UnstakeAvailableAt(ctx context.Context, serviceID *big.Int) (time.Time, error) {
	var ts *big.Int
	if err := viewCall(ctx, s.client, stakingABI, s.address, &ts, "getServiceUnstakeAvailableAt", serviceID); err != nil {
		return time.Time{}, err
	}
	return time.Unix(ts.Int64(), 0), nil
}

// Checkpoint submits the permissionless checkpoint() transaction that
// ends the current epoch and starts the next.
func (s *Staking) Checkpoint(ctx context.Context, opts *bind.TransactOpts) (*types.Transaction, error) {
	return sendTx(ctx, s.client, stakingABI, s.address, opts, "checkpoint")
}
