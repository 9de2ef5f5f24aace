// Package eip1559 prices user operations from the node's fee market.
package eip1559

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
)

// FeeBackend is the part of ethclient.Client fee suggestion needs.
type FeeBackend interface {
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// Policy turns a node tip suggestion and the latest base fee into the two
// EIP-1559 caps. Floors keep bundlers willing to include the operation.
type Policy struct {
	TipBufferPercent  int64
	BaseFeeMultiplier int64
	MinPriorityFee    *big.Int
	MinMaxFee         *big.Int
}

var (
	MinPriorityFee = big.NewInt(2_000_000_000)
	MinMaxFee      = big.NewInt(20_000_000_000)

	// DefaultPolicy survives one doubling of the base fee.
	DefaultPolicy = Policy{
		TipBufferPercent:  13,
		BaseFeeMultiplier: 2,
		MinPriorityFee:    MinPriorityFee,
		MinMaxFee:         MinMaxFee,
	}
)

// SuggestFee returns (maxFeePerGas, maxPriorityFeePerGas) under DefaultPolicy.
func SuggestFee(ctx context.Context, client FeeBackend) (*big.Int, *big.Int, error) {
	return DefaultPolicy.Suggest(ctx, client)
}

func (p Policy) Suggest(ctx context.Context, client FeeBackend) (maxFee, tip *big.Int, err error) {
	suggested, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, nil, err
	}
	head, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, err
	}

	tip = atLeast(p.tip(suggested), p.MinPriorityFee)
	if head.BaseFee == nil {
		// pre-London chain, the tip is the whole gas price
		return new(big.Int).Set(tip), tip, nil
	}

	maxFee = new(big.Int).Mul(head.BaseFee, big.NewInt(p.BaseFeeMultiplier))
	maxFee.Add(maxFee, tip)
	return atLeast(maxFee, p.MinMaxFee), tip, nil
}

// tip adds the buffer in whole percent steps of the suggestion.
func (p Policy) tip(suggested *big.Int) *big.Int {
	onePercent := new(big.Int).Div(suggested, big.NewInt(100))
	return onePercent.Mul(onePercent, big.NewInt(p.TipBufferPercent)).Add(onePercent, suggested)
}

func atLeast(v, floor *big.Int) *big.Int {
	if floor != nil && v.Cmp(floor) < 0 {
		return new(big.Int).Set(floor)
	}
	return v
}
