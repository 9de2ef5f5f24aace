// Package erc20 is a small client for the token the bridge moves.
package erc20

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const tokenABIJSON = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
	{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
	{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
	{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"name":"mint","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"from","type":"address"},{"indexed":true,"name":"to","type":"address"},{"indexed":false,"name":"amount","type":"uint256"}],"name":"Transfer","type":"event"}
]`

var (
	TokenABI = func() abi.ABI {
		parsed, err := abi.JSON(strings.NewReader(tokenABIJSON))
		if err != nil {
			panic(fmt.Errorf("Invalid ERC20 ABI: %w", err))
		}
		return parsed
	}()

	TransferEventTopic = TokenABI.Events["Transfer"].ID
)

// Metadata holds the immutable token attributes
type Metadata struct {
	Name     string
	Symbol   string
	Decimals uint8
}

type Token struct {
	address  common.Address
	contract *bind.BoundContract
	cache    *bigcache.BigCache
}

// NewToken binds the token at address. cache may be nil.
func NewToken(address common.Address, backend bind.ContractBackend, cache *bigcache.BigCache) *Token {
	return &Token{
		address:  address,
		contract: bind.NewBoundContract(address, TokenABI, backend, backend, backend),
		cache:    cache,
	}
}

func (t *Token) Address() common.Address {
	return t.address
}

func (t *Token) call(ctx context.Context, method string, args ...interface{}) (interface{}, error) {
	var out []interface{}
	if err := t.contract.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, fmt.Errorf("erc20 %s failed: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("erc20 %s returned no value", method)
	}
	return out[0], nil
}

func (t *Token) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	v, err := t.call(ctx, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(v, new(*big.Int)).(**big.Int), nil
}

// Metadata retrieves and caches name, symbol and decimals
func (t *Token) Metadata(ctx context.Context) (*Metadata, error) {
	cacheKey := fmt.Sprintf("erc20:%s", t.address.Hex())

	if t.cache != nil {
		if data, err := t.cache.Get(cacheKey); err == nil {
			var m Metadata
			if err := json.Unmarshal(data, &m); err == nil {
				return &m, nil
			}
		}
	}

	m := Metadata{}
	v, err := t.call(ctx, "decimals")
	if err != nil {
		return nil, err
	}
	m.Decimals = *abi.ConvertType(v, new(uint8)).(*uint8)

	if v, err = t.call(ctx, "symbol"); err != nil {
		return nil, err
	}
	m.Symbol = *abi.ConvertType(v, new(string)).(*string)

	// name() is optional in ERC20
	if v, err = t.call(ctx, "name"); err == nil {
		m.Name = *abi.ConvertType(v, new(string)).(*string)
	}

	if t.cache != nil {
		if data, err := json.Marshal(m); err == nil {
			// Ignore cache errors - caching is not critical
			_ = t.cache.Set(cacheKey, data)
		}
	}
	return &m, nil
}

func (t *Token) Decimals(ctx context.Context) (uint8, error) {
	m, err := t.Metadata(ctx)
	if err != nil {
		return 0, err
	}
	return m.Decimals, nil
}

func (t *Token) Symbol(ctx context.Context) (string, error) {
	m, err := t.Metadata(ctx)
	if err != nil {
		return "", err
	}
	return m.Symbol, nil
}

func (t *Token) Transfer(opts *bind.TransactOpts, to common.Address, amount *big.Int) (*types.Transaction, error) {
	data, err := PackTransfer(to, amount)
	if err != nil {
		return nil, err
	}
	return t.contract.RawTransact(opts, data)
}

// Mint only works on test tokens that expose an open or owner gated mint.
func (t *Token) Mint(opts *bind.TransactOpts, to common.Address, amount *big.Int) (*types.Transaction, error) {
	return t.contract.Transact(opts, "mint", to, amount)
}

// PackApprove encodes approve(spender, amount) for use inside a batch.
func PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	if amount == nil {
		return nil, fmt.Errorf("approve amount is nil")
	}
	return TokenABI.Pack("approve", spender, amount)
}

// PackTransfer encodes transfer(to, amount).
func PackTransfer(to common.Address, amount *big.Int) ([]byte, error) {
	if amount == nil {
		return nil, fmt.Errorf("transfer amount is nil")
	}
	return TokenABI.Pack("transfer", to, amount)
}

// TransferEvent is a decoded Transfer log
type TransferEvent struct {
	Token  common.Address
	From   common.Address
	To     common.Address
	Amount *big.Int
}

// ParseTransfer decodes a Transfer log, ok is false for any other log.
func ParseTransfer(log types.Log) (*TransferEvent, bool) {
	if len(log.Topics) != 3 || log.Topics[0] != TransferEventTopic {
		return nil, false
	}
	values, err := TokenABI.Events["Transfer"].Inputs.NonIndexed().Unpack(log.Data)
	if err != nil || len(values) != 1 {
		return nil, false
	}
	return &TransferEvent{
		Token:  log.Address,
		From:   common.BytesToAddress(log.Topics[1].Bytes()),
		To:     common.BytesToAddress(log.Topics[2].Bytes()),
		Amount: values[0].(*big.Int),
	}, true
}

// NewMetadataCache sizes a cache for a handful of token metadata entries.
func NewMetadataCache(ctx context.Context) (*bigcache.BigCache, error) {
	config := bigcache.DefaultConfig(120 * time.Minute)
	// number of shards (must be a power of 2)
	config.Shards = 16
	config.MaxEntriesInWindow = 64
	config.MaxEntrySize = 256
	config.Verbose = false
	return bigcache.New(ctx, config)
}
