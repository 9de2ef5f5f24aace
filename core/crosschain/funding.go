package crosschain

import (
	"context"
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/AvaProtocol/aa-bridge/pkg/erc20"
	"github.com/AvaProtocol/aa-bridge/pkg/logger"
)

// Funder moves test tokens to the smart account before the bridge batch runs.
type Funder interface {
	Fund(ctx context.Context, to common.Address, amount *big.Int) (*types.Receipt, error)
}

// TokenFunder sends an ERC-20 transfer from the token owner EOA and waits for it to be mined.
type TokenFunder struct {
	token   *erc20.Token
	opts    *bind.TransactOpts
	backend bind.DeployBackend
	logger  logger.Logger
}

func NewTokenFunder(token *erc20.Token, opts *bind.TransactOpts, backend bind.DeployBackend, lgr logger.Logger) *TokenFunder {
	return &TokenFunder{
		token:   token,
		opts:    opts,
		backend: backend,
		logger:  logger.EnsureLogger(lgr),
	}
}

func (f *TokenFunder) Fund(ctx context.Context, to common.Address, amount *big.Int) (*types.Receipt, error) {
	opts := *f.opts
	opts.Context = ctx

	tx, err := f.token.Transfer(&opts, to, amount)
	if err != nil {
		return nil, classifyRPCError("funding transfer failed", err, map[string]interface{}{
			"token": f.token.Address().Hex(),
			"to":    to.Hex(),
		})
	}
	f.logger.Info("funding transfer sent", "txHash", tx.Hash().Hex(), "to", to.Hex(), "amount", amount.String())

	receipt, err := bind.WaitMined(ctx, f.backend, tx)
	if err != nil {
		return nil, NewNetworkError("failed to wait for funding transfer", err, map[string]interface{}{"txHash": tx.Hash().Hex()})
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, NewOnchainError("funding transfer reverted", nil, map[string]interface{}{
			"txHash": tx.Hash().Hex(),
			"block":  receipt.BlockNumber.Uint64(),
		})
	}
	if !transferred(receipt, f.token.Address(), f.opts.From, to, amount) {
		return receipt, NewOnchainError("funding transfer emitted no matching Transfer event", nil, map[string]interface{}{
			"txHash": tx.Hash().Hex(),
			"to":     to.Hex(),
			"amount": amount.String(),
		})
	}
	return receipt, nil
}

// transferred reports whether receipt carries Transfer(from, to, amount) emitted by token.
func transferred(receipt *types.Receipt, token, from, to common.Address, amount *big.Int) bool {
	for _, l := range receipt.Logs {
		if l == nil || l.Address != token {
			continue
		}
		event, ok := erc20.ParseTransfer(*l)
		if ok && event.From == from && event.To == to && event.Amount.Cmp(amount) == 0 {
			return true
		}
	}
	return false
}

// classifyRPCError tells an on-chain rejection (revert during estimation, JSON-RPC error object)
// apart from transport failures.
func classifyRPCError(message string, err error, details map[string]interface{}) *StructuredError {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) || strings.Contains(err.Error(), "execution reverted") || strings.Contains(err.Error(), "insufficient funds") {
		return NewOnchainError(message, err, details)
	}
	return NewNetworkError(message, err, details)
}
