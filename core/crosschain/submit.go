package crosschain

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/AvaProtocol/aa-bridge/pkg/erc4337/paymaster"
	"github.com/AvaProtocol/aa-bridge/pkg/erc4337/preset"
	"github.com/AvaProtocol/aa-bridge/pkg/logger"
	"github.com/AvaProtocol/aa-bridge/pkg/sygma"
)

// Account is the smart account a batch is executed from.
type Account interface {
	preset.UserOpBuilder
	Sender() common.Address
	ExecuteBatch(dest []common.Address, data [][]byte) ([]byte, error)
}

type Submitter interface {
	Submit(ctx context.Context, account Account, batch Batch) (*Confirmation, error)
}

// Confirmation is what is known about a submitted batch. On failure it is partially filled.
type Confirmation struct {
	UserOpHash    common.Hash
	TxHash        common.Hash
	BlockNumber   uint64
	Success       bool
	ActualGasCost *big.Int

	// Deposited is false when no Deposit event from the bridge was found in the receipt.
	Deposited    bool
	DepositNonce uint64
}

type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// UserOpSubmitter sends a batch as a single executeBatch user operation and waits for inclusion.
type UserOpSubmitter struct {
	client   *preset.Client
	receipts ReceiptReader
	bridge   common.Address
	logger   logger.Logger
}

func NewUserOpSubmitter(client *preset.Client, receipts ReceiptReader, bridge common.Address, lgr logger.Logger) *UserOpSubmitter {
	return &UserOpSubmitter{
		client:   client,
		receipts: receipts,
		bridge:   bridge,
		logger:   logger.EnsureLogger(lgr),
	}
}

func (s *UserOpSubmitter) Submit(ctx context.Context, account Account, batch Batch) (*Confirmation, error) {
	callData, err := account.ExecuteBatch(batch.Dest(), batch.Data())
	if err != nil {
		return nil, NewEncodingError("cannot encode executeBatch", err)
	}

	pending, err := s.client.SendUserOperation(ctx, account, callData)
	if err != nil {
		var pmErr *paymaster.RPCError
		if errors.As(err, &pmErr) {
			return nil, NewOnchainError("paymaster rejected the user operation", err)
		}
		return nil, classifyRPCError("failed to send user operation", err, map[string]interface{}{
			"sender": account.Sender().Hex(),
		})
	}

	conf := &Confirmation{UserOpHash: pending.UserOpHash}
	event, err := pending.Wait(ctx)
	if event != nil {
		conf.TxHash = event.TxHash
		conf.BlockNumber = event.BlockNumber
		conf.Success = event.Success
		conf.ActualGasCost = event.ActualGasCost
	}

	var revertErr *preset.RevertError
	switch {
	case errors.As(err, &revertErr):
		return conf, NewOnchainError("user operation reverted", err, map[string]interface{}{
			"userOpHash": conf.UserOpHash.Hex(),
			"txHash":     conf.TxHash.Hex(),
		})
	case errors.Is(err, preset.ErrConfirmationTimeout):
		return conf, NewNetworkError("user operation not confirmed in time", err, map[string]interface{}{
			"userOpHash": conf.UserOpHash.Hex(),
		})
	case err != nil:
		return conf, NewNetworkError("failed waiting for user operation", err)
	}

	s.readDeposit(ctx, conf, account.Sender())
	return conf, nil
}

// readDeposit fills the deposit nonce from the bundle transaction receipt. The transfer already
// happened at this point so failures are only logged.
func (s *UserOpSubmitter) readDeposit(ctx context.Context, conf *Confirmation, sender common.Address) {
	receipt, err := s.receipts.TransactionReceipt(ctx, conf.TxHash)
	if err != nil {
		s.logger.Warn("cannot fetch bundle receipt, deposit nonce unknown", "txHash", conf.TxHash.Hex(), "error", err)
		return
	}

	deposits, err := sygma.ParseDepositEvents(receipt.Logs, s.bridge)
	if err != nil {
		s.logger.Warn("cannot decode Deposit event", "txHash", conf.TxHash.Hex(), "error", err)
		return
	}
	// a bundle may carry deposits of other accounts
	for _, d := range deposits {
		if d.User == sender {
			conf.Deposited = true
			conf.DepositNonce = d.DepositNonce
			return
		}
	}
	s.logger.Warn("no Deposit event for sender in bundle receipt", "txHash", conf.TxHash.Hex(), "bridge", s.bridge.Hex(), "sender", sender.Hex())
}
