package crosschain

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AvaProtocol/aa-bridge/pkg/erc20"
)

type fakeTxBackend struct {
	bind.ContractBackend

	status  uint64
	sendErr error
	sent    []*types.Transaction

	// from is the token owner, used to emit the Transfer log of a successful send
	from       common.Address
	noTransfer bool
}

func (b *fakeTxBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if b.sendErr != nil {
		return b.sendErr
	}
	b.sent = append(b.sent, tx)
	return nil
}

func (b *fakeTxBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	receipt := &types.Receipt{Status: b.status, TxHash: txHash, BlockNumber: big.NewInt(42)}
	if b.status != types.ReceiptStatusSuccessful || b.noTransfer || len(b.sent) == 0 {
		return receipt, nil
	}

	tx := b.sent[len(b.sent)-1]
	args, err := erc20.TokenABI.Methods["transfer"].Inputs.Unpack(tx.Data()[4:])
	if err != nil {
		return nil, err
	}
	data, err := erc20.TokenABI.Events["Transfer"].Inputs.NonIndexed().Pack(args[1].(*big.Int))
	if err != nil {
		return nil, err
	}
	receipt.Logs = []*types.Log{{
		Address: *tx.To(),
		Topics:  []common.Hash{erc20.TransferEventTopic, common.BytesToHash(b.from.Bytes()), common.BytesToHash(args[0].(common.Address).Bytes())},
		Data:    data,
		TxHash:  txHash,
	}}
	return receipt, nil
}

func newTestFunder(t *testing.T, backend *fakeTxBackend) *TokenFunder {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	opts, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(80001))
	require.NoError(t, err)
	// fixed values keep the bound contract from querying the node
	opts.GasPrice = big.NewInt(30_000_000_000)
	opts.GasLimit = 100_000
	opts.Nonce = big.NewInt(3)
	backend.from = opts.From

	return NewTokenFunder(erc20.NewToken(testToken, backend, nil), opts, backend, nil)
}

func TestTokenFunderFund(t *testing.T) {
	backend := &fakeTxBackend{status: types.ReceiptStatusSuccessful}
	funder := newTestFunder(t, backend)

	receipt, err := funder.Fund(context.Background(), testSender, oneToken)
	require.NoError(t, err)
	require.Len(t, backend.sent, 1)

	tx := backend.sent[0]
	assert.Equal(t, testToken, *tx.To())
	assert.Equal(t, uint64(3), tx.Nonce())
	assert.Equal(t, tx.Hash(), receipt.TxHash)

	expected, err := erc20.PackTransfer(testSender, oneToken)
	require.NoError(t, err)
	assert.Equal(t, expected, tx.Data())
}

func TestTokenFunderRequiresTransferEvent(t *testing.T) {
	funder := newTestFunder(t, &fakeTxBackend{status: types.ReceiptStatusSuccessful, noTransfer: true})

	receipt, err := funder.Fund(context.Background(), testSender, oneToken)
	assert.ErrorIs(t, err, ErrOnchain)
	require.NotNil(t, receipt)
}

func TestTokenFunderReverted(t *testing.T) {
	funder := newTestFunder(t, &fakeTxBackend{status: types.ReceiptStatusFailed})

	receipt, err := funder.Fund(context.Background(), testSender, oneToken)
	assert.ErrorIs(t, err, ErrOnchain)
	require.NotNil(t, receipt)
	assert.Equal(t, types.ReceiptStatusFailed, receipt.Status)
}

func TestTokenFunderSendErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"revert", errors.New("execution reverted: ERC20: transfer amount exceeds balance"), ErrOnchain},
		{"no gas", errors.New("insufficient funds for gas * price + value"), ErrOnchain},
		{"transport", errors.New("dial tcp 127.0.0.1:8545: connect: connection refused"), ErrNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			funder := newTestFunder(t, &fakeTxBackend{sendErr: tt.err})
			_, err := funder.Fund(context.Background(), testSender, oneToken)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}
