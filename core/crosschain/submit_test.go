package crosschain

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AvaProtocol/aa-bridge/core/chainio/aa"
	"github.com/AvaProtocol/aa-bridge/pkg/erc4337/bundler"
	"github.com/AvaProtocol/aa-bridge/pkg/erc4337/preset"
	"github.com/AvaProtocol/aa-bridge/pkg/erc4337/userop"
	"github.com/AvaProtocol/aa-bridge/pkg/sygma"
)

var testChainID = big.NewInt(80001)

type fakeAccount struct {
	built [][]byte
}

func (a *fakeAccount) BuildUserOp(ctx context.Context, callData []byte) (*userop.UserOperation, error) {
	a.built = append(a.built, callData)
	return &userop.UserOperation{
		Sender:   testSender,
		Nonce:    big.NewInt(int64(len(a.built))),
		CallData: callData,
	}, nil
}

func (a *fakeAccount) EntryPoint() common.Address { return aa.DefaultEntrypointAddress }
func (a *fakeAccount) ChainID() *big.Int          { return testChainID }
func (a *fakeAccount) Sender() common.Address     { return testSender }

func (a *fakeAccount) ExecuteBatch(dest []common.Address, data [][]byte) ([]byte, error) {
	return aa.PackExecuteBatch(dest, data)
}

type fakeBundler struct {
	sendErr error
	sent    []userop.UserOperation
}

func (b *fakeBundler) SendUserOperation(ctx context.Context, op userop.UserOperation, entrypoint common.Address) (common.Hash, error) {
	if b.sendErr != nil {
		return common.Hash{}, b.sendErr
	}
	b.sent = append(b.sent, op)
	return op.GetUserOpHash(entrypoint, testChainID), nil
}

func (b *fakeBundler) EstimateUserOperationGas(ctx context.Context, op userop.UserOperation, entrypoint common.Address, override map[string]any) (*bundler.GasEstimation, error) {
	return nil, errors.New("not used")
}

// fakeChain answers log queries with the UserOperationEvent of every sent op, and
// receipts carrying the bridge Deposit event.
type fakeChain struct {
	bundler      *fakeBundler
	success      bool
	included     bool
	depositNonce uint64
	depositUser  common.Address
	receiptErr   error
}

func (c *fakeChain) BlockNumber(ctx context.Context) (uint64, error) { return 1000, nil }

func (c *fakeChain) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	if !c.included {
		return nil, nil
	}
	var logs []types.Log
	for _, op := range c.bundler.sent {
		hash := op.GetUserOpHash(aa.DefaultEntrypointAddress, testChainID)
		if hash != q.Topics[1][0] {
			continue
		}
		data, err := aa.EntryPointABI.Events["UserOperationEvent"].Inputs.NonIndexed().Pack(
			op.Nonce, c.success, big.NewInt(21000), big.NewInt(150000),
		)
		if err != nil {
			return nil, err
		}
		logs = append(logs, types.Log{
			Address:     aa.DefaultEntrypointAddress,
			Topics:      []common.Hash{aa.UserOperationEventTopic, hash, common.BytesToHash(op.Sender.Bytes()), {}},
			Data:        data,
			TxHash:      common.HexToHash("0xb0b"),
			BlockNumber: 999,
		})
	}
	return logs, nil
}

func (c *fakeChain) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	if c.receiptErr != nil {
		return nil, c.receiptErr
	}
	data, err := sygma.BridgeABI.Events["Deposit"].Inputs.NonIndexed().Pack(
		uint8(2), [32]byte{31: 0x03}, c.depositNonce, []byte{0x01}, []byte{},
	)
	if err != nil {
		return nil, err
	}
	return &types.Receipt{
		TxHash: txHash,
		Status: types.ReceiptStatusSuccessful,
		Logs: []*types.Log{{
			Address: testBridge,
			Topics:  []common.Hash{sygma.DepositEventTopic, common.BytesToHash(c.depositUser.Bytes())},
			Data:    data,
			TxHash:  txHash,
		}},
	}, nil
}

func newTestSubmitter(chain *fakeChain, timeout time.Duration) *UserOpSubmitter {
	client := preset.NewClient(chain.bundler, chain, preset.ClientOpts{
		Timeout:         timeout,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	})
	return NewUserOpSubmitter(client, chain, testBridge, nil)
}

func TestUserOpSubmitterConfirmed(t *testing.T) {
	b := &fakeBundler{}
	chain := &fakeChain{bundler: b, success: true, included: true, depositNonce: 43, depositUser: testSender}
	account := &fakeAccount{}

	batch, err := BuildBridgeBatch(testTransfer(t))
	require.NoError(t, err)

	conf, err := newTestSubmitter(chain, time.Second).Submit(context.Background(), account, batch)
	require.NoError(t, err)

	// one user operation carrying the whole batch
	require.Len(t, b.sent, 1)
	dest, data, err := aa.UnpackExecuteBatch(b.sent[0].CallData)
	require.NoError(t, err)
	assert.Equal(t, batch.Dest(), dest)
	assert.Equal(t, batch.Data(), data)

	assert.True(t, conf.Success)
	assert.Equal(t, common.HexToHash("0xb0b"), conf.TxHash)
	assert.Equal(t, uint64(999), conf.BlockNumber)
	assert.Equal(t, int64(21000), conf.ActualGasCost.Int64())
	assert.True(t, conf.Deposited)
	assert.Equal(t, uint64(43), conf.DepositNonce)
}

func TestUserOpSubmitterDepositOfOtherSender(t *testing.T) {
	b := &fakeBundler{}
	chain := &fakeChain{bundler: b, success: true, included: true, depositNonce: 43, depositUser: common.HexToAddress("0x1")}

	conf, err := newTestSubmitter(chain, time.Second).Submit(context.Background(), &fakeAccount{}, Batch{})
	require.NoError(t, err)
	assert.False(t, conf.Deposited)
}

func TestUserOpSubmitterReceiptUnavailable(t *testing.T) {
	b := &fakeBundler{}
	chain := &fakeChain{bundler: b, success: true, included: true, receiptErr: errors.New("not found")}

	conf, err := newTestSubmitter(chain, time.Second).Submit(context.Background(), &fakeAccount{}, Batch{})
	require.NoError(t, err)
	assert.True(t, conf.Success)
	assert.False(t, conf.Deposited)
}

func TestUserOpSubmitterReverted(t *testing.T) {
	b := &fakeBundler{}
	chain := &fakeChain{bundler: b, success: false, included: true}

	conf, err := newTestSubmitter(chain, time.Second).Submit(context.Background(), &fakeAccount{}, Batch{})
	assert.ErrorIs(t, err, ErrOnchain)
	var revertErr *preset.RevertError
	assert.ErrorAs(t, err, &revertErr)

	require.NotNil(t, conf)
	assert.False(t, conf.Success)
	assert.Equal(t, common.HexToHash("0xb0b"), conf.TxHash)
}

func TestUserOpSubmitterTimeout(t *testing.T) {
	b := &fakeBundler{}
	chain := &fakeChain{bundler: b}

	conf, err := newTestSubmitter(chain, 20*time.Millisecond).Submit(context.Background(), &fakeAccount{}, Batch{})
	assert.ErrorIs(t, err, ErrNetwork)
	assert.ErrorIs(t, err, preset.ErrConfirmationTimeout)
	require.NotNil(t, conf)
	assert.NotEqual(t, common.Hash{}, conf.UserOpHash)
	assert.Equal(t, common.Hash{}, conf.TxHash)
}

func TestUserOpSubmitterSendFailure(t *testing.T) {
	b := &fakeBundler{sendErr: errors.New("connection refused")}
	chain := &fakeChain{bundler: b}

	conf, err := newTestSubmitter(chain, time.Second).Submit(context.Background(), &fakeAccount{}, Batch{})
	assert.Nil(t, conf)
	assert.ErrorIs(t, err, ErrNetwork)
}

func TestUserOpSubmitterEncodingFailure(t *testing.T) {
	b := &fakeBundler{}
	chain := &fakeChain{bundler: b}
	batch := Batch{Calls: []Call{{Target: testToken, Data: []byte{0x01}}}}

	_, err := newTestSubmitter(chain, time.Second).Submit(context.Background(), &misalignedAccount{}, batch)
	assert.ErrorIs(t, err, ErrEncoding)
	assert.Empty(t, b.sent)
}

type misalignedAccount struct{ fakeAccount }

func (a *misalignedAccount) ExecuteBatch(dest []common.Address, data [][]byte) ([]byte, error) {
	return aa.PackExecuteBatch(dest, data[:len(data)-1])
}
