package aa

import (
	"context"
	"math/big"
	"testing"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	ownerAddr   = common.HexToAddress("0x804e49e8C4eDb560AE7c48B554f6d2e27Bb81557")
	factoryAddr = common.HexToAddress("0x1767f4E178d51ED64131a81A70B5dCF59C774c43")
	accountAddr = common.HexToAddress("0x7c3a76086588230c7B3f4839A4c1F5BBafcd57C6")
)

// fakeCaller answers eth_call from a selector table.
type fakeCaller struct {
	code    map[common.Address][]byte
	answers map[string][]byte
	calls   []ethereum.CallMsg
}

func (f *fakeCaller) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return f.code[contract], nil
}

func (f *fakeCaller) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.calls = append(f.calls, call)
	return f.answers[string(call.Data[:4])], nil
}

func TestGetInitCode(t *testing.T) {
	initCode, err := GetInitCode(factoryAddr, ownerAddr, nil)
	require.NoError(t, err)

	// factory(20) + selector(4) + owner(32) + salt(32)
	require.Len(t, initCode, 20+4+64)
	assert.Equal(t, factoryAddr.Bytes(), initCode[:20])
	assert.Equal(t, FactoryABI.Methods["createAccount"].ID, initCode[20:24])
	assert.Equal(t, common.LeftPadBytes(ownerAddr.Bytes(), 32), initCode[24:56])
	assert.Equal(t, make([]byte, 32), initCode[56:])

	withSalt, err := GetInitCode(factoryAddr, ownerAddr, big.NewInt(7))
	require.NoError(t, err)
	assert.NotEqual(t, initCode, withSalt)
}

func TestGetSenderAddressAndNonce(t *testing.T) {
	addrOut, err := FactoryABI.Methods["getAddress"].Outputs.Pack(accountAddr)
	require.NoError(t, err)
	nonceOut, err := EntryPointABI.Methods["getNonce"].Outputs.Pack(big.NewInt(5))
	require.NoError(t, err)

	caller := &fakeCaller{
		code: map[common.Address][]byte{accountAddr: {0x60, 0x80}},
		answers: map[string][]byte{
			string(FactoryABI.Methods["getAddress"].ID):  addrOut,
			string(EntryPointABI.Methods["getNonce"].ID): nonceOut,
		},
	}

	sender, err := GetSenderAddress(context.Background(), caller, factoryAddr, ownerAddr, nil)
	require.NoError(t, err)
	assert.Equal(t, accountAddr, sender)
	require.Len(t, caller.calls, 1)
	assert.Equal(t, factoryAddr, *caller.calls[0].To)

	nonce, err := GetNonce(context.Background(), caller, DefaultEntrypointAddress, sender, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(5), nonce.Int64())

	deployed, err := IsDeployed(context.Background(), caller, accountAddr)
	require.NoError(t, err)
	assert.True(t, deployed)

	deployed, err = IsDeployed(context.Background(), caller, ownerAddr)
	require.NoError(t, err)
	assert.False(t, deployed)
}

func TestPackExecuteBatchRoundTrip(t *testing.T) {
	dest := []common.Address{
		common.HexToAddress("0x75811b960c7acB255f9091bBAC401700E407CDB6"),
		common.HexToAddress("0x75811b960c7acB255f9091bBAC401700E407CDB6"),
		common.HexToAddress("0xeAEffbadF776Da90D8e0a94D918E1CB83c12242d"),
	}
	data := [][]byte{{0x01}, {0x02, 0x03}, {0x04}}

	calldata, err := PackExecuteBatch(dest, data)
	require.NoError(t, err)
	assert.Equal(t, SimpleAccountABI.Methods["executeBatch"].ID, calldata[:4])

	gotDest, gotData, err := UnpackExecuteBatch(calldata)
	require.NoError(t, err)
	assert.Equal(t, dest, gotDest)
	assert.Equal(t, data, gotData)
}

func TestPackExecuteBatchLengthMismatch(t *testing.T) {
	_, err := PackExecuteBatch([]common.Address{ownerAddr}, nil)
	assert.ErrorIs(t, err, ErrBatchLengthMismatch)
}

func TestPackExecute(t *testing.T) {
	calldata, err := PackExecute(accountAddr, nil, []byte{0xaa})
	require.NoError(t, err)
	assert.Equal(t, SimpleAccountABI.Methods["execute"].ID, calldata[:4])

	_, _, err = UnpackExecuteBatch(calldata)
	assert.Error(t, err)
}

func TestParseUserOperationEvent(t *testing.T) {
	userOpHash := common.HexToHash("0xabc1")
	data, err := EntryPointABI.Events["UserOperationEvent"].Inputs.NonIndexed().Pack(
		big.NewInt(1), true, big.NewInt(21000), big.NewInt(9000),
	)
	require.NoError(t, err)

	log := types.Log{
		Topics: []common.Hash{
			UserOperationEventTopic,
			userOpHash,
			common.BytesToHash(accountAddr.Bytes()),
			{},
		},
		Data:        data,
		TxHash:      common.HexToHash("0xfeed"),
		BlockNumber: 42,
	}

	event, err := ParseUserOperationEvent(log)
	require.NoError(t, err)
	assert.Equal(t, userOpHash, event.UserOpHash)
	assert.Equal(t, accountAddr, event.Sender)
	assert.True(t, event.Success)
	assert.Equal(t, int64(21000), event.ActualGasCost.Int64())
	assert.Equal(t, uint64(42), event.BlockNumber)

	// the well known topic0 of the v0.6 event
	assert.Equal(t, common.HexToHash("0x49628fd1471006c1482da88028e9ce4dbb080b815c9b0344d39e5a8e6ec1419f"), UserOperationEventTopic)

	log.Topics[0] = common.Hash{}
	_, err = ParseUserOperationEvent(log)
	assert.ErrorIs(t, err, ErrNotUserOpEvent)
}

func TestParseRevertReason(t *testing.T) {
	data, err := EntryPointABI.Events["UserOperationRevertReason"].Inputs.NonIndexed().Pack(big.NewInt(1), []byte("nope"))
	require.NoError(t, err)

	reason, ok := ParseRevertReason(types.Log{
		Topics: []common.Hash{UserOperationRevertReasonTopic, common.HexToHash("0x01"), common.BytesToHash(accountAddr.Bytes())},
		Data:   data,
	})
	require.True(t, ok)
	assert.Equal(t, []byte("nope"), reason)
}
