package userop

import (
	"encoding/json"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var entryPoint = common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789")

func sampleOp() *UserOperation {
	return &UserOperation{
		Sender:               common.HexToAddress("0x7c3a76086588230c7B3f4839A4c1F5BBafcd57C6"),
		Nonce:                big.NewInt(3),
		InitCode:             []byte{},
		CallData:             common.FromHex("0x18dfb3c7"),
		CallGasLimit:         big.NewInt(200000),
		VerificationGasLimit: big.NewInt(1000000),
		PreVerificationGas:   big.NewInt(50000),
		MaxFeePerGas:         big.NewInt(20_000_000_000),
		MaxPriorityFeePerGas: big.NewInt(2_000_000_000),
		PaymasterAndData:     []byte{},
		Signature:            common.FromHex("0xdead"),
	}
}

func TestGetUserOpHashMatchesManualEncoding(t *testing.T) {
	op := sampleOp()
	chainID := big.NewInt(80001)

	packed := op.Pack()
	// ten static words
	require.Len(t, packed, 32*10)
	assert.Equal(t, common.LeftPadBytes(op.Sender.Bytes(), 32), packed[:32])
	assert.Equal(t, crypto.Keccak256(op.CallData), packed[32*3:32*4])

	var manual []byte
	manual = append(manual, crypto.Keccak256(packed)...)
	manual = append(manual, common.LeftPadBytes(entryPoint.Bytes(), 32)...)
	manual = append(manual, common.LeftPadBytes(chainID.Bytes(), 32)...)

	assert.Equal(t, crypto.Keccak256Hash(manual), op.GetUserOpHash(entryPoint, chainID))
}

func TestGetUserOpHashIgnoresSignature(t *testing.T) {
	op := sampleOp()
	chainID := big.NewInt(1)
	before := op.GetUserOpHash(entryPoint, chainID)

	op.Signature = common.FromHex("0xbeefbeef")
	assert.Equal(t, before, op.GetUserOpHash(entryPoint, chainID))

	op.Nonce = big.NewInt(4)
	assert.NotEqual(t, before, op.GetUserOpHash(entryPoint, chainID))
	assert.NotEqual(t, before, sampleOp().GetUserOpHash(entryPoint, big.NewInt(2)))
}

func TestUserOperationJSON(t *testing.T) {
	op := sampleOp()
	op.InitCode = nil

	data, err := json.Marshal(op)
	require.NoError(t, err)

	body := string(data)
	assert.True(t, strings.Contains(body, `"nonce":"0x3"`), body)
	assert.True(t, strings.Contains(body, `"initCode":"0x"`), body)
	assert.True(t, strings.Contains(body, `"callGasLimit":"0x30d40"`), body)

	var decoded UserOperation
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, op.Sender, decoded.Sender)
	assert.Equal(t, 0, op.Nonce.Cmp(decoded.Nonce))
	assert.Equal(t, op.CallData, []byte(decoded.CallData))
	assert.Equal(t, op.GetUserOpHash(entryPoint, big.NewInt(5)), decoded.GetUserOpHash(entryPoint, big.NewInt(5)))
}

func TestCopyIsDeep(t *testing.T) {
	op := sampleOp()
	cp := op.Copy()
	cp.Nonce.SetInt64(99)
	cp.CallData[0] = 0xff

	assert.Equal(t, int64(3), op.Nonce.Int64())
	assert.Equal(t, byte(0x18), op.CallData[0])
}
