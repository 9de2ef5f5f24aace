package bundler

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AvaProtocol/aa-bridge/pkg/erc4337/userop"
)

var testEntrypoint = common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789")

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// newBundlerServer answers JSON-RPC calls from a method table and records every request.
func newBundlerServer(t *testing.T, results map[string]string) (*httptest.Server, *[]rpcRequest) {
	t.Helper()
	var seen []rpcRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		seen = append(seen, req)

		w.Header().Set("Content-Type", "application/json")
		result, ok := results[req.Method]
		if !ok {
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"error":{"code":-32601,"message":"method not found"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"result":` + result + `}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func sampleUserOp() userop.UserOperation {
	return userop.UserOperation{
		Sender:               common.HexToAddress("0x7c3a76086588230c7B3f4839A4c1F5BBafcd57C6"),
		Nonce:                big.NewInt(1),
		CallData:             common.FromHex("0x18dfb3c7"),
		CallGasLimit:         big.NewInt(1),
		VerificationGasLimit: big.NewInt(1),
		PreVerificationGas:   big.NewInt(1),
		MaxFeePerGas:         big.NewInt(1),
		MaxPriorityFeePerGas: big.NewInt(1),
	}
}

func TestSendUserOperation(t *testing.T) {
	hash := "0x93c06f3f5909cc2b192713ed9bf93e3e5b2ef4ec9a1fdab1b8bf1b5d4ed50c1d"
	srv, seen := newBundlerServer(t, map[string]string{
		"eth_sendUserOperation": `"` + hash + `"`,
	})

	client, err := NewBundlerClient(srv.URL)
	require.NoError(t, err)
	defer client.Close()

	got, err := client.SendUserOperation(context.Background(), sampleUserOp(), testEntrypoint)
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash(hash), got)

	require.Len(t, *seen, 1)
	req := (*seen)[0]
	require.Len(t, req.Params, 2)
	assert.JSONEq(t, `"0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789"`, string(req.Params[1]))

	var sent map[string]string
	require.NoError(t, json.Unmarshal(req.Params[0], &sent))
	assert.Equal(t, "0x1", sent["nonce"])
	assert.Equal(t, "0x", sent["paymasterAndData"])
}

func TestSendUserOperationRPCError(t *testing.T) {
	srv, _ := newBundlerServer(t, map[string]string{})
	client, err := NewBundlerClient(srv.URL)
	require.NoError(t, err)

	_, err = client.SendUserOperation(context.Background(), sampleUserOp(), testEntrypoint)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "method not found")
}

func TestEstimateUserOperationGas(t *testing.T) {
	tests := []struct {
		name   string
		result string
	}{
		{"hex", `{"preVerificationGas":"0xc350","verificationGasLimit":"0xf4240","callGasLimit":"0x30d40"}`},
		{"numbers", `{"preVerificationGas":50000,"verificationGasLimit":1000000,"callGasLimit":200000}`},
		{"legacy field", `{"preVerificationGas":"0x00c350","verificationGas":"0xf4240","callGasLimit":"200000"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newBundlerServer(t, map[string]string{"eth_estimateUserOperationGas": tt.result})
			client, err := NewBundlerClient(srv.URL)
			require.NoError(t, err)

			gas, err := client.EstimateUserOperationGas(context.Background(), sampleUserOp(), testEntrypoint, nil)
			require.NoError(t, err)
			assert.Equal(t, int64(50000), gas.PreVerificationGas.Int64())
			assert.Equal(t, int64(1000000), gas.VerificationGasLimit.Int64())
			assert.Equal(t, int64(200000), gas.CallGasLimit.Int64())
		})
	}
}

func TestGetUserOperationReceipt(t *testing.T) {
	t.Run("pending", func(t *testing.T) {
		srv, _ := newBundlerServer(t, map[string]string{"eth_getUserOperationReceipt": `null`})
		client, err := NewBundlerClient(srv.URL)
		require.NoError(t, err)

		receipt, err := client.GetUserOperationReceipt(context.Background(), common.HexToHash("0x01"))
		require.NoError(t, err)
		assert.Nil(t, receipt)
	})

	t.Run("included", func(t *testing.T) {
		srv, _ := newBundlerServer(t, map[string]string{"eth_getUserOperationReceipt": `{
			"userOpHash":"0x0000000000000000000000000000000000000000000000000000000000000001",
			"sender":"0x7c3a76086588230c7B3f4839A4c1F5BBafcd57C6",
			"paymaster":"0x0000000000000000000000000000000000000000",
			"nonce":"0x1","success":true,"actualGasCost":"0x5208","actualGasUsed":"0x5208",
			"logs":[],
			"receipt":{"transactionHash":"0x00000000000000000000000000000000000000000000000000000000000000aa","blockHash":"0x00000000000000000000000000000000000000000000000000000000000000bb","blockNumber":"0x2a","status":"0x1"}
		}`})
		client, err := NewBundlerClient(srv.URL)
		require.NoError(t, err)

		receipt, err := client.GetUserOperationReceipt(context.Background(), common.HexToHash("0x01"))
		require.NoError(t, err)
		require.NotNil(t, receipt)
		assert.True(t, receipt.Success)
		assert.Equal(t, int64(21000), receipt.ActualGasCost.BigInt().Int64())
		assert.Equal(t, common.HexToHash("0xaa"), receipt.Receipt.TransactionHash)
		assert.Equal(t, int64(42), receipt.Receipt.BlockNumber.BigInt().Int64())
	})
}

func TestSupportedEntryPointsAndChainID(t *testing.T) {
	srv, _ := newBundlerServer(t, map[string]string{
		"eth_supportedEntryPoints": `["0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789"]`,
		"eth_chainId":              `"0x13881"`,
	})
	client, err := NewBundlerClient(srv.URL)
	require.NoError(t, err)

	ok, err := client.SupportsEntryPoint(context.Background(), testEntrypoint)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.SupportsEntryPoint(context.Background(), common.HexToAddress("0x01"))
	require.NoError(t, err)
	assert.False(t, ok)

	chainID, err := client.ChainID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(80001), chainID.Int64())
}

func TestQuantity(t *testing.T) {
	var q Quantity
	assert.Error(t, json.Unmarshal([]byte(`"0xzz"`), &q))
	require.NoError(t, json.Unmarshal([]byte(`"0x"`), &q))
	assert.Equal(t, int64(0), q.BigInt().Int64())

	var nilQ *Quantity
	assert.Equal(t, int64(0), nilQ.BigInt().Int64())
}
