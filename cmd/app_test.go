package cmd

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/Layr-Labs/eigensdk-go/chainio/clients/eth"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AvaProtocol/aa-bridge/core/chainio/aa"
	"github.com/AvaProtocol/aa-bridge/core/crosschain"
)

var (
	_ ethBackend = (*ethclient.Client)(nil)
	_ ethBackend = (*eth.InstrumentedClient)(nil)
)

func TestEthBackendImplementations(t *testing.T) {
	var plain interface{} = (*ethclient.Client)(nil)
	_, ok := plain.(ethBackend)
	assert.True(t, ok)

	var metered interface{} = (*eth.InstrumentedClient)(nil)
	_, ok = metered.(ethBackend)
	assert.True(t, ok)
}

type fakeBundlerInfo struct {
	entrypoints []common.Address
	chainID     int64
	err         error
}

func (f fakeBundlerInfo) SupportsEntryPoint(ctx context.Context, entrypoint common.Address) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return lo.Contains(f.entrypoints, entrypoint), nil
}

func (f fakeBundlerInfo) ChainID(ctx context.Context) (*big.Int, error) {
	return big.NewInt(f.chainID), nil
}

type fakeNode int64

func (n fakeNode) ChainID(ctx context.Context) (*big.Int, error) {
	return big.NewInt(int64(n)), nil
}

func TestCheckBundler(t *testing.T) {
	tests := []struct {
		name    string
		bundler fakeBundlerInfo
		node    fakeNode
		code    crosschain.ErrorCode
	}{
		{"matching", fakeBundlerInfo{entrypoints: []common.Address{aa.DefaultEntrypointAddress}, chainID: 80001}, 80001, ""},
		{"entry point not served", fakeBundlerInfo{entrypoints: []common.Address{common.HexToAddress("0x01")}, chainID: 80001}, 80001, crosschain.ErrorCodeConfig},
		{"different chains", fakeBundlerInfo{entrypoints: []common.Address{aa.DefaultEntrypointAddress}, chainID: 1}, 80001, crosschain.ErrorCodeConfig},
		{"bundler down", fakeBundlerInfo{err: errors.New("connection refused")}, 80001, crosschain.ErrorCodeNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkBundler(context.Background(), tt.bundler, tt.node, aa.DefaultEntrypointAddress)
			if tt.code == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.code, crosschain.GetErrorCode(err))
		})
	}
}
