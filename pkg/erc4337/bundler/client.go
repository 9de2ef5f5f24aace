// Provide primitive to work with a bundler RPC
// Bundler RPC is stateless
package bundler

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/samber/lo"

	"github.com/AvaProtocol/aa-bridge/pkg/erc4337/userop"
)

// BundlerClient defines a client for interacting with an EIP-4337 bundler RPC endpoint.
type BundlerClient struct {
	client *rpc.Client
	url    string
}

// NewBundlerClient creates a new BundlerClient that connects to the given URL.
func NewBundlerClient(url string) (*BundlerClient, error) {
	// Use DialHTTP instead of Dial as it is more compatible with HTTP-based bundler
	// endpoints, but it also supports other protocols such as WebSocket.
	c, err := rpc.DialHTTP(url)
	if err != nil {
		return nil, fmt.Errorf("Error creating bundler client: %w", err)
	}
	return &BundlerClient{client: c, url: url}, nil
}

// Close closes the underlying RPC client connection.
func (bc *BundlerClient) Close() {
	bc.client.Close()
}

func (bc *BundlerClient) URL() string {
	return bc.url
}

// SendUserOperation sends a UserOperation to the bundler and returns its userOpHash.
func (bc *BundlerClient) SendUserOperation(
	ctx context.Context,
	userOp userop.UserOperation,
	entrypoint common.Address,
) (common.Hash, error) {
	var userOpHash common.Hash
	// Some bundlers require EIP-55 checksummed addresses for EntryPoint
	if err := bc.client.CallContext(ctx, &userOpHash, "eth_sendUserOperation", userOp, entrypoint.Hex()); err != nil {
		return common.Hash{}, fmt.Errorf("eth_sendUserOperation failed: %w", err)
	}
	return userOpHash, nil
}

// EstimateUserOperationGas estimates the gas required for a UserOperation.
// https://eips.ethereum.org/EIPS/eip-4337#rpc-methods-eth-namespace
// The signature field is ignored by the wallet, but it needs to have a valid length.
func (bc *BundlerClient) EstimateUserOperationGas(
	ctx context.Context,
	userOp userop.UserOperation,
	entrypoint common.Address,
	// Optional State Override Set, equivalent to the one of eth_call
	override map[string]any,
) (*GasEstimation, error) {
	var result gasEstimationResult

	args := []interface{}{userOp, entrypoint.Hex()}
	if len(override) > 0 {
		args = append(args, override)
	}

	if err := bc.client.CallContext(ctx, &result, "eth_estimateUserOperationGas", args...); err != nil {
		return nil, fmt.Errorf("eth_estimateUserOperationGas RPC response error: %w", err)
	}
	if result.CallGasLimit == nil || result.PreVerificationGas == nil {
		return nil, fmt.Errorf("eth_estimateUserOperationGas returned incomplete estimation")
	}

	return result.toGasEstimation(), nil
}

// GetUserOperationReceipt returns nil, nil while the operation is not yet included.
func (bc *BundlerClient) GetUserOperationReceipt(ctx context.Context, hash common.Hash) (*UserOperationReceipt, error) {
	var receipt *UserOperationReceipt
	if err := bc.client.CallContext(ctx, &receipt, "eth_getUserOperationReceipt", hash); err != nil {
		return nil, err
	}
	return receipt, nil
}

// SupportedEntryPoints lists the entry points the bundler accepts operations for.
func (bc *BundlerClient) SupportedEntryPoints(ctx context.Context) ([]common.Address, error) {
	var entrypoints []common.Address
	err := bc.client.CallContext(ctx, &entrypoints, "eth_supportedEntryPoints")
	return entrypoints, err
}

// ChainID is the chain the bundler submits to.
func (bc *BundlerClient) ChainID(ctx context.Context) (*big.Int, error) {
	var id hexutil.Big
	if err := bc.client.CallContext(ctx, &id, "eth_chainId"); err != nil {
		return nil, err
	}
	return id.ToInt(), nil
}

// SupportsEntryPoint reports whether entrypoint is among SupportedEntryPoints.
func (bc *BundlerClient) SupportsEntryPoint(ctx context.Context, entrypoint common.Address) (bool, error) {
	entrypoints, err := bc.SupportedEntryPoints(ctx)
	if err != nil {
		return false, err
	}
	return lo.Contains(entrypoints, entrypoint), nil
}
