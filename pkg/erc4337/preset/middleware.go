package preset

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/AvaProtocol/aa-bridge/core/chainio/aa"
	aapaymaster "github.com/AvaProtocol/aa-bridge/core/chainio/aa/paymaster"
	"github.com/AvaProtocol/aa-bridge/core/chainio/signer"
	"github.com/AvaProtocol/aa-bridge/pkg/eip1559"
	"github.com/AvaProtocol/aa-bridge/pkg/erc4337/paymaster"
	"github.com/AvaProtocol/aa-bridge/pkg/erc4337/userop"
	"github.com/AvaProtocol/aa-bridge/pkg/logger"
)

var (
	DEFAULT_CALL_GAS_LIMIT         = big.NewInt(200000)  // 200K for smart wallet execute
	DEFAULT_VERIFICATION_GAS_LIMIT = big.NewInt(1000000) // 1M for signature verification + paymaster validation
	DEFAULT_PREVERIFICATION_GAS    = big.NewInt(50000)   // 50K for bundler overhead

	// the signature isnt important, only length check
	dummySigForGasEstimation = crypto.Keccak256Hash(common.FromHex("0xdead123"))
)

// BuildContext is what every middleware reads and mutates while a user operation is built.
type BuildContext struct {
	Op         *userop.UserOperation
	EntryPoint common.Address
	ChainID    *big.Int
}

func (b *BuildContext) UserOpHash() common.Hash {
	return b.Op.GetUserOpHash(b.EntryPoint, b.ChainID)
}

// Middleware fills in part of a user operation. They run in order, first error wins.
type Middleware func(ctx context.Context, b *BuildContext) error

func runMiddlewares(ctx context.Context, b *BuildContext, middlewares []Middleware) error {
	for _, m := range middlewares {
		if err := m(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

// resolveAccount sets nonce, and initCode while the account is not deployed yet.
func resolveAccount(eth EthBackend, factory, owner, sender common.Address, salt *big.Int) Middleware {
	return func(ctx context.Context, b *BuildContext) error {
		nonce, err := aa.GetNonce(ctx, eth, b.EntryPoint, sender, nil)
		if err != nil {
			return err
		}
		b.Op.Nonce = nonce

		deployed, err := aa.IsDeployed(ctx, eth, sender)
		if err != nil {
			return fmt.Errorf("failed to check account code: %w", err)
		}
		if deployed {
			b.Op.InitCode = []byte{}
			return nil
		}

		initCode, err := aa.GetInitCode(factory, owner, salt)
		if err != nil {
			return fmt.Errorf("failed to build initCode: %w", err)
		}
		b.Op.InitCode = initCode
		return nil
	}
}

// gasPrice sets EIP-1559 fees from the node's suggestion.
func gasPrice(eth eip1559.FeeBackend) Middleware {
	return func(ctx context.Context, b *BuildContext) error {
		maxFee, tip, err := eip1559.SuggestFee(ctx, eth)
		if err != nil {
			return fmt.Errorf("failed to suggest fees: %w", err)
		}
		b.Op.MaxFeePerGas = maxFee
		b.Op.MaxPriorityFeePerGas = tip
		return nil
	}
}

// dummySignature gives the operation a valid length owner signature for simulation.
func dummySignature(owner *ecdsa.PrivateKey) Middleware {
	return func(ctx context.Context, b *BuildContext) error {
		sig, err := signer.SignMessage(owner, dummySigForGasEstimation.Bytes())
		if err != nil {
			return err
		}
		b.Op.Signature = sig
		return nil
	}
}

// estimateGas asks the bundler for gas limits, falling back to the defaults when it cannot simulate.
func estimateGas(bundlerClient Bundler, lgr logger.Logger) Middleware {
	return func(ctx context.Context, b *BuildContext) error {
		gas, err := bundlerClient.EstimateUserOperationGas(ctx, *b.Op, b.EntryPoint, nil)
		if err != nil {
			lgr.Warn("gas estimation failed, using default limits", "error", err)
			b.Op.CallGasLimit = new(big.Int).Set(DEFAULT_CALL_GAS_LIMIT)
			b.Op.VerificationGasLimit = new(big.Int).Set(DEFAULT_VERIFICATION_GAS_LIMIT)
			b.Op.PreVerificationGas = new(big.Int).Set(DEFAULT_PREVERIFICATION_GAS)
			return nil
		}

		b.Op.CallGasLimit = gas.CallGasLimit
		b.Op.VerificationGasLimit = gas.VerificationGasLimit
		b.Op.PreVerificationGas = gas.PreVerificationGas
		lgr.Debug("gas estimated",
			"callGas", gas.CallGasLimit.String(),
			"verificationGas", gas.VerificationGasLimit.String(),
			"preVerificationGas", gas.PreVerificationGas.String())
		return nil
	}
}

// signUserOp sets the owner's EIP-191 signature over the userOpHash. Must run last.
func signUserOp(owner *ecdsa.PrivateKey) Middleware {
	return func(ctx context.Context, b *BuildContext) error {
		sig, err := signer.SignMessage(owner, b.UserOpHash().Bytes())
		if err != nil {
			return fmt.Errorf("failed to sign UserOp: %w", err)
		}
		b.Op.Signature = sig
		return nil
	}
}

// RemotePaymaster sponsors through a hosted pm_sponsorUserOperation endpoint.
// Gas limits returned by the service replace the current ones.
func RemotePaymaster(client *paymaster.Client) Middleware {
	return func(ctx context.Context, b *BuildContext) error {
		res, err := client.SponsorUserOperation(ctx, *b.Op, b.EntryPoint)
		if err != nil {
			return fmt.Errorf("paymaster sponsorship failed: %w", err)
		}

		b.Op.PaymasterAndData = res.PaymasterAndData
		if res.PreVerificationGas != nil {
			b.Op.PreVerificationGas = res.PreVerificationGas
		}
		if res.VerificationGasLimit != nil {
			b.Op.VerificationGasLimit = res.VerificationGasLimit
		}
		if res.CallGasLimit != nil {
			b.Op.CallGasLimit = res.CallGasLimit
		}
		return nil
	}
}

// VerifyingPaymaster sponsors with a paymaster whose signer key we hold. The bundler
// estimates gas with a stub paymasterAndData of the final length, then the real one is signed.
func VerifyingPaymaster(pm *aapaymaster.VerifyingPaymaster, bundlerClient Bundler, lgr logger.Logger) Middleware {
	estimate := estimateGas(bundlerClient, logger.EnsureLogger(lgr))
	return func(ctx context.Context, b *BuildContext) error {
		b.Op.PaymasterAndData = pm.Stub()
		if err := estimate(ctx, b); err != nil {
			return err
		}

		data, err := pm.Sponsor(ctx, b.Op)
		if err != nil {
			return err
		}
		b.Op.PaymasterAndData = data
		return nil
	}
}
