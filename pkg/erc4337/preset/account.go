package preset

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/AvaProtocol/aa-bridge/core/chainio/aa"
	"github.com/AvaProtocol/aa-bridge/core/chainio/signer"
	"github.com/AvaProtocol/aa-bridge/pkg/eip1559"
	"github.com/AvaProtocol/aa-bridge/pkg/erc4337/bundler"
	"github.com/AvaProtocol/aa-bridge/pkg/erc4337/userop"
	"github.com/AvaProtocol/aa-bridge/pkg/logger"
)

// EthBackend is the part of ethclient.Client the account and client need.
type EthBackend interface {
	bind.ContractCaller
	eip1559.FeeBackend
	LogReader
	ChainID(ctx context.Context) (*big.Int, error)
}

// LogReader finds EntryPoint events.
type LogReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// Bundler is the part of bundler.BundlerClient used to build and send operations.
type Bundler interface {
	SendUserOperation(ctx context.Context, op userop.UserOperation, entrypoint common.Address) (common.Hash, error)
	EstimateUserOperationGas(ctx context.Context, op userop.UserOperation, entrypoint common.Address, override map[string]any) (*bundler.GasEstimation, error)
}

type SimpleAccountOpts struct {
	EntryPoint common.Address
	Factory    common.Address
	Salt       *big.Int

	// PaymasterMiddleware sponsors the operation. When nil the account pays
	// and the bundler estimates gas.
	PaymasterMiddleware Middleware

	Logger logger.Logger
}

// SimpleAccount builds user operations for an eth-infinitism SimpleAccount owned by an EOA.
type SimpleAccount struct {
	owner   *ecdsa.PrivateKey
	sender  common.Address
	chainID *big.Int
	opts    SimpleAccountOpts

	middlewares []Middleware
	logger      logger.Logger
}

// NewSimpleAccount resolves the counterfactual sender and prepares the middleware chain:
// account resolution, gas price, paymaster or gas estimation, signature.
func NewSimpleAccount(ctx context.Context, owner *ecdsa.PrivateKey, eth EthBackend, bundlerClient Bundler, opts SimpleAccountOpts) (*SimpleAccount, error) {
	if owner == nil {
		return nil, fmt.Errorf("owner key is required")
	}
	if opts.EntryPoint == (common.Address{}) {
		opts.EntryPoint = aa.DefaultEntrypointAddress
	}
	if opts.Factory == (common.Address{}) {
		opts.Factory = aa.DefaultFactoryAddress
	}
	if opts.Salt == nil {
		opts.Salt = aa.DefaultSalt
	}
	lgr := logger.EnsureLogger(opts.Logger)

	ownerAddress := signer.Address(owner)
	sender, err := aa.GetSenderAddress(ctx, eth, opts.Factory, ownerAddress, opts.Salt)
	if err != nil {
		return nil, err
	}

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}

	middlewares := []Middleware{
		resolveAccount(eth, opts.Factory, ownerAddress, sender, opts.Salt),
		gasPrice(eth),
		dummySignature(owner),
	}
	if opts.PaymasterMiddleware != nil {
		middlewares = append(middlewares, opts.PaymasterMiddleware)
	} else {
		middlewares = append(middlewares, estimateGas(bundlerClient, lgr))
	}
	middlewares = append(middlewares, signUserOp(owner))

	return &SimpleAccount{
		owner:       owner,
		sender:      sender,
		chainID:     chainID,
		opts:        opts,
		middlewares: middlewares,
		logger:      lgr,
	}, nil
}

// Sender is the smart account address. It is stable for a given owner, factory and salt.
func (a *SimpleAccount) Sender() common.Address {
	return a.sender
}

func (a *SimpleAccount) Owner() common.Address {
	return signer.Address(a.owner)
}

func (a *SimpleAccount) EntryPoint() common.Address {
	return a.opts.EntryPoint
}

func (a *SimpleAccount) ChainID() *big.Int {
	return new(big.Int).Set(a.chainID)
}

// Execute encodes execute(to, value, data).
func (a *SimpleAccount) Execute(to common.Address, value *big.Int, data []byte) ([]byte, error) {
	return aa.PackExecute(to, value, data)
}

// ExecuteBatch encodes executeBatch(dest, data); both slices must have the same length.
func (a *SimpleAccount) ExecuteBatch(dest []common.Address, data [][]byte) ([]byte, error) {
	return aa.PackExecuteBatch(dest, data)
}

// BuildUserOp runs the middleware chain over a fresh operation carrying callData.
func (a *SimpleAccount) BuildUserOp(ctx context.Context, callData []byte) (*userop.UserOperation, error) {
	b := &BuildContext{
		Op: &userop.UserOperation{
			Sender:               a.sender,
			Nonce:                big.NewInt(0),
			InitCode:             []byte{},
			CallData:             callData,
			CallGasLimit:         new(big.Int).Set(DEFAULT_CALL_GAS_LIMIT),
			VerificationGasLimit: new(big.Int).Set(DEFAULT_VERIFICATION_GAS_LIMIT),
			PreVerificationGas:   new(big.Int).Set(DEFAULT_PREVERIFICATION_GAS),
			MaxFeePerGas:         big.NewInt(0),
			MaxPriorityFeePerGas: big.NewInt(0),
			PaymasterAndData:     []byte{},
			Signature:            []byte{},
		},
		EntryPoint: a.opts.EntryPoint,
		ChainID:    a.chainID,
	}

	if err := runMiddlewares(ctx, b, a.middlewares); err != nil {
		return nil, err
	}
	a.logger.Debug("user operation built",
		"sender", b.Op.Sender.Hex(),
		"nonce", b.Op.Nonce.String(),
		"deploy", len(b.Op.InitCode) > 0,
		"userOpHash", b.UserOpHash().Hex())
	return b.Op, nil
}
