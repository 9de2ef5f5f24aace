package cmd

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"io"
	"math/big"

	"github.com/Layr-Labs/eigensdk-go/chainio/clients/eth"
	sdkmetrics "github.com/Layr-Labs/eigensdk-go/metrics"
	rpccalls "github.com/Layr-Labs/eigensdk-go/metrics/collectors/rpc_calls"
	"github.com/allegro/bigcache/v3"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"

	aapaymaster "github.com/AvaProtocol/aa-bridge/core/chainio/aa/paymaster"
	"github.com/AvaProtocol/aa-bridge/core/chainio/signer"
	"github.com/AvaProtocol/aa-bridge/core/config"
	"github.com/AvaProtocol/aa-bridge/core/crosschain"
	"github.com/AvaProtocol/aa-bridge/metrics"
	"github.com/AvaProtocol/aa-bridge/model"
	"github.com/AvaProtocol/aa-bridge/pkg/erc20"
	"github.com/AvaProtocol/aa-bridge/pkg/erc4337/bundler"
	"github.com/AvaProtocol/aa-bridge/pkg/erc4337/paymaster"
	"github.com/AvaProtocol/aa-bridge/pkg/erc4337/preset"
	"github.com/AvaProtocol/aa-bridge/pkg/logger"
	"github.com/AvaProtocol/aa-bridge/storage"
)

// ethBackend is what the commands need from the RPC node. Both *ethclient.Client
// and the metered *eth.InstrumentedClient satisfy it.
type ethBackend interface {
	preset.EthBackend
	bind.ContractBackend
	bind.DeployBackend
}

// app holds the clients shared by the commands that talk to the chain.
type app struct {
	cfg    *config.Config
	env    *config.DotenvStore
	logger logger.Logger

	ethClient     ethBackend
	bundlerClient *bundler.BundlerClient
	tokenCache    *bigcache.BigCache

	db      storage.Storage
	journal *crosschain.Journal

	reg     *prometheus.Registry
	metrics *metrics.TransferMetrics
}

func loadConfig() (*config.Config, *config.DotenvStore, error) {
	env := config.NewDotenvStore(envFile)
	cfg, err := config.NewConfig(configPath, env)
	if err != nil {
		return nil, nil, crosschain.NewConfigError("cannot load config", err)
	}
	if metricsAddr != "" {
		cfg.MetricsAddr = metricsAddr
	}
	return cfg, env, nil
}

func newApp(ctx context.Context) (*app, error) {
	cfg, env, err := loadConfig()
	if err != nil {
		return nil, err
	}

	lgr, err := logger.New(cfg.Environment, verbose)
	if err != nil {
		return nil, fmt.Errorf("cannot create logger: %w", err)
	}

	a := &app{cfg: cfg, env: env, logger: lgr}

	if cfg.MetricsAddr != "" {
		a.reg = prometheus.NewRegistry()
		eigenMetrics := sdkmetrics.NewEigenMetrics(appName, cfg.MetricsAddr, a.reg, lgr)
		a.metrics = metrics.NewTransferMetrics(eigenMetrics, a.reg)

		rpcCallsCollector := rpccalls.NewCollector(appName, a.reg)
		a.ethClient, err = eth.NewInstrumentedClient(cfg.EthRpcUrl, rpcCallsCollector)
	} else {
		a.ethClient, err = ethclient.Dial(cfg.EthRpcUrl)
	}
	if err != nil {
		return nil, crosschain.NewNetworkError("cannot create eth client", err, map[string]interface{}{"url": cfg.EthRpcUrl})
	}

	if a.bundlerClient, err = bundler.NewBundlerClient(cfg.BundlerUrl); err != nil {
		return nil, crosschain.NewNetworkError("cannot create bundler client", err, map[string]interface{}{"url": cfg.BundlerUrl})
	}

	if a.tokenCache, err = erc20.NewMetadataCache(ctx); err != nil {
		a.Close()
		return nil, err
	}

	if a.db, err = storage.NewWithPath(cfg.JournalPath); err != nil {
		a.Close()
		return nil, fmt.Errorf("cannot open journal at %s: %w", cfg.JournalPath, err)
	}
	a.journal = crosschain.NewJournal(a.db)

	if a.reg != nil {
		statuses := lo.Map([]model.TransferStatus{model.TransferConfirmed, model.TransferReverted, model.TransferFailed},
			func(s model.TransferStatus, _ int) string { return string(s) })
		a.reg.MustRegister(metrics.NewJournalCollector(func(status string) (uint64, error) {
			return a.journal.Count(model.TransferStatus(status))
		}, statuses, lgr))
	}
	return a, nil
}

// startMetrics serves the registry until ctx is done. Errors are only logged.
func (a *app) startMetrics(ctx context.Context) {
	if a.metrics == nil {
		return
	}
	errCh := a.metrics.Start(ctx, a.reg)
	go func() {
		select {
		case err := <-errCh:
			if err != nil {
				a.logger.Error("metrics server failed", "error", err)
			}
		case <-ctx.Done():
		}
	}()
	a.logger.Info("serving metrics", "address", a.cfg.MetricsAddr)
}

func (a *app) Close() {
	if a.bundlerClient != nil {
		a.bundlerClient.Close()
	}
	if a.tokenCache != nil {
		_ = a.tokenCache.Close()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("cannot close journal", "error", err)
		}
	}
}

func (a *app) recorder() metrics.Recorder {
	if a.metrics == nil {
		return nil
	}
	return a.metrics
}

// loadOwner returns PRIVATE_KEY, generating and saving one when the env file has none.
func (a *app) loadOwner(ctx context.Context) (*ecdsa.PrivateKey, error) {
	key, created, err := config.LoadOrCreateKey(a.env.Credential(config.OwnerKeyEnv), a.logger)
	if err != nil {
		return nil, crosschain.NewConfigError("cannot load owner key", err, map[string]interface{}{"file": a.env.Path()})
	}
	if created {
		a.logger.Info("new owner key saved", "file", a.env.Path(), "variable", config.OwnerKeyEnv)
	}
	return key, nil
}

// paymasterMiddleware picks the sponsorship: local verifying paymaster, paymaster service, or none.
func (a *app) paymasterMiddleware() (preset.Middleware, error) {
	if a.cfg.UsesVerifyingPaymaster() {
		key, err := config.LoadKey(a.env.Credential(config.PaymasterKeyEnv), config.PaymasterKeyEnv)
		if err != nil {
			return nil, crosschain.NewConfigError("cannot load paymaster signer key", err)
		}
		pm := aapaymaster.NewVerifyingPaymaster(a.cfg.PaymasterAddress, a.ethClient, key, a.cfg.PaymasterValidity)
		return preset.VerifyingPaymaster(pm, a.bundlerClient, a.logger), nil
	}
	if a.cfg.PaymasterUrl != "" {
		return preset.RemotePaymaster(paymaster.NewClient(a.cfg.PaymasterUrl, paymaster.DefaultContext)), nil
	}
	a.logger.Warn("no paymaster configured, the smart account pays for gas")
	return nil, nil
}

type bundlerInfo interface {
	SupportsEntryPoint(ctx context.Context, entrypoint common.Address) (bool, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

type chainIDReader interface {
	ChainID(ctx context.Context) (*big.Int, error)
}

// checkBundler makes sure the bundler serves entrypoint on the same chain as the RPC node.
func checkBundler(ctx context.Context, b bundlerInfo, node chainIDReader, entrypoint common.Address) error {
	ok, err := b.SupportsEntryPoint(ctx, entrypoint)
	if err != nil {
		return crosschain.NewNetworkError("cannot list bundler entry points", err)
	}
	if !ok {
		return crosschain.NewConfigError("bundler does not support the entry point", nil, map[string]interface{}{"entryPoint": entrypoint.Hex()})
	}

	bundlerChain, err := b.ChainID(ctx)
	if err != nil {
		return crosschain.NewNetworkError("cannot read bundler chain id", err)
	}
	nodeChain, err := node.ChainID(ctx)
	if err != nil {
		return crosschain.NewNetworkError("failed to get chain ID", err)
	}
	if bundlerChain.Cmp(nodeChain) != 0 {
		return crosschain.NewConfigError("bundler and RPC node are on different chains", nil, map[string]interface{}{
			"bundlerChainId": bundlerChain.String(),
			"nodeChainId":    nodeChain.String(),
		})
	}
	return nil
}

func (a *app) newAccount(ctx context.Context, owner *ecdsa.PrivateKey) (*preset.SimpleAccount, error) {
	if err := checkBundler(ctx, a.bundlerClient, a.ethClient, a.cfg.EntryPoint); err != nil {
		return nil, err
	}

	middleware, err := a.paymasterMiddleware()
	if err != nil {
		return nil, err
	}
	account, err := preset.NewSimpleAccount(ctx, owner, a.ethClient, a.bundlerClient, preset.SimpleAccountOpts{
		EntryPoint:          a.cfg.EntryPoint,
		Factory:             a.cfg.Factory,
		Salt:                a.cfg.Salt,
		PaymasterMiddleware: middleware,
		Logger:              a.logger,
	})
	if err != nil {
		return nil, crosschain.NewNetworkError("cannot resolve smart account", err, map[string]interface{}{"factory": a.cfg.Factory.Hex()})
	}
	return account, nil
}

func (a *app) token() *erc20.Token {
	return erc20.NewToken(a.cfg.Token, a.ethClient, a.tokenCache)
}

// newFunder signs the funding transfer with PRIVATE_KEY_TOKEN_OWNER.
func (a *app) newFunder(ctx context.Context) (*crosschain.TokenFunder, error) {
	value, found, err := a.env.Lookup(config.TokenOwnerKeyEnv)
	if err != nil {
		return nil, crosschain.NewConfigError("cannot read env file", err)
	}
	if !found {
		return nil, crosschain.NewConfigError(config.TokenOwnerKeyEnv+" is not set", nil, map[string]interface{}{"file": a.env.Path()})
	}

	chainID, err := a.ethClient.ChainID(ctx)
	if err != nil {
		return nil, crosschain.NewNetworkError("failed to get chain ID", err)
	}
	opts, err := signer.FromPrivateKeyHex(value, chainID)
	if err != nil {
		return nil, crosschain.NewConfigError(config.TokenOwnerKeyEnv+" is not a valid private key", err)
	}
	return crosschain.NewTokenFunder(a.token(), opts, a.ethClient, a.logger), nil
}

// deferredFunder builds the funder on first use so runs that skip funding never need the token owner key.
type deferredFunder struct {
	app *app
}

func (f deferredFunder) Fund(ctx context.Context, to common.Address, amount *big.Int) (*types.Receipt, error) {
	funder, err := f.app.newFunder(ctx)
	if err != nil {
		return nil, err
	}
	return funder.Fund(ctx, to, amount)
}

func (a *app) transferParams() crosschain.TransferParams {
	return crosschain.TransferParams{
		Token:              a.cfg.Token,
		FeeHandler:         a.cfg.FeeHandler,
		ERC20Handler:       a.cfg.ERC20Handler,
		Bridge:             a.cfg.Bridge,
		DomainID:           a.cfg.DomainID,
		ResourceID:         a.cfg.ResourceID,
		DestinationChainID: a.cfg.DestinationChainID,
		FeeData:            a.cfg.FeeData,
		Recipient:          a.cfg.Recipient,
		FundAmount:         a.cfg.FundAmount,
		TransferAmount:     a.cfg.TransferAmount,
		SkipFunding:        a.cfg.SkipFunding,
	}
}

func (a *app) newRunner(out io.Writer) *crosschain.Runner {
	client := preset.NewClient(a.bundlerClient, a.ethClient, preset.ClientOpts{
		Timeout: a.cfg.ConfirmationTimeout,
		Logger:  a.logger,
	})

	return crosschain.NewRunner(a.transferParams(), crosschain.RunnerDeps{
		LoadKey: a.loadOwner,
		NewAccount: func(ctx context.Context, owner *ecdsa.PrivateKey) (crosschain.Account, error) {
			account, err := a.newAccount(ctx, owner)
			if err != nil {
				return nil, err
			}
			return account, nil
		},
		Funder:    deferredFunder{app: a},
		Token:     a.token(),
		Deposits:  crosschain.NewBridgeDeposits(a.ethClient, a.cfg.Bridge, a.cfg.DomainID),
		Submitter: crosschain.NewUserOpSubmitter(client, a.ethClient, a.cfg.Bridge, a.logger),

		Journal: a.journal,
		Metrics: a.recorder(),
		Out:     out,
		Logger:  a.logger,
	})
}
