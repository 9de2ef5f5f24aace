package crosschain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/AvaProtocol/aa-bridge/core/chainio/signer"
	"github.com/AvaProtocol/aa-bridge/metrics"
	"github.com/AvaProtocol/aa-bridge/model"
	"github.com/AvaProtocol/aa-bridge/pkg/erc20"
	"github.com/AvaProtocol/aa-bridge/pkg/erc4337/preset"
	"github.com/AvaProtocol/aa-bridge/pkg/logger"
	"github.com/AvaProtocol/aa-bridge/pkg/sygma"
)

const (
	StepProvisionKey  = "provision_key"
	StepCreateAccount = "create_account"
	StepFundAccount   = "fund_account"
	StepBuildBatch    = "build_batch"
	StepSubmitBatch   = "submit_batch"
)

// TransferParams is the bridge route and amounts of one run.
type TransferParams struct {
	Token        common.Address
	FeeHandler   common.Address
	ERC20Handler common.Address
	Bridge       common.Address

	DomainID           uint8
	ResourceID         sygma.ResourceID
	DestinationChainID uint64
	FeeData            []byte
	// Recipient on the destination chain. Zero means the smart account address.
	Recipient common.Address

	// decimal strings in whole tokens, scaled by the token decimals
	FundAmount     string
	TransferAmount string
	// SkipFunding leaves the account balance untouched, for accounts funded out of band.
	SkipFunding bool
}

type TokenReader interface {
	Decimals(ctx context.Context) (uint8, error)
	Symbol(ctx context.Context) (string, error)
	BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error)
}

type DepositCounter interface {
	DepositCount(ctx context.Context) (uint64, error)
}

// RunnerDeps are the collaborators of a Runner. Journal, Metrics, Out and Logger are optional.
type RunnerDeps struct {
	LoadKey    func(ctx context.Context) (*ecdsa.PrivateKey, error)
	NewAccount func(ctx context.Context, owner *ecdsa.PrivateKey) (Account, error)
	Funder     Funder
	Token      TokenReader
	Deposits   DepositCounter
	Submitter  Submitter

	Journal *Journal
	Metrics metrics.Recorder
	Out     io.Writer
	Logger  logger.Logger
}

// TransferState is handed from step to step.
type TransferState struct {
	Owner   *ecdsa.PrivateKey
	Account Account

	Decimals       uint8
	Symbol         string
	FundAmount     *big.Int
	TransferAmount *big.Int

	FundingReceipt *types.Receipt
	Balance        *big.Int

	// PriorDepositCount is the bridge deposit counter for DomainID before submission, when it could be read.
	PriorDepositCount *uint64
	Batch             Batch

	Confirmation *Confirmation
	Record       *model.TransferRecord
}

// Runner performs a cross-chain transfer from a smart account: provision the owner key, build the
// account, fund it, batch approve+approve+deposit and submit it as one user operation.
type Runner struct {
	params TransferParams
	deps   RunnerDeps
	now    func() time.Time
}

func NewRunner(params TransferParams, deps RunnerDeps) *Runner {
	deps.Logger = logger.EnsureLogger(deps.Logger)
	deps.Metrics = metrics.EnsureRecorder(deps.Metrics)
	if deps.Out == nil {
		deps.Out = io.Discard
	}
	return &Runner{params: params, deps: deps, now: time.Now}
}

func (r *Runner) Steps() []Step[TransferState] {
	return []Step[TransferState]{
		{Name: StepProvisionKey, Run: r.provisionKey},
		{Name: StepCreateAccount, Run: r.createAccount},
		{Name: StepFundAccount, Run: r.fundAccount},
		{Name: StepBuildBatch, Run: r.buildBatch},
		{Name: StepSubmitBatch, Run: r.submitBatch},
	}
}

// Run executes every step and journals the outcome. The returned state holds whatever was
// produced before a failure.
func (r *Runner) Run(ctx context.Context) (*TransferState, error) {
	state := &TransferState{Record: model.NewTransferRecord(r.now())}
	r.fillRecordParams(state.Record)

	err := RunPipeline(ctx, state, r.Steps(), r.deps.Logger, r.deps.Metrics)
	r.journal(state, err)
	return state, err
}

func (r *Runner) provisionKey(ctx context.Context, s *TransferState) error {
	owner, err := r.deps.LoadKey(ctx)
	if err != nil {
		return err
	}
	s.Owner = owner
	s.Record.Owner = signer.Address(owner).Hex()
	return nil
}

func (r *Runner) createAccount(ctx context.Context, s *TransferState) error {
	account, err := r.deps.NewAccount(ctx, s.Owner)
	if err != nil {
		return err
	}
	s.Account = account
	s.Record.SmartAccount = account.Sender().Hex()
	if r.params.Recipient == (common.Address{}) {
		s.Record.Recipient = account.Sender().Hex()
	}

	fmt.Fprintf(r.deps.Out, "smart wallet address %s\n", account.Sender().Hex())
	return nil
}

func (r *Runner) fundAccount(ctx context.Context, s *TransferState) error {
	decimals, err := r.deps.Token.Decimals(ctx)
	if err != nil {
		return classifyRPCError("cannot read token decimals", err, map[string]interface{}{"token": r.params.Token.Hex()})
	}
	symbol, err := r.deps.Token.Symbol(ctx)
	if err != nil {
		r.deps.Logger.Warn("cannot read token symbol", "token", r.params.Token.Hex(), "error", err)
		symbol = "tokens"
	}
	s.Decimals, s.Symbol = decimals, symbol

	if s.TransferAmount, err = erc20.ParseUnits(r.params.TransferAmount, decimals); err != nil {
		return NewConfigError("invalid transfer amount", err, map[string]interface{}{"amount": r.params.TransferAmount})
	}
	s.Record.Amount = s.TransferAmount.String()

	if r.params.SkipFunding {
		r.deps.Logger.Info("funding skipped", "account", s.Account.Sender().Hex())
	} else {
		if s.FundAmount, err = erc20.ParseUnits(r.params.FundAmount, decimals); err != nil {
			return NewConfigError("invalid funding amount", err, map[string]interface{}{"amount": r.params.FundAmount})
		}

		fmt.Fprintf(r.deps.Out, "Give smart account %s %s\n", erc20.FormatUnits(s.FundAmount, decimals), symbol)
		receipt, err := r.deps.Funder.Fund(ctx, s.Account.Sender(), s.FundAmount)
		if receipt != nil {
			s.FundingReceipt = receipt
			s.Record.FundingTxHash = receipt.TxHash.Hex()
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(r.deps.Out, receipt.TxHash.Hex())
	}

	balance, err := r.deps.Token.BalanceOf(ctx, s.Account.Sender())
	if err != nil {
		return classifyRPCError("cannot read smart account balance", err, nil)
	}
	s.Balance = balance
	whole, _ := decimal.NewFromBigInt(balance, -int32(decimals)).Float64()
	r.deps.Metrics.SetAccountBalance(whole)
	r.deps.Logger.Info("smart account balance", "account", s.Account.Sender().Hex(), "balance", erc20.FormatUnits(balance, decimals), "symbol", symbol)

	if balance.Cmp(s.TransferAmount) < 0 {
		r.deps.Logger.Warn("balance is below the transfer amount, the deposit will revert",
			"balance", balance.String(), "amount", s.TransferAmount.String())
	}
	return nil
}

func (r *Runner) buildBatch(ctx context.Context, s *TransferState) error {
	recipient := r.params.Recipient
	if recipient == (common.Address{}) {
		recipient = s.Account.Sender()
	}

	deposit, err := sygma.NewEVMDeposit(r.params.DomainID, r.params.ResourceID, s.TransferAmount, recipient, r.params.FeeData, r.params.DestinationChainID)
	if err != nil {
		return NewEncodingError("cannot encode deposit data", err)
	}

	batch, err := BuildBridgeBatch(BridgeTransfer{
		Token:        r.params.Token,
		FeeHandler:   r.params.FeeHandler,
		ERC20Handler: r.params.ERC20Handler,
		Amount:       s.TransferAmount,
		Bridge:       r.params.Bridge,
		Deposit:      deposit,
	})
	if err != nil {
		return err
	}
	s.Batch = batch

	count, err := r.deps.Deposits.DepositCount(ctx)
	if err != nil {
		// only used to cross check the resulting nonce
		r.deps.Logger.Warn("cannot read bridge deposit count", "domain", r.params.DomainID, "error", err)
	} else {
		s.PriorDepositCount = &count
	}
	return nil
}

func (r *Runner) submitBatch(ctx context.Context, s *TransferState) error {
	fmt.Fprintln(r.deps.Out, "Batch Cross Chain Transfer Erc20 Tokens")

	start := r.now()
	conf, err := r.deps.Submitter.Submit(ctx, s.Account, s.Batch)
	s.Confirmation = conf
	if conf != nil {
		r.fillRecordConfirmation(s.Record, conf)
	}
	if err != nil {
		r.deps.Metrics.IncUserOp(userOpStatus(err))
		return err
	}
	r.deps.Metrics.IncUserOp("confirmed")
	r.deps.Metrics.ObserveConfirmation(r.now().Sub(start))

	fmt.Fprintf(r.deps.Out, "Smart Wallet Cross Chain Transaction hash: %s\n", conf.TxHash.Hex())
	if conf.Deposited {
		if s.PriorDepositCount != nil && conf.DepositNonce != *s.PriorDepositCount+1 {
			r.deps.Logger.Warn("deposit nonce is not the next one, another deposit landed first",
				"nonce", conf.DepositNonce, "expected", *s.PriorDepositCount+1)
		}
		fmt.Fprintf(r.deps.Out, "Deposit nonce: %d\n", conf.DepositNonce)
	}
	return nil
}

func userOpStatus(err error) string {
	var revertErr *preset.RevertError
	switch {
	case errors.As(err, &revertErr):
		return "reverted"
	case errors.Is(err, preset.ErrConfirmationTimeout):
		return "timeout"
	default:
		return "failed"
	}
}

func (r *Runner) fillRecordParams(rec *model.TransferRecord) {
	rec.Token = r.params.Token.Hex()
	rec.DomainID = r.params.DomainID
	rec.ResourceID = r.params.ResourceID.Hex()
	if r.params.Recipient != (common.Address{}) {
		rec.Recipient = r.params.Recipient.Hex()
	}
}

func (r *Runner) fillRecordConfirmation(rec *model.TransferRecord, conf *Confirmation) {
	rec.UserOpHash = conf.UserOpHash.Hex()
	if conf.TxHash != (common.Hash{}) {
		rec.TxHash = conf.TxHash.Hex()
		rec.BlockNumber = conf.BlockNumber
	}
	if conf.ActualGasCost != nil {
		rec.ActualGasCost = conf.ActualGasCost.String()
	}
	if conf.Deposited {
		rec.DepositNonce = conf.DepositNonce
	}
}

// journal records the outcome. A journal failure never hides the transfer result.
func (r *Runner) journal(s *TransferState, runErr error) {
	if r.deps.Journal == nil {
		return
	}

	status := model.TransferConfirmed
	if runErr != nil {
		status = model.TransferFailed
		var stepErr *StepError
		if errors.As(runErr, &stepErr) {
			s.Record.Step = stepErr.Step
		}
		if s.Confirmation != nil && s.Confirmation.TxHash != (common.Hash{}) && !s.Confirmation.Success {
			status = model.TransferReverted
		}
	}

	if err := r.deps.Journal.Finish(s.Record, status, runErr); err != nil {
		r.deps.Logger.Error("cannot journal transfer", "id", s.Record.ID, "error", err)
	}
}
