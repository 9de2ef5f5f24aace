package preset

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/AvaProtocol/aa-bridge/core/chainio/aa"
	"github.com/AvaProtocol/aa-bridge/pkg/erc4337/userop"
	"github.com/AvaProtocol/aa-bridge/pkg/logger"
)

var (
	// ErrConfirmationTimeout means the operation was sent but no UserOperationEvent showed up in time.
	// It may still be included later.
	ErrConfirmationTimeout = errors.New("timed out waiting for user operation confirmation")
)

// RevertError is returned when the EntryPoint handled the operation but its execution reverted.
type RevertError struct {
	Event  *aa.UserOperationEvent
	Reason []byte
}

func (e *RevertError) Error() string {
	msg := fmt.Sprintf("user operation %s reverted in tx %s", e.Event.UserOpHash.Hex(), e.Event.TxHash.Hex())
	if len(e.Reason) > 0 {
		msg += ": " + hexutil.Encode(e.Reason)
	}
	return msg
}

type ClientOpts struct {
	// Timeout bounds Wait. Zero means DefaultConfirmationTimeout.
	Timeout time.Duration

	InitialInterval time.Duration
	MaxInterval     time.Duration
	BackoffFactor   float64

	// BlockRange is how many blocks before the send the scan starts, so an operation
	// bundled against a node slightly ahead of ours is still found.
	BlockRange uint64

	Logger logger.Logger
}

const (
	DefaultConfirmationTimeout = 2 * time.Minute
	defaultInitialInterval     = 1 * time.Second
	defaultMaxInterval         = 5 * time.Second
	defaultBackoffFactor       = 1.5
	defaultBlockRange          = 20
)

// Client sends user operations built by a SimpleAccount and waits for their inclusion.
type Client struct {
	bundler Bundler
	logs    LogReader
	opts    ClientOpts
	logger  logger.Logger
}

func NewClient(bundlerClient Bundler, logs LogReader, opts ClientOpts) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultConfirmationTimeout
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = defaultInitialInterval
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = defaultMaxInterval
	}
	if opts.BackoffFactor < 1 {
		opts.BackoffFactor = defaultBackoffFactor
	}
	if opts.BlockRange == 0 {
		opts.BlockRange = defaultBlockRange
	}

	return &Client{
		bundler: bundlerClient,
		logs:    logs,
		opts:    opts,
		logger:  logger.EnsureLogger(opts.Logger),
	}
}

// UserOpBuilder produces signed operations for one smart account. SimpleAccount is one.
type UserOpBuilder interface {
	BuildUserOp(ctx context.Context, callData []byte) (*userop.UserOperation, error)
	EntryPoint() common.Address
	ChainID() *big.Int
}

// PendingUserOp is an operation accepted by the bundler.
type PendingUserOp struct {
	UserOpHash common.Hash
	Op         *userop.UserOperation
	EntryPoint common.Address

	// fromBlock is where every poll starts scanning. Only set when the head was known at send time.
	fromBlock uint64
	anchored  bool

	client *Client
}

// SendUserOperation builds callData into a signed operation for account and hands it to the bundler.
func (c *Client) SendUserOperation(ctx context.Context, account UserOpBuilder, callData []byte) (*PendingUserOp, error) {
	op, err := account.BuildUserOp(ctx, callData)
	if err != nil {
		return nil, err
	}

	pending := &PendingUserOp{Op: op, EntryPoint: account.EntryPoint(), client: c}
	if head, err := c.logs.BlockNumber(ctx); err != nil {
		c.logger.Warn("cannot read head before sending, scanning recent blocks only", "error", err)
	} else {
		pending.fromBlock = c.startBlock(head)
		pending.anchored = true
	}

	hash, err := c.bundler.SendUserOperation(ctx, *op, account.EntryPoint())
	if err != nil {
		return nil, err
	}
	pending.UserOpHash = hash

	expected := op.GetUserOpHash(account.EntryPoint(), account.ChainID())
	if hash != expected {
		c.logger.Warn("bundler returned an unexpected userOpHash", "got", hash.Hex(), "expected", expected.Hex())
	}
	c.logger.Info("UserOp sent", "userOpHash", hash.Hex(), "nonce", op.Nonce.String(), "sender", op.Sender.Hex())

	return pending, nil
}

func (c *Client) startBlock(head uint64) uint64 {
	if head > c.opts.BlockRange {
		return head - c.opts.BlockRange
	}
	return 0
}

// Wait polls the EntryPoint logs with exponential backoff until the UserOperationEvent
// shows up, ctx is done, or the client timeout elapses.
func (p *PendingUserOp) Wait(ctx context.Context) (*aa.UserOperationEvent, error) {
	c := p.client
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	startTime := time.Now()
	pollInterval := c.opts.InitialInterval
	attempt := 0

	for {
		attempt++
		event, reason, err := c.poll(ctx, p)
		if err != nil {
			// Continue polling despite errors (transient network issues)
			c.logger.Warn("transaction waiting: polling error", "attempt", attempt, "error", err)
		}
		if event != nil {
			c.logger.Info("UserOp confirmed",
				"userOpHash", p.UserOpHash.Hex(),
				"txHash", event.TxHash.Hex(),
				"block", event.BlockNumber,
				"elapsed", time.Since(startTime).Round(time.Millisecond))
			if !event.Success {
				return event, &RevertError{Event: event, Reason: reason}
			}
			return event, nil
		}

		timer := time.NewTimer(pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %s after %v (%d attempts)", ErrConfirmationTimeout, p.UserOpHash.Hex(), time.Since(startTime).Round(time.Second), attempt)
			}
			return nil, ctx.Err()
		case <-timer.C:
		}

		pollInterval = time.Duration(float64(pollInterval) * c.opts.BackoffFactor)
		if pollInterval > c.opts.MaxInterval {
			pollInterval = c.opts.MaxInterval
		}
	}
}

// poll searches from the block the operation was sent at up to the head for the
// UserOperationEvent and its revert reason.
func (c *Client) poll(ctx context.Context, p *PendingUserOp) (*aa.UserOperationEvent, []byte, error) {
	currentBlock, err := c.logs.BlockNumber(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get current block: %w", err)
	}

	fromBlock := c.startBlock(currentBlock)
	if p.anchored {
		fromBlock = min(p.fromBlock, currentBlock)
	}

	logs, err := c.logs.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(currentBlock),
		Addresses: []common.Address{p.EntryPoint},
		Topics: [][]common.Hash{
			{aa.UserOperationEventTopic, aa.UserOperationRevertReasonTopic},
			{p.UserOpHash},
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to filter logs: %w", err)
	}

	var (
		event  *aa.UserOperationEvent
		reason []byte
	)
	for _, l := range logs {
		if r, ok := aa.ParseRevertReason(l); ok {
			reason = r
			continue
		}
		if e, err := aa.ParseUserOperationEvent(l); err == nil {
			event = e
		}
	}
	return event, reason, nil
}
