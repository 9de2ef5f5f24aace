package crosschain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"

	"github.com/AvaProtocol/aa-bridge/pkg/erc20"
	"github.com/AvaProtocol/aa-bridge/pkg/sygma"
)

// Call is one entry of a batched user operation.
type Call struct {
	Label  string
	Target common.Address
	Data   []byte
}

// Batch is executed atomically by the smart account, in order.
type Batch struct {
	Calls []Call
}

func (b Batch) Len() int {
	return len(b.Calls)
}

// Dest and Data are the index aligned arguments of executeBatch.
func (b Batch) Dest() []common.Address {
	return lo.Map(b.Calls, func(c Call, _ int) common.Address { return c.Target })
}

func (b Batch) Data() [][]byte {
	return lo.Map(b.Calls, func(c Call, _ int) []byte { return c.Data })
}

func (b Batch) Labels() []string {
	return lo.Map(b.Calls, func(c Call, _ int) string { return c.Label })
}

// BridgeTransfer describes approving both bridge handlers and depositing into the bridge.
type BridgeTransfer struct {
	Token common.Address
	// FeeHandler and ERC20Handler both pull tokens from the account during deposit.
	FeeHandler   common.Address
	ERC20Handler common.Address
	Amount       *big.Int

	Bridge  common.Address
	Deposit sygma.DepositDescriptor
}

// BuildBridgeBatch returns approve(FeeHandler), approve(ERC20Handler), deposit(...) on Bridge.
func BuildBridgeBatch(t BridgeTransfer) (Batch, error) {
	if t.FeeHandler == t.ERC20Handler {
		return Batch{}, NewConfigError("fee handler and erc20 handler must differ", nil, map[string]interface{}{
			"handler": t.FeeHandler.Hex(),
		})
	}

	approveFee, err := erc20.PackApprove(t.FeeHandler, t.Amount)
	if err != nil {
		return Batch{}, NewEncodingError("cannot encode fee handler approval", err)
	}
	approveERC20, err := erc20.PackApprove(t.ERC20Handler, t.Amount)
	if err != nil {
		return Batch{}, NewEncodingError("cannot encode erc20 handler approval", err)
	}
	deposit, err := sygma.PackDeposit(t.Deposit)
	if err != nil {
		return Batch{}, NewEncodingError("cannot encode bridge deposit", err)
	}

	return Batch{Calls: []Call{
		{Label: "approve(feeHandler)", Target: t.Token, Data: approveFee},
		{Label: "approve(erc20Handler)", Target: t.Token, Data: approveERC20},
		{Label: "deposit", Target: t.Bridge, Data: deposit},
	}}, nil
}
