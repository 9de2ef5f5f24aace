package crosschain

import (
	"context"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/AvaProtocol/aa-bridge/pkg/sygma"
)

// BridgeDeposits reads the bridge deposit counter towards one destination domain.
type BridgeDeposits struct {
	caller   bind.ContractCaller
	bridge   common.Address
	domainID uint8
}

func NewBridgeDeposits(caller bind.ContractCaller, bridge common.Address, domainID uint8) *BridgeDeposits {
	return &BridgeDeposits{caller: caller, bridge: bridge, domainID: domainID}
}

func (b *BridgeDeposits) DepositCount(ctx context.Context) (uint64, error) {
	return sygma.DepositCount(ctx, b.caller, b.bridge, b.domainID)
}
