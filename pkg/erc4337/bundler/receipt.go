package bundler

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// UserOperationReceipt is the result of eth_getUserOperationReceipt.
type UserOperationReceipt struct {
	UserOpHash    common.Hash    `json:"userOpHash"`
	Sender        common.Address `json:"sender"`
	Paymaster     common.Address `json:"paymaster"`
	Nonce         *Quantity      `json:"nonce"`
	Success       bool           `json:"success"`
	Reason        string         `json:"reason"`
	ActualGasCost *Quantity      `json:"actualGasCost"`
	ActualGasUsed *Quantity      `json:"actualGasUsed"`
	Logs          []types.Log    `json:"logs"`
	Receipt       TxReceipt      `json:"receipt"`
}

// TxReceipt is the bundle transaction the user operation was included in.
type TxReceipt struct {
	TransactionHash common.Hash `json:"transactionHash"`
	BlockHash       common.Hash `json:"blockHash"`
	BlockNumber     *Quantity   `json:"blockNumber"`
	Status          *Quantity   `json:"status"`
}
