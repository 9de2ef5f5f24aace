package model

import (
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

type TransferStatus string

const (
	TransferPending   TransferStatus = "pending"
	TransferConfirmed TransferStatus = "confirmed"
	TransferReverted  TransferStatus = "reverted"
	TransferFailed    TransferStatus = "failed"
)

// TransferRecord is one bridge transfer attempt as kept in the journal.
type TransferRecord struct {
	ID string `json:"id"`

	Owner        string `json:"owner"`
	SmartAccount string `json:"smart_account"`
	Token        string `json:"token"`
	Amount       string `json:"amount"`
	Recipient    string `json:"recipient"`

	DomainID   uint8  `json:"domain_id"`
	ResourceID string `json:"resource_id"`

	FundingTxHash string `json:"funding_tx_hash,omitempty"`
	UserOpHash    string `json:"user_op_hash,omitempty"`
	TxHash        string `json:"tx_hash,omitempty"`
	BlockNumber   uint64 `json:"block_number,omitempty"`
	DepositNonce  uint64 `json:"deposit_nonce,omitempty"`
	ActualGasCost string `json:"actual_gas_cost,omitempty"`

	Status    TransferStatus `json:"status"`
	Step      string         `json:"step,omitempty"`
	Error     string         `json:"error,omitempty"`
	CreatedAt int64          `json:"created_at"`
	UpdatedAt int64          `json:"updated_at"`
}

// NewTransferRecord returns a pending record with a time ordered id.
func NewTransferRecord(now time.Time) *TransferRecord {
	return &TransferRecord{
		ID:        ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		Status:    TransferPending,
		CreatedAt: now.UnixMilli(),
		UpdatedAt: now.UnixMilli(),
	}
}

func (r *TransferRecord) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

func (r *TransferRecord) FromStorageData(body []byte) error {
	return json.Unmarshal(body, r)
}

// Finished reports whether the record reached a terminal status.
func (r *TransferRecord) Finished() bool {
	return r.Status != TransferPending
}
