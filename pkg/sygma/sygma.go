// Package sygma encodes calls to a Sygma bridge and decodes its deposit events.
package sygma

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

const bridgeABIJSON = `[
	{"inputs":[{"internalType":"uint8","name":"destinationDomainID","type":"uint8"},{"internalType":"bytes32","name":"resourceID","type":"bytes32"},{"internalType":"bytes","name":"depositData","type":"bytes"},{"internalType":"bytes","name":"feeData","type":"bytes"}],"name":"deposit","outputs":[{"internalType":"uint64","name":"depositNonce","type":"uint64"},{"internalType":"bytes","name":"handlerResponse","type":"bytes"}],"stateMutability":"payable","type":"function"},
	{"inputs":[{"internalType":"uint8","name":"","type":"uint8"}],"name":"_depositCounts","outputs":[{"internalType":"uint64","name":"","type":"uint64"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"_domainID","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
	{"anonymous":false,"inputs":[{"indexed":false,"internalType":"uint8","name":"destinationDomainID","type":"uint8"},{"indexed":false,"internalType":"bytes32","name":"resourceID","type":"bytes32"},{"indexed":false,"internalType":"uint64","name":"depositNonce","type":"uint64"},{"indexed":true,"internalType":"address","name":"user","type":"address"},{"indexed":false,"internalType":"bytes","name":"data","type":"bytes"},{"indexed":false,"internalType":"bytes","name":"handlerResponse","type":"bytes"}],"name":"Deposit","type":"event"}
]`

var (
	BridgeABI = func() abi.ABI {
		parsed, err := abi.JSON(strings.NewReader(bridgeABIJSON))
		if err != nil {
			panic(fmt.Errorf("Invalid bridge ABI: %w", err))
		}
		return parsed
	}()

	DepositEventTopic = BridgeABI.Events["Deposit"].ID

	ErrInvalidResourceID = errors.New("resource id must be exactly 32 bytes")
	ErrNotDepositCall    = errors.New("calldata is not a bridge deposit")
)

// ResourceID maps a token to its handler on every domain of the bridge.
type ResourceID [32]byte

// ParseResourceID accepts a 0x prefixed hex string of exactly 32 bytes.
func ParseResourceID(s string) (ResourceID, error) {
	var id ResourceID
	raw, err := hexutil.Decode(strings.TrimSpace(s))
	if err != nil {
		return id, fmt.Errorf("%w: %v", ErrInvalidResourceID, err)
	}
	if len(raw) != len(id) {
		return id, fmt.Errorf("%w: got %d bytes", ErrInvalidResourceID, len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

func (r ResourceID) Hex() string {
	return hexutil.Encode(r[:])
}

// DepositDescriptor is everything deposit() takes. DestinationChainID is informational for EVM recipients.
type DepositDescriptor struct {
	DomainID           uint8
	ResourceID         ResourceID
	DepositData        []byte
	FeeData            []byte
	DestinationChainID uint64
}

// NewERCDepositData builds the fungible deposit payload:
// pad32(amount) ‖ pad32(len(recipient)) ‖ recipient
func NewERCDepositData(amount *big.Int, recipient []byte) ([]byte, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, fmt.Errorf("invalid deposit amount %v", amount)
	}
	if amount.BitLen() > 256 {
		return nil, fmt.Errorf("deposit amount overflows uint256")
	}
	if len(recipient) == 0 {
		return nil, fmt.Errorf("empty deposit recipient")
	}

	var buf bytes.Buffer
	buf.Write(common.LeftPadBytes(amount.Bytes(), 32))
	buf.Write(common.LeftPadBytes(big.NewInt(int64(len(recipient))).Bytes(), 32))
	buf.Write(recipient)
	return buf.Bytes(), nil
}

// DecodeERCDepositData is the inverse of NewERCDepositData.
func DecodeERCDepositData(data []byte) (*big.Int, []byte, error) {
	if len(data) < 64 {
		return nil, nil, fmt.Errorf("deposit data too short: %d bytes", len(data))
	}
	amount := new(big.Int).SetBytes(data[:32])
	size := new(big.Int).SetBytes(data[32:64])
	if !size.IsUint64() || size.Uint64() != uint64(len(data)-64) {
		return nil, nil, fmt.Errorf("deposit data recipient length %s does not match payload", size)
	}
	return amount, common.CopyBytes(data[64:]), nil
}

// NewEVMDeposit describes a fungible transfer of amount to an EVM recipient on domainID.
func NewEVMDeposit(domainID uint8, resourceID ResourceID, amount *big.Int, recipient common.Address, feeData []byte, destinationChainID uint64) (DepositDescriptor, error) {
	data, err := NewERCDepositData(amount, recipient.Bytes())
	if err != nil {
		return DepositDescriptor{}, err
	}
	return DepositDescriptor{
		DomainID:           domainID,
		ResourceID:         resourceID,
		DepositData:        data,
		FeeData:            feeData,
		DestinationChainID: destinationChainID,
	}, nil
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

// PackDeposit encodes deposit(destinationDomainID, resourceID, depositData, feeData).
func PackDeposit(d DepositDescriptor) ([]byte, error) {
	return BridgeABI.Pack("deposit", d.DomainID, [32]byte(d.ResourceID), nonNil(d.DepositData), nonNil(d.FeeData))
}

// UnpackDeposit recovers the descriptor from deposit calldata. DestinationChainID is not part of it.
func UnpackDeposit(calldata []byte) (DepositDescriptor, error) {
	method := BridgeABI.Methods["deposit"]
	if len(calldata) < 4 || !bytes.Equal(calldata[:4], method.ID) {
		return DepositDescriptor{}, ErrNotDepositCall
	}

	values, err := method.Inputs.Unpack(calldata[4:])
	if err != nil {
		return DepositDescriptor{}, fmt.Errorf("cannot decode deposit calldata: %w", err)
	}

	return DepositDescriptor{
		DomainID:    values[0].(uint8),
		ResourceID:  ResourceID(values[1].([32]byte)),
		DepositData: values[2].([]byte),
		FeeData:     values[3].([]byte),
	}, nil
}

// DepositEvent is a decoded Deposit log.
type DepositEvent struct {
	DestinationDomainID uint8
	ResourceID          ResourceID
	DepositNonce        uint64
	User                common.Address
	Data                []byte
	HandlerResponse     []byte

	TxHash      common.Hash
	BlockNumber uint64
}

// ParseDepositEvents returns the Deposit events emitted by bridge among logs.
func ParseDepositEvents(logs []*types.Log, bridge common.Address) ([]DepositEvent, error) {
	event := BridgeABI.Events["Deposit"]

	var out []DepositEvent
	for _, l := range logs {
		if l == nil || l.Address != bridge || len(l.Topics) != 2 || l.Topics[0] != DepositEventTopic {
			continue
		}
		values, err := event.Inputs.NonIndexed().Unpack(l.Data)
		if err != nil {
			return nil, fmt.Errorf("cannot decode Deposit event in tx %s: %w", l.TxHash.Hex(), err)
		}
		out = append(out, DepositEvent{
			DestinationDomainID: values[0].(uint8),
			ResourceID:          ResourceID(values[1].([32]byte)),
			DepositNonce:        values[2].(uint64),
			User:                common.BytesToAddress(l.Topics[1].Bytes()),
			Data:                values[3].([]byte),
			HandlerResponse:     values[4].([]byte),
			TxHash:              l.TxHash,
			BlockNumber:         l.BlockNumber,
		})
	}
	return out, nil
}

// DepositCount reads _depositCounts(domainID), the nonce of the last deposit towards that domain.
func DepositCount(ctx context.Context, caller bind.ContractCaller, bridge common.Address, domainID uint8) (uint64, error) {
	contract := bind.NewBoundContract(bridge, BridgeABI, caller, nil, nil)

	var out []interface{}
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, "_depositCounts", domainID); err != nil {
		return 0, fmt.Errorf("bridge _depositCounts failed: %w", err)
	}
	if len(out) == 0 {
		return 0, fmt.Errorf("bridge _depositCounts returned no value")
	}
	return *abi.ConvertType(out[0], new(uint64)).(*uint64), nil
}
