package aa

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	ErrBatchLengthMismatch = errors.New("executeBatch dest and func length mismatch")
	ErrNotUserOpEvent      = errors.New("log is not a UserOperationEvent")
)

func saltOrDefault(salt *big.Int) *big.Int {
	if salt == nil {
		return DefaultSalt
	}
	return salt
}

// GetInitCode returns factory ‖ createAccount(owner, salt), the initCode a first user operation carries.
func GetInitCode(factory, owner common.Address, salt *big.Int) ([]byte, error) {
	calldata, err := FactoryABI.Pack("createAccount", owner, saltOrDefault(salt))
	if err != nil {
		return nil, err
	}

	data := make([]byte, 0, common.AddressLength+len(calldata))
	data = append(data, factory.Bytes()...)
	data = append(data, calldata...)
	return data, nil
}

// GetSenderAddress asks the factory for the counterfactual account address of owner.
func GetSenderAddress(ctx context.Context, caller bind.ContractCaller, factory, owner common.Address, salt *big.Int) (common.Address, error) {
	contract := bind.NewBoundContract(factory, FactoryABI, caller, nil, nil)

	var out []interface{}
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, "getAddress", owner, saltOrDefault(salt)); err != nil {
		return common.Address{}, fmt.Errorf("factory getAddress failed: %w", err)
	}
	if len(out) == 0 {
		return common.Address{}, fmt.Errorf("factory getAddress returned no value")
	}

	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

// GetNonce reads EntryPoint.getNonce(sender, key).
func GetNonce(ctx context.Context, caller bind.ContractCaller, entrypoint, sender common.Address, key *big.Int) (*big.Int, error) {
	if key == nil {
		key = big.NewInt(0)
	}
	contract := bind.NewBoundContract(entrypoint, EntryPointABI, caller, nil, nil)

	var out []interface{}
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, "getNonce", sender, key); err != nil {
		return nil, fmt.Errorf("entrypoint getNonce failed: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("entrypoint getNonce returned no value")
	}

	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// IsDeployed reports whether code exists at the account address.
func IsDeployed(ctx context.Context, caller bind.ContractCaller, account common.Address) (bool, error) {
	code, err := caller.CodeAt(ctx, account, nil)
	if err != nil {
		return false, err
	}
	return len(code) > 0, nil
}

// Generate calldata for UserOps
func PackExecute(targetAddress common.Address, ethValue *big.Int, calldata []byte) ([]byte, error) {
	if ethValue == nil {
		ethValue = big.NewInt(0)
	}
	return SimpleAccountABI.Pack("execute", targetAddress, ethValue, calldata)
}

// PackExecuteBatch encodes executeBatch(dest, func). dest[i] receives func[i].
func PackExecuteBatch(dest []common.Address, data [][]byte) ([]byte, error) {
	if len(dest) != len(data) {
		return nil, fmt.Errorf("%w: %d targets, %d payloads", ErrBatchLengthMismatch, len(dest), len(data))
	}
	if dest == nil {
		dest = []common.Address{}
	}
	if data == nil {
		data = [][]byte{}
	}
	return SimpleAccountABI.Pack("executeBatch", dest, data)
}

// UnpackExecuteBatch decodes calldata produced by PackExecuteBatch.
func UnpackExecuteBatch(calldata []byte) ([]common.Address, [][]byte, error) {
	method := SimpleAccountABI.Methods["executeBatch"]
	if len(calldata) < 4 || !bytes.Equal(calldata[:4], method.ID) {
		return nil, nil, fmt.Errorf("calldata is not executeBatch")
	}

	values, err := method.Inputs.Unpack(calldata[4:])
	if err != nil {
		return nil, nil, err
	}

	dest := *abi.ConvertType(values[0], new([]common.Address)).(*[]common.Address)
	data := *abi.ConvertType(values[1], new([][]byte)).(*[][]byte)
	return dest, data, nil
}

// UserOperationEvent is the EntryPoint log emitted once per handled user operation.
type UserOperationEvent struct {
	UserOpHash    common.Hash
	Sender        common.Address
	Paymaster     common.Address
	Nonce         *big.Int
	Success       bool
	ActualGasCost *big.Int
	ActualGasUsed *big.Int

	TxHash      common.Hash
	BlockNumber uint64
}

// ParseUserOperationEvent decodes a raw EntryPoint log.
func ParseUserOperationEvent(log types.Log) (*UserOperationEvent, error) {
	if len(log.Topics) != 4 || log.Topics[0] != UserOperationEventTopic {
		return nil, ErrNotUserOpEvent
	}

	event := EntryPointABI.Events["UserOperationEvent"]
	values, err := event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return nil, fmt.Errorf("cannot decode UserOperationEvent: %w", err)
	}
	if len(values) != 4 {
		return nil, fmt.Errorf("cannot decode UserOperationEvent: got %d fields", len(values))
	}

	return &UserOperationEvent{
		UserOpHash:    log.Topics[1],
		Sender:        common.BytesToAddress(log.Topics[2].Bytes()),
		Paymaster:     common.BytesToAddress(log.Topics[3].Bytes()),
		Nonce:         values[0].(*big.Int),
		Success:       values[1].(bool),
		ActualGasCost: values[2].(*big.Int),
		ActualGasUsed: values[3].(*big.Int),
		TxHash:        log.TxHash,
		BlockNumber:   log.BlockNumber,
	}, nil
}

// ParseRevertReason extracts the revert payload of a failed user operation, if the log carries one.
func ParseRevertReason(log types.Log) ([]byte, bool) {
	if len(log.Topics) != 3 || log.Topics[0] != UserOperationRevertReasonTopic {
		return nil, false
	}
	values, err := EntryPointABI.Events["UserOperationRevertReason"].Inputs.NonIndexed().Unpack(log.Data)
	if err != nil || len(values) != 2 {
		return nil, false
	}
	reason, ok := values[1].([]byte)
	return reason, ok
}
