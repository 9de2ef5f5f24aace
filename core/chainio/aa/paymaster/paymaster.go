// Package paymaster signs sponsorships for a VerifyingPaymaster we control.
// This follows the reference from https://github.com/eth-optimism/paymaster-reference
package paymaster

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/AvaProtocol/aa-bridge/core/chainio/signer"
	"github.com/AvaProtocol/aa-bridge/pkg/erc4337/userop"
)

const (
	getHashABIJSON = `[{"inputs":[{"components":[{"internalType":"address","name":"sender","type":"address"},{"internalType":"uint256","name":"nonce","type":"uint256"},{"internalType":"bytes","name":"initCode","type":"bytes"},{"internalType":"bytes","name":"callData","type":"bytes"},{"internalType":"uint256","name":"callGasLimit","type":"uint256"},{"internalType":"uint256","name":"verificationGasLimit","type":"uint256"},{"internalType":"uint256","name":"preVerificationGas","type":"uint256"},{"internalType":"uint256","name":"maxFeePerGas","type":"uint256"},{"internalType":"uint256","name":"maxPriorityFeePerGas","type":"uint256"},{"internalType":"bytes","name":"paymasterAndData","type":"bytes"},{"internalType":"bytes","name":"signature","type":"bytes"}],"internalType":"struct UserOperation","name":"userOp","type":"tuple"},{"internalType":"uint48","name":"validUntil","type":"uint48"},{"internalType":"uint48","name":"validAfter","type":"uint48"}],"name":"getHash","outputs":[{"internalType":"bytes32","name":"","type":"bytes32"}],"stateMutability":"view","type":"function"}]`

	// address(20) + abi.encode(uint48,uint48)(64) + signature(65)
	PaymasterAndDataLength = common.AddressLength + 64 + crypto.SignatureLength

	// tolerate clock drift between us and the bundler
	clockSkew = 120 * time.Second
)

var (
	PaymasterABI = func() abi.ABI {
		parsed, err := abi.JSON(strings.NewReader(getHashABIJSON))
		if err != nil {
			panic(fmt.Errorf("Invalid VerifyingPaymaster ABI: %w", err))
		}
		return parsed
	}()

	timeRangeArgs = abi.Arguments{
		{Type: abi.Type{T: abi.UintTy, Size: 48}},
		{Type: abi.Type{T: abi.UintTy, Size: 48}},
	}

	// The contract hashes the userOp up to paymasterAndData by offset, so the placeholder only needs the final length.
	dummySignature = common.FromHex("0xfffffffffffffffffffffffffffffff0000000000000000000000000000000007aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa1c")
)

// VerifyingPaymaster produces paymasterAndData signed by the paymaster's verifying signer.
type VerifyingPaymaster struct {
	address   common.Address
	signerKey *ecdsa.PrivateKey
	contract  *bind.BoundContract
	validity  time.Duration

	now func() time.Time
}

func NewVerifyingPaymaster(address common.Address, caller bind.ContractCaller, signerKey *ecdsa.PrivateKey, validity time.Duration) *VerifyingPaymaster {
	if validity <= 0 {
		validity = 15 * time.Minute
	}
	return &VerifyingPaymaster{
		address:   address,
		signerKey: signerKey,
		contract:  bind.NewBoundContract(address, PaymasterABI, caller, nil, nil),
		validity:  validity,
		now:       time.Now,
	}
}

func (p *VerifyingPaymaster) Address() common.Address {
	return p.address
}

// TimeRange returns (validUntil, validAfter) for a sponsorship issued now.
func (p *VerifyingPaymaster) TimeRange() (*big.Int, *big.Int) {
	now := p.now()
	validAfter := now.Add(-clockSkew).Unix()
	validUntil := now.Add(p.validity).Unix()
	return big.NewInt(validUntil), big.NewInt(validAfter)
}

// Stub returns a well formed but unsigned paymasterAndData for gas estimation.
func (p *VerifyingPaymaster) Stub() []byte {
	validUntil, validAfter := p.TimeRange()
	data, err := EncodePaymasterAndData(p.address, validUntil, validAfter, dummySignature)
	if err != nil {
		panic(err)
	}
	return data
}

// GetHash calls getHash(userOp, validUntil, validAfter) on the paymaster contract.
func (p *VerifyingPaymaster) GetHash(ctx context.Context, op *userop.UserOperation, validUntil, validAfter *big.Int) (common.Hash, error) {
	var out []interface{}
	err := p.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getHash", *op, validUntil, validAfter)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get paymaster hash: %w", err)
	}
	if len(out) == 0 {
		return common.Hash{}, fmt.Errorf("paymaster getHash returned no value")
	}

	return common.Hash(*abi.ConvertType(out[0], new([32]byte)).(*[32]byte)), nil
}

// Sponsor returns the signed paymasterAndData for op. Gas fields of op must be final.
func (p *VerifyingPaymaster) Sponsor(ctx context.Context, op *userop.UserOperation) ([]byte, error) {
	validUntil, validAfter := p.TimeRange()

	hashInput := op.Copy()
	hashInput.PaymasterAndData = p.Stub()
	hashInput.Signature = dummySignature

	hash, err := p.GetHash(ctx, hashInput, validUntil, validAfter)
	if err != nil {
		return nil, err
	}

	// the contract checks ECDSA.recover(toEthSignedMessageHash(getHash(...)))
	sig, err := signer.SignMessage(p.signerKey, hash.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to sign paymaster hash: %w", err)
	}

	return EncodePaymasterAndData(p.address, validUntil, validAfter, sig)
}

func EncodePaymasterAndData(address common.Address, validUntil, validAfter *big.Int, signature []byte) ([]byte, error) {
	encoded, err := timeRangeArgs.Pack(validUntil, validAfter)
	if err != nil {
		return nil, fmt.Errorf("failed to ABI encode timestamps: %w", err)
	}

	data := make([]byte, 0, PaymasterAndDataLength)
	data = append(data, address.Bytes()...)
	data = append(data, encoded...)
	data = append(data, signature...)
	return data, nil
}

// DecodePaymasterAndData splits paymasterAndData back into its parts.
func DecodePaymasterAndData(data []byte) (address common.Address, validUntil, validAfter *big.Int, signature []byte, err error) {
	if len(data) != PaymasterAndDataLength {
		return address, nil, nil, nil, fmt.Errorf("paymasterAndData must be %d bytes, got %d", PaymasterAndDataLength, len(data))
	}

	values, err := timeRangeArgs.Unpack(data[common.AddressLength : common.AddressLength+64])
	if err != nil {
		return address, nil, nil, nil, err
	}

	address = common.BytesToAddress(data[:common.AddressLength])
	return address, values[0].(*big.Int), values[1].(*big.Int), common.CopyBytes(data[common.AddressLength+64:]), nil
}
