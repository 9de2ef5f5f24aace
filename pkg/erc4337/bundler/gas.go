package bundler

import (
	"fmt"
	"math/big"
	"strings"
)

type GasEstimation struct {
	PreVerificationGas   *big.Int
	VerificationGasLimit *big.Int
	CallGasLimit         *big.Int
}

// Quantity decodes the numeric fields bundlers return. Most send 0x hex, some send
// plain JSON numbers or decimal strings, and some keep leading zeros.
type Quantity big.Int

func (q *Quantity) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		(*big.Int)(q).SetInt64(0)
		return nil
	}

	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s, base = s[2:], 16
		if s == "" {
			(*big.Int)(q).SetInt64(0)
			return nil
		}
	}

	if _, ok := (*big.Int)(q).SetString(s, base); !ok {
		return fmt.Errorf("invalid quantity %s", string(data))
	}
	return nil
}

// BigInt returns a copy, zero for nil.
func (q *Quantity) BigInt() *big.Int {
	if q == nil {
		return new(big.Int)
	}
	return new(big.Int).Set((*big.Int)(q))
}

type gasEstimationResult struct {
	PreVerificationGas   *Quantity `json:"preVerificationGas"`
	VerificationGasLimit *Quantity `json:"verificationGasLimit"`
	// some bundlers still answer with the pre v0.6 name
	VerificationGas *Quantity `json:"verificationGas"`
	CallGasLimit    *Quantity `json:"callGasLimit"`
}

func (r gasEstimationResult) toGasEstimation() *GasEstimation {
	verification := r.VerificationGasLimit
	if verification == nil {
		verification = r.VerificationGas
	}
	return &GasEstimation{
		PreVerificationGas:   r.PreVerificationGas.BigInt(),
		VerificationGasLimit: verification.BigInt(),
		CallGasLimit:         r.CallGasLimit.BigInt(),
	}
}
