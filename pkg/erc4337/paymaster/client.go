// Package paymaster talks to a hosted paymaster service (pm_sponsorUserOperation).
package paymaster

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-resty/resty/v2"
	"github.com/mitchellh/mapstructure"

	"github.com/AvaProtocol/aa-bridge/pkg/erc4337/userop"
)

// JSON-RPC request structure for the paymaster endpoint
type JSONRPCRequest struct {
	Jsonrpc string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	Id      int           `json:"id"`
}

// JSON-RPC response structure
type JSONRPCResponse struct {
	Jsonrpc string      `json:"jsonrpc"`
	Id      int         `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("paymaster RPC error: %s (code: %d)", e.Message, e.Code)
}

// DefaultContext asks for pay-as-you-go sponsorship.
var DefaultContext = map[string]any{"type": "payg"}

// SponsorResult carries the sponsorship. Gas limits are nil when the service did not override them.
type SponsorResult struct {
	PaymasterAndData     []byte
	PreVerificationGas   *big.Int
	VerificationGasLimit *big.Int
	CallGasLimit         *big.Int
}

type sponsorObject struct {
	PaymasterAndData     string `mapstructure:"paymasterAndData"`
	PreVerificationGas   string `mapstructure:"preVerificationGas"`
	VerificationGasLimit string `mapstructure:"verificationGasLimit"`
	CallGasLimit         string `mapstructure:"callGasLimit"`
}

type Client struct {
	httpClient *resty.Client
	url        string
	context    map[string]any
}

func NewClient(url string, sponsorContext map[string]any) *Client {
	client := resty.New()
	client.SetTimeout(30 * time.Second)
	client.SetHeader("Content-Type", "application/json")

	if sponsorContext == nil {
		sponsorContext = DefaultContext
	}

	return &Client{
		httpClient: client,
		url:        url,
		context:    sponsorContext,
	}
}

// SponsorUserOperation calls pm_sponsorUserOperation(op, entrypoint, context).
func (c *Client) SponsorUserOperation(ctx context.Context, op userop.UserOperation, entrypoint common.Address) (*SponsorResult, error) {
	rpcRequest := JSONRPCRequest{
		Jsonrpc: "2.0",
		Method:  "pm_sponsorUserOperation",
		Params:  []interface{}{op, entrypoint.Hex(), c.context},
		Id:      1,
	}

	var response JSONRPCResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(rpcRequest).
		SetResult(&response).
		Post(c.url)
	if err != nil {
		return nil, fmt.Errorf("paymaster RPC call failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("paymaster RPC call failed: %d %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	if response.Error != nil {
		return nil, response.Error
	}

	return decodeSponsorResult(response.Result)
}

func decodeSponsorResult(result interface{}) (*SponsorResult, error) {
	switch v := result.(type) {
	case string:
		data, err := hexutil.Decode(v)
		if err != nil {
			return nil, fmt.Errorf("invalid paymasterAndData %q: %w", v, err)
		}
		return &SponsorResult{PaymasterAndData: data}, nil

	case map[string]interface{}:
		var obj sponsorObject
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &obj,
		})
		if err != nil {
			return nil, err
		}
		if err := decoder.Decode(v); err != nil {
			return nil, fmt.Errorf("cannot decode sponsorship: %w", err)
		}

		data, err := hexutil.Decode(obj.PaymasterAndData)
		if err != nil {
			return nil, fmt.Errorf("invalid paymasterAndData %q: %w", obj.PaymasterAndData, err)
		}
		out := &SponsorResult{PaymasterAndData: data}
		if out.PreVerificationGas, err = parseQuantity(obj.PreVerificationGas); err != nil {
			return nil, err
		}
		if out.VerificationGasLimit, err = parseQuantity(obj.VerificationGasLimit); err != nil {
			return nil, err
		}
		if out.CallGasLimit, err = parseQuantity(obj.CallGasLimit); err != nil {
			return nil, err
		}
		return out, nil

	case nil:
		return nil, fmt.Errorf("empty result from paymaster")
	default:
		return nil, fmt.Errorf("unexpected paymaster result type %T", result)
	}
}

// parseQuantity accepts hex or decimal, "" yields nil.
func parseQuantity(s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	base := 10
	digits := s
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base, digits = 16, s[2:]
	}
	v, ok := new(big.Int).SetString(digits, base)
	if !ok {
		return nil, fmt.Errorf("invalid quantity %q", s)
	}
	return v, nil
}
