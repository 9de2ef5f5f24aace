package config

import (
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"

	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"

	"github.com/AvaProtocol/aa-bridge/pkg/sygma"
)

// Config is everything a transfer run needs besides the keys.
type Config struct {
	Environment sdklogging.LogLevel
	Network     ChainEnv

	EthRpcUrl    string
	BundlerUrl   string
	PaymasterUrl string

	// PaymasterAddress selects the local verifying paymaster instead of the remote sponsor.
	PaymasterAddress  common.Address
	PaymasterValidity time.Duration

	EntryPoint common.Address
	Factory    common.Address
	Salt       *big.Int

	Token        common.Address
	FeeHandler   common.Address
	ERC20Handler common.Address
	Bridge       common.Address

	DomainID           uint8
	ResourceID         sygma.ResourceID
	DestinationChainID uint64
	FeeData            []byte
	Recipient          common.Address

	FundAmount     string
	TransferAmount string
	SkipFunding    bool

	ConfirmationTimeout time.Duration
	JournalPath         string
	MetricsAddr         string
}

// These are read from the config file. Empty fields fall back to the network preset,
// endpoint urls also to <NETWORK>_RPC_URL, <NETWORK>_BUNDLER_RPC and <NETWORK>_PAYMASTER_RPC_URL.
type ConfigRaw struct {
	Environment sdklogging.LogLevel `yaml:"environment" validate:"omitempty,oneof=development production"`
	Network     string              `yaml:"network" validate:"required"`

	EthRpcUrl    string `yaml:"eth_rpc_url" validate:"required,url"`
	BundlerUrl   string `yaml:"bundler_url" validate:"required,url"`
	PaymasterUrl string `yaml:"paymaster_url" validate:"omitempty,url"`

	PaymasterAddress  string `yaml:"paymaster_address" validate:"omitempty,eth_addr"`
	PaymasterValidity string `yaml:"paymaster_validity"`

	EntryPoint string `yaml:"entrypoint_address" validate:"required,eth_addr"`
	Factory    string `yaml:"factory_address" validate:"required,eth_addr"`
	Salt       int64  `yaml:"salt" validate:"gte=0"`

	Token        string `yaml:"token_address" validate:"required,eth_addr"`
	FeeHandler   string `yaml:"fee_handler_address" validate:"required,eth_addr"`
	ERC20Handler string `yaml:"erc20_handler_address" validate:"required,eth_addr,nefield=FeeHandler"`
	Bridge       string `yaml:"bridge_address" validate:"required,eth_addr"`

	DomainID           uint8  `yaml:"domain_id" validate:"required"`
	ResourceID         string `yaml:"resource_id" validate:"required"`
	DestinationChainID uint64 `yaml:"destination_chain_id"`
	FeeData            string `yaml:"fee_data" validate:"omitempty,hexadecimal"`
	Recipient          string `yaml:"recipient" validate:"omitempty,eth_addr"`

	FundAmount     string `yaml:"fund_amount" validate:"required,numeric"`
	TransferAmount string `yaml:"transfer_amount" validate:"required,numeric"`
	SkipFunding    bool   `yaml:"skip_funding"`

	ConfirmationTimeout string `yaml:"confirmation_timeout"`
	JournalPath         string `yaml:"journal_path" validate:"required"`
	MetricsAddr         string `yaml:"metrics_address" validate:"omitempty,hostname_port"`
}

var validate = validator.New()

// ReadConfigRaw reads the yaml file at path. An empty path yields an empty config.
func ReadConfigRaw(path string) (*ConfigRaw, error) {
	raw := &ConfigRaw{}
	if path == "" {
		return raw, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, raw); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	return raw, nil
}

// NewConfig loads the config file at configPath, fills the blanks from the network preset and env,
// validates and converts it.
func NewConfig(configPath string, env *DotenvStore) (*Config, error) {
	raw, err := ReadConfigRaw(configPath)
	if err != nil {
		return nil, err
	}
	if err := raw.applyDefaults(env); err != nil {
		return nil, err
	}
	return raw.ToConfig()
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

func (raw *ConfigRaw) applyDefaults(env *DotenvStore) error {
	setDefault(&raw.Network, string(MumbaiEnv))
	if raw.Environment == "" {
		raw.Environment = sdklogging.Development
	}

	network := ChainEnv(raw.Network)
	if preset, ok := Presets[network]; ok {
		setDefault(&raw.EntryPoint, preset.EntryPoint)
		setDefault(&raw.Factory, preset.Factory)
		setDefault(&raw.Token, preset.Token)
		setDefault(&raw.FeeHandler, preset.FeeHandler)
		setDefault(&raw.ERC20Handler, preset.ERC20Handler)
		setDefault(&raw.Bridge, preset.Bridge)
		setDefault(&raw.ResourceID, preset.ResourceID)
		setDefault(&raw.FeeData, preset.FeeData)
		setDefault(&raw.FundAmount, preset.FundAmount)
		setDefault(&raw.TransferAmount, preset.TransferAmount)
		if raw.DomainID == 0 {
			raw.DomainID = preset.DomainID
		}
		if raw.DestinationChainID == 0 {
			raw.DestinationChainID = preset.DestinationChainID
		}
	}
	setDefault(&raw.JournalPath, DefaultJournalPath)

	if env == nil {
		return nil
	}
	prefix := EnvPrefix(network)
	for name, field := range map[string]*string{
		prefix + "RPC_URL":           &raw.EthRpcUrl,
		prefix + "BUNDLER_RPC":       &raw.BundlerUrl,
		prefix + "PAYMASTER_RPC_URL": &raw.PaymasterUrl,
	} {
		if *field != "" {
			continue
		}
		value, found, err := env.Lookup(name)
		if err != nil {
			return err
		}
		if found {
			*field = value
		}
	}
	return nil
}

func parseDuration(name, value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, value)
	}
	return d, nil
}

// ToConfig validates raw and converts it.
func (raw *ConfigRaw) ToConfig() (*Config, error) {
	if err := validate.Struct(raw); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	resourceID, err := sygma.ParseResourceID(raw.ResourceID)
	if err != nil {
		return nil, fmt.Errorf("invalid resource_id: %w", err)
	}

	var feeData []byte
	if raw.FeeData != "" {
		if feeData, err = hexutil.Decode(raw.FeeData); err != nil {
			return nil, fmt.Errorf("invalid fee_data: %w", err)
		}
	}

	timeout, err := parseDuration("confirmation_timeout", raw.ConfirmationTimeout, DefaultConfirmationTimeout)
	if err != nil {
		return nil, err
	}
	validity, err := parseDuration("paymaster_validity", raw.PaymasterValidity, DefaultPaymasterValidity)
	if err != nil {
		return nil, err
	}

	c := &Config{
		Environment:  raw.Environment,
		Network:      ChainEnv(raw.Network),
		EthRpcUrl:    raw.EthRpcUrl,
		BundlerUrl:   raw.BundlerUrl,
		PaymasterUrl: raw.PaymasterUrl,

		PaymasterValidity: validity,

		EntryPoint: common.HexToAddress(raw.EntryPoint),
		Factory:    common.HexToAddress(raw.Factory),
		Salt:       big.NewInt(raw.Salt),

		Token:        common.HexToAddress(raw.Token),
		FeeHandler:   common.HexToAddress(raw.FeeHandler),
		ERC20Handler: common.HexToAddress(raw.ERC20Handler),
		Bridge:       common.HexToAddress(raw.Bridge),

		DomainID:           raw.DomainID,
		ResourceID:         resourceID,
		DestinationChainID: raw.DestinationChainID,
		FeeData:            feeData,

		FundAmount:     raw.FundAmount,
		TransferAmount: raw.TransferAmount,
		SkipFunding:    raw.SkipFunding,

		ConfirmationTimeout: timeout,
		JournalPath:         raw.JournalPath,
		MetricsAddr:         raw.MetricsAddr,
	}
	if raw.PaymasterAddress != "" {
		c.PaymasterAddress = common.HexToAddress(raw.PaymasterAddress)
	}
	if raw.Recipient != "" {
		c.Recipient = common.HexToAddress(raw.Recipient)
	}
	return c, nil
}

// UsesVerifyingPaymaster reports whether sponsorship is signed locally rather than by the paymaster service.
func (c *Config) UsesVerifyingPaymaster() bool {
	return c.PaymasterAddress != (common.Address{})
}
