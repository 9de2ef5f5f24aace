package config

import (
	"math/big"
	"strings"
	"time"
)

type ChainEnv string

const (
	MumbaiEnv = ChainEnv("mumbai")
)

// NetworkPreset are the deployed contracts and route of a known test network.
type NetworkPreset struct {
	ChainID *big.Int

	EntryPoint   string
	Factory      string
	Token        string
	FeeHandler   string
	ERC20Handler string
	Bridge       string

	DomainID           uint8
	ResourceID         string
	DestinationChainID uint64
	FeeData            string

	FundAmount     string
	TransferAmount string
}

var (
	SepoliaChainID = uint64(11155111)

	DefaultConfirmationTimeout = 2 * time.Minute
	DefaultPaymasterValidity   = 15 * time.Minute
	DefaultJournalPath         = "./data/journal"

	Presets = map[ChainEnv]NetworkPreset{
		MumbaiEnv: {
			ChainID:      big.NewInt(80001),
			EntryPoint:   "0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789",
			Factory:      "0x1767f4E178d51ED64131a81A70B5dCF59C774c43",
			Token:        "0x75811b960c7acB255f9091bBAC401700E407CDB6",
			FeeHandler:   "0x850c0Dfaf1E8489b6699F7D490f8B5693B226De4",
			ERC20Handler: "0x49780Df8982ADeC1989c50c3d2A7f96037f0E937",
			Bridge:       "0xeAEffbadF776Da90D8e0a94D918E1CB83c12242d",

			// Sepolia
			DomainID:           2,
			ResourceID:         "0x0000000000000000000000000000000000000000000000000000000000000300",
			DestinationChainID: SepoliaChainID,
			FeeData:            "0x64",

			FundAmount:     "1.0",
			TransferAmount: "1",
		},
	}
)

// EnvPrefix is the prefix of the endpoint variables of env, e.g. MUMBAI_RPC_URL.
func EnvPrefix(env ChainEnv) string {
	return strings.ToUpper(string(env)) + "_"
}
