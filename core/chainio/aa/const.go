package aa

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// EntryPoint v0.6, same address on every network
	DefaultEntrypointAddress = common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789")

	// SimpleAccountFactory the bridge account was deployed with
	DefaultFactoryAddress = common.HexToAddress("0x1767f4E178d51ED64131a81A70B5dCF59C774c43")

	DefaultSalt = big.NewInt(0)
)
