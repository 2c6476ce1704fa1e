package ethereum

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Minimal ABI fragments for the Uniswap V2 style contracts the monitor
// talks to, plus the flash loan executor contract.
const (
	routerABIJSON = `[{"name":"getAmountsOut","type":"function","stateMutability":"view","inputs":[{"name":"amountIn","type":"uint256"},{"name":"path","type":"address[]"}],"outputs":[{"name":"amounts","type":"uint256[]"}]}]`

	factoryABIJSON = `[{"name":"getPair","type":"function","stateMutability":"view","inputs":[{"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"}],"outputs":[{"name":"pair","type":"address"}]}]`

	pairABIJSON = `[{"name":"token0","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},{"name":"token1","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},{"name":"Swap","type":"event","anonymous":false,"inputs":[{"name":"sender","type":"address","indexed":true},{"name":"amount0In","type":"uint256","indexed":false},{"name":"amount1In","type":"uint256","indexed":false},{"name":"amount0Out","type":"uint256","indexed":false},{"name":"amount1Out","type":"uint256","indexed":false},{"name":"to","type":"address","indexed":true}]}]`

	erc20ABIJSON = `[{"name":"decimals","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},{"name":"symbol","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]}]`

	executorABIJSON = `[{"name":"executeArbitrage","type":"function","stateMutability":"nonpayable","inputs":[{"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"},{"name":"flashLoanAmount","type":"uint256"},{"name":"dexLowPrice","type":"address"},{"name":"dexHighPrice","type":"address"},{"name":"user","type":"address"},{"name":"minProfit","type":"uint256"}],"outputs":[]}]`
)

// Parsed ABIs, shared by the quote client, pair locator, watcher, and
// trade executor.
var (
	RouterABI   = mustABI(routerABIJSON)
	FactoryABI  = mustABI(factoryABIJSON)
	PairABI     = mustABI(pairABIJSON)
	ERC20ABI    = mustABI(erc20ABIJSON)
	ExecutorABI = mustABI(executorABIJSON)

	// SwapEventTopic is the topic0 of the Uniswap V2 Swap event.
	SwapEventTopic = PairABI.Events["Swap"].ID
)

// ZeroAddress is returned by factory.getPair when no pool exists.
var ZeroAddress = common.Address{}

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("parsing contract ABI: %v", err))
	}
	return parsed
}
