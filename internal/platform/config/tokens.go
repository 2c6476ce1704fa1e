package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// usdcAddress is the native USDC contract on Base.
const usdcAddress = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"

// TokenInfo identifies a monitored token.
type TokenInfo struct {
	Address string `json:"address"`
	Symbol  string `json:"symbol"`
	Name    string `json:"name"`
}

// fallbackTokens is the built-in Base token list used when no selection
// file is configured.
var fallbackTokens = []TokenInfo{
	{Address: "0x4200000000000000000000000000000000000006", Symbol: "WETH", Name: "Wrapped Ether"},
	{Address: usdcAddress, Symbol: "USDC", Name: "USD Coin"},
	{Address: "0x50c5725949A6F0c72E6C4a641F24049A917DB0Cb", Symbol: "DAI", Name: "Dai Stablecoin"},
	{Address: "0xd9aAEc86B65D86f6A7B5B1b0c42FFA531710b6CA", Symbol: "BSWAP", Name: "BaseSwap Token"},
	{Address: "0x2Ae3F1Ec7F1F5012CFEab0185bfc7aa3cf0DEc22", Symbol: "cbETH", Name: "Coinbase Wrapped Staked ETH"},
}

// LoadTokens returns the tokens to monitor. It reads the configured
// selection file when present, skipping entries with malformed addresses
// and any entry matching the stablecoin. When the file is missing or
// yields nothing usable, the built-in list is returned instead.
func (c *Config) LoadTokens() ([]TokenInfo, error) {
	tokens := c.selectionFileTokens()
	if tokens == nil {
		tokens = fallbackTokens
	}

	filtered := make([]TokenInfo, 0, len(tokens))
	for _, tok := range tokens {
		if !common.IsHexAddress(tok.Address) {
			continue
		}
		if strings.EqualFold(tok.Address, c.Tokens.Stablecoin) {
			continue
		}
		filtered = append(filtered, tok)
	}
	if len(filtered) == 0 {
		return nil, fmt.Errorf("token list is empty after filtering")
	}
	return filtered, nil
}

func (c *Config) selectionFileTokens() []TokenInfo {
	if c.Tokens.SelectionFile == "" {
		return nil
	}
	data, err := os.ReadFile(c.Tokens.SelectionFile)
	if err != nil {
		return nil
	}
	var tokens []TokenInfo
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil
	}
	if len(tokens) == 0 {
		return nil
	}
	return tokens
}
