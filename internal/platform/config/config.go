// Package config loads and validates the monitor's configuration from a
// YAML file, environment variables, and an optional .env file for secrets.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the arbitrage monitor.
type Config struct {
	Ethereum      EthereumConfig      `mapstructure:"ethereum"`
	DEXes         []DEXConfig         `mapstructure:"dexes"`
	Tokens        TokensConfig        `mapstructure:"tokens"`
	Arbitrage     ArbitrageConfig     `mapstructure:"arbitrage"`
	Execution     ExecutionConfig     `mapstructure:"execution"`
	Gas           GasConfig           `mapstructure:"gas"`
	Redis         RedisConfig         `mapstructure:"redis"`
	AWS           AWSConfig           `mapstructure:"aws"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	HTTP          HTTPConfig          `mapstructure:"http"`
}

// EthereumConfig holds RPC connection settings.
type EthereumConfig struct {
	RPCEndpoints []RPCEndpoint `mapstructure:"rpc_endpoints"`
	ChainID      int64         `mapstructure:"chain_id"`
}

// RPCEndpoint is a single JSON-RPC endpoint with a selection weight.
type RPCEndpoint struct {
	URL    string `mapstructure:"url"`
	Weight int    `mapstructure:"weight"`
}

// DEXConfig describes one Uniswap V2 style exchange. Order in the config
// file is significant: ties between equally priced venues resolve to the
// earlier entry.
type DEXConfig struct {
	ID      string `mapstructure:"id"`
	Name    string `mapstructure:"name"`
	Router  string `mapstructure:"router"`
	Factory string `mapstructure:"factory"`
}

// TokensConfig controls which tokens are monitored.
type TokensConfig struct {
	// SelectionFile is an optional JSON file listing tokens to monitor.
	// When empty or unreadable, a built-in Base token list is used.
	SelectionFile string `mapstructure:"selection_file"`
	// Stablecoin is the quote token all prices are expressed in.
	Stablecoin string `mapstructure:"stablecoin"`
	// StablecoinDecimals is used to scale USD amounts on chain.
	StablecoinDecimals int `mapstructure:"stablecoin_decimals"`
}

// ArbitrageConfig holds detection thresholds.
type ArbitrageConfig struct {
	MinSpreadPercent   float64       `mapstructure:"min_spread_percent"`
	MaxSpreadPercent   float64       `mapstructure:"max_spread_percent"`
	MinProfitUSD       float64       `mapstructure:"min_profit_usd"`
	FlashLoanAmountUSD float64       `mapstructure:"flash_loan_amount_usd"`
	PriceMaxAge        time.Duration `mapstructure:"price_max_age"` // 0 disables staleness checks
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	MaxBackoff         time.Duration `mapstructure:"max_backoff"`
	QuoteConcurrency   int64         `mapstructure:"quote_concurrency"`
}

// ExecutionConfig holds on-chain execution settings. The private key and
// executor contract address come from the environment, never the file.
type ExecutionConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	ProfitMargin   float64       `mapstructure:"profit_margin"`
	GasLimit       uint64        `mapstructure:"gas_limit"`
	ReceiptTimeout time.Duration `mapstructure:"receipt_timeout"`
	Cooldown       time.Duration `mapstructure:"cooldown"`

	PrivateKey      string `mapstructure:"-"`
	ContractAddress string `mapstructure:"-"`
}

// GasConfig holds gas cost estimation settings.
type GasConfig struct {
	EstimateGasUnits uint64        `mapstructure:"estimate_gas_units"`
	FallbackCostUSD  float64       `mapstructure:"fallback_cost_usd"`
	PriceFeedURL     string        `mapstructure:"price_feed_url"`
	PriceFeedTimeout time.Duration `mapstructure:"price_feed_timeout"`
	PriceTTL         time.Duration `mapstructure:"price_ttl"`
	FeedRateLimitRPM int           `mapstructure:"feed_rate_limit_rpm"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AWSConfig holds AWS settings for trade notifications.
type AWSConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	Region      string `mapstructure:"region"`
	SNSTopicARN string `mapstructure:"sns_topic_arn"`
}

// CacheConfig holds cache sizing.
type CacheConfig struct {
	L1MaxSize int           `mapstructure:"l1_max_size"`
	L2TTL     time.Duration `mapstructure:"l2_ttl"`
}

// ObservabilityConfig groups logging, metrics, and tracing settings.
type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

// MetricsConfig holds metrics settings.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// TracingConfig holds tracing settings.
type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// Load reads configuration from the given file (or ./config.yaml),
// environment variables, and an optional .env file for secrets.
func Load(configPath string) (*Config, error) {
	// Secrets live in .env during local development. Missing file is fine.
	_ = godotenv.Load()

	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	cfg.Execution.PrivateKey = os.Getenv("PRIVATE_KEY")
	cfg.Execution.ContractAddress = os.Getenv("CONTRACT_ADDRESS")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("loading config: %v", err))
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ethereum.chain_id", 8453) // Base

	v.SetDefault("dexes", defaultDEXes())

	v.SetDefault("tokens.stablecoin", usdcAddress)
	v.SetDefault("tokens.stablecoin_decimals", 6)

	v.SetDefault("arbitrage.min_spread_percent", 0.8)
	v.SetDefault("arbitrage.max_spread_percent", 50.0)
	v.SetDefault("arbitrage.min_profit_usd", 10.0)
	v.SetDefault("arbitrage.flash_loan_amount_usd", 5000.0)
	v.SetDefault("arbitrage.price_max_age", "5m")
	v.SetDefault("arbitrage.poll_interval", "2s")
	v.SetDefault("arbitrage.max_backoff", "60s")
	v.SetDefault("arbitrage.quote_concurrency", 8)

	v.SetDefault("execution.enabled", false)
	v.SetDefault("execution.profit_margin", 0.90)
	v.SetDefault("execution.gas_limit", 800000)
	v.SetDefault("execution.receipt_timeout", "300s")
	v.SetDefault("execution.cooldown", "60s")

	v.SetDefault("gas.estimate_gas_units", 600000)
	v.SetDefault("gas.fallback_cost_usd", 10.0)
	v.SetDefault("gas.price_feed_url", "https://api.coingecko.com/api/v3/simple/price?ids=ethereum&vs_currencies=usd")
	v.SetDefault("gas.price_feed_timeout", "5s")
	v.SetDefault("gas.price_ttl", "60s")
	v.SetDefault("gas.feed_rate_limit_rpm", 30)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("aws.enabled", false)
	v.SetDefault("aws.region", "us-east-1")

	v.SetDefault("cache.l1_max_size", 1000)
	v.SetDefault("cache.l2_ttl", "60s")

	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.endpoint", "localhost:4317")

	v.SetDefault("http.port", 8080)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port int `mapstructure:"port"`
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if len(c.Ethereum.RPCEndpoints) == 0 {
		return fmt.Errorf("at least one RPC endpoint is required")
	}
	for _, ep := range c.Ethereum.RPCEndpoints {
		if ep.URL == "" {
			return fmt.Errorf("RPC endpoint URL must not be empty")
		}
	}

	if len(c.DEXes) < 2 {
		return fmt.Errorf("at least two DEXes are required, got %d", len(c.DEXes))
	}
	seen := make(map[string]bool, len(c.DEXes))
	for _, dex := range c.DEXes {
		if dex.ID == "" {
			return fmt.Errorf("dex id must not be empty")
		}
		if seen[dex.ID] {
			return fmt.Errorf("duplicate dex id %q", dex.ID)
		}
		seen[dex.ID] = true
		if !common.IsHexAddress(dex.Router) {
			return fmt.Errorf("dex %s: invalid router address %q", dex.ID, dex.Router)
		}
		if !common.IsHexAddress(dex.Factory) {
			return fmt.Errorf("dex %s: invalid factory address %q", dex.ID, dex.Factory)
		}
	}

	if !common.IsHexAddress(c.Tokens.Stablecoin) {
		return fmt.Errorf("invalid stablecoin address %q", c.Tokens.Stablecoin)
	}
	if c.Tokens.StablecoinDecimals <= 0 || c.Tokens.StablecoinDecimals > 18 {
		return fmt.Errorf("stablecoin decimals must be in 1..18, got %d", c.Tokens.StablecoinDecimals)
	}

	if c.Arbitrage.MinSpreadPercent < 0 {
		return fmt.Errorf("min spread percent must be >= 0")
	}
	if c.Arbitrage.MaxSpreadPercent <= c.Arbitrage.MinSpreadPercent {
		return fmt.Errorf("max spread percent must exceed min spread percent")
	}
	if c.Arbitrage.MinProfitUSD < 0 {
		return fmt.Errorf("min profit must be >= 0")
	}
	if c.Arbitrage.FlashLoanAmountUSD <= 0 {
		return fmt.Errorf("flash loan amount must be > 0")
	}
	if c.Arbitrage.PriceMaxAge < 0 {
		return fmt.Errorf("price max age must be >= 0")
	}
	if c.Arbitrage.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be > 0")
	}
	if c.Arbitrage.QuoteConcurrency <= 0 {
		return fmt.Errorf("quote concurrency must be > 0")
	}

	if c.Execution.ProfitMargin <= 0 || c.Execution.ProfitMargin > 1 {
		return fmt.Errorf("profit margin must be in (0, 1], got %v", c.Execution.ProfitMargin)
	}
	if c.Execution.Enabled {
		if c.Execution.PrivateKey == "" {
			return fmt.Errorf("PRIVATE_KEY is required when execution is enabled")
		}
		if !common.IsHexAddress(c.Execution.ContractAddress) {
			return fmt.Errorf("CONTRACT_ADDRESS is required when execution is enabled")
		}
		if c.Execution.GasLimit == 0 {
			return fmt.Errorf("execution gas limit must be > 0")
		}
	}

	if c.Gas.EstimateGasUnits == 0 {
		return fmt.Errorf("gas estimate units must be > 0")
	}
	if c.Gas.PriceFeedURL == "" {
		return fmt.Errorf("gas price feed URL is required")
	}

	if c.Redis.Enabled && c.Redis.Address == "" {
		return fmt.Errorf("redis address is required when redis is enabled")
	}
	if c.AWS.Enabled {
		if c.AWS.Region == "" {
			return fmt.Errorf("AWS region is required when notifications are enabled")
		}
		if c.AWS.SNSTopicARN == "" {
			return fmt.Errorf("SNS topic ARN is required when notifications are enabled")
		}
	}

	switch c.Observability.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Observability.Logging.Level)
	}
	switch c.Observability.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s", c.Observability.Logging.Format)
	}

	return nil
}

// DEXByID returns the DEX config with the given ID.
func (c *Config) DEXByID(id string) (DEXConfig, bool) {
	for _, dex := range c.DEXes {
		if dex.ID == id {
			return dex, true
		}
	}
	return DEXConfig{}, false
}

func defaultDEXes() []map[string]any {
	return []map[string]any{
		{
			"id":      "uniswap_v2",
			"name":    "Uniswap V2 (Base)",
			"router":  "0x4752ba5dbc23f44d87826276bf6fd6b1c372ad24",
			"factory": "0x8909dc15e40173ff4699343b6eb8132c65e18ec6",
		},
		{
			"id":      "pancake",
			"name":    "PancakeSwap (Base)",
			"router":  "0x8cFe327CEc66d1C090Dd72bd0FF11d690C33a2Eb",
			"factory": "0x02a84c1b3BBD7401a5f7fa98a384EBC70bB5749E",
		},
		{
			"id":      "baseswap",
			"name":    "BaseSwap",
			"router":  "0x327Df1E6de05895d2ab08513aaDD9313Fe505d86",
			"factory": "0xFDa619b6d20975be80A10332cD39b9a4b0FAa8BB",
		},
		{
			"id":      "sushiswap_v2",
			"name":    "SushiSwap V2 (Base)",
			"router":  "0x6BDED42c6DA8FBf0d2bA55B2fa120C5e0c8D7891",
			"factory": "0x71524B4f93c58fcbF659783284E38825f0622859",
		},
	}
}
