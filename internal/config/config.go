package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Database drivers accepted by the recorder.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverNone     = "none"
)

// Account is a genesis allocation.
type Account struct {
	Address    string `yaml:"address"`
	BalanceETH uint64 `yaml:"balance_eth"`
}

// Config holds all application configuration.
type Config struct {
	Network string `yaml:"network"`
	RPCURL  string `yaml:"rpc_url"`
	Chain   struct {
		GasPriceWei   string        `yaml:"gas_price_wei"`
		DevBalanceETH uint64        `yaml:"dev_balance_eth"`
		FeedMaxAge    time.Duration `yaml:"feed_max_age"`
		FeedTimeout   time.Duration `yaml:"feed_timeout"`
		Deployer      string        `yaml:"deployer"`
		Accounts      []Account     `yaml:"accounts"`
	} `yaml:"chain"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Schedule struct {
		PriceCheckCron string `yaml:"price_check_cron"`
		ReportCron     string `yaml:"report_cron"`
	} `yaml:"schedule"`
	Ledger struct {
		StateFile string `yaml:"state_file"`
	} `yaml:"ledger"`
	Database struct {
		Driver      string `yaml:"driver"`
		SQLitePath  string `yaml:"sqlite_path"`
		PostgresDSN string `yaml:"postgres_dsn"`
	} `yaml:"database"`
	HTTP struct {
		Addr           string  `yaml:"addr"`
		RateLimitRPS   float64 `yaml:"rate_limit_rps"`
		RateLimitBurst int     `yaml:"rate_limit_burst"`
	} `yaml:"http"`
	LogLevel string `yaml:"log_level"`
	Proxy    string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	overrides := []struct {
		env string
		dst *string
	}{
		{"NETWORK", &cfg.Network},
		{"RPC_URL", &cfg.RPCURL},
		{"TELEGRAM_BOT_TOKEN", &cfg.Telegram.BotToken},
		{"TELEGRAM_CHAT_ID", &cfg.Telegram.ChatID},
		{"DB_DRIVER", &cfg.Database.Driver},
		{"SQLITE_PATH", &cfg.Database.SQLitePath},
		{"POSTGRES_DSN", &cfg.Database.PostgresDSN},
		{"HTTP_ADDR", &cfg.HTTP.Addr},
		{"HTTPS_PROXY", &cfg.Proxy},
		{"GAS_PRICE_WEI", &cfg.Chain.GasPriceWei},
		{"STATE_FILE", &cfg.Ledger.StateFile},
		{"LOG_LEVEL", &cfg.LogLevel},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.dst = v
		}
	}

	// Defaults
	if cfg.Network == "" {
		cfg.Network = "hardhat"
	}
	cfg.Network = strings.ToLower(cfg.Network)
	if cfg.Chain.GasPriceWei == "" {
		cfg.Chain.GasPriceWei = "1000000000"
	}
	if cfg.Chain.DevBalanceETH == 0 {
		cfg.Chain.DevBalanceETH = 10000
	}
	if cfg.Chain.FeedMaxAge == 0 {
		cfg.Chain.FeedMaxAge = 3 * time.Hour
	}
	if cfg.Chain.FeedTimeout == 0 {
		cfg.Chain.FeedTimeout = 5 * time.Second
	}
	if cfg.Chain.Deployer == "" {
		cfg.Chain.Deployer = DevAccounts[0].Hex()
	}
	if cfg.Schedule.PriceCheckCron == "" {
		cfg.Schedule.PriceCheckCron = "0 */10 * * * *"
	}
	if cfg.Schedule.ReportCron == "" {
		cfg.Schedule.ReportCron = "0 0 9 * * *"
	}
	if cfg.Ledger.StateFile == "" {
		cfg.Ledger.StateFile = "data/fundme_state.json"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverSQLite
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "data/fundme.db"
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.HTTP.RateLimitRPS == 0 {
		cfg.HTTP.RateLimitRPS = 5
	}
	if cfg.HTTP.RateLimitBurst == 0 {
		cfg.HTTP.RateLimitBurst = 10
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	return cfg, nil
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if !IsDevChain(c.Network) {
		if _, ok := LookupNetwork(c.Network); !ok {
			return fmt.Errorf("network %q is not supported", c.Network)
		}
		if c.RPCURL == "" {
			return fmt.Errorf("rpc_url is required on %s", c.Network)
		}
	}
	if _, err := c.GasPrice(); err != nil {
		return err
	}
	if !common.IsHexAddress(c.Chain.Deployer) {
		return fmt.Errorf("chain.deployer %q is not an address", c.Chain.Deployer)
	}
	for _, a := range c.Chain.Accounts {
		if !common.IsHexAddress(a.Address) {
			return fmt.Errorf("chain.accounts: %q is not an address", a.Address)
		}
	}
	switch c.Database.Driver {
	case DriverSQLite, DriverNone:
	case DriverPostgres:
		if c.Database.PostgresDSN == "" {
			return fmt.Errorf("database.postgres_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver %q is not supported", c.Database.Driver)
	}
	if c.Telegram.BotToken != "" && c.Telegram.ChatID == "" {
		return fmt.Errorf("telegram.chat_id is required when a bot token is set")
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return nil
}

// GasPrice parses the configured gas price in wei.
func (c *Config) GasPrice() (*uint256.Int, error) {
	price, err := uint256.FromDecimal(c.Chain.GasPriceWei)
	if err != nil {
		return nil, fmt.Errorf("chain.gas_price_wei %q: %w", c.Chain.GasPriceWei, err)
	}
	return price, nil
}

// DeployerAddress returns the account that deploys and owns the ledger.
func (c *Config) DeployerAddress() common.Address {
	return common.HexToAddress(c.Chain.Deployer)
}

// Genesis returns the accounts to seed with their balance in whole ether.
// Development chains always include DevAccounts.
func (c *Config) Genesis() map[common.Address]uint64 {
	out := make(map[common.Address]uint64)
	if IsDevChain(c.Network) {
		for _, a := range DevAccounts {
			out[a] = c.Chain.DevBalanceETH
		}
	}
	for _, a := range c.Chain.Accounts {
		out[common.HexToAddress(a.Address)] = a.BalanceETH
	}
	return out
}

// NotifierEnabled reports whether Telegram credentials are configured.
func (c *Config) NotifierEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}
