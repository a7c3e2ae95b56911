package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"stakevault/crypto"
	"stakevault/native/vault"
)

type Config struct {
	RPCAddress  string `toml:"RPCAddress"`
	OpsAddress  string `toml:"OpsAddress"`
	DataDir     string `toml:"DataDir"`
	ServiceName string `toml:"ServiceName"`
	Environment string `toml:"Environment"`

	LogFile       string `toml:"LogFile,omitempty"`
	LogMaxSizeMB  int    `toml:"LogMaxSizeMB,omitempty"`
	LogMaxBackups int    `toml:"LogMaxBackups,omitempty"`
	LogMaxAgeDays int    `toml:"LogMaxAgeDays,omitempty"`

	AdminAddress                   string `toml:"AdminAddress"`
	RewardRatePerTokenPerHeight    string `toml:"RewardRatePerTokenPerHeight"`
	WithdrawalWaitingPeriodSeconds uint64 `toml:"WithdrawalWaitingPeriodSeconds"`
	BlockIntervalSeconds           uint64 `toml:"BlockIntervalSeconds"`
	GenesisUnix                    int64  `toml:"GenesisUnix"`
}

func defaultConfig() *Config {
	return &Config{
		RPCAddress:                     "127.0.0.1:8645",
		OpsAddress:                     "127.0.0.1:9645",
		DataDir:                        "./vault-data",
		ServiceName:                    "vaultd",
		Environment:                    "local",
		RewardRatePerTokenPerHeight:    vault.DefaultRewardRate.String(),
		WithdrawalWaitingPeriodSeconds: vault.DefaultWithdrawalWaitingPeriod,
		BlockIntervalSeconds:           1,
		GenesisUnix:                    0,
	}
}

// Load loads the configuration from the given path, writing a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	def := defaultConfig()
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = def.RPCAddress
	}
	if strings.TrimSpace(cfg.OpsAddress) == "" {
		cfg.OpsAddress = def.OpsAddress
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = def.DataDir
	}
	if strings.TrimSpace(cfg.ServiceName) == "" {
		cfg.ServiceName = def.ServiceName
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = def.Environment
	}
	if strings.TrimSpace(cfg.RewardRatePerTokenPerHeight) == "" {
		cfg.RewardRatePerTokenPerHeight = def.RewardRatePerTokenPerHeight
	}
	if cfg.WithdrawalWaitingPeriodSeconds == 0 {
		cfg.WithdrawalWaitingPeriodSeconds = def.WithdrawalWaitingPeriodSeconds
	}
	if cfg.BlockIntervalSeconds == 0 {
		cfg.BlockIntervalSeconds = def.BlockIntervalSeconds
	}
}

func createDefault(path string) (*Config, error) {
	cfg := defaultConfig()
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RPCAddress) == "" {
		return fmt.Errorf("RPCAddress is required")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("DataDir is required")
	}
	if _, err := c.RewardRate(); err != nil {
		return err
	}
	if c.WithdrawalWaitingPeriodSeconds == 0 {
		return fmt.Errorf("WithdrawalWaitingPeriodSeconds must be positive")
	}
	if admin := strings.TrimSpace(c.AdminAddress); admin != "" {
		if _, err := crypto.DecodeAddress(admin); err != nil {
			return fmt.Errorf("invalid AdminAddress: %w", err)
		}
	}
	return nil
}

// Admin decodes the configured administrator address. The zero address is
// returned when no administrator is configured, which disables the
// parameter-update surface entirely.
func (c *Config) Admin() ([20]byte, error) {
	admin := strings.TrimSpace(c.AdminAddress)
	if admin == "" {
		return [20]byte{}, nil
	}
	addr, err := crypto.DecodeAddress(admin)
	if err != nil {
		return [20]byte{}, err
	}
	return addr.Array(), nil
}

// RewardRate parses the configured accrual rate.
func (c *Config) RewardRate() (*big.Int, error) {
	trimmed := strings.TrimSpace(c.RewardRatePerTokenPerHeight)
	rate, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || rate.Sign() < 0 {
		return nil, fmt.Errorf("invalid RewardRatePerTokenPerHeight %q", c.RewardRatePerTokenPerHeight)
	}
	return rate, nil
}

// BlockInterval returns the height tick interval for the daemon clock.
func (c *Config) BlockInterval() time.Duration {
	return time.Duration(c.BlockIntervalSeconds) * time.Second
}

// Genesis returns the instant height zero started.
func (c *Config) Genesis() time.Time {
	return time.Unix(c.GenesisUnix, 0).UTC()
}
