// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/gateway-fm/poolkit/internal/amm"
)

// Config holds values merged from flags, environment, and config file.
type Config struct {
	RPCURL       string
	PrivateKey   string
	ChainID      int64 // 0 = query eth_chainId
	GasPrice     int64 // wei, 0 = query eth_gasPrice
	LegacyTx     bool
	Slippage     string
	Deadline     time.Duration
	ArtifactsDir string
	DatabasePath string
	LogLevel     string
}

// Defaults
const (
	DefaultRPCURL       = "http://localhost:8545"
	DefaultSlippage     = "1/1000"
	DefaultDeadline     = time.Minute
	DefaultArtifactsDir = "./artifacts"
	DefaultDatabasePath = "./data/poolkit.db"
	DefaultLogLevel     = "info"
)

// Load merges config file, POOLKIT_* environment variables, and flags.
// Flags take precedence over environment, which takes precedence over the
// config file.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("POOLKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("rpc", DefaultRPCURL)
	v.SetDefault("slippage", DefaultSlippage)
	v.SetDefault("deadline", DefaultDeadline)
	v.SetDefault("artifacts", DefaultArtifactsDir)
	v.SetDefault("db", DefaultDatabasePath)
	v.SetDefault("log-level", DefaultLogLevel)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("poolkit")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:       v.GetString("rpc"),
		PrivateKey:   v.GetString("private-key"),
		ChainID:      v.GetInt64("chain-id"),
		GasPrice:     v.GetInt64("gas-price"),
		LegacyTx:     v.GetBool("legacy-tx"),
		Slippage:     v.GetString("slippage"),
		Deadline:     v.GetDuration("deadline"),
		ArtifactsDir: v.GetString("artifacts"),
		DatabasePath: v.GetString("db"),
		LogLevel:     v.GetString("log-level"),
	}

	return cfg, nil
}

// Validate checks the configuration for values every command needs.
func (c Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("RPC URL is required")
	}
	if c.PrivateKey == "" {
		return fmt.Errorf("private key is required (flag --private-key or POOLKIT_PRIVATE_KEY)")
	}
	if c.ChainID < 0 {
		return fmt.Errorf("chain ID cannot be negative")
	}
	if c.GasPrice < 0 {
		return fmt.Errorf("gas price cannot be negative")
	}
	if _, err := c.SlippageFraction(); err != nil {
		return err
	}
	if c.Deadline <= 0 {
		return fmt.Errorf("deadline must be positive")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database path is required")
	}
	return nil
}

// SlippageFraction parses the configured slippage tolerance.
func (c Config) SlippageFraction() (amm.Fraction, error) {
	f, err := amm.ParseFraction(c.Slippage)
	if err != nil {
		return amm.Fraction{}, fmt.Errorf("invalid slippage %q: %w", c.Slippage, err)
	}
	return f, nil
}
