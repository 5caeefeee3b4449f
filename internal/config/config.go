package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Contract ContractConfig `mapstructure:"contract"`
	Chain    ChainConfig    `mapstructure:"chain"`
	Store    StoreConfig    `mapstructure:"store"`
	Signers  SignersConfig  `mapstructure:"signers"`
	Alerts   AlertsConfig   `mapstructure:"alerts"`
}

type ContractConfig struct {
	ID         string `mapstructure:"id"`
	PropertyID string `mapstructure:"property_id"`
}

type ChainConfig struct {
	RPCURL          string        `mapstructure:"rpc_url"`
	NetworkName     string        `mapstructure:"network_name"`
	ChainID         string        `mapstructure:"chain_id"`
	ConfirmTimeout  time.Duration `mapstructure:"confirm_timeout"`
	ConfirmInterval time.Duration `mapstructure:"confirm_interval"`
	VerifyAttempts  int           `mapstructure:"verify_attempts"`
	VerifyDelay     time.Duration `mapstructure:"verify_delay"`
}

type StoreConfig struct {
	Backend string `mapstructure:"backend"` // bolt or postgres
	DataDir string `mapstructure:"data_dir"`
	DSN     string `mapstructure:"dsn"`
}

type SignerConfig struct {
	Address    string `mapstructure:"address"`
	Passphrase string `mapstructure:"passphrase"`
}

type SignersConfig struct {
	Contract SignerConfig `mapstructure:"contract"`
	Payments SignerConfig `mapstructure:"payments"`
}

type AlertsConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	SlackWebhook string `mapstructure:"slack_webhook"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if expanded := os.ExpandEnv(val); expanded != val {
			v.Set(key, expanded)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Contract.ID == "" {
		return fmt.Errorf("contract.id is required")
	}
	if c.Contract.PropertyID == "" {
		return fmt.Errorf("contract.property_id is required")
	}
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("chain.rpc_url is required")
	}
	if c.Chain.ChainID == "" {
		return fmt.Errorf("chain.chain_id is required")
	}

	if c.Chain.NetworkName == "" {
		c.Chain.NetworkName = "unknown"
	}
	if c.Chain.ConfirmTimeout == 0 {
		c.Chain.ConfirmTimeout = 90 * time.Second
	}
	if c.Chain.ConfirmInterval == 0 {
		c.Chain.ConfirmInterval = 2 * time.Second
	}
	if c.Chain.VerifyAttempts == 0 {
		c.Chain.VerifyAttempts = 5
	}
	if c.Chain.VerifyDelay == 0 {
		c.Chain.VerifyDelay = 2 * time.Second
	}

	if c.Store.Backend == "" {
		c.Store.Backend = "bolt"
	}
	switch c.Store.Backend {
	case "bolt":
		if c.Store.DataDir == "" {
			return fmt.Errorf("store.data_dir is required for the bolt backend")
		}
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("invalid store backend: %s (valid options: bolt, postgres)", c.Store.Backend)
	}

	return nil
}
