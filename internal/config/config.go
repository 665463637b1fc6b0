package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Chain is one supported EVM network.
type Chain struct {
	ChainID uint64 `yaml:"chainId"`
	Name    string `yaml:"name"`
	RPCURL  string `yaml:"rpcUrl"`
}

type AppConfig struct {
	Port int

	PrivyAppID           string
	PrivyAppSecret       string
	PrivyVerificationKey string

	Mnemonic string

	Chains []Chain

	EscrowAddress string
	EscrowChainID uint64

	RedisURL    string
	DatabaseURL string

	PollInterval      time.Duration
	BackfillFromBlock uint64
	RPCTimeout        time.Duration
}

const (
	defaultPort         = 8080
	defaultPollInterval = 2 * time.Second
	defaultRPCTimeout   = 30 * time.Second

	sepoliaChainID     = 11155111
	baseSepoliaChainID = 84532
)

// Load reads configuration from the environment. A CHAINS_FILE yaml may
// extend the built-in chain list with additional chainId -> rpcUrl entries.
func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		Port:         defaultPort,
		PollInterval: defaultPollInterval,
		RPCTimeout:   defaultRPCTimeout,
	}

	if v := strings.TrimSpace(os.Getenv("APP_PORT")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 65535 {
			return nil, fmt.Errorf("invalid APP_PORT %q", v)
		}
		cfg.Port = n
	}

	cfg.PrivyAppID = strings.TrimSpace(os.Getenv("PRIVY_APP_ID"))
	cfg.PrivyAppSecret = strings.TrimSpace(os.Getenv("PRIVY_APP_SECRET"))
	cfg.PrivyVerificationKey = strings.TrimSpace(os.Getenv("PRIVY_VERIFICATION_KEY"))
	cfg.Mnemonic = strings.TrimSpace(os.Getenv("MNEMONIC"))

	if v := strings.TrimSpace(os.Getenv("SEPOLIA_RPC_URL")); v != "" {
		cfg.Chains = append(cfg.Chains, Chain{ChainID: sepoliaChainID, Name: "sepolia", RPCURL: v})
	}
	if v := strings.TrimSpace(os.Getenv("BASE_SEPOLIA_RPC_URL")); v != "" {
		cfg.Chains = append(cfg.Chains, Chain{ChainID: baseSepoliaChainID, Name: "base-sepolia", RPCURL: v})
	}
	if path := strings.TrimSpace(os.Getenv("CHAINS_FILE")); path != "" {
		extra, err := loadChainsFile(path)
		if err != nil {
			return nil, err
		}
		for _, c := range extra {
			if cfg.chain(c.ChainID) == nil {
				cfg.Chains = append(cfg.Chains, c)
			}
		}
	}

	cfg.EscrowAddress = strings.TrimSpace(os.Getenv("ESCROW_ADDRESS"))
	if v := strings.TrimSpace(os.Getenv("ESCROW_CHAIN_ID")); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ESCROW_CHAIN_ID %q", v)
		}
		cfg.EscrowChainID = n
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	if v := strings.TrimSpace(os.Getenv("POLL_INTERVAL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid POLL_INTERVAL %q", v)
		}
		cfg.PollInterval = d
	}
	if v := strings.TrimSpace(os.Getenv("POLLER_BACKFILL_FROM_BLOCK")); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid POLLER_BACKFILL_FROM_BLOCK %q", v)
		}
		cfg.BackfillFromBlock = n
	}
	if v := strings.TrimSpace(os.Getenv("RPC_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid RPC_TIMEOUT %q", v)
		}
		cfg.RPCTimeout = d
	}

	if cfg.PrivyAppID == "" {
		return nil, errors.New("PRIVY_APP_ID is required")
	}
	if cfg.PrivyAppSecret == "" {
		return nil, errors.New("PRIVY_APP_SECRET is required")
	}
	if cfg.PrivyVerificationKey == "" {
		return nil, errors.New("PRIVY_VERIFICATION_KEY is required")
	}
	if cfg.Mnemonic == "" {
		return nil, errors.New("MNEMONIC is required")
	}
	if len(cfg.Chains) == 0 {
		return nil, errors.New("no RPC endpoints configured (SEPOLIA_RPC_URL, BASE_SEPOLIA_RPC_URL or CHAINS_FILE)")
	}
	if cfg.EscrowAddress == "" {
		return nil, errors.New("ESCROW_ADDRESS is required")
	}
	if cfg.EscrowChainID == 0 {
		return nil, errors.New("ESCROW_CHAIN_ID is required")
	}
	if cfg.chain(cfg.EscrowChainID) == nil {
		return nil, fmt.Errorf("ESCROW_CHAIN_ID %d has no configured RPC endpoint", cfg.EscrowChainID)
	}

	return cfg, nil
}

// RPCURLs returns the chainId -> rpcUrl map consumed by the chain client.
func (c *AppConfig) RPCURLs() map[uint64]string {
	m := make(map[uint64]string, len(c.Chains))
	for _, ch := range c.Chains {
		m[ch.ChainID] = ch.RPCURL
	}
	return m
}

func (c *AppConfig) chain(id uint64) *Chain {
	for i := range c.Chains {
		if c.Chains[i].ChainID == id {
			return &c.Chains[i]
		}
	}
	return nil
}

type chainsFile struct {
	Chains []Chain `yaml:"chains"`
}

func loadChainsFile(path string) ([]Chain, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read chains file: %w", err)
	}
	var f chainsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse chains file: %w", err)
	}
	for _, c := range f.Chains {
		if c.ChainID == 0 || strings.TrimSpace(c.RPCURL) == "" {
			return nil, fmt.Errorf("chains file: entry %q missing chainId or rpcUrl", c.Name)
		}
	}
	return f.Chains, nil
}
