package app

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/pvzzle/txconfirm/internal/confirm"
)

type Config struct {
	TelegramToken string `env:"TELEGRAM_TOKEN,required"`
	PostgresURL   string `env:"POSTGRES_URL,required"`

	// CHAIN_RPC_URLS=1=wss://mainnet...,137=https://polygon...
	ChainRPCURLs   map[string]string `env:"CHAIN_RPC_URLS,required" envSeparator:"," envKeyValSeparator:"="`
	DefaultChainID uint64            `env:"DEFAULT_CHAIN_ID"`

	InitialDelay     time.Duration `env:"CONFIRM_INITIAL_DELAY"`
	RetryDelay       time.Duration `env:"CONFIRM_RETRY_DELAY"`
	MaxAttempts      int           `env:"CONFIRM_MAX_ATTEMPTS"`
	Timeout          time.Duration `env:"CONFIRM_TIMEOUT"`
	MinConfirmations uint64        `env:"CONFIRM_MIN_CONFIRMATIONS"`
	MaxQueryErrors   int           `env:"CONFIRM_MAX_QUERY_ERRORS"`

	NotifyBuffer int `env:"NOTIFY_BUFFER"`
}

func LoadConfig() (Config, error) {
	err := godotenv.Load()
	if err != nil {
		fmt.Println("Warning: .env file not found, relying on environment variables")
	}

	config := Config{
		DefaultChainID:   1,
		InitialDelay:     10 * time.Second,
		RetryDelay:       2 * time.Second,
		MaxAttempts:      900,
		Timeout:          30 * time.Minute,
		MinConfirmations: 1,
		MaxQueryErrors:   5,
		NotifyBuffer:     4096,
	}

	if err := env.Parse(&config); err != nil {
		return Config{}, err
	}

	if _, err := config.ChainURLs(); err != nil {
		return Config{}, err
	}

	return config, nil
}

// ChainURLs переводит ключи CHAIN_RPC_URLS в chain id.
func (c Config) ChainURLs() (map[uint64]string, error) {
	out := make(map[uint64]string, len(c.ChainRPCURLs))
	for k, url := range c.ChainRPCURLs {
		id, err := strconv.ParseUint(strings.TrimSpace(k), 10, 64)
		if err != nil || id == 0 {
			return nil, fmt.Errorf("CHAIN_RPC_URLS: invalid chain id %q", k)
		}
		if strings.TrimSpace(url) == "" {
			return nil, fmt.Errorf("CHAIN_RPC_URLS: empty url for chain %d", id)
		}
		out[id] = strings.TrimSpace(url)
	}
	return out, nil
}

func (c Config) Poller() confirm.Config {
	return confirm.Config{
		InitialDelay:     c.InitialDelay,
		RetryDelay:       c.RetryDelay,
		MaxAttempts:      c.MaxAttempts,
		Timeout:          c.Timeout,
		MinConfirmations: c.MinConfirmations,
		MaxQueryErrors:   c.MaxQueryErrors,
	}
}
