// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config carries everything the binaries need. A .env file in the working
// directory is loaded first when present; real environment variables win.
type Config struct {
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`

	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	PostgresDSN   string `env:"POSTGRES_DSN,required"`
	ClickhouseDSN string `env:"CLICKHOUSE_DSN"` // optional analytics mirror

	SolanaRPCURL string `env:"SOLANA_RPC_URL,required"`
	SolanaWSURL  string `env:"SOLANA_WS_URL"`

	PlatformWallet string `env:"PLATFORM_WALLET,required"`
	TreasuryWallet string `env:"TREASURY_WALLET,required"`
	EscrowWallet   string `env:"ESCROW_WALLET,required"`

	SweepInterval       time.Duration `env:"SWEEP_INTERVAL" envDefault:"15s"`
	OfferExpireInterval time.Duration `env:"OFFER_EXPIRE_INTERVAL" envDefault:"1m"`
	RefundInterval      time.Duration `env:"REFUND_INTERVAL" envDefault:"30s"`
	CollectInterval     time.Duration `env:"COLLECT_INTERVAL" envDefault:"5m"`
	ReconcileInterval   time.Duration `env:"RECONCILE_INTERVAL" envDefault:"2m"`

	NotifyBufferSize int `env:"NOTIFY_BUFFER_SIZE" envDefault:"64"`
}

// Load reads .env (if any) and parses the environment.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}
