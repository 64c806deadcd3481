package config

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Dataset  DatasetConfig  `mapstructure:"dataset"`
	Coinbase CoinbaseConfig `mapstructure:"coinbase"`
	Binance  BinanceConfig  `mapstructure:"binance"`
	API      APIConfig      `mapstructure:"api"`
	Log      LogConfig      `mapstructure:"log"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// DatasetConfig describes the on-disk dataset and which products it tracks.
type DatasetConfig struct {
	Root     string          `mapstructure:"root"`     // dataset root directory, e.g. "data"
	Products []ProductConfig `mapstructure:"products"` // tracked assets
}

// ProductConfig maps one asset to its identifiers on each exchange.
type ProductConfig struct {
	Asset           string `mapstructure:"asset"`            // directory name, e.g. "btc"
	Symbol          string `mapstructure:"symbol"`           // file prefix, e.g. "BTCUSD"
	CoinbaseProduct string `mapstructure:"coinbase_product"` // e.g. "BTC-USD"
	BinanceSymbol   string `mapstructure:"binance_symbol"`   // e.g. "BTCUSDT"
}

type CoinbaseConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	Workers           int           `mapstructure:"workers"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

type BinanceConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	WSURL             string        `mapstructure:"ws_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	Workers           int           `mapstructure:"workers"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

type APIConfig struct {
	Addr string `mapstructure:"addr"` // listen address, e.g. ":8080"
}

// LogConfig defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"
}

// Load loads application configuration using Viper.
// It reads from config.yaml and overrides with environment variables.
func Load() *Config {
	v := viper.New()

	v.SetConfigName("config") // config.yaml
	v.SetConfigType("yaml")

	// Resolve the config directory both for installed binaries and `go run`.
	ex, _ := os.Executable()
	if strings.Contains(ex, "go-build") {
		pwd, _ := os.Getwd()
		v.AddConfigPath(filepath.Join(pwd, "config"))
		v.AddConfigPath(filepath.Join(pwd, "../../config"))
	} else {
		v.AddConfigPath(filepath.Join(filepath.Dir(ex), "../config"))
		v.AddConfigPath("config")
	}

	// Support environment variables with dot notation (e.g., BINANCE_WS_URL)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Fatalf("failed to read config: %v", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		log.Fatalf("failed to unmarshal config: %v", err)
	}

	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("dataset.root", "data")
	v.SetDefault("coinbase.base_url", "https://api.exchange.coinbase.com")
	v.SetDefault("coinbase.timeout", "15s")
	v.SetDefault("coinbase.workers", 30)
	v.SetDefault("coinbase.requests_per_second", 20.0)
	v.SetDefault("binance.base_url", "https://api.binance.com")
	v.SetDefault("binance.ws_url", "wss://stream.binance.com:9443/ws")
	v.SetDefault("binance.timeout", "15s")
	v.SetDefault("binance.workers", 10)
	v.SetDefault("binance.requests_per_second", 10.0)
	v.SetDefault("api.addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.environment", "dev")
}
