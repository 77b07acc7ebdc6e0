// Package config loads runtime configuration. Precedence, lowest to
// highest: built-in defaults, config.yaml, .env file, environment
// variables, command-line flags.
package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the full runtime configuration.
type Config struct {
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	RPC      RPCConfig      `mapstructure:"rpc"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Click    ClickConfig    `mapstructure:"clickhouse"`
	Log      LogConfig      `mapstructure:"log"`
	API      APIConfig      `mapstructure:"api"`
}

// SnapshotConfig locates the dump to parse and the outputs to produce.
type SnapshotConfig struct {
	SQLitePath string `mapstructure:"sqlite_path"`
	Slot       uint64 `mapstructure:"slot"`
	CSVOutput  string `mapstructure:"csv_output"`
	JSONOutput string `mapstructure:"json_output"`
}

// RPCConfig configures the JSON-RPC endpoint used for block times and live
// account blobs.
type RPCConfig struct {
	Endpoint       string  `mapstructure:"endpoint"`
	RequestTimeout int     `mapstructure:"request_timeout"`
	MaxRetries     int     `mapstructure:"max_retries"`
	RatePerSecond  float64 `mapstructure:"rate_per_second"`
	RateBurst      int     `mapstructure:"rate_burst"`
}

// PostgresConfig configures the holder store. An empty DSN disables
// persistence, leaving only file outputs.
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

// ClickConfig configures the reconciliation history store. An empty DSN
// disables history.
type ClickConfig struct {
	DSN string `mapstructure:"dsn"`
}

// LogConfig controls logger construction.
type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// APIConfig configures the read API server.
type APIConfig struct {
	Listen string `mapstructure:"listen"`
}

// Load reads configuration for one command, binding the given flag set.
// flags may be nil for commands that add none of their own.
func Load(flags *pflag.FlagSet) (*Config, error) {
	godotenv.Load(".env")

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.ReadInConfig() // optional file

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	bindEnvAliases(v)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Viper exposes a configured viper instance for components loading their own
// sections, such as the address registry.
func Viper() *viper.Viper {
	godotenv.Load(".env")

	v := viper.New()
	setDefaults(v)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.ReadInConfig()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("rpc.endpoint", "https://api.mainnet-beta.solana.com")
	v.SetDefault("rpc.request_timeout", 30)
	v.SetDefault("rpc.max_retries", 3)
	v.SetDefault("rpc.rate_per_second", 10.0)
	v.SetDefault("rpc.rate_burst", 20)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", true)
	v.SetDefault("api.listen", ":8080")
}

func bindEnvAliases(v *viper.Viper) {
	v.BindEnv("snapshot.sqlite_path", "SNAPSHOT_SQLITE_PATH")
	v.BindEnv("snapshot.slot", "SNAPSHOT_SLOT")
	v.BindEnv("rpc.endpoint", "RPC_URL")
	v.BindEnv("postgres.dsn", "POSTGRES_DSN")
	v.BindEnv("clickhouse.dsn", "CLICKHOUSE_DSN")
	v.BindEnv("log.level", "LOG_LEVEL")
	v.BindEnv("api.listen", "API_LISTEN")
}
