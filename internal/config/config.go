// Package config loads and validates shardcached's runtime
// configuration: flags and environment variables via viper, bound to
// a cobra command, validated with go-playground/validator.
package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is shardcached's full runtime configuration.
type Config struct {
	ListenAddr      string `mapstructure:"listen_addr" validate:"required,hostname_port"`
	AdminAddr       string `mapstructure:"admin_addr" validate:"required,hostname_port"`
	NumShards       int    `mapstructure:"num_shards" validate:"min=1,max=1024"`
	ShardQueueDepth int    `mapstructure:"shard_queue_depth" validate:"min=1"`
	HashFunc        string `mapstructure:"hash_func" validate:"oneof=crc32 murmur3"`

	MaxOpsPerRequest int `mapstructure:"max_ops_per_request" validate:"min=0"`
	MaxValueBytes    int `mapstructure:"max_value_bytes" validate:"min=0"`
	MaxResponseBytes int `mapstructure:"max_response_bytes" validate:"min=0"`

	IdleTimeoutSeconds int `mapstructure:"idle_timeout_seconds" validate:"min=0"`
	SweepIntervalMs    int `mapstructure:"sweep_interval_ms" validate:"min=0"`

	LogLevel string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
}

// BindFlags registers every Config field as a pflag on fs with sane
// defaults, so cmd/shardcached's root command can wire it straight
// into cobra.
func BindFlags(fs *pflag.FlagSet) {
	fs.String("listen-addr", "0.0.0.0:11211", "address to serve the memcached text protocol on")
	fs.String("admin-addr", "127.0.0.1:11212", "address to serve /healthz, /metrics, /debug/stats on")
	fs.Int("num-shards", 16, "number of independent shard goroutines")
	fs.Int("shard-queue-depth", 256, "per-shard inbound work queue capacity")
	fs.String("hash-func", "crc32", "key-to-shard hash function: crc32 or murmur3")
	fs.Int("max-ops-per-request", 64, "maximum keys accepted by one get/gets (0 disables the cap)")
	fs.Int("max-value-bytes", 1<<20, "maximum stored value size in bytes (0 selects the 1 MiB default)")
	fs.Int("max-response-bytes", 4<<20, "maximum rendered response size in bytes (0 selects the 4 MiB default)")
	fs.Int("idle-timeout-seconds", 120, "connection idle read timeout (0 disables it)")
	fs.Int("sweep-interval-ms", 1000, "background expired-key sweep interval in milliseconds (0 disables it)")
	fs.String("log-level", "info", "debug, info, warn, or error")
}

// Load binds fs (already parsed by cobra) and SHARDCACHED_*
// environment variables into a validated Config.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("shardcached")
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return nil, errors.Wrap(err, "bind flags")
	}

	cfg := &Config{
		ListenAddr:         v.GetString("listen-addr"),
		AdminAddr:          v.GetString("admin-addr"),
		NumShards:          v.GetInt("num-shards"),
		ShardQueueDepth:    v.GetInt("shard-queue-depth"),
		HashFunc:           v.GetString("hash-func"),
		MaxOpsPerRequest:   v.GetInt("max-ops-per-request"),
		MaxValueBytes:      v.GetInt("max-value-bytes"),
		MaxResponseBytes:   v.GetInt("max-response-bytes"),
		IdleTimeoutSeconds: v.GetInt("idle-timeout-seconds"),
		SweepIntervalMs:    v.GetInt("sweep-interval-ms"),
		LogLevel:           v.GetString("log-level"),
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
