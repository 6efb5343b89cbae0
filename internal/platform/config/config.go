package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix namespaces the environment variables read by Load.
const EnvPrefix = "ILSGATE_"

// Config captures process level settings for the converter. A note hook
// that fails HookFailureThreshold times in a row is skipped for HookCooldown.
type Config struct {
	PolicyFile           string        `koanf:"policy_file"`
	OutputDir            string        `koanf:"output_dir"`
	Overwrite            bool          `koanf:"overwrite"`
	Workers              int           `koanf:"workers"                validate:"gte=1"`
	HookTimeout          time.Duration `koanf:"hook_timeout"           validate:"gt=0"`
	HookFailureThreshold int           `koanf:"hook_failure_threshold" validate:"gte=1"`
	HookCooldown         time.Duration `koanf:"hook_cooldown"          validate:"gt=0"`
	LogLevel             string        `koanf:"log_level"              validate:"oneof=debug info warn error"`
	LogFormat            string        `koanf:"log_format"             validate:"oneof=text json"`
	MetricsFile          string        `koanf:"metrics_file"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Overwrite:            true,
		Workers:              4,
		HookTimeout:          2 * time.Second,
		HookFailureThreshold: 5,
		HookCooldown:         30 * time.Second,
		LogLevel:             "info",
		LogFormat:            "text",
	}
}

// Load layers defaults, ILSGATE_* environment variables and explicit
// overrides (usually changed CLI flags), in that order.
func Load(overrides map[string]any) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, value string) (string, any) {
			return strings.ToLower(strings.TrimPrefix(key, EnvPrefix)), value
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if len(overrides) > 0 {
		if err := k.Load(rawMap(overrides), nil); err != nil {
			return nil, fmt.Errorf("failed to load overrides: %w", err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &cfg,
			TagName:          "koanf",
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			),
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// rawMap adapts a plain map to koanf.Provider.
type rawMap map[string]any

func (m rawMap) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("rawMap provider does not support ReadBytes")
}

func (m rawMap) Read() (map[string]any, error) {
	return m, nil
}
