package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix marks farmgate environment variables.
const EnvPrefix = "FARMGATE_"

// legacyEnv are unprefixed variables honoured when the key is unset.
var legacyEnv = map[string]string{
	"farmer_phone": "FARMER_PHONE",
	"twilio_sid":   "TWILIO_SID",
	"twilio_auth":  "TWILIO_AUTH",
	"twilio_from":  "TWILIO_FROM",
}

// ResolvePath returns path, or $FARMGATE_CONFIG when path is empty.
func ResolvePath(path string) string {
	if path == "" {
		return os.Getenv(EnvPrefix + "CONFIG")
	}
	return path
}

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) at path, or FARMGATE_CONFIG when path is empty
//  3. env (prefix FARMGATE_)
func Load(path string) (*Config, error) {
	base := New()

	k := koanf.New(".")

	path = ResolvePath(path)
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLoadConfig, path, err)
		}
	}

	// FARMGATE_MIN_AREA -> min_area. Underscores are kept to match the
	// flat koanf tags.
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, strings.ToLower(EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %v", ErrLoadConfig, err)
	}

	cfg := *base
	if err := decode(k, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	applyLegacyEnv(&cfg, k)

	if problems := cfg.Validate(); len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return &cfg, nil
}

func applyLegacyEnv(cfg *Config, k *koanf.Koanf) {
	for key, name := range legacyEnv {
		if k.Exists(key) {
			continue
		}
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		switch key {
		case "farmer_phone":
			cfg.FarmerPhone = v
		case "twilio_sid":
			cfg.TwilioSID = v
		case "twilio_auth":
			cfg.TwilioAuth = v
		case "twilio_from":
			cfg.TwilioFrom = v
		}
	}
}

// decode unmarshals k into cfg. Durations accept Go syntax ("3s") or a
// bare number of seconds.
func decode(k *koanf.Koanf, cfg *Config) error {
	return k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				secondsHook,
				mapstructure.StringToTimeDurationHookFunc(),
			),
			Result:           cfg,
			WeaklyTypedInput: true,
		},
	})
}

var durationType = reflect.TypeOf(time.Duration(0))

func secondsHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != durationType {
		return data, nil
	}
	switch v := data.(type) {
	case int:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return time.Duration(f * float64(time.Second)), nil
		}
	}
	return data, nil
}
