package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// GatewayConfig is one gateway's credential bundle. Settings carries the
// provider-specific keys and is validated by the adapter factory.
type GatewayConfig struct {
	Name        string
	Provider    string
	Environment string
	Currencies  []string
	BaseURL     string
	Timeout     time.Duration
	Settings    map[string]any
}

// Gateways is keyed by lowercase gateway name.
type Gateways map[string]GatewayConfig

func (g Gateways) Names() []string {
	names := make([]string, 0, len(g))
	for name := range g {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var credentialKeys = []string{
	"merchant_id", "public_key", "private_key", "merchant_accounts",
	"secret_key", "account_id",
	"api_key", "merchant_account", "live_url_prefix",
	"key_id", "key_secret",
}

// LoadGateways reads gateway bundles from a yaml file (optional) and
// PAYCORE_GATEWAYS_<NAME>_<KEY> environment overrides. Gateways that only
// exist in the environment are enabled through PAYMENT_GATEWAYS.
func LoadGateways(path string) (Gateways, error) {
	v := viper.New()
	v.SetEnvPrefix("PAYCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path = strings.TrimSpace(path); path != "" {
		v.SetConfigFile(path)
		if ext := strings.TrimPrefix(filepath.Ext(path), "."); ext == "" {
			v.SetConfigType("yml")
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read gateway config: %w", err)
		}
	} else {
		v.SetConfigName("gateways")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/paycore")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read gateway config: %w", err)
			}
		}
	}

	names := map[string]struct{}{}
	for name := range v.GetStringMap("gateways") {
		names[strings.ToLower(strings.TrimSpace(name))] = struct{}{}
	}
	for _, name := range strings.Split(os.Getenv("PAYMENT_GATEWAYS"), ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" {
			names[name] = struct{}{}
		}
	}

	out := Gateways{}
	for name := range names {
		if name == "" {
			continue
		}
		prefix := "gateways." + name + "."
		settings := map[string]any{}
		for key, value := range v.GetStringMap("gateways." + name) {
			settings[strings.ToLower(key)] = value
		}
		for _, key := range credentialKeys {
			if value := v.Get(prefix + key); value != nil {
				settings[key] = value
			}
		}

		provider := strings.ToLower(strings.TrimSpace(v.GetString(prefix + "provider")))
		if provider == "" {
			provider = name
		}

		currencies := make([]string, 0)
		for _, code := range v.GetStringSlice(prefix + "currencies") {
			for _, part := range strings.Split(code, ",") {
				if part = strings.ToUpper(strings.TrimSpace(part)); part != "" {
					currencies = append(currencies, part)
				}
			}
		}

		out[name] = GatewayConfig{
			Name:        name,
			Provider:    provider,
			Environment: strings.ToLower(strings.TrimSpace(v.GetString(prefix + "environment"))),
			Currencies:  currencies,
			BaseURL:     strings.TrimRight(strings.TrimSpace(v.GetString(prefix+"base_url")), "/"),
			Timeout:     v.GetDuration(prefix + "timeout"),
			Settings:    settings,
		}
	}

	return out, nil
}

func ProvideGateways(cfg Config) (Gateways, error) {
	return LoadGateways(cfg.Payment.GatewayConfigPath)
}
