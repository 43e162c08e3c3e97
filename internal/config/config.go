// Package config reads runtime settings from the environment. A .env file
// in the working directory is loaded first when present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"github.com/piyushdaiya/nonce-checker/internal/fetcher"
	"github.com/piyushdaiya/nonce-checker/internal/resolver"
	"github.com/piyushdaiya/nonce-checker/internal/validator"
)

type Config struct {
	RegistryFile      string
	RegistryDB        string
	ENSRPCURL         string
	UniversalResolver common.Address
	NameSuffix        string
	FetchTimeout      time.Duration
	ResolveTimeout    time.Duration
	MaxConcurrency    int
	BlockTag          string
	VerifyChainID     bool
	Port              string
	LogLevel          string
	Environment       string
}

const DefaultENSRPCURL = "https://eth.llamarpc.com"

// Load applies .env (if any) and parses the environment.
func Load() (*Config, error) {
	// A missing .env is normal when variables are injected directly.
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv parses the current environment without touching .env files.
func FromEnv() (*Config, error) {
	cfg := &Config{
		RegistryFile: os.Getenv("NONCE_REGISTRY_FILE"),
		RegistryDB:   os.Getenv("NONCE_REGISTRY_DB"),
		ENSRPCURL:    getenv("ENS_RPC_URL", DefaultENSRPCURL),
		NameSuffix:   getenv("NAME_SUFFIX", validator.DefaultNameSuffix),
		Port:         getenv("PORT", "8080"),
		LogLevel:     getenv("LOG_LEVEL", "info"),
		Environment:  os.Getenv("ENVIRONMENT"),
	}

	resolverAddr := getenv("ENS_UNIVERSAL_RESOLVER", resolver.DefaultUniversalResolver)
	if !common.IsHexAddress(resolverAddr) {
		return nil, fmt.Errorf("ENS_UNIVERSAL_RESOLVER: %q is not an address", resolverAddr)
	}
	cfg.UniversalResolver = common.HexToAddress(resolverAddr)

	var err error
	if cfg.FetchTimeout, err = durationEnv("FETCH_TIMEOUT", fetcher.DefaultTimeout); err != nil {
		return nil, err
	}
	if cfg.ResolveTimeout, err = durationEnv("RESOLVE_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.MaxConcurrency, err = intEnv("MAX_CONCURRENCY", 0); err != nil {
		return nil, err
	}
	if cfg.MaxConcurrency < 0 {
		return nil, fmt.Errorf("MAX_CONCURRENCY: must not be negative")
	}
	if cfg.VerifyChainID, err = boolEnv("VERIFY_CHAIN_ID", false); err != nil {
		return nil, err
	}

	cfg.BlockTag = strings.ToLower(getenv("BLOCK_TAG", fetcher.BlockLatest))
	if cfg.BlockTag != fetcher.BlockLatest && cfg.BlockTag != fetcher.BlockPending {
		return nil, fmt.Errorf("BLOCK_TAG: %q must be %s or %s", cfg.BlockTag, fetcher.BlockLatest, fetcher.BlockPending)
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: must be positive", key)
	}
	return d, nil
}

func intEnv(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func boolEnv(key string, def bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}
