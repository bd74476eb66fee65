// Package config loads wallet configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap/zapcore"
)

// Defaults.
const (
	DefaultRPC       = "https://rpc-new.pila.vn"
	DefaultChainID   = int64(704)
	DefaultMethod    = "did:kilt"
	DefaultCTypeHash = "0x05f099b888ddf3e8ef4fc690f12ca59d967bf934d58dda723921893cff0d8734"
	DefaultDBPath    = "w3nwallet.db"
	DefaultDecimals  = 18
	DefaultSymbol    = "PILA"

	// MemoryRPC selects the in-process ledger.
	MemoryRPC = "memory://"
)

// Config holds the wallet configuration.
type Config struct {
	RPCURL        string `env:"W3N_RPC_URL"        envDefault:"https://rpc-new.pila.vn"`
	ChainID       int64  `env:"W3N_CHAIN_ID"       envDefault:"704"`
	DIDRegistry   string `env:"W3N_DID_REGISTRY"`
	NameRegistry  string `env:"W3N_NAME_REGISTRY"`
	CTypeRegistry string `env:"W3N_CTYPE_REGISTRY"`
	Method        string `env:"W3N_DID_METHOD"     envDefault:"did:kilt"`
	CTypeHash     string `env:"W3N_CTYPE_HASH"     envDefault:"0x05f099b888ddf3e8ef4fc690f12ca59d967bf934d58dda723921893cff0d8734"`

	SubmitterMnemonic string `env:"W3N_SUBMITTER_MNEMONIC"`
	SubmitterKey      string `env:"W3N_SUBMITTER_KEY"`

	// SignerURL selects a remote signing service holding the key of
	// SubmitterAddress.
	SignerURL        string `env:"W3N_SIGNER_URL"`
	SignerAPIKey     string `env:"W3N_SIGNER_API_KEY"`
	SubmitterAddress string `env:"W3N_SUBMITTER_ADDRESS"`

	// NoSend signs transactions without submitting them.
	NoSend bool `env:"W3N_NO_SEND" envDefault:"false"`

	DBPath     string `env:"W3N_DB_PATH"    envDefault:"w3nwallet.db"`
	Passphrase string `env:"W3N_PASSPHRASE"`

	GasLimit  uint64        `env:"W3N_GAS_LIMIT"  envDefault:"0"`
	TxTimeout time.Duration `env:"W3N_TX_TIMEOUT" envDefault:"2m"`

	TokenDecimals int    `env:"W3N_TOKEN_DECIMALS" envDefault:"18"`
	TokenSymbol   string `env:"W3N_TOKEN_SYMBOL"   envDefault:"PILA"`

	LogLevel string `env:"W3N_LOG_LEVEL" envDefault:"info"`
}

// Load parses the process environment.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	return &cfg, nil
}

// LoadFrom parses an explicit environment.
func LoadFrom(environ map[string]string) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	return &cfg, nil
}

// IsMemory reports whether the in-process ledger is selected.
func (c *Config) IsMemory() bool {
	return strings.HasPrefix(c.RPCURL, MemoryRPC)
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return errors.New("W3N_RPC_URL is required")
	}
	if c.Method == "" || !strings.HasPrefix(c.Method, "did:") {
		return fmt.Errorf("invalid DID method %q", c.Method)
	}
	if !isHash(c.CTypeHash) {
		return fmt.Errorf("invalid CType hash %q", c.CTypeHash)
	}
	if c.TokenDecimals < 0 {
		return errors.New("token decimals must not be negative")
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	submitters := 0
	for _, v := range []string{c.SubmitterMnemonic, c.SubmitterKey, c.SignerURL} {
		if v != "" {
			submitters++
		}
	}
	if submitters > 1 {
		return errors.New("set only one of W3N_SUBMITTER_MNEMONIC, W3N_SUBMITTER_KEY and W3N_SIGNER_URL")
	}
	if c.SignerURL != "" && !common.IsHexAddress(c.SubmitterAddress) {
		return fmt.Errorf("W3N_SIGNER_URL needs W3N_SUBMITTER_ADDRESS, got %q", c.SubmitterAddress)
	}

	if c.IsMemory() {
		if c.NoSend {
			return errors.New("W3N_NO_SEND needs a chain RPC endpoint")
		}
		return nil
	}

	if c.ChainID <= 0 {
		return errors.New("W3N_CHAIN_ID must be positive")
	}
	for name, addr := range map[string]string{
		"W3N_DID_REGISTRY":   c.DIDRegistry,
		"W3N_NAME_REGISTRY":  c.NameRegistry,
		"W3N_CTYPE_REGISTRY": c.CTypeRegistry,
	} {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("%s must be a contract address, got %q", name, addr)
		}
	}

	return nil
}

// Level returns the parsed log level, falling back to info.
func (c *Config) Level() zapcore.Level {
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return zapcore.InfoLevel
	}

	return lvl
}

func isHash(s string) bool {
	s = strings.TrimPrefix(s, "0x")
	if len(s) != 64 {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}

	return true
}
