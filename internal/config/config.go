// Package config loads client configuration from an optional YAML file, a
// .env file and environment variables, in that order of precedence (later
// wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileEnv names the environment variable pointing at the YAML config file.
const FileEnv = "TEAJAR_CONFIG"

// Defaults.
const (
	DefaultRPCURL          = "http://127.0.0.1:8545"
	DefaultContractAddress = "0xe331Dd38436Ad4876cA4A79FcfB969b77015d94D"
	DefaultTipAmount       = "0.001"
	DefaultListenAddr      = ":8080"
	DefaultPollInterval    = 5 * time.Second
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "json"
	DefaultRateLimit       = 5.0
	DefaultRateBurst       = 10
	DefaultEventBuffer     = 256
)

// Config is the full client configuration.
type Config struct {
	RPCURL          string        `yaml:"rpc_url" env:"TEAJAR_RPC_URL"`
	ContractAddress string        `yaml:"contract_address" env:"TEAJAR_CONTRACT_ADDRESS"`
	ABIPath         string        `yaml:"abi_path" env:"TEAJAR_ABI_PATH"`
	TipAmount       string        `yaml:"tip_amount" env:"TEAJAR_TIP_AMOUNT"`
	PollInterval    time.Duration `yaml:"poll_interval" env:"TEAJAR_POLL_INTERVAL"`
	ResyncSchedule  string        `yaml:"resync_schedule" env:"TEAJAR_RESYNC_SCHEDULE"`
	AutoConnect     bool          `yaml:"auto_connect" env:"TEAJAR_AUTO_CONNECT"`

	KeystoreDir      string `yaml:"keystore_dir" env:"TEAJAR_KEYSTORE_DIR"`
	KeystorePassword string `yaml:"-" env:"TEAJAR_KEYSTORE_PASSWORD"`
	PrivateKey       string `yaml:"-" env:"TEAJAR_PRIVATE_KEY"`

	ListenAddr  string   `yaml:"listen_addr" env:"TEAJAR_LISTEN_ADDR"`
	CORSOrigins []string `yaml:"cors_origins" env:"TEAJAR_CORS_ORIGINS"`
	RateLimit   float64  `yaml:"rate_limit" env:"TEAJAR_RATE_LIMIT"`
	RateBurst   int      `yaml:"rate_burst" env:"TEAJAR_RATE_BURST"`
	EventBuffer int      `yaml:"event_buffer" env:"TEAJAR_EVENT_BUFFER"`

	LogLevel  string `yaml:"log_level" env:"TEAJAR_LOG_LEVEL"`
	LogFormat string `yaml:"log_format" env:"TEAJAR_LOG_FORMAT"`
}

// Load reads the file named by TEAJAR_CONFIG (if set), loads .env files from
// the working directory (if present), applies environment overrides and
// defaults, and validates the result.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv(FileEnv))
}

// LoadFrom is Load with an explicit YAML path; an empty path skips the file.
func LoadFrom(path string, envFiles ...string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// godotenv never overrides variables already set in the process.
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	// Strict decoding rejects values that do not parse instead of dropping them.
	if err := envdecode.StrictDecode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.RPCURL == "" {
		c.RPCURL = DefaultRPCURL
	}
	if c.ContractAddress == "" {
		c.ContractAddress = DefaultContractAddress
	}
	if c.TipAmount == "" {
		c.TipAmount = DefaultTipAmount
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.RateLimit <= 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.RateBurst <= 0 {
		c.RateBurst = DefaultRateBurst
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = DefaultEventBuffer
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
}

// Validate checks the configuration for values the client cannot run with.
func (c *Config) Validate() error {
	var problems []string

	if !common.IsHexAddress(c.ContractAddress) {
		problems = append(problems, fmt.Sprintf("contract_address %q is not a hex address", c.ContractAddress))
	}
	if !hasScheme(c.RPCURL, "http://", "https://", "ws://", "wss://") && !strings.HasSuffix(c.RPCURL, ".ipc") {
		problems = append(problems, fmt.Sprintf("rpc_url %q must be http(s), ws(s) or an .ipc path", c.RPCURL))
	}
	if c.KeystoreDir != "" && c.PrivateKey != "" {
		problems = append(problems, "keystore_dir and private key are mutually exclusive")
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		problems = append(problems, fmt.Sprintf("log_format %q must be json or text", c.LogFormat))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Contract returns the configured contract address.
func (c *Config) Contract() common.Address {
	return common.HexToAddress(c.ContractAddress)
}

// HasWallet reports whether a wallet provider is configured.
func (c *Config) HasWallet() bool {
	return c.KeystoreDir != "" || c.PrivateKey != ""
}

func hasScheme(url string, schemes ...string) bool {
	for _, s := range schemes {
		if strings.HasPrefix(url, s) {
			return true
		}
	}
	return false
}
