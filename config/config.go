package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"trustflow/core/types"
	nativecommon "trustflow/native/common"
)

const (
	DefaultListenAddress      = ":8545"
	DefaultDataDir            = "./trustflow-data"
	DefaultChainID            = 1337
	DefaultRateLimitPerMinute = 600
	DefaultBurst              = 60
	DefaultMaxBodyBytes       = 1 << 20
	DefaultIndexerDriver      = "sqlite"
)

type Config struct {
	ListenAddress     string          `toml:"ListenAddress"`
	DataDir           string          `toml:"DataDir"`
	ChainID           uint64          `toml:"ChainID"`
	GenesisFile       string          `toml:"GenesisFile"`
	OwnerKeystorePath string          `toml:"OwnerKeystorePath"`
	RPC               RPCConfig       `toml:"rpc"`
	Logging           LoggingConfig   `toml:"logging"`
	Telemetry         TelemetryConfig `toml:"telemetry"`
	Pauses            PausesConfig    `toml:"pauses"`
	Quota             QuotaConfig     `toml:"quota"`
	Indexer           IndexerConfig   `toml:"indexer"`
}

// RPCConfig bounds the JSON-RPC surface.
type RPCConfig struct {
	RateLimitPerMinute int       `toml:"RateLimitPerMinute"`
	Burst              int       `toml:"Burst"`
	MaxBodyBytes       int64     `toml:"MaxBodyBytes"`
	JWT                JWTConfig `toml:"jwt"`
}

// JWTConfig guards lending_sendTransaction with HS256 bearer tokens. The
// secret itself is read from the named environment variable.
type JWTConfig struct {
	Enable         bool   `toml:"Enable"`
	Issuer         string `toml:"Issuer"`
	Audience       string `toml:"Audience"`
	HSSecretEnv    string `toml:"HSSecretEnv"`
	MaxSkewSeconds int    `toml:"MaxSkewSeconds"`
}

type LoggingConfig struct {
	Env       string `toml:"Env"`
	Level     string `toml:"Level"`
	File      string `toml:"File"`
	MaxSizeMB int    `toml:"MaxSizeMB"`
}

type TelemetryConfig struct {
	Endpoint    string  `toml:"Endpoint"`
	Headers     string  `toml:"Headers"`
	Insecure    bool    `toml:"Insecure"`
	Traces      bool    `toml:"Traces"`
	Metrics     bool    `toml:"Metrics"`
	SampleRatio float64 `toml:"SampleRatio"`
}

// PausesConfig holds the module pause flags applied at startup.
type PausesConfig struct {
	Lending bool `toml:"Lending"`
}

// QuotaConfig caps per-sender activity. MaxValuePerEpoch is an amount in
// whole units; zero limits are off.
type QuotaConfig struct {
	MaxRequestsPerEpoch uint32 `toml:"MaxRequestsPerEpoch"`
	MaxValuePerEpoch    string `toml:"MaxValuePerEpoch"`
	EpochSeconds        uint32 `toml:"EpochSeconds"`
}

type IndexerConfig struct {
	Enable bool   `toml:"Enable"`
	Driver string `toml:"Driver"`
	DSN    string `toml:"DSN"`
}

// Load reads the configuration at path. A missing file is replaced by a
// default configuration, which is written back so operators can edit it.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown key %q", path, undecoded[0].String())
	}
	cfg.normalize(path)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		ListenAddress: DefaultListenAddress,
		DataDir:       DefaultDataDir,
		ChainID:       DefaultChainID,
		RPC: RPCConfig{
			RateLimitPerMinute: DefaultRateLimitPerMinute,
			Burst:              DefaultBurst,
			MaxBodyBytes:       DefaultMaxBodyBytes,
			JWT:                JWTConfig{MaxSkewSeconds: 60},
		},
		Logging: LoggingConfig{Env: "dev", Level: "info"},
		Indexer: IndexerConfig{Driver: DefaultIndexerDriver},
	}
}

func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	cfg.normalize(path)
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

// normalize trims strings, fills defaults and resolves the genesis and
// keystore paths relative to the config file.
func (cfg *Config) normalize(path string) {
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = DefaultListenAddress
	}
	cfg.DataDir = strings.TrimSpace(cfg.DataDir)
	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir
	}
	if cfg.ChainID == 0 {
		cfg.ChainID = DefaultChainID
	}
	base := filepath.Dir(path)
	cfg.GenesisFile = resolvePath(base, cfg.GenesisFile)
	cfg.OwnerKeystorePath = resolvePath(base, cfg.OwnerKeystorePath)

	if cfg.RPC.RateLimitPerMinute == 0 {
		cfg.RPC.RateLimitPerMinute = DefaultRateLimitPerMinute
	}
	if cfg.RPC.Burst == 0 {
		cfg.RPC.Burst = DefaultBurst
	}
	if cfg.RPC.MaxBodyBytes == 0 {
		cfg.RPC.MaxBodyBytes = DefaultMaxBodyBytes
	}
	cfg.RPC.JWT.Issuer = strings.TrimSpace(cfg.RPC.JWT.Issuer)
	cfg.RPC.JWT.Audience = strings.TrimSpace(cfg.RPC.JWT.Audience)
	cfg.RPC.JWT.HSSecretEnv = strings.TrimSpace(cfg.RPC.JWT.HSSecretEnv)

	cfg.Logging.Env = strings.TrimSpace(cfg.Logging.Env)
	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))
	cfg.Logging.File = strings.TrimSpace(cfg.Logging.File)

	cfg.Telemetry.Endpoint = strings.TrimSpace(cfg.Telemetry.Endpoint)
	cfg.Quota.MaxValuePerEpoch = strings.TrimSpace(cfg.Quota.MaxValuePerEpoch)

	cfg.Indexer.Driver = strings.ToLower(strings.TrimSpace(cfg.Indexer.Driver))
	if cfg.Indexer.Driver == "" {
		cfg.Indexer.Driver = DefaultIndexerDriver
	}
	cfg.Indexer.DSN = strings.TrimSpace(cfg.Indexer.DSN)
}

func resolvePath(base, value string) string {
	value = strings.TrimSpace(value)
	if value == "" || filepath.IsAbs(value) || base == "" || base == "." {
		return value
	}
	return filepath.Join(base, value)
}

// Validate reports the first inconsistent setting.
func (cfg *Config) Validate() error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	if cfg.RPC.RateLimitPerMinute < 0 || cfg.RPC.Burst < 0 {
		return fmt.Errorf("rpc: rate limit and burst must not be negative")
	}
	if cfg.RPC.MaxBodyBytes < 0 {
		return fmt.Errorf("rpc: MaxBodyBytes must not be negative")
	}
	if cfg.RPC.JWT.Enable {
		if cfg.RPC.JWT.HSSecretEnv == "" {
			return fmt.Errorf("rpc.jwt: HSSecretEnv required when JWT is enabled")
		}
		if cfg.RPC.JWT.Issuer == "" {
			return fmt.Errorf("rpc.jwt: Issuer required when JWT is enabled")
		}
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: SampleRatio must be within [0,1]")
	}
	if (cfg.Telemetry.Traces || cfg.Telemetry.Metrics) && cfg.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry: Endpoint required when exporters are enabled")
	}
	if _, err := cfg.QuotaLimits(); err != nil {
		return err
	}
	switch cfg.Indexer.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("indexer: unsupported driver %q", cfg.Indexer.Driver)
	}
	if cfg.Indexer.Enable && cfg.Indexer.Driver == "postgres" && cfg.Indexer.DSN == "" {
		return fmt.Errorf("indexer: DSN required for postgres")
	}
	return nil
}

// QuotaLimits converts the quota section into runtime limits.
func (cfg *Config) QuotaLimits() (nativecommon.Quota, error) {
	quota := nativecommon.Quota{
		MaxRequestsPerEpoch: cfg.Quota.MaxRequestsPerEpoch,
		EpochSeconds:        cfg.Quota.EpochSeconds,
	}
	if cfg.Quota.MaxValuePerEpoch != "" {
		value, err := types.ParseAmount(cfg.Quota.MaxValuePerEpoch)
		if err != nil {
			return quota, fmt.Errorf("quota: invalid MaxValuePerEpoch: %w", err)
		}
		quota.MaxValuePerEpoch = value
	} else {
		quota.MaxValuePerEpoch = big.NewInt(0)
	}
	if quota.Enabled() && quota.EpochSeconds == 0 {
		return quota, fmt.Errorf("quota: EpochSeconds required when limits are set")
	}
	return quota, nil
}

// PauseFlags returns the module pause map for nativecommon.NewPauses.
func (cfg *Config) PauseFlags() map[string]bool {
	return map[string]bool{"lending": cfg.Pauses.Lending}
}

// DatabasePath is where the node keeps its LevelDB files.
func (cfg *Config) DatabasePath() string {
	return filepath.Join(cfg.DataDir, "ledger")
}

// IndexerDSN returns the configured DSN, defaulting SQLite to a file in the
// data directory.
func (cfg *Config) IndexerDSN() string {
	if cfg.Indexer.DSN != "" || cfg.Indexer.Driver != "sqlite" {
		return cfg.Indexer.DSN
	}
	return filepath.Join(cfg.DataDir, "indexer.db")
}
