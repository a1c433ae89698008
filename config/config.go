package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"tally/crypto"

	"github.com/BurntSushi/toml"
)

const (
	StorageLevelDB = "leveldb"
	StorageMemory  = "memory"
)

type Config struct {
	DataDir            string    `toml:"DataDir"`
	Storage            string    `toml:"Storage"`
	Environment        string    `toml:"Environment"`
	MetricsAddress     string    `toml:"MetricsAddress"`
	LogFile            string    `toml:"LogFile"`
	LogLevel           string    `toml:"LogLevel"`
	GenesisFile        string    `toml:"GenesisFile"`
	KeeperConfig       string    `toml:"KeeperConfig"`
	KeeperKeystorePath string    `toml:"KeeperKeystorePath"`
	KeeperKeyEnv       string    `toml:"KeeperKeyEnv"`
	Telemetry          Telemetry `toml:"telemetry"`
	Genesis            *Genesis  `toml:"genesis,omitempty"`
}

// Telemetry configures the OTLP exporters.
type Telemetry struct {
	Endpoint    string  `toml:"Endpoint"`
	Insecure    bool    `toml:"Insecure"`
	Headers     string  `toml:"Headers"`
	Traces      bool    `toml:"Traces"`
	Metrics     bool    `toml:"Metrics"`
	SampleRatio float64 `toml:"SampleRatio"`
}

// LoadOption customises Load.
type LoadOption func(*loadOptions)

type loadOptions struct {
	passphrase func() (string, error)
}

// WithKeystorePassphraseSource sets how the passphrase protecting a newly
// generated keeper keystore is obtained. Without it the keystore is written
// with an empty passphrase.
func WithKeystorePassphraseSource(source func() (string, error)) LoadOption {
	return func(o *loadOptions) { o.passphrase = source }
}

func (o loadOptions) keystorePassphrase() (string, error) {
	if o.passphrase == nil {
		return "", nil
	}
	return o.passphrase()
}

// Load loads the configuration from the given path, writing a default file
// with a fresh keeper keystore when none exists.
func Load(path string, opts ...LoadOption) (*Config, error) {
	var options loadOptions
	for _, opt := range opts {
		opt(&options)
	}
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path, options)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown key %q", path, undecoded[0].String())
	}

	applyDefaults(cfg)
	if cfg.Storage != StorageLevelDB && cfg.Storage != StorageMemory {
		return nil, fmt.Errorf("config file %s: unknown storage backend %q", path, cfg.Storage)
	}
	if cfg.KeeperKeyEnv == "" {
		if err := ensureKeystore(path, cfg, options); err != nil {
			return nil, err
		}
	}
	if cfg.Genesis != nil {
		if err := ValidateGenesis(cfg.Genesis); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./tally-data"
	}
	cfg.Storage = strings.ToLower(strings.TrimSpace(cfg.Storage))
	if cfg.Storage == "" {
		cfg.Storage = StorageLevelDB
	}
	if strings.TrimSpace(cfg.MetricsAddress) == "" {
		cfg.MetricsAddress = ":9464"
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "local"
	}
}

func ensureKeystore(configPath string, cfg *Config, options loadOptions) error {
	keystorePath := cfg.KeeperKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}

	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		key, genErr := crypto.GeneratePrivateKey()
		if genErr != nil {
			return genErr
		}
		passphrase, err := options.keystorePassphrase()
		if err != nil {
			return fmt.Errorf("keeper keystore passphrase: %w", err)
		}
		if err := crypto.SaveToKeystore(keystorePath, key, passphrase); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if cfg.KeeperKeystorePath != keystorePath {
		cfg.KeeperKeystorePath = keystorePath
		return persist(configPath, cfg)
	}
	return nil
}

// createDefault creates and saves a default single-operator configuration:
// the generated key acts as keeper, upgrade authority, platform authority and
// mint authority of a local medium.
func createDefault(path string, options loadOptions) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	passphrase, err := options.keystorePassphrase()
	if err != nil {
		return nil, fmt.Errorf("keeper keystore passphrase: %w", err)
	}

	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, passphrase); err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:            "./tally-data",
		Storage:            StorageLevelDB,
		Environment:        "local",
		MetricsAddress:     ":9464",
		KeeperKeystorePath: keystorePath,
		Genesis:            DefaultGenesis(key.Address()),
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
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

func defaultKeystorePath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), "keeper.keystore")
}
