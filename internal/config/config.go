package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/Mohsinsiddi/tkn/internal/chain"
	"github.com/spf13/viper"
)

const (
	defaultNetwork   = "development"
	defaultLogLevel  = "info"
	defaultInterval  = 2
	defaultServeAddr = "127.0.0.1:8080"

	configFile      = "config.json"
	walletsFile     = "wallets.json"
	deploymentsFile = "deployments.json"
	dbFile          = "tkn.db"
	keysDir         = "keys"

	// EnvPrefix prefixes environment overrides, e.g. TKN_DEFAULT_NETWORK.
	EnvPrefix = "TKN"
)

// Load reads config from dir (or creates defaults). dir defaults to ~/.tkn.
// Values come from, lowest to highest precedence: defaults, config.json,
// TKN_* environment variables.
func Load(dir string) (*Config, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("could not determine home dir: %w", err)
		}
		dir = filepath.Join(home, ".tkn")
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("could not create config dir: %w", err)
	}

	v := viper.New()
	v.SetDefault("default_network", defaultNetwork)
	v.SetDefault("default_wallet", "")
	v.SetDefault("default_token", "")
	v.SetDefault("artifact", "")
	v.SetDefault("log_level", defaultLogLevel)
	v.SetDefault("poll_interval", defaultInterval)
	v.SetDefault("serve_addr", defaultServeAddr)

	v.SetConfigFile(filepath.Join(dir, configFile))
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.configDir = dir
	if cfg.Networks == nil {
		cfg.Networks = make(map[string]NetworkConfig)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultInterval
	}
	return cfg, nil
}

// Save writes the config to disk.
func (c *Config) Save() error {
	if err := os.MkdirAll(c.configDir, 0o700); err != nil {
		return err
	}
	return saveJSON(filepath.Join(c.configDir, configFile), c)
}

// Set assigns a scalar setting by its config key, as used by `tkn config set`.
func (c *Config) Set(key, value string) error {
	switch key {
	case "default_network":
		c.DefaultNetwork = value
	case "default_wallet":
		c.DefaultWallet = value
	case "default_token":
		c.DefaultToken = value
	case "artifact":
		c.Artifact = value
	case "log_level":
		c.LogLevel = value
	case "serve_addr":
		c.ServeAddr = value
	case "poll_interval":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("poll_interval must be a positive number of seconds")
		}
		c.PollInterval = n
	default:
		return fmt.Errorf("unknown config key %q (valid: %s)", key, strings.Join(Keys(), ", "))
	}
	return nil
}

// Keys lists the settable scalar keys.
func Keys() []string {
	return []string{"artifact", "default_network", "default_token", "default_wallet", "log_level", "poll_interval", "serve_addr"}
}

// AddNetwork adds or replaces a custom network.
func (c *Config) AddNetwork(name string, n NetworkConfig) error {
	if n.RPC == "" {
		return fmt.Errorf("network %s needs an RPC URL", name)
	}
	if c.Networks == nil {
		c.Networks = make(map[string]NetworkConfig)
	}
	c.Networks[strings.ToLower(name)] = n
	return nil
}

// RemoveNetwork removes a custom network.
func (c *Config) RemoveNetwork(name string) error {
	name = strings.ToLower(name)
	if _, ok := c.Networks[name]; !ok {
		return fmt.Errorf("network %s is not a custom network", name)
	}
	delete(c.Networks, name)
	return nil
}

// Registry returns the built-in networks overlaid with the custom ones.
func (c *Config) Registry() *chain.Registry {
	names := make([]string, 0, len(c.Networks))
	for name := range c.Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	extra := make([]chain.Network, 0, len(names))
	for _, name := range names {
		n := c.Networks[name]
		extra = append(extra, chain.Network{
			Name:     name,
			RPC:      n.RPC,
			ChainID:  n.ChainID,
			Explorer: n.Explorer,
			Local:    n.Local,
		})
	}
	return chain.NewRegistry(extra...)
}

// Dir returns the config directory.
func (c *Config) Dir() string {
	return c.configDir
}

// WalletsPath is the wallets.json file.
func (c *Config) WalletsPath() string { return filepath.Join(c.configDir, walletsFile) }

// DeploymentsPath is the deployments.json file.
func (c *Config) DeploymentsPath() string { return filepath.Join(c.configDir, deploymentsFile) }

// DBPath is the bolt database holding local ledgers.
func (c *Config) DBPath() string { return filepath.Join(c.configDir, dbFile) }

// KeysDir is the encrypted-file keyring fallback directory.
func (c *Config) KeysDir() string { return filepath.Join(c.configDir, keysDir) }

// --- helpers ---

func saveJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
