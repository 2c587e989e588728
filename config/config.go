package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"dropchain/crypto"
)

// GenesisAccount funds one account at first boot.
type GenesisAccount struct {
	Address string `toml:"Address"`
	Balance string `toml:"Balance"`
}

// Config is the marketplace daemon configuration. Everything here is supplied
// once at construction and read-only afterwards.
type Config struct {
	RPCAddress      string           `toml:"RPCAddress"`
	DataDir         string           `toml:"DataDir"`
	Env             string           `toml:"Env"`
	Name            string           `toml:"Name"`
	Symbol          string           `toml:"Symbol"`
	PlatformOwner   string           `toml:"PlatformOwner"`
	PlatformFeeBps  uint32           `toml:"PlatformFeeBps"`
	OraclePublicKey string           `toml:"OraclePublicKey"`
	HeartbeatMillis uint64           `toml:"HeartbeatMillis"`
	Genesis         []GenesisAccount `toml:"Genesis"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = "127.0.0.1:8645"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./dropchain-data"
	}
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = "DropNFT"
	}
	if strings.TrimSpace(cfg.Symbol) == "" {
		cfg.Symbol = "DFT"
	}
	if cfg.PlatformFeeBps == 0 {
		cfg.PlatformFeeBps = 100
	}
	if cfg.HeartbeatMillis == 0 {
		cfg.HeartbeatMillis = 120
	}
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields the daemon cannot run without.
func (c *Config) Validate() error {
	if c.PlatformFeeBps > 10_000 {
		return fmt.Errorf("config: PlatformFeeBps %d exceeds 10000", c.PlatformFeeBps)
	}
	if c.HeartbeatMillis == 0 {
		return fmt.Errorf("config: HeartbeatMillis must be positive")
	}
	if _, err := c.PlatformOwnerAddress(); err != nil {
		return err
	}
	if _, err := c.OracleKey(); err != nil {
		return err
	}
	for _, alloc := range c.Genesis {
		if _, err := crypto.DecodeAddress(strings.TrimSpace(alloc.Address)); err != nil {
			return fmt.Errorf("config: genesis address %q: %w", alloc.Address, err)
		}
	}
	return nil
}

// PlatformOwnerAddress decodes the configured owner account.
func (c *Config) PlatformOwnerAddress() ([20]byte, error) {
	var out [20]byte
	addr, err := crypto.DecodeAddress(strings.TrimSpace(c.PlatformOwner))
	if err != nil {
		return out, fmt.Errorf("config: PlatformOwner: %w", err)
	}
	copy(out[:], addr.Bytes())
	return out, nil
}

// OracleKey decodes the configured hex ed25519 public key.
func (c *Config) OracleKey() ([]byte, error) {
	trimmed := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(c.OraclePublicKey), "0x"))
	if trimmed == "" {
		return nil, fmt.Errorf("config: OraclePublicKey required")
	}
	key, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("config: OraclePublicKey: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("config: OraclePublicKey must be 32 bytes, got %d", len(key))
	}
	return key, nil
}
