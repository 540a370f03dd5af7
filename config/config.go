package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Address wraps common.Address to support YAML unmarshalling with checksum
// validation.
type Address struct {
	common.Address
}

// UnmarshalYAML parses a 0x-prefixed hex address.
func (a *Address) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("address must be string")
	}
	raw := strings.TrimSpace(value.Value)
	if raw == "" {
		a.Address = common.Address{}
		return nil
	}
	if !common.IsHexAddress(raw) {
		return fmt.Errorf("invalid address %q", raw)
	}
	a.Address = common.HexToAddress(raw)
	return nil
}

// Config captures runtime configuration for xdonated.
type Config struct {
	ListenAddress string         `yaml:"listen"`
	DatabasePath  string         `yaml:"database"`
	RPC           RPCConfig      `yaml:"rpc"`
	Donation      DonationConfig `yaml:"donation"`
	Sweep         SweepConfig    `yaml:"sweep"`
	Operators     []Operator     `yaml:"operators"`
}

// RPCConfig identifies the EVM endpoint the daemon transacts against.
type RPCConfig struct {
	Endpoint string `yaml:"endpoint"`
	ChainID  int64  `yaml:"chain_id"`
}

// DonationConfig pins the immutable forwarding parameters.
type DonationConfig struct {
	SwapRouter    Address `yaml:"swap_router"`
	SwapQuoter    Address `yaml:"swap_quoter"`
	Connext       Address `yaml:"connext"`
	WrappedNative Address `yaml:"wrapped_native"`
	Recipient     Address `yaml:"recipient"`
	Asset         Address `yaml:"asset"`
	Domain        uint32  `yaml:"domain"`
}

// SweepConfig tunes sweep execution.
type SweepConfig struct {
	Deadline          Duration `yaml:"deadline"`
	SwapSlippageBps   uint64   `yaml:"swap_slippage_bps"`
	BridgeSlippageBps uint64   `yaml:"bridge_slippage_bps"`
	Paused            bool     `yaml:"paused"`
}

// Operator maps an admin API credential to an on-chain principal.
type Operator struct {
	Name    string  `yaml:"name"`
	Token   string  `yaml:"token"`
	Address Address `yaml:"address"`
}

// Load reads configuration from the supplied path.
func Load(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7085"
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "/var/data/xdonated.sqlite"
	}
	if cfg.Sweep.Deadline.Duration == 0 {
		cfg.Sweep.Deadline.Duration = 5 * time.Minute
	}
	if cfg.Sweep.SwapSlippageBps == 0 {
		cfg.Sweep.SwapSlippageBps = 1000
	}
	if cfg.Sweep.BridgeSlippageBps == 0 {
		cfg.Sweep.BridgeSlippageBps = 100
	}
}

func validate(cfg Config) error {
	if strings.TrimSpace(cfg.RPC.Endpoint) == "" {
		return fmt.Errorf("rpc endpoint must be configured")
	}
	if cfg.RPC.ChainID <= 0 {
		return fmt.Errorf("rpc chain id must be positive")
	}
	if cfg.Donation.SwapRouter.Address == (common.Address{}) {
		return fmt.Errorf("donation swap router must be configured")
	}
	if cfg.Donation.Connext.Address == (common.Address{}) {
		return fmt.Errorf("donation connext must be configured")
	}
	if cfg.Donation.WrappedNative.Address == (common.Address{}) {
		return fmt.Errorf("donation wrapped native must be configured")
	}
	if cfg.Donation.Recipient.Address == (common.Address{}) {
		return fmt.Errorf("donation recipient must be configured")
	}
	if cfg.Donation.Asset.Address == (common.Address{}) {
		return fmt.Errorf("donation asset must be configured")
	}
	if cfg.Donation.Domain == 0 {
		return fmt.Errorf("donation domain must be configured")
	}
	seen := make(map[string]struct{}, len(cfg.Operators))
	for i, op := range cfg.Operators {
		if strings.TrimSpace(op.Token) == "" {
			return fmt.Errorf("operator %d: token must be configured", i)
		}
		if op.Address.Address == (common.Address{}) {
			return fmt.Errorf("operator %d: address must be configured", i)
		}
		if _, dup := seen[op.Token]; dup {
			return fmt.Errorf("operator %d: duplicate token", i)
		}
		seen[op.Token] = struct{}{}
	}
	return nil
}
