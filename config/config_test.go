package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const validConfig = `
listen: ":9090"
database: "/tmp/xdonated.sqlite"
rpc:
  endpoint: "https://mainnet.optimism.io"
  chain_id: 10
donation:
  swap_router: "0xE592427A0AEce92De3Edee1F18E0157C05861564"
  swap_quoter: "0xb27308f9F90D607463bb33eA1BeBb41C27CE5AB6"
  connext: "0x8f7492DE823025b4CfaAB1D34c58963F2af5DEDA"
  wrapped_native: "0x4200000000000000000000000000000000000006"
  recipient: "0xe19300FfD7bc4C63D72b16355B24ba851C44dD9b"
  asset: "0x7F5c764cBc14f9669B88837ca1490cCa17c31607"
  domain: 6648936
sweep:
  deadline: "2m"
  swap_slippage_bps: 500
operators:
  - name: ops
    token: secret-token
    address: "0x1000000000000000000000000000000000000001"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":9090" {
		t.Fatalf("unexpected listen: %s", cfg.ListenAddress)
	}
	if cfg.RPC.ChainID != 10 {
		t.Fatalf("unexpected chain id: %d", cfg.RPC.ChainID)
	}
	if cfg.Donation.Domain != 6648936 {
		t.Fatalf("unexpected domain: %d", cfg.Donation.Domain)
	}
	if got := cfg.Donation.Asset.Address; got != common.HexToAddress("0x7F5c764cBc14f9669B88837ca1490cCa17c31607") {
		t.Fatalf("unexpected asset: %s", got.Hex())
	}
	if cfg.Sweep.Deadline.Duration != 2*time.Minute {
		t.Fatalf("unexpected deadline: %s", cfg.Sweep.Deadline.Duration)
	}
	if cfg.Sweep.SwapSlippageBps != 500 {
		t.Fatalf("unexpected swap slippage: %d", cfg.Sweep.SwapSlippageBps)
	}
	// Unset fields take defaults.
	if cfg.Sweep.BridgeSlippageBps != 100 {
		t.Fatalf("unexpected bridge slippage: %d", cfg.Sweep.BridgeSlippageBps)
	}
	if len(cfg.Operators) != 1 || cfg.Operators[0].Token != "secret-token" {
		t.Fatalf("unexpected operators: %+v", cfg.Operators)
	}
}

func TestLoadRejectsMissingRecipient(t *testing.T) {
	body := `
rpc:
  endpoint: "https://mainnet.optimism.io"
  chain_id: 10
donation:
  swap_router: "0xE592427A0AEce92De3Edee1F18E0157C05861564"
  connext: "0x8f7492DE823025b4CfaAB1D34c58963F2af5DEDA"
  wrapped_native: "0x4200000000000000000000000000000000000006"
  asset: "0x7F5c764cBc14f9669B88837ca1490cCa17c31607"
  domain: 6648936
`
	if _, err := Load(writeConfig(t, body)); err == nil {
		t.Fatalf("expected error for missing recipient")
	}
}

func TestLoadRejectsInvalidAddress(t *testing.T) {
	body := `
rpc:
  endpoint: "https://mainnet.optimism.io"
  chain_id: 10
donation:
  swap_router: "not-an-address"
`
	if _, err := Load(writeConfig(t, body)); err == nil {
		t.Fatalf("expected error for malformed address")
	}
}

func TestLoadRejectsDuplicateOperatorTokens(t *testing.T) {
	body := validConfig + `
  - name: ops2
    token: secret-token
    address: "0x2000000000000000000000000000000000000002"
`
	if _, err := Load(writeConfig(t, body)); err == nil {
		t.Fatalf("expected error for duplicate token")
	}
}

func TestDurationRejectsGarbage(t *testing.T) {
	body := `
rpc:
  endpoint: "x"
  chain_id: 1
sweep:
  deadline: "soon"
`
	if _, err := Load(writeConfig(t, body)); err == nil {
		t.Fatalf("expected error for bad duration")
	}
}
