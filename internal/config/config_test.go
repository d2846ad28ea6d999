package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"jointPacks/internal/apperr"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Limit != 50 || cfg.ContractPath != "./config/config.json" || cfg.LogLevel != "info" {
		t.Fatalf("defaults mismatch: %+v", cfg)
	}
	if cfg.Timeout != 30*time.Second {
		t.Fatalf("timeout mismatch: %s", cfg.Timeout)
	}
}

func TestLoadPrecedence(t *testing.T) {
	path := writeFile(t, "packs.yaml", "rpc: http://file\nlimit: 10\naccount: 0xfile\n")
	t.Setenv("PACKS_LIMIT", "20")
	t.Setenv("PACKS_PG_DSN", "postgres://env")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("rpc", "", "")
	flags.Int("limit", 50, "")
	flags.String("pg-dsn", "", "")
	if err := flags.Parse([]string{"--rpc", "http://flag"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load(path, flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCURL != "http://flag" {
		t.Fatalf("flag should win: %s", cfg.RPCURL)
	}
	if cfg.Limit != 20 {
		t.Fatalf("env should beat file: %d", cfg.Limit)
	}
	if cfg.PGDSN != "postgres://env" {
		t.Fatalf("env dsn mismatch: %s", cfg.PGDSN)
	}
	if cfg.Account != "0xfile" {
		t.Fatalf("file account mismatch: %s", cfg.Account)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestLoadServeAndSyncDefaults(t *testing.T) {
	serve, err := LoadServe("", nil)
	if err != nil {
		t.Fatalf("load serve: %v", err)
	}
	if serve.Listen != ":8080" || serve.Debounce != 300*time.Millisecond || serve.PollTimeout != time.Minute {
		t.Fatalf("serve defaults mismatch: %+v", serve)
	}

	sync, err := LoadSync("", nil)
	if err != nil {
		t.Fatalf("load sync: %v", err)
	}
	if sync.BatchSize != 2000 || !sync.CheckpointEnabled || sync.RateLimit != 10 {
		t.Fatalf("sync defaults mismatch: %+v", sync)
	}

	open, err := LoadOpen("", nil)
	if err != nil {
		t.Fatalf("load open: %v", err)
	}
	if open.PollInterval != 2*time.Second {
		t.Fatalf("open defaults mismatch: %+v", open)
	}
}

func TestLoadContract(t *testing.T) {
	path := writeFile(t, "config.json", `{
  "CONTRACT_ADDRESS": "0xae11d8f81FacA865e79204574b9a101C05002d5b",
  "SCAN_LINK": "https://bscscan.com/address/0xae11d8f81FacA865e79204574b9a101C05002d5b",
  "NETWORK": {"NAME": "BNB Smart Chain", "SYMBOL": "BNB", "ID": 56},
  "NFT_NAME": "$JOINT Pack",
  "SYMBOL": "JPACK",
  "GAS_LIMIT": 300000,
  "DEPLOY_BLOCK": 1200
}`)

	cfg, err := LoadContract(path)
	if err != nil {
		t.Fatalf("load contract: %v", err)
	}
	if cfg.Network.ID != 56 || cfg.Network.Symbol != "BNB" {
		t.Fatalf("network mismatch: %+v", cfg.Network)
	}
	if cfg.GasLimit != 300000 || cfg.DeployBlock != 1200 || cfg.MaxBlockRange != 5000 {
		t.Fatalf("numeric fields mismatch: %+v", cfg)
	}

	binding := cfg.Binding()
	if binding.ChainID == nil || binding.ChainID.Uint64() != 56 {
		t.Fatalf("binding chain id mismatch: %v", binding.ChainID)
	}
	if binding.Address.Hex() != "0xae11d8f81FacA865e79204574b9a101C05002d5b" {
		t.Fatalf("binding address mismatch: %s", binding.Address.Hex())
	}
	if got := cfg.TxLink("0xabc"); got != "https://bscscan.com/tx/0xabc" {
		t.Fatalf("tx link mismatch: %s", got)
	}
	if cfg.Identity() != "56:0xae11d8f81FacA865e79204574b9a101C05002d5b" {
		t.Fatalf("identity mismatch: %s", cfg.Identity())
	}
}

func TestLoadContractErrors(t *testing.T) {
	cases := map[string]string{
		"missing": filepath.Join(t.TempDir(), "nope.json"),
		"syntax":  writeFile(t, "bad.json", "{"),
		"address": writeFile(t, "addr.json", `{"CONTRACT_ADDRESS": "0x12"}`),
		"empty":   "",
	}

	for name, path := range cases {
		_, err := LoadContract(path)
		var cfgErr *apperr.ConfigLoadError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("%s: expected ConfigLoadError, got %v", name, err)
		}
		if apperr.UserMessage(err) != apperr.MsgConfigUnavailable {
			t.Fatalf("%s: message mismatch", name)
		}
	}
}
