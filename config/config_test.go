package config

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"stakevault/crypto"
	"stakevault/native/vault"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vaultd.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config file was not written: %v", err)
	}
	if cfg.RPCAddress == "" || cfg.DataDir == "" {
		t.Fatalf("defaults missing: %+v", cfg)
	}
	if cfg.WithdrawalWaitingPeriodSeconds != vault.DefaultWithdrawalWaitingPeriod {
		t.Fatalf("unexpected default waiting period %d", cfg.WithdrawalWaitingPeriodSeconds)
	}
	rate, err := cfg.RewardRate()
	if err != nil {
		t.Fatalf("reward rate: %v", err)
	}
	if rate.Cmp(vault.DefaultRewardRate) != 0 {
		t.Fatalf("unexpected default rate %s", rate)
	}
}

func TestLoadAppliesDefaultsToPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vaultd.toml")
	partial := "RPCAddress = \"0.0.0.0:9000\"\n"
	if err := os.WriteFile(path, []byte(partial), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != "0.0.0.0:9000" {
		t.Fatalf("explicit value lost: %q", cfg.RPCAddress)
	}
	if cfg.DataDir == "" || cfg.ServiceName == "" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := defaultConfig()
	cfg.RewardRatePerTokenPerHeight = "not-a-number"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid rate")
	}

	cfg = defaultConfig()
	cfg.RewardRatePerTokenPerHeight = "-3"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for negative rate")
	}

	cfg = defaultConfig()
	cfg.WithdrawalWaitingPeriodSeconds = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero waiting period")
	}

	cfg = defaultConfig()
	cfg.AdminAddress = "not-bech32"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for malformed admin address")
	}
}

func TestAdminRoundTrip(t *testing.T) {
	cfg := defaultConfig()

	admin, err := cfg.Admin()
	if err != nil {
		t.Fatalf("admin: %v", err)
	}
	if admin != ([20]byte{}) {
		t.Fatal("unset admin must be the zero address")
	}

	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := key.PubKey().Address()
	cfg.AdminAddress = addr.String()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	admin, err = cfg.Admin()
	if err != nil {
		t.Fatalf("admin: %v", err)
	}
	if admin != addr.Array() {
		t.Fatal("admin address did not round-trip")
	}
}

func TestRewardRateParsesLargeValues(t *testing.T) {
	cfg := defaultConfig()
	cfg.RewardRatePerTokenPerHeight = "1000000000000000000"
	rate, err := cfg.RewardRate()
	if err != nil {
		t.Fatalf("reward rate: %v", err)
	}
	want, _ := new(big.Int).SetString("1000000000000000000", 10)
	if rate.Cmp(want) != 0 {
		t.Fatalf("expected %s, got %s", want, rate)
	}
}
