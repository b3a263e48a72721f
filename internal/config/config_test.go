package config

import (
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.RPC.Endpoint == "" {
		t.Error("expected non-empty RPC endpoint")
	}
	if cfg.Trading.PriorityFeeCapMicroLamports != 1000000 {
		t.Errorf("PriorityFeeCapMicroLamports = %d, want 1000000", cfg.Trading.PriorityFeeCapMicroLamports)
	}
	if cfg.Trading.ComputeUnitDefault != 1200000 {
		t.Errorf("ComputeUnitDefault = %d, want 1200000", cfg.Trading.ComputeUnitDefault)
	}
	if cfg.PreTrade.PumpFunMinMarketCapSol != 1000 {
		t.Errorf("PumpFunMinMarketCapSol = %v, want 1000", cfg.PreTrade.PumpFunMinMarketCapSol)
	}
}

func TestLoadConfigCreatesDefault(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Storage.DataDir != dir {
		t.Errorf("DataDir = %s, want %s", cfg.Storage.DataDir, dir)
	}

	expectedPath := filepath.Join(dir, ConfigFileName)
	cfg2, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig (second read): %v", err)
	}
	if cfg2.RPC.Endpoint != cfg.RPC.Endpoint {
		t.Error("second LoadConfig diverged from the persisted defaults")
	}
	if ConfigPath(dir) != expectedPath {
		t.Errorf("ConfigPath = %s, want %s", ConfigPath(dir), expectedPath)
	}
}

func TestLoadConfigPreservesOverrides(t *testing.T) {
	dir := t.TempDir()

	cfg := DefaultConfig()
	cfg.Storage.DataDir = dir
	cfg.Trading.SlippageBps = 750
	if err := cfg.Save(filepath.Join(dir, ConfigFileName)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if loaded.Trading.SlippageBps != 750 {
		t.Errorf("SlippageBps = %d, want 750", loaded.Trading.SlippageBps)
	}
}

func TestPriorityFeeMicroLamportsBelowCap(t *testing.T) {
	tc := TradingConfig{PriorityFeeCapMicroLamports: 1000000, PriorityFeeRatioOfSol: 0.15}

	// 1,000,000 lamports * 0.15 = 150,000, well under the cap.
	if got := tc.PriorityFeeMicroLamports(1000000); got != 150000 {
		t.Errorf("PriorityFeeMicroLamports(1000000) = %d, want 150000", got)
	}
}

func TestPriorityFeeMicroLamportsCap(t *testing.T) {
	tc := TradingConfig{PriorityFeeCapMicroLamports: 1000000, PriorityFeeRatioOfSol: 0.15}

	// A large trade amount should be capped rather than scaled linearly.
	got := tc.PriorityFeeMicroLamports(1000000000000)
	if got != tc.PriorityFeeCapMicroLamports {
		t.Errorf("PriorityFeeMicroLamports = %d, want cap %d", got, tc.PriorityFeeCapMicroLamports)
	}
}

func TestExpandPath(t *testing.T) {
	if expandPath("/absolute/path") != "/absolute/path" {
		t.Error("expandPath should leave absolute paths unchanged")
	}
	expanded := expandPath("~/data")
	if expanded == "~/data" {
		t.Error("expandPath should expand ~ to the home directory")
	}
}
