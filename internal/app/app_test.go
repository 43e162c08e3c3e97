package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/piyushdaiya/nonce-checker/internal/config"
	"github.com/piyushdaiya/nonce-checker/internal/registry"
)

const registryYAML = `ledgers:
  - name: Local
    rpc_url: http://127.0.0.1:8545
    chain_id: 31337
`

func writeRegistry(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledgers.yaml")
	if err := os.WriteFile(path, []byte(registryYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadLedgersDefault(t *testing.T) {
	got, err := LoadLedgers(context.Background(), &config.Config{})
	if err != nil {
		t.Fatalf("LoadLedgers: %v", err)
	}
	if len(got) != len(registry.Default()) {
		t.Fatalf("got %d ledgers, want the default %d", len(got), len(registry.Default()))
	}
}

func TestLoadLedgersFile(t *testing.T) {
	got, err := LoadLedgers(context.Background(), &config.Config{RegistryFile: writeRegistry(t)})
	if err != nil {
		t.Fatalf("LoadLedgers: %v", err)
	}
	if len(got) != 1 || got[0].Name != "Local" || got[0].ChainID != 31337 {
		t.Fatalf("unexpected ledgers %+v", got)
	}
}

func TestLoadLedgersSeedsDatabaseOnce(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		RegistryDB:   filepath.Join(dir, "registry.db"),
		RegistryFile: writeRegistry(t),
	}
	first, err := LoadLedgers(context.Background(), cfg)
	if err != nil {
		t.Fatalf("first load: %v", err)
	}
	if len(first) != 1 || first[0].Name != "Local" {
		t.Fatalf("seeded ledgers %+v", first)
	}

	// The database now wins over the file.
	cfg.RegistryFile = ""
	second, err := LoadLedgers(context.Background(), cfg)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if len(second) != 1 || second[0].Name != "Local" {
		t.Fatalf("reloaded ledgers %+v, want the seeded registry", second)
	}
}

func TestLoadLedgersBadFile(t *testing.T) {
	_, err := LoadLedgers(context.Background(), &config.Config{RegistryFile: filepath.Join(t.TempDir(), "missing.yaml")})
	if err == nil {
		t.Fatal("expected an error for a missing registry file")
	}
}

func TestBuild(t *testing.T) {
	cfg, err := config.FromEnv()
	if err != nil {
		t.Fatal(err)
	}
	cfg.ENSRPCURL = "http://127.0.0.1:1"
	ctrl, closeFn, err := Build(context.Background(), cfg, registry.Default())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer closeFn()
	if got := len(ctrl.Ledgers()); got != len(registry.Default()) {
		t.Fatalf("controller has %d ledgers", got)
	}
	if s := ctrl.Run(context.Background(), "not-an-input"); s.Error != "invalid input" {
		t.Fatalf("got %+v, want invalid input", s)
	}
}
