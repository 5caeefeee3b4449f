package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "payanchor.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validConfig = `
contract:
  id: c-1
  property_id: prop-1
chain:
  rpc_url: http://localhost:8545
  chain_id: "1337"
  network_name: devnet
store:
  backend: bolt
  data_dir: /tmp/payanchor
`

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Contract.ID != "c-1" {
		t.Errorf("Expected contract id c-1, got %s", cfg.Contract.ID)
	}
	if cfg.Chain.NetworkName != "devnet" {
		t.Errorf("Expected network devnet, got %s", cfg.Chain.NetworkName)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Chain.VerifyAttempts != 5 {
		t.Errorf("Expected default 5 verify attempts, got %d", cfg.Chain.VerifyAttempts)
	}
	if cfg.Chain.VerifyDelay != 2*time.Second {
		t.Errorf("Expected default 2s verify delay, got %s", cfg.Chain.VerifyDelay)
	}
	if cfg.Store.Backend != "bolt" {
		t.Errorf("Expected default bolt backend, got %s", cfg.Store.Backend)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("PAYANCHOR_TEST_WEBHOOK", "https://hooks.example.com/T123")

	cfg, err := Load(writeConfig(t, validConfig+`
alerts:
  enabled: true
  slack_webhook: ${PAYANCHOR_TEST_WEBHOOK}
`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Alerts.SlackWebhook != "https://hooks.example.com/T123" {
		t.Errorf("Env var not expanded, got %s", cfg.Alerts.SlackWebhook)
	}
}

func TestLoadRejectsMissingRequiredFields(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"missing contract id", `
contract:
  property_id: prop-1
chain:
  rpc_url: http://localhost:8545
  chain_id: "1337"
store:
  data_dir: /tmp/x
`},
		{"missing rpc url", `
contract:
  id: c-1
  property_id: prop-1
chain:
  chain_id: "1337"
store:
  data_dir: /tmp/x
`},
		{"postgres without dsn", `
contract:
  id: c-1
  property_id: prop-1
chain:
  rpc_url: http://localhost:8545
  chain_id: "1337"
store:
  backend: postgres
`},
		{"unknown backend", `
contract:
  id: c-1
  property_id: prop-1
chain:
  rpc_url: http://localhost:8545
  chain_id: "1337"
store:
  backend: mongo
`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.content)); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}
