package config

import (
	"testing"
	"time"
)

// clearAgentEnv blanks every variable Load reads so ambient shell state
// cannot leak into assertions.
func clearAgentEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"PORT", "DB_PATH",
		"ARK_API_KEY", "ARK_ACCESS_KEY", "ARK_SECRET_KEY", "ARK_MODEL",
		"ARK_BASE_URL", "ARK_REGION", "ARK_TEMPERATURE", "ARK_TOP_P", "ARK_MAX_TOKENS",
		"AGENT_MAX_STEPS", "AGENT_TIMEOUT_SECONDS", "HEARTBEAT_SECONDS",
		"HISTORY_WINDOW", "HISTORY_LIMIT", "DISPATCH_WORKERS",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearAgentEnv(t)
	t.Setenv("ARK_API_KEY", "test-key")
	t.Setenv("ARK_MODEL", "test-model")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Addr != ":9000" {
		t.Errorf("Addr = %q, want :9000", cfg.Server.Addr)
	}
	if cfg.Store.Path != "rides.sqlite" {
		t.Errorf("Store.Path = %q", cfg.Store.Path)
	}
	if cfg.AI.MaxSteps != 20 {
		t.Errorf("MaxSteps = %d, want 20", cfg.AI.MaxSteps)
	}

	r := cfg.Relay
	if r.AgentTimeout != 45*time.Second {
		t.Errorf("AgentTimeout = %s", r.AgentTimeout)
	}
	if r.HeartbeatInterval != 30*time.Second {
		t.Errorf("HeartbeatInterval = %s", r.HeartbeatInterval)
	}
	if r.HistoryWindow != 4 || r.HistoryLimit != 8 {
		t.Errorf("history window/limit = %d/%d, want 4/8", r.HistoryWindow, r.HistoryLimit)
	}
	if r.Workers != 4 || r.ChannelBuffer != 16 {
		t.Errorf("workers/buffer = %d/%d", r.Workers, r.ChannelBuffer)
	}
}

func TestLoadFailsWithoutCredentials(t *testing.T) {
	clearAgentEnv(t)
	if _, err := Load(); err == nil {
		t.Fatal("Load succeeded without LLM credentials")
	}

	// Model alone is not enough.
	t.Setenv("ARK_MODEL", "test-model")
	if _, err := Load(); err == nil {
		t.Fatal("Load succeeded with model but no key")
	}

	// An access/secret pair substitutes for the API key.
	t.Setenv("ARK_ACCESS_KEY", "ak")
	t.Setenv("ARK_SECRET_KEY", "sk")
	if _, err := Load(); err != nil {
		t.Fatalf("Load with AK/SK pair: %v", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearAgentEnv(t)
	t.Setenv("ARK_API_KEY", "test-key")
	t.Setenv("ARK_MODEL", "test-model")
	t.Setenv("PORT", "8080")
	t.Setenv("DB_PATH", "/tmp/other.sqlite")
	t.Setenv("AGENT_TIMEOUT_SECONDS", "90")
	t.Setenv("HEARTBEAT_SECONDS", "10")
	t.Setenv("AGENT_MAX_STEPS", "5")
	t.Setenv("DISPATCH_WORKERS", "8")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}
	if cfg.Store.Path != "/tmp/other.sqlite" {
		t.Errorf("Store.Path = %q", cfg.Store.Path)
	}
	if cfg.Relay.AgentTimeout != 90*time.Second {
		t.Errorf("AgentTimeout = %s", cfg.Relay.AgentTimeout)
	}
	if cfg.Relay.HeartbeatInterval != 10*time.Second {
		t.Errorf("HeartbeatInterval = %s", cfg.Relay.HeartbeatInterval)
	}
	if cfg.AI.MaxSteps != 5 {
		t.Errorf("MaxSteps = %d", cfg.AI.MaxSteps)
	}
	if cfg.Relay.Workers != 8 {
		t.Errorf("Workers = %d", cfg.Relay.Workers)
	}
}

func TestLoadClampsWindowToLimit(t *testing.T) {
	clearAgentEnv(t)
	t.Setenv("ARK_API_KEY", "test-key")
	t.Setenv("ARK_MODEL", "test-model")
	t.Setenv("HISTORY_WINDOW", "10")
	t.Setenv("HISTORY_LIMIT", "6")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Relay.HistoryWindow != 6 {
		t.Errorf("HistoryWindow = %d, want clamped to 6", cfg.Relay.HistoryWindow)
	}
}

func TestLoadRejectsBadNumbers(t *testing.T) {
	clearAgentEnv(t)
	t.Setenv("ARK_API_KEY", "test-key")
	t.Setenv("ARK_MODEL", "test-model")
	t.Setenv("AGENT_TIMEOUT_SECONDS", "soon")

	if _, err := Load(); err == nil {
		t.Fatal("Load accepted a non-numeric AGENT_TIMEOUT_SECONDS")
	}
}

func TestPortForms(t *testing.T) {
	clearAgentEnv(t)
	t.Setenv("ARK_API_KEY", "test-key")
	t.Setenv("ARK_MODEL", "test-model")

	t.Setenv("PORT", "127.0.0.1:9100")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:9100" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}

	t.Setenv("PORT", "not a port")
	if _, err := Load(); err == nil {
		t.Fatal("Load accepted a PORT with spaces")
	}
}
