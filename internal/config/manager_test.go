package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

const yamlConfig = `
telegram:
  token: "123:abc"
  poll_timeout: "15s"
  send_rate_per_sec: 10
logging:
  level: debug
  console: false
  file:
    enabled: true
    path: /tmp/timetask.log
storage:
  path: /tmp/tasks.db
  busy_timeout: "2s"
scheduler:
  interval: "5s"
  timezone: Asia/Shanghai
dispatch:
  timeout: "30s"
  retry_max: 4
  retry_base: "1s"
gateway:
  debounce_window: "250ms"
`

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	path := writeFile(t, t.TempDir(), "config.yaml", yamlConfig)

	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" || cfg.Telegram.SendRatePerSec != 10 {
		t.Fatalf("telegram = %+v", cfg.Telegram)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.ConsoleEnabled() {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if !cfg.Logging.File.Enabled || cfg.Logging.File.Path != "/tmp/timetask.log" {
		t.Fatalf("file logging = %+v", cfg.Logging.File)
	}
	if cfg.Scheduler.Timezone != "Asia/Shanghai" {
		t.Fatalf("scheduler = %+v", cfg.Scheduler)
	}
	if cfg.Dispatch.RetryMax != 4 || cfg.Gateway.DebounceWindow != "250ms" {
		t.Fatalf("dispatch=%+v gateway=%+v", cfg.Dispatch, cfg.Gateway)
	}
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()
	path := writeFile(t, t.TempDir(), "config.json",
		`{"telegram":{"token":"t"},"storage":{"path":"/tmp/x.db"}}`)

	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "t" || cfg.Storage.Path != "/tmp/x.db" {
		t.Fatalf("cfg = %+v", cfg)
	}
	// Omitted console defaults to enabled.
	if !cfg.Logging.ConsoleEnabled() {
		t.Fatal("console should default to enabled")
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeFile(t, t.TempDir(), "config.json",
		`{"telegram":{"token":"t"},"surprise":true}`)

	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("expected unknown field to be rejected")
	}
}

func TestLoadRejectsTrailingData(t *testing.T) {
	t.Parallel()
	path := writeFile(t, t.TempDir(), "config.json",
		`{"telegram":{"token":"t"}}{"extra":1}`)

	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("expected trailing data to be rejected")
	}
}

func TestCurrentReflectsCommit(t *testing.T) {
	t.Parallel()
	path := writeFile(t, t.TempDir(), "config.json", `{"telegram":{"token":"t"}}`)

	m := NewManager(path)
	if m.Current() != nil {
		t.Fatal("Current before Load should be nil")
	}
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Current() != cfg {
		t.Fatal("Current should return the committed config")
	}
}

func TestReloadKeepsPreviousOnParseError(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeFile(t, dir, "config.json", `{"telegram":{"token":"t"}}`)

	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	writeFile(t, dir, "config.json", `{not json`)
	m.reload()
	if m.Current() != cfg {
		t.Fatal("broken reload must keep the previous config")
	}
}

func TestReloadPublishesChange(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeFile(t, dir, "config.json", `{"telegram":{"token":"t"}}`)

	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	var published *Config
	m.SetOnChange(func(c *Config) { published = c })

	// Same content: no publish.
	m.reload()
	if published != nil {
		t.Fatal("unchanged content must not republish")
	}

	writeFile(t, dir, "config.json", `{"telegram":{"token":"t2"}}`)
	m.reload()
	if published == nil || published.Telegram.Token != "t2" {
		t.Fatalf("published = %+v, want the new config", published)
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationField("x", "150ms")
	if err != nil || d.Milliseconds() != 150 {
		t.Fatalf("got %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", "never"); err == nil {
		t.Fatal("expected error for a bad duration")
	}
	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("empty value should be zero, got %v, %v", d, err)
	}
}
