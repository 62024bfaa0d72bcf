package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"
)

func TestParseByteSize_K8sAndCommonUnits(t *testing.T) {
	cases := []struct {
		in   string
		want uint64
	}{
		{"1024", 1024},
		{"1Ki", 1024},
		{"1KiB", 1024},
		{"2Mi", 2 * 1024 * 1024},
		{"2MiB", 2 * 1024 * 1024},
		{"3Gi", 3 * 1024 * 1024 * 1024},
		{"10KB", 10 * 1000},
		{"10MB", 10 * 1000 * 1000},
		{"2GB", 2 * 1000 * 1000 * 1000},
	}
	for _, c := range cases {
		got, err := ParseByteSize(c.in)
		if err != nil {
			t.Fatalf("ParseByteSize(%q) error: %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("ParseByteSize(%q) = %d, want %d", c.in, got, c.want)
		}
	}
	if _, err := ParseByteSize("bad"); err == nil {
		t.Fatalf("expected error for invalid unit")
	}
}

func TestLoad_WithEnvAndOverrides(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	t.Setenv("OPENAI_KEY", "sk-test")

	yaml := `
server:
  address: ":0"
  readTimeout: 1s
  maxUploadSize: 1Mi
  workerCount: 1
  storageDir: "` + filepath.ToSlash(dir) + `"
  apiKey: "key123"
  allowedOrigins: ["http://localhost:5173"]
  logLevel: debug

storage:
  backend: file

recognition:
  provider: openai
  openai:
    apiKey: "${OPENAI_KEY}"
    model: gpt-4o

capture:
  interval: 500ms
  maxAttempts: 3

location: Europe/Lisbon
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":0" || cfg.Server.ReadTimeout != time.Second {
		t.Fatalf("server overrides not applied: %+v", cfg.Server)
	}
	if cfg.Server.MaxUploadSize != ByteSize(1024*1024) {
		t.Fatalf("maxUploadSize = %d", cfg.Server.MaxUploadSize)
	}
	if cfg.Server.WriteTimeout != time.Minute {
		t.Fatalf("default writeTimeout not applied: %v", cfg.Server.WriteTimeout)
	}
	if cfg.Recognition.OpenAI.APIKey != "sk-test" {
		t.Fatalf("env expansion failed: %q", cfg.Recognition.OpenAI.APIKey)
	}
	if cfg.Storage.Path != filepath.Join(dir, "blobs") {
		t.Fatalf("storage path default = %q", cfg.Storage.Path)
	}
	if cfg.Capture.Interval != 500*time.Millisecond || cfg.Capture.MaxAttempts != 3 {
		t.Fatalf("capture = %+v", cfg.Capture)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Fatalf("SlogLevel = %v", cfg.SlogLevel())
	}
	loc, err := cfg.TimeLocation()
	if err != nil || loc.String() != "Europe/Lisbon" {
		t.Fatalf("TimeLocation = %v, %v", loc, err)
	}
}

func TestParse_Defaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Parse([]byte("server:\n  storageDir: \"" + filepath.ToSlash(dir) + "\"\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Storage.Backend != "sqlite" || !strings.HasSuffix(cfg.Storage.Path, "autoscan.db") {
		t.Fatalf("storage defaults = %+v", cfg.Storage)
	}
	if cfg.Recognition.Provider != "mock" {
		t.Fatalf("provider default = %q", cfg.Recognition.Provider)
	}
	if cfg.Capture.Interval != 2500*time.Millisecond {
		t.Fatalf("capture interval default = %v", cfg.Capture.Interval)
	}
	if cfg.Server.WorkerCount <= 0 || cfg.Server.QueueCapacity <= 0 {
		t.Fatalf("queue defaults = %+v", cfg.Server)
	}
}

func TestLoad_MissingExplicitFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing explicit config")
	}
}

func TestParse_Validation(t *testing.T) {
	dir := filepath.ToSlash(t.TempDir())
	cases := map[string]string{
		"unknown backend":  "storage:\n  backend: redis\n",
		"unknown provider": "recognition:\n  provider: gemini\n",
		"openai no key":    "recognition:\n  provider: openai\n",
		"bad level":        "server:\n  logLevel: loud\n",
		"bad location":     "location: Mars/Olympus\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			doc := "server:\n  storageDir: \"" + dir + "\"\n"
			if strings.HasPrefix(body, "server:") {
				doc = "server:\n  storageDir: \"" + dir + "\"\n" + strings.TrimPrefix(body, "server:\n")
			} else {
				doc += body
			}
			if _, err := Parse([]byte(doc)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
