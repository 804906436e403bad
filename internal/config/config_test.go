package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	chdirTemp(t)
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Store.Driver != "sqlite" {
		t.Fatalf("driver = %q", cfg.Store.Driver)
	}
	if cfg.Store.DSN != filepath.Join("data", "notes.db") {
		t.Fatalf("dsn = %q", cfg.Store.DSN)
	}
	if cfg.StepRetryDelay() != 2*time.Second || cfg.PipelineRetryDelay() != 3*time.Second {
		t.Fatalf("unexpected delays %s %s", cfg.StepRetryDelay(), cfg.PipelineRetryDelay())
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	chdirTemp(t)
	clearEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
[server]
addr = ":9000"

[paths]
data_dir = "/srv/notes"

[store]
driver = "Postgres"
dsn = "postgres://localhost/notes"

[pipeline]
step_retry_delay_seconds = 0.5
history_limit = 10

[stt]
base_url = "http://stt.local/v1"
model = "whisper-1"

[stt.model_variants]
DE = "whisper-de"

[llm]
base_url = "http://llm.local/v1"
model = "gpt"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PORT", "7070")
	t.Setenv("LLM_MODEL", "gpt-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":7070" {
		t.Fatalf("addr = %q, want env override", cfg.Server.Addr)
	}
	if cfg.Store.Driver != "postgres" {
		t.Fatalf("driver = %q", cfg.Store.Driver)
	}
	if cfg.Paths.LockPath != filepath.Join("/srv/notes", "voice-notes.lock") {
		t.Fatalf("lock path = %q", cfg.Paths.LockPath)
	}
	if cfg.StepRetryDelay() != 500*time.Millisecond {
		t.Fatalf("step delay = %s", cfg.StepRetryDelay())
	}
	settings := cfg.Settings()
	if settings.LLM.Model != "gpt-env" {
		t.Fatalf("llm model = %q", settings.LLM.Model)
	}
	if settings.STT.ModelVariants["de"] != "whisper-de" {
		t.Fatalf("variants = %v", settings.STT.ModelVariants)
	}
	if !cfg.HasSeedSettings() {
		t.Fatal("expected seed settings")
	}
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	cfg := Default()
	cfg.Store.Driver = "mysql"
	cfg.Store.DSN = "x"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected driver error")
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"VOICE_NOTES_CONFIG", "ADDR", "PORT", "DATA_DIR", "LOCK_PATH", "STORE_DRIVER", "STORE_DSN",
		"FFMPEG_PATH", "FFPROBE_PATH", "STT_BASE_URL", "STT_API_KEY", "STT_MODEL",
		"LLM_GATEWAY_URL", "LLM_API_KEY", "LLM_MODEL", "HISTORY_LIMIT",
	} {
		t.Setenv(key, "")
	}
}

// chdirTemp changes into a fresh temp dir and restores the previous working
// directory on cleanup (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdirTemp(t *testing.T) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("restore cwd: %v", err)
		}
	})
}
