package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"voice-notes-go/internal/types"
)

// Server holds HTTP listener settings.
type Server struct {
	Addr                string `toml:"addr"`
	ReadTimeoutSeconds  int    `toml:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `toml:"write_timeout_seconds"`
	IdleTimeoutSeconds  int    `toml:"idle_timeout_seconds"`
	MaxUploadMB         int    `toml:"max_upload_mb"`
}

// Paths holds on-disk locations.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LockPath string `toml:"lock_path"`
}

// Store selects the notes database.
type Store struct {
	Driver string `toml:"driver"` // sqlite or postgres
	DSN    string `toml:"dsn"`
}

// Media holds transcoder and prober settings.
type Media struct {
	FFmpeg     string `toml:"ffmpeg"`
	FFprobe    string `toml:"ffprobe"`
	Bitrate    string `toml:"bitrate"`
	Channels   int    `toml:"channels"`
	SampleRate int    `toml:"sample_rate"`
}

// Pipeline holds runner timings.
type Pipeline struct {
	StepRetryDelaySeconds     float64 `toml:"step_retry_delay_seconds"`
	PipelineRetryDelaySeconds float64 `toml:"pipeline_retry_delay_seconds"`
	HistoryLimit              int     `toml:"history_limit"`
}

// STT seeds the transcription settings stored in the database.
type STT struct {
	BaseURL       string            `toml:"base_url"`
	APIKey        string            `toml:"api_key"`
	Model         string            `toml:"model"`
	ModelVariants map[string]string `toml:"model_variants"`
	Task          string            `toml:"task"`
	Temperature   float64           `toml:"temperature"`
}

// LLM seeds the summarization settings stored in the database.
type LLM struct {
	BaseURL      string `toml:"base_url"`
	APIKey       string `toml:"api_key"`
	Model        string `toml:"model"`
	SummaryModel string `toml:"summary_model"`
}

type Config struct {
	Server   Server   `toml:"server"`
	Paths    Paths    `toml:"paths"`
	Store    Store    `toml:"store"`
	Media    Media    `toml:"media"`
	Pipeline Pipeline `toml:"pipeline"`
	STT      STT      `toml:"stt"`
	LLM      LLM      `toml:"llm"`
}

// Load reads .env, then the optional TOML file, then environment overrides.
// An empty path falls back to VOICE_NOTES_CONFIG; a missing file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path == "" {
		path = os.Getenv("VOICE_NOTES_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.normalize()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Addr = envOr("ADDR", c.Server.Addr)
	if port := os.Getenv("PORT"); port != "" {
		c.Server.Addr = ":" + port
	}
	c.Paths.DataDir = envOr("DATA_DIR", c.Paths.DataDir)
	c.Paths.LockPath = envOr("LOCK_PATH", c.Paths.LockPath)
	c.Store.Driver = envOr("STORE_DRIVER", c.Store.Driver)
	c.Store.DSN = envOr("STORE_DSN", c.Store.DSN)
	c.Media.FFmpeg = envOr("FFMPEG_PATH", c.Media.FFmpeg)
	c.Media.FFprobe = envOr("FFPROBE_PATH", c.Media.FFprobe)
	c.STT.BaseURL = envOr("STT_BASE_URL", c.STT.BaseURL)
	c.STT.APIKey = envOr("STT_API_KEY", c.STT.APIKey)
	c.STT.Model = envOr("STT_MODEL", c.STT.Model)
	c.LLM.BaseURL = envOr("LLM_GATEWAY_URL", c.LLM.BaseURL)
	c.LLM.APIKey = envOr("LLM_API_KEY", c.LLM.APIKey)
	c.LLM.Model = envOr("LLM_MODEL", c.LLM.Model)
	if v := os.Getenv("HISTORY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Pipeline.HistoryLimit = n
		}
	}
}

func (c *Config) normalize() {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	c.Paths.DataDir = expandHome(c.Paths.DataDir)
	c.Paths.LockPath = expandHome(c.Paths.LockPath)
	if c.Paths.LockPath == "" {
		c.Paths.LockPath = filepath.Join(c.Paths.DataDir, "voice-notes.lock")
	}
	if c.Store.Driver == "sqlite" && c.Store.DSN == "" {
		c.Store.DSN = filepath.Join(c.Paths.DataDir, "notes.db")
	}
}

// Validate reports the first missing or inconsistent value.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return errors.New("server.addr is required")
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir is required")
	}
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("store.driver %q is not supported (sqlite, postgres)", c.Store.Driver)
	}
	if c.Store.DSN == "" {
		return errors.New("store.dsn is required")
	}
	if c.Media.Channels <= 0 || c.Media.SampleRate <= 0 {
		return errors.New("media.channels and media.sample_rate must be positive")
	}
	if c.Pipeline.StepRetryDelaySeconds < 0 || c.Pipeline.PipelineRetryDelaySeconds < 0 {
		return errors.New("pipeline retry delays must not be negative")
	}
	return nil
}

// EnsureDirectories creates the data directory tree.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Paths.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if dir := filepath.Dir(c.Paths.LockPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create lock dir: %w", err)
		}
	}
	return nil
}

func (c *Config) StepRetryDelay() time.Duration {
	return seconds(c.Pipeline.StepRetryDelaySeconds)
}

func (c *Config) PipelineRetryDelay() time.Duration {
	return seconds(c.Pipeline.PipelineRetryDelaySeconds)
}

// Settings converts the seed sections into the runtime settings bundle.
func (c *Config) Settings() types.Settings {
	variants := make(map[string]string, len(c.STT.ModelVariants))
	for k, v := range c.STT.ModelVariants {
		variants[strings.ToLower(k)] = v
	}
	return types.Settings{
		STT: types.STTSettings{
			BaseURL:       c.STT.BaseURL,
			APIKey:        c.STT.APIKey,
			Model:         c.STT.Model,
			ModelVariants: variants,
			Task:          c.STT.Task,
			Temperature:   c.STT.Temperature,
		},
		LLM: types.LLMSettings{
			BaseURL:      c.LLM.BaseURL,
			APIKey:       c.LLM.APIKey,
			Model:        c.LLM.Model,
			SummaryModel: c.LLM.SummaryModel,
		},
	}
}

// HasSeedSettings reports whether the file or env carried endpoint settings worth storing.
func (c *Config) HasSeedSettings() bool {
	return c.STT.BaseURL != "" || c.LLM.BaseURL != ""
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
