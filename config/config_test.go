package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/kbukum/sonify/encryption"
	"github.com/kbukum/sonify/errors"
)

func validConfig(t *testing.T) Config {
	t.Helper()
	cfg := Config{Cache: Cache{Dir: t.TempDir()}}
	cfg.Transcription.ChunkSize = 30
	cfg.ApplyDefaults()
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	cfg := validConfig(t)

	if cfg.Name != "sonifyd" || cfg.Environment != "development" || !cfg.Debug {
		t.Errorf("unexpected base defaults: %q %q %v", cfg.Name, cfg.Environment, cfg.Debug)
	}
	if cfg.Transcription.Model != "medium" || cfg.Transcription.Language != "en" {
		t.Errorf("unexpected transcription defaults: %+v", cfg.Transcription)
	}
	if cfg.Audio.SampleRate != 16000 || cfg.Audio.Channels != 1 || cfg.Audio.FFmpegPath != "ffmpeg" {
		t.Errorf("unexpected audio defaults: %+v", cfg.Audio)
	}
	if cfg.Server.MaxBatchFiles != 20 {
		t.Errorf("expected max_batch_files 20, got %d", cfg.Server.MaxBatchFiles)
	}
	if cfg.Server.UploadDir != filepath.Join(cfg.Cache.Dir, "uploads") {
		t.Errorf("unexpected upload dir %q", cfg.Server.UploadDir)
	}
	if cfg.Cache.Backend != "file" {
		t.Errorf("expected file backend, got %q", cfg.Cache.Backend)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestApplyDefaultsProductionKeepsDebugOff(t *testing.T) {
	cfg := Config{Environment: "production"}
	cfg.ApplyDefaults()
	if cfg.Debug {
		t.Error("expected debug=false for production")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"unknown model", func(c *Config) { c.Transcription.Model = "huge" }, "transcription.model"},
		{"unknown language", func(c *Config) { c.Transcription.Language = "xx" }, "transcription.language"},
		{"auto language is allowed", func(c *Config) { c.Transcription.Language = "auto" }, ""},
		{"negative chunk size", func(c *Config) { c.Transcription.ChunkSize = -5 }, "transcription.chunk_size"},
		{"zero chunk size is allowed", func(c *Config) { c.Transcription.ChunkSize = 0 }, ""},
		{"unknown backend", func(c *Config) { c.Cache.Backend = "redis" }, "cache.backend"},
		{"unknown environment", func(c *Config) { c.Environment = "qa" }, "environment"},
		{"speaker bounds", func(c *Config) { c.Diarization.MinSpeakers, c.Diarization.MaxSpeakers = 4, 2 }, "min_speakers"},
		{"encrypted without key", func(c *Config) { c.Diarization.CredentialEncrypted = "abc" }, "encryption_key"},
		{"openai without key", func(c *Config) { c.Transcription.Provider = "openai" }, "api_key"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig(t)
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.errMsg == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.HasCode(err, errors.ErrCodeConfiguration) {
				t.Errorf("expected CONFIGURATION_ERROR, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.errMsg) {
				t.Errorf("expected error containing %q, got %q", tc.errMsg, err.Error())
			}
		})
	}
}

func TestResolveCredential(t *testing.T) {
	t.Run("plain wins", func(t *testing.T) {
		got, err := Diarization{Credential: "hf_plain", CredentialEncrypted: "ignored"}.ResolveCredential()
		if err != nil || got != "hf_plain" {
			t.Fatalf("expected hf_plain, got %q (%v)", got, err)
		}
	})

	t.Run("empty stays empty", func(t *testing.T) {
		got, err := Diarization{}.ResolveCredential()
		if err != nil || got != "" {
			t.Fatalf("expected empty credential, got %q (%v)", got, err)
		}
	})

	t.Run("decrypts", func(t *testing.T) {
		enc, err := encryption.New("passphrase", encryption.AlgorithmChaCha20)
		if err != nil {
			t.Fatal(err)
		}
		sealed, err := enc.Encrypt("hf_secret")
		if err != nil {
			t.Fatal(err)
		}
		got, err := Diarization{CredentialEncrypted: sealed, EncryptionKey: "passphrase"}.ResolveCredential()
		if err != nil || got != "hf_secret" {
			t.Fatalf("expected hf_secret, got %q (%v)", got, err)
		}
	})

	t.Run("wrong key", func(t *testing.T) {
		enc, _ := encryption.New("passphrase", "")
		sealed, _ := enc.Encrypt("hf_secret")
		_, err := Diarization{CredentialEncrypted: sealed, EncryptionKey: "other"}.ResolveCredential()
		if !errors.HasCode(err, errors.ErrCodeConfiguration) {
			t.Fatalf("expected CONFIGURATION_ERROR, got %v", err)
		}
	})
}

func TestLoadConfigWithYAML(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yml")

	yamlContent := `
name: sonifyd
environment: staging
transcription:
  model: small
  language: de
server:
  port: 9090
  read_timeout: 45s
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	var cfg Config
	if err := LoadConfig("sonifyd", &cfg, WithConfigFile(configPath), WithFileSystem(&mockFS{files: map[string]bool{configPath: true}}), WithDefaults(Defaults())); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Environment != "staging" {
		t.Errorf("expected environment 'staging', got %q", cfg.Environment)
	}
	if cfg.Transcription.Model != "small" || cfg.Transcription.Language != "de" {
		t.Errorf("unexpected transcription %+v", cfg.Transcription)
	}
	if cfg.Transcription.ChunkSize != 30 {
		t.Errorf("expected default chunk size 30, got %v", cfg.Transcription.ChunkSize)
	}
	if cfg.Server.Port != 9090 || cfg.Server.ReadTimeout.Seconds() != 45 {
		t.Errorf("unexpected server %+v", cfg.Server)
	}
}

func TestLoadConfigChunkSizeZeroFromFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(configPath, []byte("transcription:\n  chunk_size: 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var cfg Config
	if err := LoadConfig("sonifyd", &cfg, WithConfigFile(configPath), WithFileSystem(&mockFS{files: map[string]bool{configPath: true}}), WithDefaults(Defaults())); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Transcription.ChunkSize != 0 {
		t.Errorf("expected chunk size 0 from file, got %v", cfg.Transcription.ChunkSize)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("TRANSCRIPTION_LANGUAGE", "fr")

	var cfg Config
	if err := LoadConfig("sonifyd", &cfg, WithFileSystem(&mockFS{})); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Transcription.Language != "fr" {
		t.Errorf("expected language fr from env, got %q", cfg.Transcription.Language)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	var cfg Config
	err := LoadConfig("nonexistent-service", &cfg, WithConfigFile("/nonexistent/path.yml"))
	if err != nil {
		t.Fatalf("expected LoadConfig to succeed with missing file, got %v", err)
	}
}

func TestResolverWithMockFS(t *testing.T) {
	fs := &mockFS{files: map[string]bool{
		"./cmd/sonifyd/config.yml": true,
		"./.env":                   true,
	}}
	resolver := &Resolver{FileSystem: fs}
	files := resolver.ResolveFiles("sonifyd", LoaderConfig{})
	if files.ConfigFile != "./cmd/sonifyd/config.yml" {
		t.Errorf("expected config file at ./cmd/sonifyd/config.yml, got %q", files.ConfigFile)
	}
	if files.EnvFile == "" {
		t.Error("expected an env file to be resolved")
	}
}

type mockFS struct {
	files map[string]bool
}

func (m *mockFS) Exists(path string) bool   { return m.files[path] }
func (m *mockFS) LoadEnv(path string) error { return nil }

func TestConfigKeys(t *testing.T) {
	keys := configKeys(reflect.TypeOf(&Config{}), "")
	want := map[string]bool{
		"transcription.chunk_size":     false,
		"diarization.credential":       false,
		"server.cors_origins":          false,
		"logging.level":                false,
		"observability.sample_rate":    false,
		"transcription.whisper.url":    false,
		"transcription.openai.api_key": false,
	}
	for _, k := range keys {
		if _, ok := want[k]; ok {
			want[k] = true
		}
		if k == "transcription" || k == "server" {
			t.Errorf("struct key %q should not be a leaf", k)
		}
	}
	for k, found := range want {
		if !found {
			t.Errorf("expected key %q in %v", k, keys)
		}
	}
}

func TestEnvNames(t *testing.T) {
	got := envNames("transcription.chunk_size")
	if len(got) != 2 || got[0] != "SONIFY_TRANSCRIPTION_CHUNK_SIZE" || got[1] != "TRANSCRIPTION_CHUNK_SIZE" {
		t.Errorf("unexpected env names %v", got)
	}
}

func TestLoadConfigPrefixedEnvWins(t *testing.T) {
	t.Setenv("TRANSCRIPTION_MODEL", "small")
	t.Setenv("SONIFY_TRANSCRIPTION_MODEL", "medium")
	t.Setenv("SONIFY_TRANSCRIPTION_CHUNK_SIZE", "12.5")

	var cfg Config
	if err := LoadConfig("sonifyd", &cfg, WithFileSystem(&mockFS{}), WithDefaults(Defaults())); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Transcription.Model != "medium" {
		t.Errorf("expected prefixed model, got %q", cfg.Transcription.Model)
	}
	if cfg.Transcription.ChunkSize != 12.5 {
		t.Errorf("expected chunk size 12.5 from env, got %v", cfg.Transcription.ChunkSize)
	}
}

func TestServerAddr(t *testing.T) {
	if got := (Server{Host: "127.0.0.1", Port: 8080}).Addr(); got != "127.0.0.1:8080" {
		t.Errorf("unexpected addr %q", got)
	}
}
