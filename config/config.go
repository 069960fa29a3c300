package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kbukum/sonify/encryption"
	"github.com/kbukum/sonify/errors"
	"github.com/kbukum/sonify/logger"
	"github.com/kbukum/sonify/observability"
	"github.com/kbukum/sonify/transcription"
	"github.com/kbukum/sonify/validation"
)

// Config is the full sonifyd configuration tree.
type Config struct {
	Name          string               `yaml:"name" mapstructure:"name" validate:"required"`
	Environment   string               `yaml:"environment" mapstructure:"environment" validate:"oneof=development staging production"`
	Version       string               `yaml:"version" mapstructure:"version"`
	Debug         bool                 `yaml:"debug" mapstructure:"debug"`
	Logging       logger.Config        `yaml:"logging" mapstructure:"logging"`
	Cache         Cache                `yaml:"cache" mapstructure:"cache"`
	Audio         Audio                `yaml:"audio" mapstructure:"audio"`
	Transcription Transcription        `yaml:"transcription" mapstructure:"transcription"`
	Diarization   Diarization          `yaml:"diarization" mapstructure:"diarization"`
	Server        Server               `yaml:"server" mapstructure:"server"`
	Observability observability.Config `yaml:"observability" mapstructure:"observability"`
}

// Cache configures where pipeline results are persisted.
type Cache struct {
	Dir        string `yaml:"dir" mapstructure:"dir" validate:"required"`
	Backend    string `yaml:"backend" mapstructure:"backend" validate:"oneof=file sqlite"`
	SQLitePath string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// Audio configures the ffmpeg normalization step.
type Audio struct {
	FFmpegPath string        `yaml:"ffmpeg_path" mapstructure:"ffmpeg_path" validate:"required"`
	SampleRate int           `yaml:"sample_rate" mapstructure:"sample_rate" validate:"gte=8000,lte=48000"`
	Channels   int           `yaml:"channels" mapstructure:"channels" validate:"gte=1,lte=2"`
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// Transcription selects the speech-to-text backend and run defaults.
type Transcription struct {
	Provider  string  `yaml:"provider" mapstructure:"provider" validate:"oneof=whisper openai"`
	Model     string  `yaml:"model" mapstructure:"model" validate:"required,whisper_model"`
	Language  string  `yaml:"language" mapstructure:"language" validate:"required,language_code"`
	ChunkSize float64 `yaml:"chunk_size" mapstructure:"chunk_size" validate:"gte=0"`
	Whisper   Whisper `yaml:"whisper" mapstructure:"whisper"`
	OpenAI    OpenAI  `yaml:"openai" mapstructure:"openai"`
}

// Whisper configures the faster-whisper sidecar.
type Whisper struct {
	URL      string        `yaml:"url" mapstructure:"url" validate:"omitempty,url"`
	Timeout  time.Duration `yaml:"timeout" mapstructure:"timeout"`
	Attempts int           `yaml:"attempts" mapstructure:"attempts" validate:"gte=0,lte=10"`
}

// OpenAI configures the hosted transcription backend.
type OpenAI struct {
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url" validate:"omitempty,url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// Diarization selects the speaker diarization backend.
type Diarization struct {
	Provider            string        `yaml:"provider" mapstructure:"provider" validate:"oneof=pyannote"`
	URL                 string        `yaml:"url" mapstructure:"url" validate:"omitempty,url"`
	Timeout             time.Duration `yaml:"timeout" mapstructure:"timeout"`
	Attempts            int           `yaml:"attempts" mapstructure:"attempts" validate:"gte=0,lte=10"`
	Credential          string        `yaml:"credential" mapstructure:"credential"`
	CredentialEncrypted string        `yaml:"credential_encrypted" mapstructure:"credential_encrypted"`
	EncryptionKey       string        `yaml:"encryption_key" mapstructure:"encryption_key"`
	NumSpeakers         int           `yaml:"num_speakers" mapstructure:"num_speakers" validate:"gte=0"`
	MinSpeakers         int           `yaml:"min_speakers" mapstructure:"min_speakers" validate:"gte=0"`
	MaxSpeakers         int           `yaml:"max_speakers" mapstructure:"max_speakers" validate:"gte=0"`
}

// Server configures the HTTP host. CORSOrigins lists the browser origins
// allowed to call the API; "*" allows any.
type Server struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port" validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	MaxUploadMB     int           `yaml:"max_upload_mb" mapstructure:"max_upload_mb" validate:"gte=1"`
	UploadDir       string        `yaml:"upload_dir" mapstructure:"upload_dir" validate:"required"`
	MaxBatchFiles   int           `yaml:"max_batch_files" mapstructure:"max_batch_files" validate:"gte=1"`
	CORSOrigins     []string      `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// Addr returns host:port.
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Defaults are loader-level defaults for keys whose zero value is meaningful.
func Defaults() map[string]any {
	return map[string]any{
		"transcription.chunk_size": 30.0,
	}
}

// ApplyDefaults fills every unset field.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "sonifyd"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Environment == "development" {
		c.Debug = true
	}
	c.Logging.ApplyDefaults()
	c.Observability.ApplyDefaults()

	if c.Cache.Dir == "" {
		c.Cache.Dir = defaultCacheDir()
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = "file"
	}
	if c.Cache.SQLitePath == "" {
		c.Cache.SQLitePath = filepath.Join(c.Cache.Dir, "cache.db")
	}

	if c.Audio.FFmpegPath == "" {
		c.Audio.FFmpegPath = "ffmpeg"
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Audio.Channels == 0 {
		c.Audio.Channels = 1
	}
	if c.Audio.Timeout == 0 {
		c.Audio.Timeout = 10 * time.Minute
	}

	if c.Transcription.Provider == "" {
		c.Transcription.Provider = "whisper"
	}
	if c.Transcription.Model == "" {
		c.Transcription.Model = transcription.DefaultModel
	}
	if c.Transcription.Language == "" {
		c.Transcription.Language = "en"
	}
	// chunk_size 0 means whole file, so its default of 30 comes from Defaults
	// at load time rather than from here.

	if c.Diarization.Provider == "" {
		c.Diarization.Provider = "pyannote"
	}

	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 5 * time.Minute
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 2 * time.Minute
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	if c.Server.MaxUploadMB == 0 {
		c.Server.MaxUploadMB = 500
	}
	if c.Server.UploadDir == "" {
		c.Server.UploadDir = filepath.Join(c.Cache.Dir, "uploads")
	}
	if c.Server.MaxBatchFiles == 0 {
		c.Server.MaxBatchFiles = 20
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = []string{"*"}
	}
}

// Validate checks the tree after ApplyDefaults. Errors are CONFIGURATION_ERROR.
func (c *Config) Validate() error {
	if err := validation.Validate(c); err != nil {
		return errors.Configuration(err.Error()).WithCause(err)
	}
	if err := c.Logging.Validate(); err != nil {
		return errors.Configuration(err.Error())
	}
	if err := c.Observability.Validate(); err != nil {
		return errors.Configuration(err.Error())
	}
	d := c.Diarization
	if d.MinSpeakers > 0 && d.MaxSpeakers > 0 && d.MinSpeakers > d.MaxSpeakers {
		return errors.Configuration("diarization.min_speakers must not exceed diarization.max_speakers")
	}
	if d.CredentialEncrypted != "" && d.EncryptionKey == "" {
		return errors.Configuration("diarization.encryption_key is required with diarization.credential_encrypted")
	}
	if c.Transcription.Provider == "openai" && c.Transcription.OpenAI.APIKey == "" {
		return errors.Configuration("transcription.openai.api_key is required for the openai provider")
	}
	return nil
}

// ResolveCredential returns the plain diarization credential, decrypting
// credential_encrypted when no plain value is configured. An empty result
// is not an error here; the aligner rejects it before any invocation.
func (d Diarization) ResolveCredential() (string, error) {
	if d.Credential != "" || d.CredentialEncrypted == "" {
		return d.Credential, nil
	}
	enc, err := encryption.New(d.EncryptionKey, encryption.AlgorithmChaCha20)
	if err != nil {
		return "", errors.Configuration("diarization credential: " + err.Error())
	}
	plain, err := enc.Decrypt(d.CredentialEncrypted)
	if err != nil {
		return "", errors.Configuration("diarization credential could not be decrypted").WithCause(err)
	}
	return plain, nil
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "sonify")
	}
	return filepath.Join(os.TempDir(), "sonify")
}
