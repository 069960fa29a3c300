package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/kbukum/sonify/cache"
	apperrors "github.com/kbukum/sonify/errors"
	"github.com/kbukum/sonify/logger"
	"github.com/kbukum/sonify/observability"
	"github.com/kbukum/sonify/process"
)

// PathSchema versions the converted-audio cache entries.
const PathSchema = 1

// Normalizer converts an input file into the WAV format the capabilities
// expect and returns the path of the converted file.
type Normalizer interface {
	Normalize(ctx context.Context, src string) (string, error)
}

// FFmpegConfig configures FFmpegNormalizer.
type FFmpegConfig struct {
	// Binary is the ffmpeg executable. Defaults to "ffmpeg".
	Binary string
	// SampleRate of the output. Defaults to 16000.
	SampleRate int
	// Channels of the output. Defaults to 1.
	Channels int
	// Timeout bounds one conversion. Zero means none.
	Timeout time.Duration
	// OutputDir receives the converted files, one per original content hash.
	OutputDir string
}

// FFmpegNormalizer converts audio with ffmpeg.
type FFmpegNormalizer struct {
	cfg   FFmpegConfig
	cache *cache.Cache[string]
	log   *logger.Logger
}

// NewFFmpegNormalizer returns a normalizer whose converted-audio index is
// kept in c. c maps hash(original bytes) to the converted file's path.
func NewFFmpegNormalizer(cfg FFmpegConfig, c *cache.Cache[string], log *logger.Logger) (*FFmpegNormalizer, error) {
	if cfg.Binary == "" {
		cfg.Binary = "ffmpeg"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels == 0 {
		cfg.Channels = 1
	}
	if cfg.OutputDir == "" {
		return nil, fmt.Errorf("audio: output dir is required")
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o750); err != nil {
		return nil, fmt.Errorf("audio: create output dir: %w", err)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &FFmpegNormalizer{cfg: cfg, cache: c, log: log.WithComponent("normalizer")}, nil
}

// Name implements observability.Availability.
func (n *FFmpegNormalizer) Name() string { return "ffmpeg" }

// IsAvailable reports whether the ffmpeg binary can be resolved.
func (n *FFmpegNormalizer) IsAvailable(context.Context) bool {
	_, err := process.LookPath(n.cfg.Binary)
	return err == nil
}

// Normalize implements Normalizer. A cached conversion whose file has since
// vanished is treated as a miss and redone.
func (n *FFmpegNormalizer) Normalize(ctx context.Context, src string) (string, error) {
	key, err := cache.FileKey(src)
	if err != nil {
		return "", apperrors.InvalidInput("audio", err.Error()).WithCause(err)
	}
	log := n.log.WithFields(logger.Fields(logger.FieldKey, key))

	if path, ok, err := n.cache.Get(ctx, key); err != nil {
		return "", err
	} else if ok {
		if _, statErr := os.Stat(path); statErr == nil {
			return path, nil
		}
		log.Debug("cached conversion vanished", logger.Fields(logger.FieldPath, path))
	}

	if _, err := process.LookPath(n.cfg.Binary); err != nil {
		return "", apperrors.CapabilityUnavailable("ffmpeg",
			"install ffmpeg (e.g. `apt install ffmpeg` or `brew install ffmpeg`) or set audio.ffmpeg_path")
	}

	ctx, span := observability.StartSpan(ctx, observability.SpanNormalize)
	out, err := n.convert(ctx, src, key)
	observability.EndSpan(span, err)
	if err != nil {
		return "", err
	}

	if err := n.cache.Put(ctx, key, out); err != nil {
		return "", err
	}
	log.Info("audio normalized", logger.Fields(logger.FieldPath, out))
	return out, nil
}

func (n *FFmpegNormalizer) convert(ctx context.Context, src, key string) (string, error) {
	final := filepath.Join(n.cfg.OutputDir, key+".wav")
	// Each conversion writes its own partial file so concurrent runs on the
	// same content never share one; the last rename wins.
	tmp, err := os.CreateTemp(n.cfg.OutputDir, "."+key+"-*.partial.wav")
	if err != nil {
		return "", fmt.Errorf("audio: create partial file: %w", err)
	}
	partial := tmp.Name()
	_ = tmp.Close()

	_, err = process.Run(ctx, process.Command{
		Binary: n.cfg.Binary,
		Args: []string{
			"-loglevel", "error", "-y",
			"-i", src,
			"-ac", strconv.Itoa(n.cfg.Channels),
			"-ar", strconv.Itoa(n.cfg.SampleRate),
			"-f", "wav",
			partial,
		},
		Timeout: n.cfg.Timeout,
	})
	if err != nil {
		_ = os.Remove(partial)
		if errors.Is(err, process.ErrBinaryNotFound) {
			return "", apperrors.CapabilityUnavailable("ffmpeg", "install ffmpeg or set audio.ffmpeg_path")
		}
		if ctx.Err() != nil {
			return "", apperrors.Canceled("audio normalization").WithCause(err)
		}
		return "", apperrors.ExternalToolFailure("ffmpeg", err)
	}

	if err := os.Rename(partial, final); err != nil {
		_ = os.Remove(partial)
		return "", fmt.Errorf("audio: commit converted file: %w", err)
	}
	return final, nil
}

var _ Normalizer = (*FFmpegNormalizer)(nil)
