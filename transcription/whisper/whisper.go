// Package whisper implements transcription.Provider against a faster-whisper
// HTTP sidecar.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/kbukum/sonify/errors"
	"github.com/kbukum/sonify/provider"
	"github.com/kbukum/sonify/resilience"
	"github.com/kbukum/sonify/transcription"
	"github.com/kbukum/sonify/version"
)

const (
	// ProviderName is the registered name for the Whisper provider.
	ProviderName = "whisper"

	defaultURL     = "http://localhost:8387"
	defaultTimeout = 10 * time.Minute
)

// Config holds configuration for the Whisper transcription provider.
type Config struct {
	URL     string        `json:"url" yaml:"url"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
	// Attempts bounds how often a request that failed with a 5xx is sent.
	Attempts int `json:"attempts" yaml:"attempts"`
}

// Provider implements transcription.Provider using a faster-whisper HTTP sidecar.
type Provider struct {
	cfg    Config
	client *http.Client
	policy *resilience.Policy
}

// NewProvider creates a new Whisper transcription provider.
func NewProvider(cfg Config) *Provider {
	if cfg.URL == "" {
		cfg.URL = defaultURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	retry := resilience.DefaultRetryConfig()
	if cfg.Attempts > 0 {
		retry.MaxAttempts = cfg.Attempts
	}
	return &Provider{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		policy: resilience.NewPolicy(ProviderName, retry),
	}
}

// Factory returns a provider.Factory that creates Whisper Provider
// instances from a generic config map with "url" and "timeout" keys.
func Factory() provider.Factory[transcription.Provider] {
	return func(cfg map[string]any) (transcription.Provider, error) {
		s := provider.Settings(cfg)
		timeout, err := s.Duration("timeout")
		if err != nil {
			return nil, err
		}
		attempts, err := s.Int("attempts")
		if err != nil {
			return nil, err
		}
		return NewProvider(Config{URL: s.String("url"), Timeout: timeout, Attempts: attempts}), nil
	}
}

// Name returns the provider name.
func (p *Provider) Name() string { return ProviderName }

// IsAvailable checks if the Whisper sidecar is reachable.
func (p *Provider) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.URL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Transcribe uploads the audio file to the sidecar and returns its segments.
func (p *Provider) Transcribe(ctx context.Context, req transcription.Request) (*transcription.Response, error) {
	audioData, err := os.ReadFile(req.AudioPath)
	if err != nil {
		return nil, fmt.Errorf("read audio file: %w", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("audio", filepath.Base(req.AudioPath))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(audioData); err != nil {
		return nil, fmt.Errorf("write audio data: %w", err)
	}

	model := req.Model
	if model == "" {
		model = transcription.DefaultModel
	}
	_ = writer.WriteField("model", model)
	if req.Language != "" && req.Language != transcription.AutoLanguage {
		_ = writer.WriteField("language", req.Language)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	body := buf.Bytes()
	var result whisperResponse
	err = p.policy.Do(ctx, func() error {
		return p.post(ctx, body, writer.FormDataContentType(), model, &result)
	})
	if stderrors.Is(err, resilience.ErrCircuitOpen) {
		return nil, errors.CapabilityUnavailable("transcription",
			"the whisper sidecar at "+p.cfg.URL+" keeps failing; check it and retry").WithCause(err)
	}
	if err != nil {
		return nil, err
	}

	return toResponse(&result), nil
}

// post sends one transcription request and decodes the reply into result.
func (p *Provider) post(ctx context.Context, body []byte, contentType, model string, result *whisperResponse) error {
	*result = whisperResponse{}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL+"/transcribe", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("User-Agent", version.UserAgent())

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.CapabilityUnavailable("transcription",
			"start the faster-whisper sidecar at "+p.cfg.URL+" or set transcription.whisper.url").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		cause := fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusUnprocessableEntity {
			return errors.CapabilityUnavailable("transcription model "+model,
				"download the model into the whisper sidecar or choose another transcription.model").WithCause(cause)
		}
		return errors.ExternalServiceError(ProviderName, cause)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return errors.ExternalServiceError(ProviderName, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// --- internal Whisper API response types ---

type whisperResponse struct {
	Text     string           `json:"text"`
	Segments []whisperSegment `json:"segments"`
	Language string           `json:"language"`
	Duration float64          `json:"duration"`
}

type whisperSegment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func toResponse(resp *whisperResponse) *transcription.Response {
	segments := make([]transcription.Segment, len(resp.Segments))
	for i, seg := range resp.Segments {
		segments[i] = transcription.Segment{
			Start: seg.Start,
			End:   seg.End,
			Text:  seg.Text,
		}
	}

	duration := resp.Duration
	if duration == 0 && len(resp.Segments) > 0 {
		duration = resp.Segments[len(resp.Segments)-1].End
	}

	return &transcription.Response{
		Text:     resp.Text,
		Segments: segments,
		Duration: duration,
		Language: resp.Language,
	}
}

var _ transcription.Provider = (*Provider)(nil)
