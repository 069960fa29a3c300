// Package openai implements transcription.Provider with the hosted Whisper
// model behind the OpenAI audio API.
package openai

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/kbukum/sonify/errors"
	"github.com/kbukum/sonify/provider"
	"github.com/kbukum/sonify/transcription"
)

// ProviderName is the registered name for the OpenAI provider.
const ProviderName = "openai"

// Config holds configuration for the OpenAI transcription provider.
type Config struct {
	APIKey  string `json:"api_key" yaml:"api_key"`
	BaseURL string `json:"base_url" yaml:"base_url"`
	// Model overrides the requested model. The hosted API only knows
	// "whisper-1", so local model sizes are mapped onto it.
	Model string `json:"model" yaml:"model"`
}

// Provider implements transcription.Provider over the OpenAI API.
type Provider struct {
	cfg    Config
	client *goopenai.Client
}

// NewProvider creates a new OpenAI transcription provider.
func NewProvider(cfg Config) *Provider {
	if cfg.Model == "" {
		cfg.Model = goopenai.Whisper1
	}
	clientConfig := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &Provider{cfg: cfg, client: goopenai.NewClientWithConfig(clientConfig)}
}

// Factory returns a provider.Factory reading "api_key", "base_url" and "model".
func Factory() provider.Factory[transcription.Provider] {
	return func(cfg map[string]any) (transcription.Provider, error) {
		s := provider.Settings(cfg)
		if s.String("api_key") == "" {
			return nil, errors.Configuration("openai transcription requires an api_key")
		}
		return NewProvider(Config{
			APIKey:  s.String("api_key"),
			BaseURL: s.String("base_url"),
			Model:   s.String("model"),
		}), nil
	}
}

// Name returns the provider name.
func (p *Provider) Name() string { return ProviderName }

// IsAvailable checks that the API accepts the key.
func (p *Provider) IsAvailable(ctx context.Context) bool {
	_, err := p.client.ListModels(ctx)
	return err == nil
}

// Transcribe sends the file to the audio transcription endpoint.
func (p *Provider) Transcribe(ctx context.Context, req transcription.Request) (*transcription.Response, error) {
	audioReq := goopenai.AudioRequest{
		Model:    p.cfg.Model,
		FilePath: req.AudioPath,
		Format:   goopenai.AudioResponseFormatVerboseJSON,
	}
	if req.Language != "" && req.Language != transcription.AutoLanguage {
		audioReq.Language = req.Language
	}

	resp, err := p.client.CreateTranscription(ctx, audioReq)
	if err != nil {
		return nil, mapError(err)
	}

	segments := make([]transcription.Segment, len(resp.Segments))
	for i, seg := range resp.Segments {
		segments[i] = transcription.Segment{Start: seg.Start, End: seg.End, Text: seg.Text}
	}
	return &transcription.Response{
		Text:     resp.Text,
		Segments: segments,
		Language: resp.Language,
		Duration: resp.Duration,
	}, nil
}

func mapError(err error) error {
	var apiErr *goopenai.APIError
	if stderrors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return errors.Configuration("openai rejected the api key").WithCause(err)
		case http.StatusNotFound:
			return errors.CapabilityUnavailable("openai transcription model",
				"set transcription.openai.model to a model your account can use").WithCause(err)
		}
	}
	return errors.ExternalServiceError(ProviderName, fmt.Errorf("create transcription: %w", err))
}

var _ transcription.Provider = (*Provider)(nil)
