// Package pyannote implements diarization.Provider against a pyannote HTTP
// sidecar.
//
// The sidecar answers POST /diarize either with one JSON document or, when
// asked for application/x-ndjson, with a stream of progress lines
// {"step","completed","total"} followed by the result line.
package pyannote

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/kbukum/sonify/diarization"
	"github.com/kbukum/sonify/errors"
	"github.com/kbukum/sonify/provider"
	"github.com/kbukum/sonify/resilience"
	"github.com/kbukum/sonify/version"
)

const (
	// ProviderName is the registered name for the Pyannote provider.
	ProviderName = "pyannote"

	defaultPyannoteURL     = "http://localhost:8388"
	defaultPyannoteTimeout = 30 * time.Minute

	ndjson = "application/x-ndjson"
)

// Config holds configuration for the Pyannote diarization provider.
type Config struct {
	URL     string        `json:"url" yaml:"url"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
	// Attempts bounds how often a request that failed with a 5xx is sent.
	Attempts int `json:"attempts" yaml:"attempts"`
}

// Provider implements diarization.Provider using the Pyannote HTTP sidecar.
type Provider struct {
	cfg    Config
	client *http.Client
	policy *resilience.Policy
}

// NewProvider creates a new Pyannote diarization provider.
func NewProvider(cfg Config) *Provider {
	if cfg.URL == "" {
		cfg.URL = defaultPyannoteURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultPyannoteTimeout
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

// Factory returns a provider.Factory that creates Pyannote Provider
// instances from a generic config map with "url" and "timeout" keys.
func Factory() provider.Factory[diarization.Provider] {
	return func(cfg map[string]any) (diarization.Provider, error) {
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

// IsAvailable checks if the Pyannote sidecar is reachable.
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

// Diarize sends audio to the Pyannote sidecar and returns its speaker turns.
func (p *Provider) Diarize(ctx context.Context, req diarization.Request) (*diarization.Response, error) {
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

	if req.NumSpeakers > 0 {
		_ = writer.WriteField("num_speakers", strconv.Itoa(req.NumSpeakers))
	}
	if req.MinSpeakers > 0 {
		_ = writer.WriteField("min_speakers", strconv.Itoa(req.MinSpeakers))
	}
	if req.MaxSpeakers > 0 {
		_ = writer.WriteField("max_speakers", strconv.Itoa(req.MaxSpeakers))
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	body := buf.Bytes()
	var resp *http.Response
	err = p.policy.Do(ctx, func() error {
		var postErr error
		resp, postErr = p.post(ctx, body, writer.FormDataContentType(), req)
		return postErr
	})
	if stderrors.Is(err, resilience.ErrCircuitOpen) {
		return nil, errors.CapabilityUnavailable("diarization",
			"the pyannote sidecar at "+p.cfg.URL+" keeps failing; check it and retry").WithCause(err)
	}
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result *pyannoteResponse
	if mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mediaType == ndjson {
		result, err = readStream(resp.Body, req.OnProgress)
	} else {
		result = &pyannoteResponse{}
		err = json.NewDecoder(resp.Body).Decode(result)
	}
	if err != nil {
		return nil, errors.ExternalServiceError(ProviderName, fmt.Errorf("decode response: %w", err))
	}
	if result.Error != "" {
		return nil, errors.ExternalServiceError(ProviderName, fmt.Errorf("diarization error: %s", result.Error))
	}

	return toResponse(result), nil
}

// post sends one diarization request. On success the caller owns the
// response body.
func (p *Provider) post(ctx context.Context, body []byte, contentType string, req diarization.Request) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL+"/diarize", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Authorization", "Bearer "+req.Credential)
	httpReq.Header.Set("User-Agent", version.UserAgent())
	if req.OnProgress != nil {
		httpReq.Header.Set("Accept", ndjson)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.CapabilityUnavailable("diarization",
			"start the pyannote sidecar at "+p.cfg.URL+" or set diarization.url").WithCause(err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return resp, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		resp.Body.Close()
		return nil, errors.Configuration("the diarization credential was rejected; accept the model terms and check diarization.credential")
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, errors.ExternalServiceError(ProviderName,
			fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(msg)))
	}
}

// readStream consumes progress lines until the result line arrives.
func readStream(r io.Reader, onProgress diarization.ProgressFunc) (*pyannoteResponse, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var msg streamLine
		if err := json.Unmarshal(line, &msg); err != nil {
			return nil, err
		}
		if msg.Step != "" {
			if onProgress != nil {
				onProgress(msg.Step, msg.Completed, msg.Total)
			}
			continue
		}
		return &msg.pyannoteResponse, nil
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.ErrUnexpectedEOF
}

// --- internal Pyannote API types ---

type pyannoteResponse struct {
	Segments    []pyannoteSegment `json:"segments"`
	NumSpeakers int               `json:"num_speakers"`
	Error       string            `json:"error,omitempty"`
}

type pyannoteSegment struct {
	SpeakerID string  `json:"speaker_id"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

type streamLine struct {
	Step      string `json:"step"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	pyannoteResponse
}

func toResponse(resp *pyannoteResponse) *diarization.Response {
	turns := make([]diarization.Turn, len(resp.Segments))
	for i, seg := range resp.Segments {
		turns[i] = diarization.Turn{
			Speaker: seg.SpeakerID,
			Start:   seg.StartTime,
			End:     seg.EndTime,
		}
	}
	return &diarization.Response{
		Turns:       turns,
		NumSpeakers: resp.NumSpeakers,
	}
}

var _ diarization.Provider = (*Provider)(nil)
