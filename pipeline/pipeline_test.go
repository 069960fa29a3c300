package pipeline_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/kbukum/sonify/cache"
	"github.com/kbukum/sonify/diarization"
	"github.com/kbukum/sonify/errors"
	"github.com/kbukum/sonify/pipeline"
	"github.com/kbukum/sonify/testutil"
	"github.com/kbukum/sonify/transcription"
)

// passthrough treats every source as already normalized.
type passthrough struct {
	mu    sync.Mutex
	calls int
	fail  map[string]bool
}

func (n *passthrough) Normalize(_ context.Context, src string) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	if n.fail[src] {
		return "", errors.ExternalToolFailure("ffmpeg", fmt.Errorf("exit status 1"))
	}
	return src, nil
}

type speechToText struct{ calls int }

func (s *speechToText) Name() string                       { return "fake" }
func (s *speechToText) IsAvailable(_ context.Context) bool { return true }

func (s *speechToText) Transcribe(_ context.Context, _ transcription.Request) (*transcription.Response, error) {
	s.calls++
	return &transcription.Response{
		Text: "hello there",
		Segments: []transcription.Segment{
			{Start: 1, End: 4, Text: "hello"},
			{Start: 10, End: 14, Text: "there"},
		},
	}, nil
}

type speakers struct{ calls int }

func (s *speakers) Name() string                       { return "fake" }
func (s *speakers) IsAvailable(_ context.Context) bool { return true }

func (s *speakers) Diarize(_ context.Context, _ diarization.Request) (*diarization.Response, error) {
	s.calls++
	return &diarization.Response{
		Turns: []diarization.Turn{
			{Speaker: "SPEAKER_00", Start: 0, End: 8},
			{Speaker: "SPEAKER_01", Start: 8, End: 30},
			{Speaker: "SPEAKER_01", Start: 40, End: 50},
		},
		NumSpeakers: 2,
	}, nil
}

type harness struct {
	norm  *passthrough
	stt   *speechToText
	diar  *speakers
	store *testutil.MemoryStore
	p     *pipeline.Pipeline
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		norm:  &passthrough{fail: map[string]bool{}},
		stt:   &speechToText{},
		diar:  &speakers{},
		store: testutil.NewMemoryStore(),
	}
	whole := cache.New[transcription.Response](h.store, cache.DomainTranscript, transcription.ResponseSchema, nil, nil)
	chunks := cache.New[transcription.Response](h.store, cache.DomainChunk, transcription.ResponseSchema, nil, nil)
	turns := cache.New[diarization.Entry](h.store, cache.DomainTurns, diarization.EntrySchema, nil, nil)
	runs := cache.New[pipeline.Record](h.store, cache.DomainRuns, pipeline.RecordSchema, nil, nil)

	p, err := pipeline.New(pipeline.Components{
		Normalizer:  h.norm,
		Transcriber: transcription.NewTranscriber(h.stt, whole, chunks, nil, nil),
		Aligner:     diarization.NewAligner(h.diar, turns, nil, nil),
		Runs:        pipeline.NewRunCache(runs),
	}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	h.p = p
	return h
}

func request(src string) pipeline.Request {
	return pipeline.Request{
		Source:      src,
		Model:       "small",
		Language:    "en",
		ChunkSize:   30,
		Diarize:     true,
		Diarization: pipeline.DiarizationOptions{Credential: "hf_token"},
	}
}

func TestProcess(t *testing.T) {
	h := newHarness(t)
	src := testutil.WriteWAV(t, filepath.Join(t.TempDir(), "meeting.wav"), 65, 8000)

	out, err := h.p.Process(context.Background(), request(src))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if h.stt.calls != 3 || h.diar.calls != 1 {
		t.Fatalf("calls stt=%d diar=%d", h.stt.calls, h.diar.calls)
	}
	// The last chunk is 5s long, so its 10s-14s segment falls outside the file.
	if len(out.Segments) != 5 || out.Cached {
		t.Fatalf("unexpected output %+v", out)
	}
	for _, seg := range out.Segments {
		if seg.End > 65 {
			t.Errorf("segment %+v ends past the 65s file", seg)
		}
	}
	for i := 1; i < len(out.Segments); i++ {
		if out.Segments[i].Start < out.Segments[i-1].Start {
			t.Errorf("segments out of order at %d: %+v", i, out.Segments)
		}
	}
	if len(out.Turns) != 3 || out.Turns[0].Text != "hello" || out.Turns[1].Text != "there" || out.Turns[2].Text != "there" {
		t.Errorf("unexpected turns %+v", out.Turns)
	}
	if out.Identity.Model != "small" || out.Identity.Language != "en" || out.Identity.ContentHash == "" {
		t.Errorf("unexpected identity %+v", out.Identity)
	}

	// Same bytes under another name hit every cache.
	renamed := filepath.Join(t.TempDir(), "renamed.wav")
	data, _ := os.ReadFile(src)
	if err := os.WriteFile(renamed, data, 0o644); err != nil {
		t.Fatal(err)
	}
	again, err := h.p.Process(context.Background(), request(renamed))
	if err != nil {
		t.Fatal(err)
	}
	if !again.Cached || h.stt.calls != 3 || h.diar.calls != 1 {
		t.Errorf("second run should be cached: cached=%v stt=%d diar=%d", again.Cached, h.stt.calls, h.diar.calls)
	}
	if again.Identity != out.Identity || len(again.Turns) != len(out.Turns) {
		t.Errorf("cached output differs")
	}
}

func TestLookup(t *testing.T) {
	h := newHarness(t)
	src := testutil.WriteWAV(t, filepath.Join(t.TempDir(), "a.wav"), 10, 8000)
	ctx := context.Background()

	prep, err := h.p.Prepare(ctx, src, "small", "en")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok, err := h.p.Lookup(ctx, prep); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	req := request(src)
	req.Diarize = false
	if _, err := h.p.Process(ctx, req); err != nil {
		t.Fatal(err)
	}
	out, ok, err := h.p.Lookup(ctx, prep)
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if out.Turns != nil {
		t.Errorf("no turns expected before diarization")
	}

	if err := h.p.Diarize(ctx, out, pipeline.DiarizationOptions{Credential: "tok"}, false, nil); err != nil {
		t.Fatal(err)
	}
	out, _, _ = h.p.Lookup(ctx, prep)
	if len(out.Turns) == 0 {
		t.Errorf("cached turns should be returned after diarization")
	}
}

func TestProcessDiarizeWithoutCredential(t *testing.T) {
	h := newHarness(t)
	req := request("missing.wav")
	req.Diarization.Credential = ""

	_, err := h.p.Process(context.Background(), req)
	if !errors.HasCode(err, errors.ErrCodeConfiguration) {
		t.Fatalf("expected CONFIGURATION_ERROR, got %v", err)
	}
	if h.norm.calls != 0 || h.stt.calls != 0 {
		t.Errorf("nothing should run before the configuration check")
	}
}

func TestProcessCanceledKeepsNoRecord(t *testing.T) {
	h := newHarness(t)
	src := testutil.WriteWAV(t, filepath.Join(t.TempDir(), "a.wav"), 65, 8000)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := request(src)
	req.OnTranscribeProgress = func(completed, _ int) {
		if completed == 2 {
			cancel()
		}
	}
	out, err := h.p.Process(ctx, req)
	if !errors.HasCode(err, errors.ErrCodeCanceled) {
		t.Fatalf("expected CANCELED, got %v", err)
	}
	if out == nil || len(out.Segments) != 4 {
		t.Fatalf("expected partial output with 2 chunks, got %+v", out)
	}
	if h.store.Len(cache.DomainRuns) != 0 {
		t.Errorf("a canceled run must not write a run record")
	}
	if h.store.Len(cache.DomainChunk) != 2 {
		t.Errorf("finished chunks must stay cached, got %d", h.store.Len(cache.DomainChunk))
	}
}

func TestForcedTranscribeCanceledDropsRecord(t *testing.T) {
	h := newHarness(t)
	src := testutil.WriteWAV(t, filepath.Join(t.TempDir(), "a.wav"), 65, 8000)
	req := request(src)
	req.Diarize = false

	if _, err := h.p.Process(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if h.store.Len(cache.DomainRuns) != 1 {
		t.Fatalf("expected a run record after the first run")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	prep, err := h.p.Prepare(ctx, src, req.Model, req.Language)
	if err != nil {
		t.Fatal(err)
	}
	req.Force = true
	req.OnTranscribeProgress = func(completed, _ int) {
		if completed == 1 {
			cancel()
		}
	}
	if _, err := h.p.Transcribe(ctx, prep, req); !errors.HasCode(err, errors.ErrCodeCanceled) {
		t.Fatalf("expected CANCELED, got %v", err)
	}

	if h.store.Len(cache.DomainRuns) != 0 {
		t.Errorf("forced run left %d run records", h.store.Len(cache.DomainRuns))
	}
	if _, ok, err := h.p.Lookup(context.Background(), prep); err != nil || ok {
		t.Errorf("lookup after a canceled forced run: ok=%v err=%v", ok, err)
	}
}

func TestBatch(t *testing.T) {
	h := newHarness(t)
	dir := t.TempDir()
	var sources []string
	for i := range 3 {
		sources = append(sources, testutil.WriteWAV(t, filepath.Join(dir, fmt.Sprintf("f%d.wav", i)), float64(5+i), 8000))
	}
	h.norm.fail[sources[1]] = true

	var seen []int
	results, err := h.p.Batch(context.Background(), sources, request(""), pipeline.BatchOptions{
		OnFile: func(index, total int, _ pipeline.FileResult) { seen = append(seen, index) },
	})
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if len(results) != 3 || len(seen) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Err != nil || results[2].Err != nil {
		t.Errorf("unexpected errors %v %v", results[0].Err, results[2].Err)
	}
	if !errors.HasCode(results[1].Err, errors.ErrCodeExternalTool) {
		t.Errorf("expected tool failure for second file, got %v", results[1].Err)
	}
}

func TestBatchLimits(t *testing.T) {
	h := newHarness(t)
	sources := make([]string, pipeline.DefaultMaxBatchFiles+1)
	_, err := h.p.Batch(context.Background(), sources, request(""), pipeline.BatchOptions{})
	if !errors.HasCode(err, errors.ErrCodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
	if _, err := h.p.Batch(context.Background(), nil, request(""), pipeline.BatchOptions{}); !errors.HasCode(err, errors.ErrCodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT for empty batch, got %v", err)
	}
}

func TestBatchCanceled(t *testing.T) {
	h := newHarness(t)
	dir := t.TempDir()
	sources := []string{
		testutil.WriteWAV(t, filepath.Join(dir, "a.wav"), 3, 8000),
		testutil.WriteWAV(t, filepath.Join(dir, "b.wav"), 4, 8000),
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results, err := h.p.Batch(ctx, sources, request(""), pipeline.BatchOptions{
		OnFile: func(int, int, pipeline.FileResult) { cancel() },
	})
	if !errors.HasCode(err, errors.ErrCodeCanceled) {
		t.Fatalf("expected CANCELED, got %v", err)
	}
	if len(results) != 1 {
		t.Errorf("batch should stop after the first file, got %d results", len(results))
	}
}

func TestNewRequiresComponents(t *testing.T) {
	if _, err := pipeline.New(pipeline.Components{}, nil, nil); !errors.HasCode(err, errors.ErrCodeConfiguration) {
		t.Fatalf("expected CONFIGURATION_ERROR, got %v", err)
	}
}
