package transcription_test

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/kbukum/sonify/audio"
	"github.com/kbukum/sonify/cache"
	"github.com/kbukum/sonify/errors"
	"github.com/kbukum/sonify/testutil"
	"github.com/kbukum/sonify/transcription"
)

// fakeProvider returns one segment at 2s-5s per call, labelled with the
// chunk file name.
type fakeProvider struct {
	mu    sync.Mutex
	calls []transcription.Request
	err   error
}

func (f *fakeProvider) Name() string                       { return "fake" }
func (f *fakeProvider) IsAvailable(_ context.Context) bool { return true }

func (f *fakeProvider) Transcribe(_ context.Context, req transcription.Request) (*transcription.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	name := strings.TrimSuffix(filepath.Base(req.AudioPath), ".wav")
	return &transcription.Response{
		Text:     " " + name,
		Segments: []transcription.Segment{{Start: 2, End: 5, Text: " " + name}},
	}, nil
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fixture struct {
	provider *fakeProvider
	store    *testutil.MemoryStore
	tr       *transcription.Transcriber
	audio    string
}

func newFixture(t *testing.T, seconds float64) *fixture {
	t.Helper()
	f := &fixture{
		provider: &fakeProvider{},
		store:    testutil.NewMemoryStore(),
		audio:    testutil.WriteWAV(t, filepath.Join(t.TempDir(), "input.wav"), seconds, 8000),
	}
	f.tr = f.newTranscriber()
	return f
}

func (f *fixture) newTranscriber() *transcription.Transcriber {
	whole := cache.New[transcription.Response](f.store, cache.DomainTranscript, transcription.ResponseSchema, nil, nil)
	chunks := cache.New[transcription.Response](f.store, cache.DomainChunk, transcription.ResponseSchema, nil, nil)
	return transcription.NewTranscriber(f.provider, whole, chunks, nil, nil)
}

func TestTranscribeChunked(t *testing.T) {
	f := newFixture(t, 65)

	var progress []string
	res, err := f.tr.Transcribe(context.Background(), transcription.Options{
		AudioPath: f.audio,
		Model:     "small",
		Language:  "en",
		ChunkSize: 30,
		OnProgress: func(completed, total int) {
			progress = append(progress, fmt.Sprintf("%d/%d", completed, total))
		},
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if got := strings.Join(progress, ","); got != "1/3,2/3,3/3" {
		t.Errorf("progress = %s, want 1/3,2/3,3/3", got)
	}
	if res.Chunks != 3 || f.provider.callCount() != 3 {
		t.Fatalf("chunks=%d calls=%d, want 3 and 3", res.Chunks, f.provider.callCount())
	}

	wantStarts := []float64{2, 32, 62}
	if len(res.Segments) != len(wantStarts) {
		t.Fatalf("got %d segments, want %d", len(res.Segments), len(wantStarts))
	}
	for i, seg := range res.Segments {
		if seg.Start != wantStarts[i] || seg.End != wantStarts[i]+3 {
			t.Errorf("segment %d = [%v, %v], want start %v", i, seg.Start, seg.End, wantStarts[i])
		}
	}
	if res.Segments[2].Start != 62 || res.Segments[2].End != 65 {
		t.Errorf("chunk 2 segment should rebase to [62, 65], got %+v", res.Segments[2])
	}
	if res.Text != "chunk-00000 chunk-00001 chunk-00002" {
		t.Errorf("text = %q", res.Text)
	}
	for _, call := range f.provider.calls {
		if call.Model != "small" || call.Language != "en" {
			t.Errorf("unexpected request %+v", call)
		}
	}
}

// overrunProvider reports one segment spanning the whole chunk and one that
// runs 3s past its end.
type overrunProvider struct{ fakeProvider }

func (o *overrunProvider) Transcribe(ctx context.Context, req transcription.Request) (*transcription.Response, error) {
	if _, err := o.fakeProvider.Transcribe(ctx, req); err != nil {
		return nil, err
	}
	d, err := audio.Duration(req.AudioPath)
	if err != nil {
		return nil, err
	}
	return &transcription.Response{
		Text: "overrun",
		Segments: []transcription.Segment{
			{Start: 0, End: d, Text: "whole"},
			{Start: d - 1, End: d + 3, Text: "tail"},
			{Start: d, End: d + 2, Text: "after"},
		},
	}, nil
}

func TestTranscribeChunkedStaysWithinAudio(t *testing.T) {
	f := newFixture(t, 65)
	f.tr = transcription.NewTranscriber(&overrunProvider{},
		cache.New[transcription.Response](f.store, cache.DomainTranscript, transcription.ResponseSchema, nil, nil),
		cache.New[transcription.Response](f.store, cache.DomainChunk, transcription.ResponseSchema, nil, nil),
		nil, nil)

	res, err := f.tr.Transcribe(context.Background(), transcription.Options{AudioPath: f.audio, ChunkSize: 30})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	// Three chunks of whole and tail; nothing starting at a chunk's end survives.
	if len(res.Segments) != 6 {
		t.Fatalf("got %d segments, want 6: %+v", len(res.Segments), res.Segments)
	}
	for i, seg := range res.Segments {
		if seg.End > 65 || seg.Start > seg.End {
			t.Errorf("segment %d = [%v, %v] leaves the 65s file", i, seg.Start, seg.End)
		}
		if seg.Text == "after" {
			t.Errorf("segment %d starts past its chunk: %+v", i, seg)
		}
	}
	tests := []struct {
		idx        int
		start, end float64
	}{
		{1, 29, 30},
		{3, 59, 60},
		{4, 60, 65},
		{5, 64, 65},
	}
	for _, tt := range tests {
		if got := res.Segments[tt.idx]; got.Start != tt.start || got.End != tt.end {
			t.Errorf("segment %d = [%v, %v], want [%v, %v]", tt.idx, got.Start, got.End, tt.start, tt.end)
		}
	}
}

func TestTranscribeIdempotent(t *testing.T) {
	f := newFixture(t, 65)
	opts := transcription.Options{AudioPath: f.audio, Model: "small", Language: "en", ChunkSize: 30}

	first, err := f.tr.Transcribe(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}
	calls := f.provider.callCount()

	// A fresh transcriber over the same store must answer from cache.
	second, err := f.newTranscriber().Transcribe(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}
	if f.provider.callCount() != calls {
		t.Errorf("second run invoked the capability %d times", f.provider.callCount()-calls)
	}
	if first.Text != second.Text || len(first.Segments) != len(second.Segments) {
		t.Errorf("results differ: %+v vs %+v", first, second)
	}
	for i := range first.Segments {
		if first.Segments[i] != second.Segments[i] {
			t.Errorf("segment %d differs: %+v vs %+v", i, first.Segments[i], second.Segments[i])
		}
	}

	// A different language is a different key.
	opts.Language = "de"
	if _, err := f.tr.Transcribe(context.Background(), opts); err != nil {
		t.Fatal(err)
	}
	if f.provider.callCount() != calls+3 {
		t.Errorf("language change should re-run all chunks, got %d new calls", f.provider.callCount()-calls)
	}
}

func TestTranscribeCancelPreservesChunks(t *testing.T) {
	f := newFixture(t, 65)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	res, err := f.tr.Transcribe(ctx, transcription.Options{
		AudioPath: f.audio,
		ChunkSize: 30,
		OnProgress: func(completed, _ int) {
			if completed == 1 {
				cancel()
			}
		},
	})
	if !errors.HasCode(err, errors.ErrCodeCanceled) {
		t.Fatalf("expected CANCELED, got %v", err)
	}
	if res == nil || res.Chunks != 1 || len(res.Segments) != 1 {
		t.Fatalf("expected partial result with one chunk, got %+v", res)
	}
	if f.provider.callCount() != 1 {
		t.Fatalf("expected one capability call before cancel, got %d", f.provider.callCount())
	}

	if _, err := f.tr.Transcribe(context.Background(), transcription.Options{AudioPath: f.audio, ChunkSize: 30}); err != nil {
		t.Fatal(err)
	}
	if f.provider.callCount() != 3 {
		t.Errorf("resume should only transcribe the remaining 2 chunks, total calls %d", f.provider.callCount())
	}
}

func TestTranscribeWholeFile(t *testing.T) {
	f := newFixture(t, 10)

	var progress [][2]int
	opts := transcription.Options{
		AudioPath:  f.audio,
		OnProgress: func(c, n int) { progress = append(progress, [2]int{c, n}) },
	}
	res, err := f.tr.Transcribe(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}
	if len(progress) != 1 || progress[0] != [2]int{1, 1} {
		t.Errorf("progress = %v, want one (1,1)", progress)
	}
	if res.Segments[0].Start != 2 || res.Text != "input" {
		t.Errorf("unexpected result %+v", res)
	}
	if got := f.provider.calls[0]; got.Model != transcription.DefaultModel || got.Language != transcription.AutoLanguage {
		t.Errorf("defaults not applied: %+v", got)
	}

	if _, err := f.tr.Transcribe(context.Background(), opts); err != nil {
		t.Fatal(err)
	}
	if f.provider.callCount() != 1 {
		t.Errorf("cached whole file should not be re-transcribed")
	}

	opts.Force = true
	if _, err := f.tr.Transcribe(context.Background(), opts); err != nil {
		t.Fatal(err)
	}
	if f.provider.callCount() != 2 {
		t.Errorf("force should re-transcribe, calls = %d", f.provider.callCount())
	}
}

func TestTranscribeForceKeepsChunkCache(t *testing.T) {
	f := newFixture(t, 65)
	if _, err := f.tr.Transcribe(context.Background(), transcription.Options{AudioPath: f.audio, ChunkSize: 30}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.tr.Transcribe(context.Background(), transcription.Options{AudioPath: f.audio, ChunkSize: 30, Force: true}); err != nil {
		t.Fatal(err)
	}
	if f.provider.callCount() != 3 {
		t.Errorf("force must not discard chunk entries, calls = %d", f.provider.callCount())
	}
	if f.store.Len(cache.DomainChunk) != 3 {
		t.Errorf("expected 3 chunk entries, got %d", f.store.Len(cache.DomainChunk))
	}
}

func TestTranscribeProviderFailure(t *testing.T) {
	f := newFixture(t, 65)
	f.provider.err = errors.CapabilityUnavailable("transcription", "start the sidecar")

	_, err := f.tr.Transcribe(context.Background(), transcription.Options{AudioPath: f.audio, ChunkSize: 30})
	if !errors.HasCode(err, errors.ErrCodeCapabilityUnavailable) {
		t.Fatalf("expected CAPABILITY_UNAVAILABLE, got %v", err)
	}
	if f.provider.callCount() != 1 {
		t.Errorf("failure must not be retried, calls = %d", f.provider.callCount())
	}
	if f.store.Len(cache.DomainChunk) != 0 {
		t.Errorf("failed chunk must not be cached")
	}
}

func TestTranscribeNegativeChunkSize(t *testing.T) {
	f := newFixture(t, 1)
	_, err := f.tr.Transcribe(context.Background(), transcription.Options{AudioPath: f.audio, ChunkSize: -1})
	if !errors.HasCode(err, errors.ErrCodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
}
