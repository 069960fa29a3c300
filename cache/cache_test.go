package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type transcript struct {
	Text     string      `json:"text"`
	Segments []TimedText `json:"segments"`
}

func newFileCache(t *testing.T) (*FileStore, *Cache[transcript]) {
	t.Helper()
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return store, New[transcript](store, DomainTranscript, 1, nil, nil)
}

func TestCachePutGetInvalidate(t *testing.T) {
	ctx := context.Background()
	_, c := newFileCache(t)

	if _, ok, err := c.Get(ctx, "abc123"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	want := transcript{Text: "hello", Segments: []TimedText{{Start: 0, End: 1.5, Text: "hello"}}}
	if err := c.Put(ctx, "abc123", want); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok, err := c.Get(ctx, "abc123")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if got.Text != "hello" || len(got.Segments) != 1 || got.Segments[0].End != 1.5 {
		t.Errorf("unexpected value %+v", got)
	}

	if err := c.Invalidate(ctx, "abc123"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "abc123"); ok {
		t.Error("expected miss after invalidate")
	}
	if err := c.Invalidate(ctx, "abc123"); err != nil {
		t.Errorf("invalidating a missing key should succeed: %v", err)
	}
}

func TestCacheEmptyValueIsAHit(t *testing.T) {
	ctx := context.Background()
	store, _ := newFileCache(t)
	c := New[[]string](store, DomainTurns, 1, nil, nil)

	if err := c.Put(ctx, "k", []string{}); err != nil {
		t.Fatal(err)
	}
	got, ok, err := c.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("expected hit for empty list, got ok=%v err=%v", ok, err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", got)
	}
}

func TestCacheCorruptEntrySelfHeals(t *testing.T) {
	ctx := context.Background()
	store, c := newFileCache(t)

	if err := c.Put(ctx, "deadbeef", transcript{Text: "x"}); err != nil {
		t.Fatal(err)
	}
	path := store.Path(DomainTranscript, "deadbeef")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, ok, err := c.Get(ctx, "deadbeef"); err != nil || ok {
		t.Fatalf("expected silent miss, got ok=%v err=%v", ok, err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected corrupt file to be deleted, stat err=%v", err)
	}

	if err := c.Put(ctx, "deadbeef", transcript{Text: "y"}); err != nil {
		t.Fatalf("Put after self-heal: %v", err)
	}
	got, ok, _ := c.Get(ctx, "deadbeef")
	if !ok || got.Text != "y" {
		t.Errorf("expected fresh entry, got %+v ok=%v", got, ok)
	}
}

func TestCacheDiscardsTamperedAndOutdatedEntries(t *testing.T) {
	ctx := context.Background()
	store, c := newFileCache(t)

	tests := []struct {
		name string
		doc  func(t *testing.T) []byte
	}{
		{"checksum mismatch", func(t *testing.T) []byte {
			return []byte(`{"schema":1,"checksum":"00","value":{"text":"x"}}`)
		}},
		{"older schema", func(t *testing.T) []byte {
			old := New[transcript](store, DomainTranscript, 0, nil, nil)
			if err := old.Put(ctx, "k1", transcript{Text: "x"}); err != nil {
				t.Fatal(err)
			}
			data, err := os.ReadFile(store.Path(DomainTranscript, "k1"))
			if err != nil {
				t.Fatal(err)
			}
			return data
		}},
		{"bare legacy value", func(t *testing.T) []byte {
			return []byte(`{"text":"x","segments":[]}`)
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := store.Write(ctx, DomainTranscript, "k1", tc.doc(t)); err != nil {
				t.Fatal(err)
			}
			if _, ok, err := c.Get(ctx, "k1"); err != nil || ok {
				t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
			}
			if _, err := store.Read(ctx, DomainTranscript, "k1"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected entry deleted, got %v", err)
			}
		})
	}
}

func TestCacheDomainsAreIndependent(t *testing.T) {
	ctx := context.Background()
	store, whole := newFileCache(t)
	chunks := New[transcript](store, DomainChunk, 1, nil, nil)

	if err := whole.Put(ctx, "same", transcript{Text: "whole"}); err != nil {
		t.Fatal(err)
	}
	if err := chunks.Put(ctx, "same", transcript{Text: "chunk"}); err != nil {
		t.Fatal(err)
	}
	if err := whole.Invalidate(ctx, "same"); err != nil {
		t.Fatal(err)
	}

	got, ok, _ := chunks.Get(ctx, "same")
	if !ok || got.Text != "chunk" {
		t.Fatalf("chunk entry should survive whole-file invalidation, got %+v ok=%v", got, ok)
	}
}

func TestFileStoreRejectsEscapingKeys(t *testing.T) {
	ctx := context.Background()
	store, _ := newFileCache(t)
	for _, key := range []string{"../escape", "a/b", "", "key.json"} {
		if err := store.Write(ctx, DomainAudio, key, []byte("{}")); err == nil {
			t.Errorf("expected error for key %q", key)
		}
	}
}

func TestFileStoreWriteLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	store, _ := newFileCache(t)
	for i := 0; i < 3; i++ {
		if err := store.Write(ctx, DomainChunk, "k", []byte(`{"n":1}`)); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := os.ReadDir(store.Dir(DomainChunk))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "k.json" {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("expected only k.json, got %v", names)
	}
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer store.Close()

	if _, err := store.Read(ctx, DomainTurns, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.Write(ctx, DomainTurns, "k", []byte("v1")); err != nil {
		t.Fatal(err)
	}
	if err := store.Write(ctx, DomainTurns, "k", []byte("v2")); err != nil {
		t.Fatal(err)
	}
	if err := store.Write(ctx, DomainRuns, "k", []byte("other")); err != nil {
		t.Fatal(err)
	}
	got, err := store.Read(ctx, DomainTurns, "k")
	if err != nil || string(got) != "v2" {
		t.Fatalf("expected v2, got %q (%v)", got, err)
	}
	if err := store.Delete(ctx, DomainTurns, "k"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Read(ctx, DomainTurns, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if got, _ := store.Read(ctx, DomainRuns, "k"); string(got) != "other" {
		t.Fatalf("other domain affected: %q", got)
	}

	c := New[transcript](store, DomainRuns, 1, nil, nil)
	if err := store.Write(ctx, DomainRuns, "bad", []byte("garbage")); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := c.Get(ctx, "bad"); ok || err != nil {
		t.Fatalf("expected silent miss, got ok=%v err=%v", ok, err)
	}
}

func TestEnvelopeFormat(t *testing.T) {
	ctx := context.Background()
	store, c := newFileCache(t)
	if err := c.Put(ctx, "k", transcript{Text: "hi"}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(store.Path(DomainTranscript, "k"))
	if err != nil {
		t.Fatal(err)
	}
	var env map[string]json.RawMessage
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatal(err)
	}
	for _, field := range []string{"schema", "checksum", "value"} {
		if _, ok := env[field]; !ok {
			t.Errorf("expected %q in envelope %s", field, data)
		}
	}
	if !bytes.Contains(env["value"], []byte(`"hi"`)) {
		t.Errorf("unexpected value %s", env["value"])
	}
}

func TestAudioKeyIgnoresFilename(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "meeting.wav")
	b := filepath.Join(dir, "renamed-copy.wav")
	data := []byte("RIFF....WAVEfmt some audio bytes")
	for _, p := range []string{a, b} {
		if err := os.WriteFile(p, data, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	ka, err := FileKey(a)
	if err != nil {
		t.Fatal(err)
	}
	kb, _ := FileKey(b)
	if ka != kb {
		t.Fatalf("expected equal keys, got %s and %s", ka, kb)
	}
	if len(ka) != 16 {
		t.Errorf("expected 16 hex chars, got %q", ka)
	}

	ta, _ := FileTranscriptKey(a, "base", "en")
	tb, _ := FileTranscriptKey(b, "base", "en")
	if ta != tb {
		t.Fatalf("expected equal transcript keys")
	}

	data[len(data)-1] ^= 1
	if err := os.WriteFile(b, data, 0o644); err != nil {
		t.Fatal(err)
	}
	if kb, _ := FileKey(b); kb == ka {
		t.Fatal("a single changed byte must change the key")
	}
}

func TestTranscriptKeyParameters(t *testing.T) {
	key := func(model, lang string) string {
		k, err := TranscriptKey(strings.NewReader("audio"), model, lang)
		if err != nil {
			t.Fatal(err)
		}
		return k
	}
	base := key("base", "en")
	if base == key("small", "en") || base == key("base", "de") {
		t.Fatal("model and language must participate in the key")
	}
	if key("ab", "c") == key("a", "bc") {
		t.Fatal("parameter boundaries must be unambiguous")
	}
	if audio, _ := AudioKey(strings.NewReader("audio")); audio == base {
		t.Fatal("transcript key must differ from audio key")
	}
}

func TestTurnsKeyIsOrderIndependent(t *testing.T) {
	segs := []TimedText{{Start: 5, End: 8, Text: "b"}, {Start: 0, End: 4, Text: "a"}}
	reversed := []TimedText{segs[1], segs[0]}

	k1, err := TurnsKey("file-1", segs)
	if err != nil {
		t.Fatal(err)
	}
	k2, _ := TurnsKey("file-1", reversed)
	if k1 != k2 {
		t.Fatal("segment order must not affect the key")
	}
	if k3, _ := TurnsKey("file-2", segs); k3 == k1 {
		t.Fatal("file id must participate in the key")
	}
	if k4, _ := TurnsKey("file-1", segs[:1]); k4 == k1 {
		t.Fatal("segments must participate in the key")
	}
	if len(k1) != 32 {
		t.Errorf("expected md5 hex, got %q", k1)
	}
	if _, err := TurnsKey("file-1", nil); err != nil {
		t.Fatalf("nil segments: %v", err)
	}
}
