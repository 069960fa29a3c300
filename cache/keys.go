package cache

import (
	"cmp"
	"crypto/md5" //nolint:gosec // key derivation only, not a security boundary
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
)

// TimedText is the part of a transcript segment that identifies it for
// keying. Any struct with the same fields converts to it directly.
type TimedText struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// AudioKey hashes r's bytes: hex(sha256(bytes))[:16]. Filenames never
// participate, so a renamed copy of the same audio shares the key.
func AudioKey(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("cache: hash audio: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil))[:16], nil
}

// TranscriptKey hashes r's bytes together with model and language:
// hex(sha256(bytes ‖ 0 ‖ model ‖ 0 ‖ language))[:16].
func TranscriptKey(r io.Reader, model, language string) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("cache: hash audio: %w", err)
	}
	h.Write([]byte{0})
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(language))
	return hex.EncodeToString(h.Sum(nil))[:16], nil
}

// FileKey is AudioKey over the file at path.
func FileKey(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("cache: open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck // read-only
	return AudioKey(f)
}

// FileTranscriptKey is TranscriptKey over the file at path.
func FileTranscriptKey(path, model, language string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("cache: open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck // read-only
	return TranscriptKey(f, model, language)
}

// TurnsKey derives the diarization key from the run's file id and the
// segments the turns were aligned against:
// hex(md5(fileID ‖ canonical JSON of segments sorted by start, end, text)).
func TurnsKey(fileID string, segments []TimedText) (string, error) {
	sorted := slices.Clone(segments)
	slices.SortStableFunc(sorted, func(a, b TimedText) int {
		return cmp.Or(cmp.Compare(a.Start, b.Start), cmp.Compare(a.End, b.End), cmp.Compare(a.Text, b.Text))
	})
	if sorted == nil {
		sorted = []TimedText{}
	}
	canonical, err := json.Marshal(sorted)
	if err != nil {
		return "", fmt.Errorf("cache: encode segments: %w", err)
	}
	h := md5.New() //nolint:gosec // key derivation only
	h.Write([]byte(fileID))
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}
