package audio

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
)

// Chunk is one fixed-length slice of a WAV, written to its own file.
type Chunk struct {
	// Index is the zero-based chunk position.
	Index int
	// Start is Index*chunkSize, in seconds.
	Start float64
	// Duration is the chunk's real length in seconds.
	Duration float64
	// Path is the chunk's WAV file.
	Path string
}

// ChunkSource cuts one WAV into chunks on demand.
type ChunkSource struct {
	file            *os.File
	stream          beep.StreamSeekCloser
	format          beep.Format
	chunkSize       float64
	samplesPerChunk int
	dir             string
}

// Open decodes the WAV header at path and prepares chunking by chunkSize
// seconds. Close must be called to release the file and chunk files.
func Open(path string, chunkSize float64) (*ChunkSource, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("audio: chunk size must be positive, got %v", chunkSize)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audio: open %s: %w", path, err)
	}
	stream, format, err := wav.Decode(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("audio: decode %s: %w", path, err)
	}

	spc := int(math.Round(chunkSize * float64(format.SampleRate)))
	if spc < 1 {
		_ = stream.Close()
		_ = f.Close()
		return nil, fmt.Errorf("audio: chunk size %v is shorter than one sample", chunkSize)
	}

	dir := filepath.Join(os.TempDir(), "sonify-chunks-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o750); err != nil {
		_ = stream.Close()
		_ = f.Close()
		return nil, fmt.Errorf("audio: create chunk dir: %w", err)
	}

	return &ChunkSource{
		file:            f,
		stream:          stream,
		format:          format,
		chunkSize:       chunkSize,
		samplesPerChunk: spc,
		dir:             dir,
	}, nil
}

// Len returns ceil(total samples / samples per chunk).
func (s *ChunkSource) Len() int {
	total := s.stream.Len()
	return (total + s.samplesPerChunk - 1) / s.samplesPerChunk
}

// Duration returns the source length in seconds.
func (s *ChunkSource) Duration() float64 {
	return float64(s.stream.Len()) / float64(s.format.SampleRate)
}

// Extract writes chunk i to its own WAV file.
func (s *ChunkSource) Extract(ctx context.Context, i int) (Chunk, error) {
	if err := ctx.Err(); err != nil {
		return Chunk{}, err
	}
	if i < 0 || i >= s.Len() {
		return Chunk{}, fmt.Errorf("audio: chunk %d out of range [0, %d)", i, s.Len())
	}

	offset := i * s.samplesPerChunk
	n := min(s.samplesPerChunk, s.stream.Len()-offset)
	if err := s.stream.Seek(offset); err != nil {
		return Chunk{}, fmt.Errorf("audio: seek chunk %d: %w", i, err)
	}

	path := filepath.Join(s.dir, fmt.Sprintf("chunk-%05d.wav", i))
	out, err := os.Create(path)
	if err != nil {
		return Chunk{}, fmt.Errorf("audio: create chunk %d: %w", i, err)
	}
	if err := wav.Encode(out, beep.Take(n, s.stream), s.format); err != nil {
		_ = out.Close()
		_ = os.Remove(path)
		return Chunk{}, fmt.Errorf("audio: encode chunk %d: %w", i, err)
	}
	if err := out.Close(); err != nil {
		return Chunk{}, fmt.Errorf("audio: close chunk %d: %w", i, err)
	}

	return Chunk{
		Index:    i,
		Start:    float64(i) * s.chunkSize,
		Duration: float64(n) / float64(s.format.SampleRate),
		Path:     path,
	}, nil
}

// Close releases the source and removes every extracted chunk.
func (s *ChunkSource) Close() error {
	err := s.stream.Close()
	_ = s.file.Close()
	if rmErr := os.RemoveAll(s.dir); err == nil {
		err = rmErr
	}
	return err
}

// Duration returns the length of the WAV at path in seconds.
func Duration(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("audio: open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck // read-only
	stream, format, err := wav.Decode(f)
	if err != nil {
		return 0, fmt.Errorf("audio: decode %s: %w", path, err)
	}
	defer stream.Close() //nolint:errcheck // read-only
	return float64(stream.Len()) / float64(format.SampleRate), nil
}
