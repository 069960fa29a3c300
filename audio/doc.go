// Package audio prepares input audio for the capabilities.
//
// FFmpegNormalizer converts arbitrary input into mono 16 kHz PCM WAV and
// caches the result by the hash of the original bytes. ChunkSource cuts a
// normalized WAV into fixed-length chunks: every chunk but the last holds
// exactly chunkSize seconds and chunk i starts at i*chunkSize, which is what
// lets callers rebase chunk-local timestamps by the nominal chunk size.
package audio
