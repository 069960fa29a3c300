// Package transcription turns audio into time-aligned text.
//
// A Provider is one speech-to-text backend. Two ship with the module:
//
//   - transcription/whisper: faster-whisper HTTP sidecar
//   - transcription/openai: hosted Whisper through the OpenAI API
//
// Transcriber drives a Provider over fixed-length chunks of a normalized
// WAV, caching each chunk's result so an interrupted run resumes where it
// stopped. Chunk-relative timestamps are rebased to file-absolute ones.
//
// # Usage
//
//	reg := transcription.NewRegistry()
//	reg.RegisterFactory(whisper.ProviderName, whisper.Factory())
//	p, _ := reg.Resolve(whisper.ProviderName, settings)
//	t := transcription.NewTranscriber(p, wholeCache, chunkCache, log, metrics)
//	res, err := t.Transcribe(ctx, transcription.Options{AudioPath: wav, Model: "medium", Language: "en", ChunkSize: 30})
package transcription
