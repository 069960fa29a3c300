// Package cache persists pipeline results keyed by content hashes.
//
// Each cache Domain is an independent namespace: invalidating a whole-file
// transcript never touches the chunk or diarization entries derived from the
// same audio. A Store persists raw documents; Cache[T] layers a typed,
// schema-versioned and checksummed envelope on top so that a corrupt or
// outdated entry is deleted and reported as a miss instead of an error.
//
//	store, _ := cache.NewFileStore(dir)
//	transcripts := cache.New[Transcript](store, cache.DomainTranscript, 1, log, metrics)
//	key, _ := cache.FileTranscriptKey(wavPath, "medium", "en")
//	if t, ok, err := transcripts.Get(ctx, key); err == nil && ok { ... }
package cache
