// Package diarization attributes speech to speakers.
//
// A Provider is one diarization backend; diarization/pyannote talks to a
// pyannote HTTP sidecar. Align merges the speaker turns a Provider returns
// with transcript segments, and Aligner wraps both behind a cache keyed by
// the run's file id and segments.
//
// # Usage
//
//	reg := diarization.NewRegistry()
//	reg.RegisterFactory(pyannote.ProviderName, pyannote.Factory())
//	p, _ := reg.Resolve(pyannote.ProviderName, settings)
//	a := diarization.NewAligner(p, turnsCache, log, metrics)
//	turns, err := a.Run(ctx, diarization.Options{AudioPath: wav, FileID: id, Segments: segs, Credential: token})
package diarization
