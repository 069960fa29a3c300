// Package session tracks one user's walk through upload, transcription and
// diarization as an explicit state machine.
//
// The pipeline itself is stateless; Manager owns the phases, runs pipeline
// work on a goroutine per session, records progress snapshots and
// publishes them to an optional Broadcaster so clients can follow along.
//
//	start → uploaded → transcribing → transcribed → diarizing → diarized
//
// Canceling a run returns the session to the phase it started from.
// Restart returns any session to start.
package session
