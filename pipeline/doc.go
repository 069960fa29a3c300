// Package pipeline runs the normalize, transcribe and diarize stages for
// one file or a batch of files.
//
// Every stage is cached. A run is identified by the hash of the normalized
// audio plus model and language (Identity). RunCache stores the merged
// transcript for an identity so a repeated request returns without
// touching the chunk caches, and the aligner keys its turns by the same
// identity so turns are only reused with the segments they were aligned
// against.
//
// The pipeline holds no workflow state. Hosts drive it through Prepare,
// Transcribe and Diarize (or Process for all three) and own any phase
// tracking themselves.
package pipeline
