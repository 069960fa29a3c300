// Package provider holds the small generic plumbing shared by the
// transcription and diarization capability backends: the Provider contract,
// config-map factories, and a registry that builds and caches named backends.
//
// Capability packages wrap it with their own typed registry:
//
//	reg := transcription.NewRegistry()
//	p, err := reg.Resolve(cfg.Transcription.Provider, settings)
package provider
