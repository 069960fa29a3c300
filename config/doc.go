// Package config loads sonifyd configuration.
//
// Values come from a YAML file, a .env file and the process environment,
// in increasing precedence. Environment variables map onto nested keys by
// underscores, so TRANSCRIPTION_MODEL sets transcription.model and
// DIARIZATION_CREDENTIAL sets diarization.credential.
//
// # Usage
//
//	var cfg config.Config
//	if err := config.LoadConfig("sonifyd", &cfg); err != nil { ... }
//	cfg.ApplyDefaults()
//	if err := cfg.Validate(); err != nil { ... }
package config
