// Package logger provides structured logging for sonify using zerolog.
//
// Every pipeline component takes a *Logger and scopes it with WithComponent,
// so cache, chunker, transcriber and aligner output can be told apart. Field
// maps are built with Fields and use the keys declared in fields.go.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
//
// # Usage
//
//	log := logger.NewDefault("sonifyd").WithComponent("transcriber")
//	log.Info("chunk transcribed", logger.Fields(logger.FieldChunkIndex, 2))
package logger
