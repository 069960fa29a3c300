// Package server exposes the sonify session API over HTTP.
//
// The server is a Gin engine mounted on a ServeMux and wrapped with h2c, so
// HTTP/1.1 and cleartext HTTP/2 share one port. The middleware stack from
// server/middleware (recovery, request id, CORS, access log) is applied at
// the handler level and therefore also covers the SSE streams.
//
// # Routes
//
//	POST /v1/sessions                    create, optionally with an "audio" upload
//	GET  /v1/sessions/:id                snapshot
//	POST /v1/sessions/:id/upload         multipart "audio"
//	POST /v1/sessions/:id/transcribe     ?force=true skips the caches
//	POST /v1/sessions/:id/diarize        ?force=true skips the turns cache
//	POST /v1/sessions/:id/cancel
//	POST /v1/sessions/:id/restart
//	PUT  /v1/sessions/:id/speakers       {"SPEAKER_00": "Ana"}
//	GET  /v1/sessions/:id/speakers       ?format=md|json
//	GET  /v1/sessions/:id/transcript     ?format=txt|srt|vtt|json
//	GET  /v1/sessions/:id/events         Server-Sent Events
//	POST /v1/batch                       multipart "files"
//
// Health routes live at /health, /alive, /ready and /version.
package server
