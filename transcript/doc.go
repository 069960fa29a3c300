// Package transcript renders transcription and diarization output for
// people: plain text, SRT and WebVTT subtitles, and speaker blocks that
// merge consecutive turns of the same named speaker.
package transcript
