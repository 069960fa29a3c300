package diarization

import "github.com/kbukum/sonify/transcription"

// ProgressFunc receives the backend's step name and its completed/total
// counters, unmodified.
type ProgressFunc func(step string, completed, total int)

// Request holds parameters for a diarization call.
type Request struct {
	// AudioPath is the normalized WAV to diarize.
	AudioPath string `json:"audio_path"`
	// Credential authorizes the backend to load its model.
	Credential string `json:"-"`
	// NumSpeakers is the exact number of speakers (0 = auto-detect).
	NumSpeakers int `json:"num_speakers,omitempty"`
	// MinSpeakers is the minimum expected number of speakers.
	MinSpeakers int `json:"min_speakers,omitempty"`
	// MaxSpeakers is the maximum expected number of speakers.
	MaxSpeakers int `json:"max_speakers,omitempty"`
	// OnProgress, when set, is called as the backend reports steps.
	OnProgress ProgressFunc `json:"-"`
}

// Response holds the result of a diarization call.
type Response struct {
	// Turns are in the order the backend emitted them.
	Turns []Turn `json:"turns"`
	// NumSpeakers is the number of speakers detected.
	NumSpeakers int `json:"num_speakers"`
}

// Turn is a time range attributed to one speaker label. Labels are only
// stable within one run.
type Turn struct {
	Speaker string  `json:"speaker"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
}

// AlignedTurn is a Turn carrying the transcript text spoken in it.
type AlignedTurn struct {
	Speaker string  `json:"speaker"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
}

// Segment is the transcript unit turns are aligned against.
type Segment = transcription.Segment
