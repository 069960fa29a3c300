package transcription

// Request holds parameters for a single capability call.
type Request struct {
	// AudioPath is the WAV file to transcribe.
	AudioPath string `json:"audio_path"`
	// Model is the model identifier, e.g. "medium".
	Model string `json:"model,omitempty"`
	// Language is an ISO code or AutoLanguage.
	Language string `json:"language,omitempty"`
}

// Response holds the result of a single capability call.
type Response struct {
	// Text is the full transcription text.
	Text string `json:"text"`
	// Segments are relative to the start of the submitted audio.
	Segments []Segment `json:"segments"`
	// Language is the detected or requested language.
	Language string `json:"language,omitempty"`
	// Duration is the audio duration in seconds, when reported.
	Duration float64 `json:"duration,omitempty"`
}

// Segment is a time-aligned piece of transcript.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}
