package pipeline

import (
	"strings"

	"github.com/kbukum/sonify/cache"
)

// Identity scopes every cached result derived from one normalized file.
type Identity struct {
	ContentHash string `json:"content_hash"`
	Model       string `json:"model"`
	Language    string `json:"language"`
}

// String is the file id the diarization cache is keyed with.
func (id Identity) String() string {
	return id.ContentHash + "-" + id.Model + "-" + id.Language
}

// Key is the RunCache key for id.
func (id Identity) Key() string {
	// Reading from a strings.Reader cannot fail.
	key, _ := cache.TranscriptKey(strings.NewReader(id.ContentHash), id.Model, id.Language)
	return key
}
