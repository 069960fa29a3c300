package session

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kbukum/sonify/errors"
)

// storeUpload copies r into dir as <sha256 of content><ext>, so identical
// uploads share one file whatever they were called. limit caps the size in
// bytes; zero means unlimited.
func storeUpload(dir, filename string, r io.Reader, limit int64) (string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("session: create upload dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("session: create upload: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after rename

	if limit > 0 {
		r = io.LimitReader(r, limit+1)
	}
	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("session: write upload: %w", err)
	}
	if n == 0 {
		return "", errors.InvalidInput("audio", "the uploaded file is empty")
	}
	if limit > 0 && n > limit {
		return "", errors.InvalidInput("audio", fmt.Sprintf("the uploaded file exceeds %d bytes", limit))
	}

	path := filepath.Join(dir, hex.EncodeToString(h.Sum(nil))+strings.ToLower(filepath.Ext(filename)))
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("session: store upload: %w", err)
	}
	return path, nil
}
