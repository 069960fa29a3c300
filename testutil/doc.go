// Package testutil provides fixtures shared by the package tests.
//
//	wav := testutil.WriteWAV(t, filepath.Join(t.TempDir(), "in.wav"), 65, 8000)
//	store := testutil.NewMemoryStore()
//
// WriteWAV produces a mono ramp whose samples never repeat, so every chunk of
// the file has distinct content and therefore a distinct cache key.
package testutil
