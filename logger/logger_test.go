package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"
)

func jsonLogger(buf *bytes.Buffer, level string) *Logger {
	return NewWithWriter(&Config{Level: level, Format: "json"}, "sonify-test", buf)
}

func TestNewDefault(t *testing.T) {
	l := NewDefault("test-svc")
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
	if l.service != "test-svc" {
		t.Errorf("expected service 'test-svc', got %q", l.service)
	}
}

func TestNewInvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := jsonLogger(&buf, "not-a-level")
	l.Debug("hidden")
	l.Info("shown")
	if strings.Contains(buf.String(), "hidden") {
		t.Error("debug message should be filtered at info level")
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Error("info message should be written")
	}
}

func TestNewFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "json")
	if NewFromEnv("env-svc") == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestWithComponentAddsField(t *testing.T) {
	var buf bytes.Buffer
	jsonLogger(&buf, "info").WithComponent("chunker").Info("split")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry[FieldComponent] != "chunker" {
		t.Errorf("expected component=chunker, got %v", entry[FieldComponent])
	}
	if entry["service"] != "sonify-test" {
		t.Errorf("expected service field, got %v", entry["service"])
	}
}

func TestWithContextPicksUpIDs(t *testing.T) {
	var buf bytes.Buffer
	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithSessionID(ctx, "sess-1")
	jsonLogger(&buf, "info").WithContext(ctx).Info("hello")

	out := buf.String()
	if !strings.Contains(out, `"request_id":"req-1"`) {
		t.Errorf("expected request id in %s", out)
	}
	if !strings.Contains(out, `"session_id":"sess-1"`) {
		t.Errorf("expected session id in %s", out)
	}
}

func TestFieldsAreWritten(t *testing.T) {
	var buf bytes.Buffer
	jsonLogger(&buf, "debug").Debug("cache hit", Fields(FieldDomain, "chunks", FieldKey, "abc"))
	out := buf.String()
	if !strings.Contains(out, `"cache_domain":"chunks"`) || !strings.Contains(out, `"cache_key":"abc"`) {
		t.Errorf("expected cache fields in %s", out)
	}
}

func TestFieldsOddArgs(t *testing.T) {
	m := Fields("a", 1, "dangling")
	if len(m) != 1 || m["a"] != 1 {
		t.Errorf("unexpected fields %v", m)
	}
}

func TestNopDiscards(t *testing.T) {
	Nop().Error("nothing")
}

func TestGlobalLogger(t *testing.T) {
	globalLogger = nil
	if GetGlobalLogger() == nil {
		t.Fatal("expected default global logger to be created")
	}
	l := NewDefault("custom")
	SetGlobalLogger(l)
	if GetGlobalLogger() != l {
		t.Error("expected SetGlobalLogger to set the global logger")
	}
	Init(&Config{Level: "debug", Format: "console", Output: "stdout"})
	Debug("debug msg")
	Info("info msg")
}

func TestConfigApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	if cfg.Level != "info" || cfg.Format != "console" || cfg.Output != "stdout" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if !cfg.Timestamp {
		t.Error("expected Timestamp to be true")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{Level: "info", Format: "json", Output: "stdout"}, false},
		{"valid console", Config{Level: "debug", Format: "console", Output: "stderr"}, false},
		{"invalid level", Config{Level: "bad", Format: "json", Output: "stdout"}, true},
		{"invalid format", Config{Level: "info", Format: "xml", Output: "stdout"}, true},
		{"invalid output", Config{Level: "info", Format: "json", Output: "file"}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestOutputWriter(t *testing.T) {
	if outputWriter("stderr") != os.Stderr {
		t.Error("expected stderr")
	}
	if outputWriter("anything") != os.Stdout {
		t.Error("expected stdout fallback")
	}
}
