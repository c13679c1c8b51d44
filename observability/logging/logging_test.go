package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetupRenamesKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("trustflowd", "test", Options{Output: &buf})
	logger.Info("hello", "loan_id", 3)

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	for _, key := range []string{"timestamp", "severity", "message", "service", "env"} {
		if _, ok := line[key]; !ok {
			t.Fatalf("expected key %q in %v", key, line)
		}
	}
	if line["severity"] != "INFO" || line["message"] != "hello" || line["service"] != "trustflowd" {
		t.Fatalf("unexpected log line %v", line)
	}
}

func TestSetupHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("trustflowd", "", Options{Output: &buf, Level: slog.LevelWarn})
	logger.Info("dropped")
	logger.Warn("kept")
	out := buf.String()
	if strings.Contains(out, "dropped") || !strings.Contains(out, "kept") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestSetupTeesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.log")
	var buf bytes.Buffer
	logger := Setup("trustflowd", "", Options{Output: &buf, File: path})
	logger.Info("persisted")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "persisted") {
		t.Fatalf("expected file to contain the log line, got %q", data)
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("DEBUG") != slog.LevelDebug || ParseLevel("warning") != slog.LevelWarn || ParseLevel("") != slog.LevelInfo {
		t.Fatalf("unexpected level mapping")
	}
}

func TestMaskField(t *testing.T) {
	if got := MaskField("jwt_secret", "s3cr3t"); got.Value.String() != RedactedValue {
		t.Fatalf("expected secret to be redacted, got %q", got.Value.String())
	}
	if got := MaskField("listen", ":8080"); got.Value.String() != ":8080" {
		t.Fatalf("allowlisted key must not be redacted")
	}
	if got := MaskField("passphrase", ""); got.Value.String() != "" {
		t.Fatalf("empty values pass through")
	}
	list := RedactionAllowlist()
	for i := 1; i < len(list); i++ {
		if list[i-1] > list[i] {
			t.Fatalf("allowlist not sorted: %v", list)
		}
	}
}
