package logger_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/crossforge/crossforge/pkg/logger"
)

func TestPlatformPrefixAndFields(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithOutput("debug", &buf)

	log.WithPlatform("ios-arm64").Info("configuring", logger.WithField("preset", "ios-arm64"))

	out := buf.String()
	if !strings.Contains(out, "[ios-arm64]") {
		t.Errorf("missing platform prefix: %q", out)
	}
	if !strings.Contains(out, "preset=ios-arm64") {
		t.Errorf("missing field: %q", out)
	}
	if !strings.Contains(out, "INFO") {
		t.Errorf("missing level: %q", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithOutput("warn", &buf)

	log.Debug("hidden")
	log.Info("also hidden")
	log.Warn("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("low-severity entries leaked: %q", out)
	}
	if !strings.Contains(out, "visible") {
		t.Errorf("warn entry missing: %q", out)
	}
}

func TestSuccessMarker(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithOutput("info", &buf)

	log.Success("build succeeded")
	if !strings.Contains(buf.String(), "✓ build succeeded") {
		t.Errorf("missing success marker: %q", buf.String())
	}
}

func TestUnparsableLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithOutput("chatty", &buf)

	log.Info("shown")
	log.Debug("not shown")

	out := buf.String()
	if !strings.Contains(out, "shown") {
		t.Errorf("info entry missing: %q", out)
	}
	if strings.Contains(out, "not shown") {
		t.Errorf("debug entry leaked: %q", out)
	}
}
