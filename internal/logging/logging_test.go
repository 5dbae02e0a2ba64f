package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
)

func TestJSONLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Writer: &buf}).With(String("component", "evaluator"))

	log.Warn(context.Background(), "gaussian ellipse solution failed",
		Int("source_index", 4),
		Float64("major_deg", 0.5),
		Err(errors.New("singular")),
	)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if rec["level"] != "WARN" || rec["msg"] != "gaussian ellipse solution failed" {
		t.Fatalf("unexpected record %v", rec)
	}
	if rec["component"] != "evaluator" || rec["source_index"] != float64(4) || rec["error"] != "singular" {
		t.Fatalf("missing fields in %v", rec)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Format: "text", Writer: &buf})

	log.Debug(context.Background(), "debug line")
	log.Info(context.Background(), "info line")
	if buf.Len() != 0 {
		t.Fatalf("expected debug/info to be filtered at warn level, got %q", buf.String())
	}
	log.Error(context.Background(), "error line")
	if !strings.Contains(buf.String(), "error line") {
		t.Fatalf("expected error line, got %q", buf.String())
	}
}

func TestErrNil(t *testing.T) {
	if f := Err(nil); f.Key != "error" || f.Value != "" {
		t.Fatalf("Err(nil) = %#v", f)
	}
}

func TestDetectFormatForNonTerminal(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "log")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer f.Close()
	if got := detectFormat(int(f.Fd())); got != "json" {
		t.Fatalf("detectFormat(file) = %q, want json", got)
	}
}

func TestRunLoggerKeepsExistingID(t *testing.T) {
	ctx := ContextWithRunID(context.Background(), "epoch-1")
	ctx, _ = WithRunLogger(ctx, nil)
	if got := RunIDFromContext(ctx); got != "epoch-1" {
		t.Fatalf("RunIDFromContext = %q, want epoch-1", got)
	}

	fresh, id := EnsureRunID(context.Background())
	if id == "" || RunIDFromContext(fresh) != id {
		t.Fatalf("EnsureRunID did not attach an id")
	}
}

func TestContextLogger(t *testing.T) {
	if LoggerFromContext(context.Background()) != nil {
		t.Fatalf("expected nil logger on bare context")
	}
	ctx := ContextWithLogger(context.Background(), nil)
	if LoggerFromContext(ctx) == nil {
		t.Fatalf("expected noop logger to be stored")
	}
}
