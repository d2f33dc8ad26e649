package logger

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLoggerInit(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}
}

func TestLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	if err := InitWriter(&buf); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	ctx := context.Background()
	Get().Info(ctx, "file loaded",
		String("file", "260117_no1.xlsx"),
		Int("columns", 2),
		Float64("min_temp", 30),
		Bool("filtered", true),
		Duration("took", 1500*time.Millisecond),
		Error(errors.New("boom")))

	out := buf.String()
	for _, want := range []string{"file loaded", "file=260117_no1.xlsx", "columns=2", "filtered=true", "took=1.5s", "error=boom", "source=logger_test.go"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %q missing %q", out, want)
		}
	}
}

func TestLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	if err := InitWriter(&buf); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	if err := SetLevelString("warn"); err != nil {
		t.Fatalf("set level: %v", err)
	}
	defer func() { _ = SetLevelString("info") }()

	ctx := context.Background()
	Get().Info(ctx, "hidden")
	Get().Warn(ctx, "shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record emitted at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warn record missing: %q", out)
	}

	if err := SetLevelString("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestLoggerNamedAndWith(t *testing.T) {
	var buf bytes.Buffer
	if err := InitWriter(&buf); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	ctx := context.Background()
	Named("capsule").With(String("run_id", "abc")).Info(ctx, "parsed", Int("rows", 3))

	out := buf.String()
	if !strings.Contains(out, "run_id=abc") {
		t.Errorf("missing bound field: %q", out)
	}
	if !strings.Contains(out, "capsule.rows=3") {
		t.Errorf("missing grouped field: %q", out)
	}
}

func TestNopLogger(t *testing.T) {
	l := Nop()
	l.Error(context.Background(), "dropped")
	if l.Named("x") == nil {
		t.Fatal("named nop logger is nil")
	}
}
