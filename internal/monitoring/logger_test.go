package monitoring

import (
	"strings"
	"testing"
	"time"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("test message")
	if !called {
		t.Error("custom logger was not called")
	}

	// nil installs a no-op logger
	called = false
	SetLogger(nil)
	Logf("test message")
	if called {
		t.Error("no-op logger should not have triggered callback")
	}
}

func TestLogfDefault(t *testing.T) {
	if Logf == nil {
		t.Error("Logf should not be nil by default")
	}
}

func TestChunkfIncludesBounds(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var gotFormat string
	var gotArgs []interface{}
	SetLogger(func(format string, v ...interface{}) {
		gotFormat = format
		gotArgs = v
	})

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	Chunkf(start, end, "fetch failed: %v", "boom")

	if !strings.HasPrefix(gotFormat, "chunk [%s, %s]: ") {
		t.Errorf("unexpected format %q", gotFormat)
	}
	if len(gotArgs) != 3 {
		t.Fatalf("expected 3 args, got %d", len(gotArgs))
	}
	if gotArgs[0] != "2024-03-01T00:00:00Z" || gotArgs[1] != "2024-03-02T00:00:00Z" {
		t.Errorf("unexpected bounds args %v", gotArgs[:2])
	}
}
