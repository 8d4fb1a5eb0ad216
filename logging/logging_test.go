package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "debug", Format: "json", Output: &buf})
	l.With(String("site", "caney")).Debug(context.Background(), "mesh built", Int("triangles", 12))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not json: %v (%q)", err, buf.String())
	}
	if rec["msg"] != "mesh built" || rec["site"] != "caney" || rec["triangles"] != float64(12) {
		t.Fatalf("unexpected record %v", rec)
	}
}

func TestLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "warn", Output: &buf})
	l.Info(context.Background(), "hidden")
	l.Warn(context.Background(), "shown")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("level filter not applied: %q", out)
	}
}

func TestRequestHelpers(t *testing.T) {
	ctx, id := EnsureRequestID(context.Background())
	if id == "" || RequestIDFromContext(ctx) != id {
		t.Fatalf("request id not stored")
	}
	ctx2, id2 := EnsureRequestID(ctx)
	if id2 != id || ctx2 != ctx {
		t.Fatalf("existing request id should be reused")
	}

	var buf bytes.Buffer
	base := New(Config{Format: "json", Output: &buf})
	ctx, l := WithRequestLogger(context.Background(), base)
	ctx = ContextWithLogger(ctx, l)
	FromContext(ctx, nil).Info(ctx, "hello")
	if !strings.Contains(buf.String(), RequestIDFromContext(ctx)) {
		t.Fatalf("request id missing from log line %q", buf.String())
	}

	if _, ok := FromContext(context.Background(), nil).(noopLogger); !ok {
		t.Fatalf("missing logger should fall back to noop")
	}
}
