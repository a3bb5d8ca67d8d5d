package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestStructuredLogging(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "DEBUG", "text", false)

	Info("write complete", "path", "/docs/report.pdf", "size", 1024)

	out := buf.String()
	if !strings.Contains(out, "write complete") {
		t.Errorf("output missing message: %q", out)
	}
	if !strings.Contains(out, "path=/docs/report.pdf") {
		t.Errorf("output missing path attr: %q", out)
	}
	if !strings.Contains(out, "size=1024") {
		t.Errorf("output missing size attr: %q", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "WARN", "text", false)

	Debug("should not appear")
	Info("should not appear either")
	Warn("warning message")
	Error("error message")

	out := buf.String()
	if strings.Contains(out, "should not appear") {
		t.Errorf("level filtering failed: %q", out)
	}
	if !strings.Contains(out, "warning message") {
		t.Errorf("warn message missing: %q", out)
	}
	if !strings.Contains(out, "error message") {
		t.Errorf("error message missing: %q", out)
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "json", false)

	Info("json test", "tenant", "t1")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not valid JSON: %v (%q)", err, buf.String())
	}
	if record["msg"] != "json test" {
		t.Errorf("msg = %v, want %q", record["msg"], "json test")
	}
	if record["tenant"] != "t1" {
		t.Errorf("tenant = %v, want %q", record["tenant"], "t1")
	}
}

func TestContextFields(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text", false)

	lc := NewLogContext("tenant-a").WithOperation("WriteFile").WithPath("/a/b")
	ctx := WithContext(context.Background(), lc)

	InfoCtx(ctx, "operation done")

	out := buf.String()
	for _, want := range []string{"tenant=tenant-a", "operation=WriteFile", "path=/a/b"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %q", want, out)
		}
	}
}

func TestContextFieldsAbsent(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text", false)

	InfoCtx(context.Background(), "no context")

	out := buf.String()
	if strings.Contains(out, "tenant=") {
		t.Errorf("unexpected tenant field without LogContext: %q", out)
	}
}

func TestSetLevelInvalid(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text", false)

	// Invalid level is ignored; INFO remains active
	SetLevel("NOPE")

	Info("still logging")
	if !strings.Contains(buf.String(), "still logging") {
		t.Errorf("invalid SetLevel changed behavior: %q", buf.String())
	}
}

func TestWithBoundFields(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text", false)

	log := With("component", "reclaimer")
	log.Info("pass complete", "count", 3)

	out := buf.String()
	if !strings.Contains(out, "component=reclaimer") {
		t.Errorf("bound field missing: %q", out)
	}
	if !strings.Contains(out, "count=3") {
		t.Errorf("call-site field missing: %q", out)
	}
}
