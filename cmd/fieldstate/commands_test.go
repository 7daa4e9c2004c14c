package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/matthewbaird/fieldstate/internal/logging"
)

const consentForm = `name: consent
fields:
  - id: agree
    kind: checkbox
  - id: reason
    label: Reason
    required: "if:('#agree' :checked)"
`

func writeDefinition(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write definition: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := newRootCommand()
	for _, name := range []string{"eval", "check", "watch"} {
		if sub, _, err := cmd.Find([]string{name}); err != nil || sub.Name() != name {
			t.Errorf("expected subcommand %q", name)
		}
	}
	if cmd.PersistentFlags().Lookup("json") == nil {
		t.Error("--json flag not defined")
	}
}

func TestEval_Table(t *testing.T) {
	path := writeDefinition(t, "consent.yaml", consentForm)
	out, err := execute(t, "eval", path)
	if err != nil {
		t.Fatalf("eval failed: %v", err)
	}
	if !strings.Contains(out, "FIELD") || !strings.Contains(out, "reason") {
		t.Errorf("expected table output, got:\n%s", out)
	}
	if !strings.Contains(out, "hidden") {
		t.Errorf("expected reason to be hidden, got:\n%s", out)
	}
}

func TestEval_SetJSON(t *testing.T) {
	path := writeDefinition(t, "consent.yaml", consentForm)
	out, err := execute(t, "eval", path, "--set", "#agree=true", "--json")
	if err != nil {
		t.Fatalf("eval failed: %v", err)
	}
	var res result
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, out)
	}
	if res.Form != "consent" || len(res.Fields) != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Fields[1].State != "required" {
		t.Errorf("expected reason required, got %q", res.Fields[1].State)
	}
	if res.Fields[1].Label != "Reason *" {
		t.Errorf("expected required marker on label, got %q", res.Fields[1].Label)
	}
}

func TestEval_FallbackAndToggle(t *testing.T) {
	path := writeDefinition(t, "consent.yaml", consentForm)
	out, err := execute(t, "eval", path, "--fallback", "disabled", "--json")
	if err != nil {
		t.Fatalf("eval failed: %v", err)
	}
	var res result
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("invalid JSON output: %v", err)
	}
	if res.Fields[1].State != "disabled" {
		t.Errorf("expected disabled fallback, got %q", res.Fields[1].State)
	}

	out, err = execute(t, "eval", path, "--toggle", "#reason=true", "--json")
	if err != nil {
		t.Fatalf("eval failed: %v", err)
	}
	res = result{}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("invalid JSON output: %v", err)
	}
	if res.Fields[1].State != "required" || !res.Fields[1].Overridden {
		t.Errorf("expected manual required, got %+v", res.Fields[1])
	}
}

func TestEval_BadFlags(t *testing.T) {
	path := writeDefinition(t, "consent.yaml", consentForm)
	tests := [][]string{
		{"eval", path, "--fallback", "visible"},
		{"eval", path, "--set", "no-equals"},
		{"eval", path, "--toggle", "#reason=maybe"},
		{"eval", path, "--set", "=yes"},
		{"eval", path, "--toggle", "=true"},
		{"eval"},
	}
	for _, args := range tests {
		if _, err := execute(t, args...); err == nil {
			t.Errorf("expected error for %v", args)
		}
	}
}

func TestEval_MissingFile(t *testing.T) {
	_, err := execute(t, "eval", filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestCheck_OK(t *testing.T) {
	path := writeDefinition(t, "consent.yaml", consentForm)
	out, err := execute(t, "check", path)
	if err != nil {
		t.Fatalf("check failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "[OK]") || !strings.Contains(out, "2 fields") {
		t.Errorf("expected [OK] with field count, got %q", out)
	}
}

func TestCheck_Problems(t *testing.T) {
	path := writeDefinition(t, "bad.yaml", `fields:
  - id: a
    required: "if:('#nobody' == 'x')"
`)
	out, err := execute(t, "check", path, "--json")
	if err == nil {
		t.Fatal("expected check to fail")
	}
	var report checkReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, out)
	}
	if report.Valid || len(report.Problems) != 1 {
		t.Fatalf("expected one problem, got %+v", report)
	}
	if !strings.Contains(report.Problems[0], "matches no field") {
		t.Errorf("unexpected problem: %s", report.Problems[0])
	}
}

func TestCheck_SchemaError(t *testing.T) {
	path := writeDefinition(t, "bad.yaml", "fields: [{id: a, colour: red}]\n")
	out, err := execute(t, "check", path)
	if err == nil {
		t.Fatal("expected check to fail")
	}
	if !strings.Contains(out, "[FAIL]") {
		t.Errorf("expected [FAIL], got %q", out)
	}
}

// syncBuffer is a bytes.Buffer safe for the watcher goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatch_RerendersOnWrite(t *testing.T) {
	path := writeDefinition(t, "consent.yaml", consentForm)
	var out syncBuffer
	renders := make(chan struct{}, 16)
	w := &watcher{
		path:    path,
		opts:    &evalOptions{},
		out:     &out,
		logger:  logging.Discard(),
		changed: func() {
			select {
			case renders <- struct{}{}:
			default:
			}
		},
	}

	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- w.run(stop) }()

	wait := func() {
		t.Helper()
		select {
		case <-renders:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for render; output:\n%s", out.String())
		}
	}
	wait()

	updated := strings.Replace(consentForm, "kind: checkbox", "kind: checkbox\n    checked: true", 1)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("failed to update definition: %v", err)
	}
	deadline := time.After(5 * time.Second)
	for !strings.Contains(out.String(), "required") {
		select {
		case <-renders:
		case <-deadline:
			t.Fatalf("timed out waiting for re-render; output:\n%s", out.String())
		}
	}

	close(stop)
	if err := <-done; err != nil {
		t.Errorf("watch returned error: %v", err)
	}
}
