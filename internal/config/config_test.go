package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoadParsesClassHints(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFilename)
	data := `inline: fixpoint
trace: true
classes:
  Top:
    rules: [tick]
    priority:
      - {rule: tick, level: high}
    connect:
      - {target: fifo.in, source: lpm.out, interface: PipeIn}
    overrides:
      - {field: buf, count: 4}
    software: [Top_sw]
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	want := ClassHints{
		Rules:     []string{"tick"},
		Priority:  []Priority{{Rule: "tick", Level: "high"}},
		Connect:   []Connect{{Target: "fifo.in", Source: "lpm.out", Interface: "PipeIn"}},
		Overrides: []Override{{Field: "buf", Count: 4}},
		Software:  []string{"Top_sw"},
	}
	if diff := cmp.Diff(want, cfg.Hints("Top")); diff != "" {
		t.Fatalf("hints mismatch (-want +got):\n%s", diff)
	}
	if cfg.Inline != InlineFixpoint || !cfg.Trace {
		t.Fatalf("expected fixpoint inline with trace, got %+v", cfg)
	}
}

func TestLoadRejectsUnknownInlineMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFilename)
	if err := os.WriteFile(path, []byte("inline: always\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), `unknown inline mode "always"`) {
		t.Fatalf("expected inline mode error, got %v", err)
	}
}

func TestLoadRejectsBadOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFilename)
	data := "classes:\n  Top:\n    overrides:\n      - {field: buf, count: 0}\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected override validation error")
	}
}

func TestDiscoverFallsBackToDefault(t *testing.T) {
	cfg, err := Discover(t.TempDir())
	if err != nil {
		t.Fatalf("discover failed: %v", err)
	}
	if cfg.Inline != InlineSingle {
		t.Fatalf("expected default inline mode single, got %q", cfg.Inline)
	}
	if len(cfg.Hints("Missing").Rules) != 0 {
		t.Fatalf("expected empty hints for unknown class")
	}
}

func TestWriteTemplateRoundTrips(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Classes["Counter"] = ClassHints{Rules: []string{"tick"}}
	if err := WriteTemplate(dir, cfg); err != nil {
		t.Fatalf("write template: %v", err)
	}
	got, err := Discover(dir)
	if err != nil {
		t.Fatalf("discover failed: %v", err)
	}
	if diff := cmp.Diff(cfg, got); diff != "" {
		t.Fatalf("template mismatch (-want +got):\n%s", diff)
	}
}

func TestParseInlineMode(t *testing.T) {
	if m, err := ParseInlineMode("fixpoint"); err != nil || m != InlineFixpoint {
		t.Fatalf("expected fixpoint, got %q (%v)", m, err)
	}
	if _, err := ParseInlineMode("aggressive"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}
