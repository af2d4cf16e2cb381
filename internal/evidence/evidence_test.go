package evidence

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRuleRedactor(t *testing.T) {
	r := NewRuleRedactor()

	tests := []struct {
		name     string
		in       string
		wantSub  string
		wantGone string
	}{
		{"email", "contact ops@example.com now", "[EMAIL]", "ops@example.com"},
		{"ip", "upstream 10.0.12.7 timed out", "[IP]", "10.0.12.7"},
		{"bearer token", "Authorization: Bearer abc123.def456", "Bearer [TOKEN]", "abc123"},
		{"api key assignment", `api_key="sk-deadbeef42"`, "[REDACTED]", "sk-deadbeef42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, changed := r.Redact(tt.in)
			if !changed {
				t.Fatalf("Redact(%q) reported no change", tt.in)
			}
			if !strings.Contains(out, tt.wantSub) {
				t.Errorf("output %q missing %q", out, tt.wantSub)
			}
			if strings.Contains(out, tt.wantGone) {
				t.Errorf("output %q still contains %q", out, tt.wantGone)
			}
		})
	}
}

func TestRuleRedactorCleanTextUnchanged(t *testing.T) {
	r := NewRuleRedactor()
	in := "service returned 502 Bad Gateway at 14:02"
	out, changed := r.Redact(in)
	if changed || out != in {
		t.Errorf("clean text was altered: %q -> %q", in, out)
	}
}

func TestIngestFileRedacts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	content := "login failed for admin@corp.example\n401 Unauthorized\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	ing := NewIngestor(NewRuleRedactor())
	ev, wasRedacted, err := ing.IngestFile(path, []string{"logs"})
	if err != nil {
		t.Fatalf("IngestFile: %v", err)
	}
	if !wasRedacted || !ev.Redacted {
		t.Error("expected redaction to be reported")
	}
	if strings.Contains(ev.Content, "admin@corp.example") {
		t.Error("email leaked into stored evidence")
	}
	if !strings.Contains(ev.Content, "401 Unauthorized") {
		t.Error("non-sensitive content should survive redaction")
	}
	if ev.Source != path {
		t.Errorf("Source = %q, want %q", ev.Source, path)
	}
	if len(ev.Tags) != 1 || ev.Tags[0] != "logs" {
		t.Errorf("Tags = %v", ev.Tags)
	}
}

func TestIngestFileMissing(t *testing.T) {
	ing := NewIngestor(NoopRedactor{})
	if _, _, err := ing.IngestFile(filepath.Join(t.TempDir(), "nope.log"), nil); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestIngestText(t *testing.T) {
	ing := NewIngestor(NewRuleRedactor())
	ev, wasRedacted := ing.IngestText("pasted", "db password=hunter2 rejected", []string{"db"})
	if !wasRedacted {
		t.Error("expected redaction")
	}
	if strings.Contains(ev.Content, "hunter2") {
		t.Error("password leaked")
	}
	if ev.ID == "" {
		t.Error("evidence id should be generated")
	}
}
