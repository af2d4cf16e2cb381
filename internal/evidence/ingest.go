package evidence

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/triagekit/triage/internal/cases"
)

// maxFileSize caps how much of a single file is ingested as evidence.
const maxFileSize = 1 << 20 // 1 MiB

// Ingestor reads files into evidence records. Every record's content has
// passed the redactor before it leaves this package.
type Ingestor struct {
	redactor Redactor
}

// NewIngestor creates an ingestor. redactor must not be nil; pass
// NoopRedactor{} to disable redaction explicitly.
func NewIngestor(redactor Redactor) *Ingestor {
	return &Ingestor{redactor: redactor}
}

// IngestFile reads path, redacts its content, and returns the evidence
// record plus whether redaction changed anything. It does not persist; the
// orchestrator owns case mutation.
func (in *Ingestor) IngestFile(path string, tags []string) (cases.Evidence, bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return cases.Evidence{}, false, fmt.Errorf("reading %s: %w", path, err)
	}
	if info.Size() > maxFileSize {
		return cases.Evidence{}, false, fmt.Errorf("%s is %d bytes, above the %d byte evidence limit", path, info.Size(), maxFileSize)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cases.Evidence{}, false, fmt.Errorf("reading %s: %w", path, err)
	}

	content, changed := in.redactor.Redact(string(raw))

	return cases.Evidence{
		ID:       uuid.New().String(),
		Source:   path,
		Content:  content,
		Redacted: changed,
		Tags:     tags,
		AddedAt:  time.Now().UTC().Truncate(time.Second),
	}, changed, nil
}

// IngestText wraps an inline snippet (e.g. pasted log lines) as evidence.
func (in *Ingestor) IngestText(source, text string, tags []string) (cases.Evidence, bool) {
	content, changed := in.redactor.Redact(text)
	return cases.Evidence{
		ID:       uuid.New().String(),
		Source:   source,
		Content:  content,
		Redacted: changed,
		Tags:     tags,
		AddedAt:  time.Now().UTC().Truncate(time.Second),
	}, changed
}
