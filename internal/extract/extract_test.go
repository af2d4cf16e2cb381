package extract

import (
	"strings"
	"testing"

	"github.com/triagekit/triage/internal/cases"
)

func caseWith(question cases.Question, evidenceContent string) *cases.Case {
	return &cases.Case{
		ID:        "c1",
		State:     cases.StatePlan,
		Problem:   "p",
		Questions: []cases.Question{question},
		Evidence: []cases.Evidence{
			{ID: "e1", Source: "app.log", Content: evidenceContent},
		},
	}
}

func TestDirectErrorCodeIsHighConfidence(t *testing.T) {
	c := caseWith(
		cases.Question{ID: "q1", Prompt: "What is the exact error code?", Status: cases.QuestionOpen},
		"request failed\n401 Unauthorized\nretrying",
	)

	suggestions := Answers(c)
	if len(suggestions) != 1 {
		t.Fatalf("got %d suggestions, want 1", len(suggestions))
	}
	s := suggestions[0]
	if s.Confidence != ConfidenceHigh {
		t.Errorf("Confidence = %s, want high", s.Confidence)
	}
	if !strings.Contains(s.Answer, "401") {
		t.Errorf("Answer = %q, want it to contain 401", s.Answer)
	}
	if len(s.EvidenceRefs) != 1 || s.EvidenceRefs[0] != "e1" {
		t.Errorf("EvidenceRefs = %v, want [e1]", s.EvidenceRefs)
	}
}

func TestLooseMentionIsNotHighConfidence(t *testing.T) {
	c := caseWith(
		cases.Question{ID: "q1", Prompt: "What is the exact error code?", Status: cases.QuestionOpen},
		"the auth service logged an error during checkout",
	)

	suggestions := Answers(c)
	if len(suggestions) != 1 {
		t.Fatalf("got %d suggestions, want 1", len(suggestions))
	}
	if suggestions[0].Confidence == ConfidenceHigh {
		t.Errorf("loosely related evidence must not be high confidence (answer %q)", suggestions[0].Answer)
	}
}

func TestExampleMatchIsHighConfidence(t *testing.T) {
	c := caseWith(
		cases.Question{
			ID: "q1", Prompt: "Which dependency is failing?", Status: cases.QuestionOpen,
			Examples: []string{"connection refused"},
		},
		"dial tcp: connection refused from payments",
	)

	suggestions := Answers(c)
	if len(suggestions) != 1 || suggestions[0].Confidence != ConfidenceHigh {
		t.Fatalf("expected a high suggestion from example match, got %+v", suggestions)
	}
}

func TestKeywordOverlapIsMedium(t *testing.T) {
	c := caseWith(
		cases.Question{ID: "q1", Prompt: "Which hosts are affected?", Status: cases.QuestionOpen},
		"affected hosts include the edge pool",
	)

	suggestions := Answers(c)
	if len(suggestions) != 1 {
		t.Fatalf("got %d suggestions, want 1", len(suggestions))
	}
	if suggestions[0].Confidence != ConfidenceMedium {
		t.Errorf("Confidence = %s, want medium", suggestions[0].Confidence)
	}
}

func TestNoEvidenceNoSuggestion(t *testing.T) {
	c := caseWith(
		cases.Question{ID: "q1", Prompt: "What changed in the deploy pipeline?", Status: cases.QuestionOpen},
		"totally unrelated text about lunch plans",
	)
	if got := Answers(c); len(got) != 0 {
		t.Errorf("expected no suggestions, got %+v", got)
	}
}

func TestAnsweredQuestionsAreSkipped(t *testing.T) {
	c := caseWith(
		cases.Question{ID: "q1", Prompt: "What is the exact error code?", Status: cases.QuestionAnswered, Answer: "401"},
		"401 Unauthorized",
	)
	if got := Answers(c); len(got) != 0 {
		t.Errorf("answered questions should produce no suggestions, got %+v", got)
	}
}

func TestBestTierWinsAcrossLines(t *testing.T) {
	c := caseWith(
		cases.Question{ID: "q1", Prompt: "What is the exact error code?", Status: cases.QuestionOpen},
		"some error happened\nlater we saw 503 Service Unavailable\n",
	)

	suggestions := Answers(c)
	if len(suggestions) != 1 {
		t.Fatalf("got %d suggestions, want 1", len(suggestions))
	}
	if suggestions[0].Confidence != ConfidenceHigh || !strings.Contains(suggestions[0].Answer, "503") {
		t.Errorf("best line should win: %+v", suggestions[0])
	}
}
