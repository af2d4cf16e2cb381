package templates

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	chromem "github.com/philippgille/chromem-go"

	"github.com/triagekit/triage/internal/embeddings"
)

// Matcher ranks enabled templates against a problem description. Keyword and
// error-pattern scoring is always available; when an embedder is configured
// a semantic similarity signal is blended in.
type Matcher struct {
	store    *Store
	embedder embeddings.Embedder
}

// NewMatcher creates a matcher. embedder may be nil.
func NewMatcher(store *Store, embedder embeddings.Embedder) *Matcher {
	return &Matcher{store: store, embedder: embedder}
}

// Match returns enabled templates ranked by relevance to the problem text.
// errorContext carries raw log or error excerpts matched against each
// template's error patterns.
func (m *Matcher) Match(ctx context.Context, problemText, errorContext string) ([]RankedTemplate, error) {
	all, err := m.store.List(ctx, true)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, nil
	}

	ranked := make([]RankedTemplate, 0, len(all))
	for _, t := range all {
		score, reasons := keywordScore(t, problemText, errorContext)
		ranked = append(ranked, RankedTemplate{Template: t, Score: score, Reasons: reasons})
	}

	if m.embedder != nil {
		if err := m.blendSemantic(ctx, ranked, problemText); err != nil {
			// Semantic ranking is an enhancement; keyword ranking stands on
			// its own when the embedder is unreachable.
			fmt.Fprintf(os.Stderr, "note: semantic template matching unavailable (%v), using keyword ranking\n", err)
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })

	// Drop templates with no signal at all.
	out := ranked[:0]
	for _, r := range ranked {
		if r.Score > 0 {
			out = append(out, r)
		}
	}
	return out, nil
}

// keywordScore computes the deterministic match score in [0, 1].
func keywordScore(t *Template, problemText, errorContext string) (float64, []string) {
	haystack := strings.ToLower(problemText + "\n" + errorContext)

	var hits int
	var reasons []string
	for _, kw := range t.Keywords {
		if strings.Contains(haystack, strings.ToLower(kw)) {
			hits++
			reasons = append(reasons, fmt.Sprintf("keyword %q", kw))
		}
	}
	var kwScore float64
	if len(t.Keywords) > 0 {
		kwScore = float64(hits) / float64(len(t.Keywords))
	}

	var patternHits int
	for _, pat := range t.ErrorPatterns {
		re, err := regexp.Compile(pat)
		if err != nil {
			continue
		}
		if re.MatchString(problemText) || re.MatchString(errorContext) {
			patternHits++
			reasons = append(reasons, fmt.Sprintf("error pattern %q", pat))
		}
	}
	var patScore float64
	if len(t.ErrorPatterns) > 0 {
		patScore = float64(patternHits) / float64(len(t.ErrorPatterns))
	}

	// Error patterns are stronger evidence than keyword overlap.
	return 0.4*kwScore + 0.6*patScore, reasons
}

// blendSemantic mixes chromem-go cosine similarity into the scores in place.
func (m *Matcher) blendSemantic(ctx context.Context, ranked []RankedTemplate, problemText string) error {
	db := chromem.NewDB()
	col, err := db.GetOrCreateCollection("templates", nil, embeddings.ToChromemFunc(m.embedder))
	if err != nil {
		return fmt.Errorf("creating collection: %w", err)
	}

	docs := make([]chromem.Document, len(ranked))
	for i, r := range ranked {
		t := r.Template
		docs[i] = chromem.Document{
			ID:      t.ID,
			Content: t.Name + ". " + t.Classification + ". " + strings.Join(t.Keywords, ", "),
		}
	}
	if err := col.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("indexing templates: %w", err)
	}

	n := len(ranked)
	results, err := col.Query(ctx, problemText, n, nil, nil)
	if err != nil {
		return fmt.Errorf("querying templates: %w", err)
	}

	similarity := make(map[string]float32, len(results))
	for _, r := range results {
		similarity[r.ID] = r.Similarity
	}
	for i := range ranked {
		sim := float64(similarity[ranked[i].Template.ID])
		ranked[i].Score = 0.5*ranked[i].Score + 0.5*sim
		if sim > 0 {
			ranked[i].Reasons = append(ranked[i].Reasons, fmt.Sprintf("semantic similarity %.0f%%", sim*100))
		}
	}
	return nil
}
