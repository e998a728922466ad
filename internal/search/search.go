// Package search provides semantic note search using an external vector
// index with transparent fallback to pgvector and text search in Postgres.
package search

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ashita-ai/kaigi/internal/model"
)

// Result holds a note ID and its raw similarity score from the search index.
// The caller hydrates full Note objects from Postgres (source of truth).
type Result struct {
	NoteID uuid.UUID
	Score  float32
}

// Searcher is the interface for vector search indexes.
// Implementations must be safe for concurrent use.
type Searcher interface {
	// Search returns note IDs matching the query vector within a workspace.
	// Returns IDs + raw similarity scores; the caller hydrates from Postgres.
	Search(ctx context.Context, workspaceID uuid.UUID, embedding []float32, limit int) ([]Result, error)

	// Healthy returns nil if the search index is reachable, or an error
	// describing the problem.
	Healthy(ctx context.Context) error
}

// ReScore adjusts raw similarity scores with recency weighting, sorts
// descending by adjusted score, and truncates to limit. Meeting notes go
// stale slowly, so the decay is gentle.
//
// Formula: relevance = similarity * (1.0 / (1.0 + age_days / 180.0))
func ReScore(results []Result, notes map[uuid.UUID]model.Note, limit int) []model.NoteMatch {
	now := time.Now()
	scored := make([]model.NoteMatch, 0, len(results))

	for _, r := range results {
		n, ok := notes[r.NoteID]
		if !ok {
			// Note was deleted between the index search and Postgres hydration.
			continue
		}

		ageDays := math.Max(0, now.Sub(n.UpdatedAt).Hours()/24.0)
		recencyDecay := 1.0 / (1.0 + ageDays/180.0)
		relevance := float64(r.Score) * recencyDecay

		scored = append(scored, model.NoteMatch{
			Note:  n,
			Score: math.Min(relevance, 1.0),
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}
