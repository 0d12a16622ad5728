package ports

import (
	"context"

	"ScholarLoop/internal/domain"
)

// Ledger is the durable dedup queue plus lineage store for documents.
// All mutations in a run come from a single scheduler; concurrent
// readers must tolerate eventual consistency.
type Ledger interface {
	// Enqueue inserts a pending record unless the id already exists.
	// Returns false and performs no write on a duplicate.
	Enqueue(ctx context.Context, id, title, locationHint, parentID string) (bool, error)
	// NextPending returns the oldest pending record or nil when the
	// queue is empty.
	NextPending(ctx context.Context) (*domain.DocumentRecord, error)
	MarkProcessing(ctx context.Context, id string) error
	MarkDone(ctx context.Context, id string, score float64, summary, localPath string) error
	MarkError(ctx context.Context, id string) error
	// Statistics reports record counts per status, for observability only.
	Statistics(ctx context.Context) (map[domain.DocumentStatus]int, error)
	// Findings returns done records ordered by score descending.
	Findings(ctx context.Context) ([]domain.Finding, error)
}

// StateStore persists the SessionState snapshot across restarts.
type StateStore interface {
	// Load returns the last snapshot, or (nil, nil) when it is absent
	// or unreadable; corruption is treated as no prior state.
	Load() (*domain.SessionState, error)
	// Save atomically overwrites the snapshot with the full state.
	Save(state *domain.SessionState) error
	// ApplyOperatorOverride rewrites the advisory fields from operator
	// input; strategy is optional and last-write-wins vs the loop.
	ApplyOperatorOverride(command string, strategy domain.Strategy) error
}

// DocumentSource searches for candidate documents and materializes
// their content on local disk.
type DocumentSource interface {
	// Search may return fewer results than requested, including none;
	// zero hits is not an error.
	Search(ctx context.Context, query string, maxResults int) ([]domain.Candidate, error)
	// Fetch downloads the document behind the id and returns its local path.
	Fetch(ctx context.Context, id string) (string, error)
}

// Evaluator scores a document against the goal and proposes follow-ups.
type Evaluator interface {
	Evaluate(ctx context.Context, content, goal string) (domain.Evaluation, error)
}

// Planner performs the periodic strategic review at checkpoints.
// A nil guidance means no directives this time.
type Planner interface {
	Plan(ctx context.Context, state *domain.SessionState, recentFacts string) (*domain.Guidance, error)
}

// Refiner generates replacement queries after repeated starvation.
type Refiner interface {
	Refine(ctx context.Context, seed, goal string) ([]string, error)
}

// Extractor converts a materialized document into plain text.
type Extractor interface {
	Extract(path string) (string, error)
}

// Compiler synthesizes collected findings into a human-readable report.
type Compiler interface {
	Compile(ctx context.Context, goal string, findings []domain.Finding) (string, error)
}

// Notifier streams progress digests to an out-of-band channel.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}
