package domain

import "time"

// DocumentStatus enumerates the lifecycle of a discovered document.
// Transitions are monotone: pending -> processing -> done|error.
type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusDone       DocumentStatus = "done"
	StatusError      DocumentStatus = "error"
)

// DocumentRecord is one unique discovered document in the ledger.
// ParentID points at the record whose evaluation suggested this one;
// it is set at creation and never mutated, so lineage stays a forest.
type DocumentRecord struct {
	ID           string
	Title        string
	LocationHint string
	LocalPath    string
	ParentID     string
	Status       DocumentStatus
	Score        *float64
	Summary      string
	AddedAt      time.Time
	ProcessedAt  time.Time
}

// Candidate is a search hit not yet admitted into the ledger.
type Candidate struct {
	ID           string
	Title        string
	LocationHint string
	Abstract     string
}

// Evaluation is the oracle's verdict on a single document.
type Evaluation struct {
	Score            float64
	Summary          string
	Flaws            string
	ThoughtSignature string
	FollowUpQueries  []string
}

// Guidance is the strategic re-planner's output at a checkpoint.
type Guidance struct {
	Reflection string
	Strategy   Strategy
	NewQueries []string
}

// Finding pairs a done record with its score for report compilation.
type Finding struct {
	Title   string
	Summary string
	Score   float64
	URL     string
}
