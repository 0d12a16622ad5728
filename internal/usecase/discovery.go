package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"ScholarLoop/internal/domain"
	"ScholarLoop/internal/ports"
)

// Dispatcher is the single choke point through which new work enters
// the ledger. Root searches, checkpoint pivots, starvation refinements,
// and evaluator follow-ups all pass through Discover, so the enqueue
// dedup guard holds globally no matter who initiated the discovery.
type Dispatcher struct {
	ledger    ports.Ledger
	source    ports.DocumentSource
	states    ports.StateStore
	resultCap int
	logger    *slog.Logger
}

// NewDispatcher wires the discovery path.
func NewDispatcher(ledger ports.Ledger, source ports.DocumentSource, states ports.StateStore, resultCap int, logger *slog.Logger) *Dispatcher {
	if resultCap <= 0 {
		resultCap = 5
	}
	return &Dispatcher{
		ledger:    ledger,
		source:    source,
		states:    states,
		resultCap: resultCap,
		logger:    logger,
	}
}

// Discover searches for the query, enqueues previously unseen
// candidates with parent lineage, and returns the count of records
// actually inserted. A transport-level search failure surfaces as a
// zero count, not an error; only persistence failures propagate.
func (d *Dispatcher) Discover(ctx context.Context, state *domain.SessionState, query, parentID string) (int, error) {
	candidates, err := d.source.Search(ctx, query, d.resultCap)
	if err != nil {
		d.warn("search failed", "query", query, "error", err)
		return 0, nil
	}

	enqueued := 0
	for _, candidate := range candidates {
		if candidate.ID == "" {
			continue
		}
		inserted, err := d.ledger.Enqueue(ctx, candidate.ID, candidate.Title, candidate.LocationHint, parentID)
		if err != nil {
			return enqueued, fmt.Errorf("enqueue %s: %w", candidate.ID, err)
		}
		if inserted {
			enqueued++
		}
	}

	d.debug("discovery done", "query", query, "hits", len(candidates), "enqueued", enqueued)

	if enqueued > 0 {
		state.LastNote = fmt.Sprintf("Found %d potential evidence documents for %q.", enqueued, query)
		if err := d.states.Save(state); err != nil {
			return enqueued, fmt.Errorf("save state after discovery: %w", err)
		}
	}
	return enqueued, nil
}

func (d *Dispatcher) warn(msg string, args ...interface{}) {
	if d.logger != nil {
		d.logger.Warn(msg, args...)
	}
}

func (d *Dispatcher) debug(msg string, args ...interface{}) {
	if d.logger != nil {
		d.logger.Debug(msg, args...)
	}
}
