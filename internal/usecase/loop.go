package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"ScholarLoop/internal/domain"
	"ScholarLoop/internal/ports"
)

// Tuning bundles the loop constants. Zero values fall back to the
// defaults the rest of the system is calibrated for.
type Tuning struct {
	MaxSteps            int
	CheckpointInterval  int
	StarvationThreshold int
	RelevanceThreshold  float64
	RecentFactsWindow   int
	EvalExcerptBytes    int
	TickDelay           time.Duration
	StarvationPause     time.Duration
}

func (t Tuning) withDefaults() Tuning {
	if t.MaxSteps <= 0 {
		t.MaxSteps = 100
	}
	if t.CheckpointInterval <= 0 {
		t.CheckpointInterval = 5
	}
	if t.StarvationThreshold <= 0 {
		t.StarvationThreshold = 2
	}
	if t.RelevanceThreshold <= 0 {
		t.RelevanceThreshold = 5.0
	}
	if t.RecentFactsWindow <= 0 {
		t.RecentFactsWindow = 3
	}
	if t.EvalExcerptBytes <= 0 {
		t.EvalExcerptBytes = 5000
	}
	if t.TickDelay <= 0 {
		t.TickDelay = 100 * time.Millisecond
	}
	if t.StarvationPause <= 0 {
		t.StarvationPause = time.Second
	}
	return t
}

// LoopDeps wires all collaborators into the scheduler loop.
type LoopDeps struct {
	Ledger     ports.Ledger
	States     ports.StateStore
	Source     ports.DocumentSource
	Evaluator  ports.Evaluator
	Planner    ports.Planner
	Refiner    ports.Refiner
	Extractor  ports.Extractor
	Notifier   ports.Notifier
	Dispatcher *Dispatcher
	Logger     *slog.Logger
}

// Loop drives the research run: one logical worker pulling documents
// from the ledger, evaluating them, and growing the queue through
// discovery, with periodic strategic checkpoints. All durable state
// lives in the ledger and the snapshot, so a crashed run resumes by
// simply starting the loop again.
type Loop struct {
	goal       string
	ledger     ports.Ledger
	states     ports.StateStore
	source     ports.DocumentSource
	evaluator  ports.Evaluator
	planner    ports.Planner
	refiner    ports.Refiner
	extractor  ports.Extractor
	notifier   ports.Notifier
	dispatcher *Dispatcher
	logger     *slog.Logger
	tuning     Tuning
}

// NewLoop constructs the scheduler loop for the given goal.
func NewLoop(goal string, deps LoopDeps, tuning Tuning) *Loop {
	return &Loop{
		goal:       goal,
		ledger:     deps.Ledger,
		states:     deps.States,
		source:     deps.Source,
		evaluator:  deps.Evaluator,
		planner:    deps.Planner,
		refiner:    deps.Refiner,
		extractor:  deps.Extractor,
		notifier:   deps.Notifier,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		tuning:     tuning.withDefaults(),
	}
}

// Run executes ticks until the step limit is reached or the context is
// canceled. Cancellation is honored only at tick boundaries; a call in
// flight is never interrupted mid-persistence.
func (l *Loop) Run(ctx context.Context) error {
	state, err := l.states.Load()
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}

	if state == nil {
		state = domain.NewSessionState(l.goal)
		if err := l.states.Save(state); err != nil {
			return fmt.Errorf("save initial state: %w", err)
		}
		l.info("starting fresh run", "goal", state.Goal)
		if _, err := l.dispatcher.Discover(ctx, state, state.Goal+" limitations failures", ""); err != nil {
			return err
		}
	} else {
		l.info("resuming run", "goal", state.Goal, "step", state.StepCount)
	}

	for state.StepCount < l.tuning.MaxSteps {
		if err := ctx.Err(); err != nil {
			l.info("stop requested", "step", state.StepCount)
			return err
		}

		if err := l.tick(ctx, state); err != nil {
			return err
		}

		if err := pause(ctx, l.tuning.TickDelay); err != nil {
			l.info("stop requested", "step", state.StepCount)
			return err
		}
	}

	l.info("step limit reached", "steps", state.StepCount)
	return nil
}

// tick performs one unit of work. Only persistence failures abort the
// run; collaborator failures are isolated to the record or tick that
// triggered them.
func (l *Loop) tick(ctx context.Context, state *domain.SessionState) error {
	if state.StepCount > 0 && state.StepCount%l.tuning.CheckpointInterval == 0 {
		if err := l.checkpoint(ctx, state); err != nil {
			return err
		}
		if err := l.states.Save(state); err != nil {
			return fmt.Errorf("save state after checkpoint: %w", err)
		}
	}

	state.StepCount++
	l.debug("tick", "step", state.StepCount, "strategy", state.Strategy)

	record, err := l.ledger.NextPending(ctx)
	if err != nil {
		return fmt.Errorf("next pending: %w", err)
	}

	if record == nil {
		return l.handleStarvation(ctx, state)
	}

	state.ConsecutiveEmptyPulls = 0
	if err := l.processRecord(ctx, state, record); err != nil {
		return err
	}
	return l.saveState(state)
}

// checkpoint runs the periodic strategic review. A failed or silent
// planner leaves the state untouched; new queries go through the
// regular discovery choke point.
func (l *Loop) checkpoint(ctx context.Context, state *domain.SessionState) error {
	facts := strings.Join(state.RecentFacts(l.tuning.RecentFactsWindow), "\n")

	guidance, err := l.planner.Plan(ctx, state, facts)
	if err != nil {
		l.warn("strategic review failed", "step", state.StepCount, "error", err)
		return nil
	}
	if guidance == nil {
		return nil
	}

	l.info("strategic review", "step", state.StepCount, "strategy", guidance.Strategy)
	state.LastNote = "Strategic review: " + guidance.Reflection
	state.Strategy = guidance.Strategy

	for _, query := range guidance.NewQueries {
		if _, err := l.dispatcher.Discover(ctx, state, query, ""); err != nil {
			return err
		}
	}

	l.publishDigest(ctx, state, guidance.Reflection)
	return nil
}

// handleStarvation counts the empty pull and, past the threshold,
// invokes query refinement. The counter resets only when refinement
// actually enqueued something new.
func (l *Loop) handleStarvation(ctx context.Context, state *domain.SessionState) error {
	state.ConsecutiveEmptyPulls++
	l.debug("queue empty", "consecutive", state.ConsecutiveEmptyPulls)

	if state.ConsecutiveEmptyPulls < l.tuning.StarvationThreshold {
		return l.saveState(state)
	}

	queries, err := l.refiner.Refine(ctx, state.Goal, state.Goal)
	if err != nil {
		l.warn("query refinement failed", "error", err)
		queries = nil
	}

	enqueued := 0
	for _, query := range queries {
		count, err := l.dispatcher.Discover(ctx, state, query, "")
		if err != nil {
			return err
		}
		enqueued += count
	}

	if enqueued > 0 {
		l.info("recovered from starvation", "new_documents", enqueued)
		state.ConsecutiveEmptyPulls = 0
	} else if err := pause(ctx, l.tuning.StarvationPause); err != nil {
		return err
	}
	return l.saveState(state)
}

// processRecord materializes, evaluates, and finalizes one document.
func (l *Loop) processRecord(ctx context.Context, state *domain.SessionState, record *domain.DocumentRecord) error {
	l.info("auditing document", "id", record.ID, "title", record.Title)

	localPath := record.LocalPath
	if localPath == "" || !fileExists(localPath) {
		fetched, err := l.source.Fetch(ctx, record.ID)
		if err != nil {
			l.warn("materialization failed", "id", record.ID, "error", err)
			return l.ledger.MarkError(ctx, record.ID)
		}
		localPath = fetched
	}

	if err := l.ledger.MarkProcessing(ctx, record.ID); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	content, err := l.extractor.Extract(localPath)
	if err != nil {
		l.warn("text extraction failed", "id", record.ID, "error", err)
		return l.ledger.MarkError(ctx, record.ID)
	}
	if len(content) > l.tuning.EvalExcerptBytes {
		content = content[:l.tuning.EvalExcerptBytes]
	}

	evaluation, err := l.evaluator.Evaluate(ctx, content, state.Goal)
	if err != nil {
		l.warn("evaluation failed", "id", record.ID, "error", err)
		return l.ledger.MarkError(ctx, record.ID)
	}

	if err := l.ledger.MarkDone(ctx, record.ID, evaluation.Score, evaluation.Summary, localPath); err != nil {
		return fmt.Errorf("mark done: %w", err)
	}

	if evaluation.Score > l.tuning.RelevanceThreshold {
		detail := evaluation.Flaws
		if detail == "" {
			detail = evaluation.Summary
		}
		state.KnownFacts = append(state.KnownFacts, fmt.Sprintf("[%s] -> %s", record.Title, detail))
		state.CurrentHypothesis = fmt.Sprintf("Evidence from %q suggests flaws in %q", record.Title, state.Goal)
		l.info("relevant evidence found", "id", record.ID, "score", evaluation.Score)
	}

	if len(evaluation.FollowUpQueries) > 0 {
		if _, err := l.dispatcher.Discover(ctx, state, evaluation.FollowUpQueries[0], record.ID); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loop) publishDigest(ctx context.Context, state *domain.SessionState, reflection string) {
	if l.notifier == nil {
		return
	}

	digest := fmt.Sprintf("Step %d (%s)\n%s", state.StepCount, state.Strategy, reflection)
	if stats, err := l.ledger.Statistics(ctx); err == nil {
		digest += fmt.Sprintf("\npending=%d done=%d error=%d",
			stats[domain.StatusPending], stats[domain.StatusDone], stats[domain.StatusError])
	}
	if err := l.notifier.PublishDigest(ctx, digest); err != nil {
		l.warn("digest publish failed", "error", err)
	}
}

func (l *Loop) saveState(state *domain.SessionState) error {
	if err := l.states.Save(state); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (l *Loop) info(msg string, args ...interface{}) {
	if l.logger != nil {
		l.logger.Info(msg, args...)
	}
}

func (l *Loop) warn(msg string, args ...interface{}) {
	if l.logger != nil {
		l.logger.Warn(msg, args...)
	}
}

func (l *Loop) debug(msg string, args ...interface{}) {
	if l.logger != nil {
		l.logger.Debug(msg, args...)
	}
}
