package domain

// Strategy labels the loop's current tactical posture. Only the
// strategic re-planner or an operator override changes it.
type Strategy string

const (
	StrategyBroadSearch Strategy = "broad_search"
	StrategyDeepDive    Strategy = "deep_dive"
	StrategyAttacking   Strategy = "attacking"
	StrategyStalled     Strategy = "stalled"
)

// KnownStrategy reports whether the label belongs to the enumerated set.
func KnownStrategy(s Strategy) bool {
	switch s {
	case StrategyBroadSearch, StrategyDeepDive, StrategyAttacking, StrategyStalled:
		return true
	}
	return false
}

// SessionState is the singleton scalar state of a run. Goal is fixed at
// creation; everything else evolves tick by tick and must be saved by
// the caller after any mutation that has to survive a crash.
type SessionState struct {
	Goal                  string
	CurrentHypothesis     string
	KnownFacts            []string
	Strategy              Strategy
	ConsecutiveEmptyPulls int
	StepCount             int
	LastNote              string
}

// NewSessionState creates the initial state for a fresh run.
func NewSessionState(goal string) *SessionState {
	return &SessionState{
		Goal:              goal,
		CurrentHypothesis: "no concrete hypothesis formed yet",
		KnownFacts:        []string{},
		Strategy:          StrategyBroadSearch,
		LastNote:          "initialized, ready to start",
	}
}

// RecentFacts returns the trailing window of accumulated evidence.
func (s *SessionState) RecentFacts(n int) []string {
	if n <= 0 || len(s.KnownFacts) == 0 {
		return nil
	}
	if len(s.KnownFacts) <= n {
		return s.KnownFacts
	}
	return s.KnownFacts[len(s.KnownFacts)-n:]
}
