package pipeline

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/scaliseraoul/ambrogio/internal/coverage"
)

// State is a step of the feedback loop.
type State int

const (
	StateAnalyzeCoverage State = iota
	StateGenerateArtifact
	StateExecuteArtifact
	StateCleanupAndFail
	StateDone
)

func (s State) String() string {
	switch s {
	case StateAnalyzeCoverage:
		return "analyze_coverage"
	case StateGenerateArtifact:
		return "generate_artifact"
	case StateExecuteArtifact:
		return "execute_artifact"
	case StateCleanupAndFail:
		return "cleanup_and_fail"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateCleanupAndFail
}

var transitions = map[State][]State{
	StateAnalyzeCoverage:  {StateGenerateArtifact, StateCleanupAndFail},
	StateGenerateArtifact: {StateExecuteArtifact, StateCleanupAndFail},
	StateExecuteArtifact:  {StateDone, StateGenerateArtifact, StateCleanupAndFail},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Outcome is the result of a session. It leaves Pending exactly once.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeSucceeded
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Session is the state of one loop run. It is owned by the loop and discarded when the run ends.
type Session struct {
	ID              uuid.UUID
	Target          string // absolute path of the source file under test
	Uncovered       []int
	Range           coverage.Range // longest uncovered run targeted by the last attempt
	Source          string
	ArtifactPath    string
	ArtifactContent string
	LastError       string
	Outcome         Outcome
	Attempts        int
	Reason          string
}

func newSession() *Session {
	return &Session{ID: uuid.New(), Outcome: OutcomePending}
}

// settle moves the outcome out of Pending. Settling twice is an error.
func (s *Session) settle(o Outcome) error {
	if s.Outcome != OutcomePending {
		return fmt.Errorf("session %s already %s", s.ID, s.Outcome)
	}
	if o == OutcomePending {
		return fmt.Errorf("session %s cannot return to pending", s.ID)
	}
	s.Outcome = o
	return nil
}

// Result is what a loop run reports to its caller.
type Result struct {
	SessionID    string
	Success      bool
	ArtifactPath string // empty unless Success
	Attempts     int
	Target       string
	Range        coverage.Range
	Reason       string // why the run failed
}
