package pipeline

import (
	"time"

	"github.com/charmed-kubernetes/jenkins-sub000/domain"
	"github.com/charmed-kubernetes/jenkins-sub000/errors"
)

var next = map[domain.PipelineState]domain.PipelineState{
	domain.StatePending:           domain.StateCloned,
	domain.StateCloned:            domain.StateBuilt,
	domain.StateBuilt:             domain.StatePushed,
	domain.StatePushed:            domain.StateResourcesAttached,
	domain.StateResourcesAttached: domain.StateReleased,
	domain.StateReleased:          domain.StateDone,
}

// Machine tracks the state of one pipeline run. Every change is validated
// and recorded with its time.
type Machine struct {
	state   domain.PipelineState
	history []domain.Transition
	now     func() time.Time
}

// NewMachine returns a Machine in StatePending.
func NewMachine() *Machine {
	return &Machine{state: domain.StatePending, now: time.Now}
}

// State returns the current state.
func (m *Machine) State() domain.PipelineState {
	return m.state
}

// History returns the recorded transitions, oldest first.
func (m *Machine) History() []domain.Transition {
	out := make([]domain.Transition, len(m.history))
	copy(out, m.history)
	return out
}

// To moves the machine to s, which must be the successor of the current
// state.
func (m *Machine) To(s domain.PipelineState) error {
	if want, ok := next[m.state]; !ok || want != s {
		return errors.Newf(errors.CodeIllegalTransition, "illegal transition %s -> %s", m.state, s)
	}
	m.record(s, "")
	return nil
}

// Fail moves the machine to StateFailed with cause. Terminal states cannot
// fail.
func (m *Machine) Fail(cause error) error {
	if m.state.Terminal() {
		return errors.Newf(errors.CodeIllegalTransition, "illegal transition %s -> %s", m.state, domain.StateFailed)
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	m.record(domain.StateFailed, msg)
	return nil
}

func (m *Machine) record(s domain.PipelineState, msg string) {
	m.history = append(m.history, domain.Transition{From: m.state, To: s, At: m.now(), Error: msg})
	m.state = s
}
