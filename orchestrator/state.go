package orchestrator

import (
	"sync"
	"time"
)

// State is a step of a single orchestration request.
type State string

const (
	StateIdle           State = "idle"
	StateClassifying    State = "classifying"
	StateAgentsInFlight State = "agents_in_flight"
	StateAgentFailed    State = "agent_failed"
	StateSynthesizing   State = "synthesizing"
	StateDone           State = "done"
)

// Step is one recorded state transition.
type Step struct {
	State State     `json:"state"`
	Agent string    `json:"agent,omitempty"`
	Err   string    `json:"error,omitempty"`
	At    time.Time `json:"at"`
}

// Trace records the state transitions of one request. Agents report
// failures from their own goroutines, so it is safe for concurrent use.
type Trace struct {
	mu    sync.Mutex
	steps []Step
	now   func() time.Time
}

func NewTrace() *Trace {
	t := &Trace{now: time.Now}
	t.record(Step{State: StateIdle})
	return t
}

func (t *Trace) record(s Step) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if s.At.IsZero() {
		s.At = t.now()
	}
	t.steps = append(t.steps, s)
}

func (t *Trace) enter(state State) { t.record(Step{State: state}) }

func (t *Trace) agentFailed(agent string, err error) {
	t.record(Step{State: StateAgentFailed, Agent: agent, Err: err.Error()})
}

// Steps returns a copy of the recorded steps.
func (t *Trace) Steps() []Step {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Step(nil), t.steps...)
}

// States returns the recorded states in order.
func (t *Trace) States() []State {
	steps := t.Steps()
	out := make([]State, len(steps))
	for i, s := range steps {
		out[i] = s.State
	}
	return out
}

// Current returns the most recent state.
func (t *Trace) Current() State {
	steps := t.Steps()
	if len(steps) == 0 {
		return StateIdle
	}
	return steps[len(steps)-1].State
}
