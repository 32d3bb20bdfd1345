package jobs

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"assembly-polisher/internal/domain"
)

// ErrRunAlreadyActive is returned when starting a second active run.
var ErrRunAlreadyActive = errors.New("run already active")

// ErrNoActiveRun is returned when cancel is requested for idle state.
var ErrNoActiveRun = errors.New("no active run")

// Manager tracks the single allowed active run and its transitions.
type Manager struct {
	mu      sync.RWMutex
	current domain.Run
	newID   func() string
}

// NewManager creates a manager in idle state.
func NewManager() *Manager {
	return &Manager{
		current: domain.Run{
			Status: domain.RunStatusIdle,
		},
		newID: uuid.NewString,
	}
}

// Start creates a new run in the resolving state and returns it.
func (m *Manager) Start() (domain.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if isActive(m.current.Status) {
		return domain.Run{}, ErrRunAlreadyActive
	}

	m.current = domain.Run{
		ID:     m.newID(),
		Status: domain.RunStatusResolving,
	}
	return m.current, nil
}

// Transition validates and applies state transitions for the current run.
func (m *Manager) Transition(status domain.RunStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.ID == "" && status != domain.RunStatusIdle {
		return fmt.Errorf("cannot transition without an active run")
	}
	if status == m.current.Status {
		return nil
	}
	if !isValidTransition(m.current.Status, status) {
		return fmt.Errorf("invalid transition: %s -> %s", m.current.Status, status)
	}

	m.current.Status = status
	return nil
}

// Current returns a snapshot of the current run.
func (m *Manager) Current() domain.Run {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Reset clears run metadata and returns the manager to idle.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = domain.Run{Status: domain.RunStatusIdle}
}

// IsActive reports whether the current state is an in-flight stage.
func (m *Manager) IsActive() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return isActive(m.current.Status)
}

// Cancel moves an active run to cancelled state.
func (m *Manager) Cancel() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !isActive(m.current.Status) {
		return ErrNoActiveRun
	}
	m.current.Status = domain.RunStatusCancelled
	return nil
}

// isActive checks if a status represents in-flight pipeline execution.
func isActive(status domain.RunStatus) bool {
	switch status {
	case domain.RunStatusResolving,
		domain.RunStatusCompressing,
		domain.RunStatusAligning,
		domain.RunStatusInferring,
		domain.RunStatusStitching:
		return true
	default:
		return false
	}
}

// isValidTransition enforces the allowed run state machine edges.
// Compression is conditional, so resolving may go straight to aligning.
func isValidTransition(from, to domain.RunStatus) bool {
	switch from {
	case domain.RunStatusIdle:
		return to == domain.RunStatusResolving
	case domain.RunStatusResolving:
		return to == domain.RunStatusCompressing ||
			to == domain.RunStatusAligning ||
			to == domain.RunStatusFailed ||
			to == domain.RunStatusCancelled
	case domain.RunStatusCompressing:
		return to == domain.RunStatusAligning ||
			to == domain.RunStatusFailed ||
			to == domain.RunStatusCancelled
	case domain.RunStatusAligning:
		return to == domain.RunStatusInferring ||
			to == domain.RunStatusFailed ||
			to == domain.RunStatusCancelled
	case domain.RunStatusInferring:
		return to == domain.RunStatusStitching ||
			to == domain.RunStatusFailed ||
			to == domain.RunStatusCancelled
	case domain.RunStatusStitching:
		return to == domain.RunStatusDone ||
			to == domain.RunStatusFailed ||
			to == domain.RunStatusCancelled
	case domain.RunStatusDone, domain.RunStatusFailed, domain.RunStatusCancelled:
		return to == domain.RunStatusResolving || to == domain.RunStatusIdle
	default:
		return false
	}
}
