package jobs

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"audio-workbench/internal/domain"
)

// ErrLaneBusy is returned when starting a second task on a running lane.
var ErrLaneBusy = errors.New("lane already running a task")

// ErrNoRunningTask is returned when cancel is requested for an idle lane.
var ErrNoRunningTask = errors.New("no running task")

// ErrUnknownLane is returned for lane names outside domain.Lanes.
var ErrUnknownLane = errors.New("unknown lane")

// Manager tracks at most one active task per lane and its transitions.
type Manager struct {
	mu    sync.RWMutex
	lanes map[domain.Lane]domain.Task
	now   func() time.Time
}

// NewManager creates a manager with every lane idle.
func NewManager() *Manager {
	m := &Manager{
		lanes: make(map[domain.Lane]domain.Task, len(domain.Lanes)),
		now:   time.Now,
	}
	for _, lane := range domain.Lanes {
		m.lanes[lane] = domain.Task{Lane: lane, Status: domain.TaskStatusIdle}
	}
	return m
}

// Start registers taskID as the running task of lane.
func (m *Manager) Start(lane domain.Lane, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.lanes[lane]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownLane, lane)
	}
	if current.Status == domain.TaskStatusRunning {
		return ErrLaneBusy
	}

	m.lanes[lane] = domain.Task{
		ID:        taskID,
		Lane:      lane,
		Status:    domain.TaskStatusRunning,
		StartedAt: m.now().UTC(),
	}
	return nil
}

// Progress records the latest percent and message of a running task.
// Updates for stale task IDs are ignored.
func (m *Manager) Progress(lane domain.Lane, taskID string, percent int, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.lanes[lane]
	if !ok || current.ID != taskID || current.Status != domain.TaskStatusRunning {
		return
	}
	current.Percent = percent
	current.Message = message
	m.lanes[lane] = current
}

// Finish validates and applies the terminal transition of taskID.
func (m *Manager) Finish(lane domain.Lane, taskID string, status domain.TaskStatus, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.lanes[lane]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownLane, lane)
	}
	if current.ID != taskID {
		return fmt.Errorf("task %s is not current on lane %s", taskID, lane)
	}
	if !isValidTransition(current.Status, status) {
		return fmt.Errorf("invalid transition: %s -> %s", current.Status, status)
	}

	current.Status = status
	current.Message = message
	current.FinishedAt = m.now().UTC()
	if status == domain.TaskStatusDone {
		current.Percent = 100
	}
	m.lanes[lane] = current
	return nil
}

// Cancel flags the running task of lane and returns its ID. The task keeps
// status running until its body observes cancellation and Finish is called.
func (m *Manager) Cancel(lane domain.Lane) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.lanes[lane]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownLane, lane)
	}
	if current.Status != domain.TaskStatusRunning {
		return "", ErrNoRunningTask
	}
	current.CancelRequested = true
	m.lanes[lane] = current
	return current.ID, nil
}

// Current returns a snapshot of the task on lane.
func (m *Manager) Current(lane domain.Lane) domain.Task {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lanes[lane]
}

// All returns snapshots of every lane in domain.Lanes order.
func (m *Manager) All() []domain.Task {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Task, 0, len(domain.Lanes))
	for _, lane := range domain.Lanes {
		out = append(out, m.lanes[lane])
	}
	return out
}

// IsRunning reports whether lane has an active task.
func (m *Manager) IsRunning(lane domain.Lane) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lanes[lane].Status == domain.TaskStatusRunning
}

// Reset returns lane to idle unless a task is running.
func (m *Manager) Reset(lane domain.Lane) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lanes[lane].Status != domain.TaskStatusRunning {
		m.lanes[lane] = domain.Task{Lane: lane, Status: domain.TaskStatusIdle}
	}
}

// isValidTransition enforces the allowed task state machine edges.
func isValidTransition(from, to domain.TaskStatus) bool {
	switch from {
	case domain.TaskStatusIdle, domain.TaskStatusDone, domain.TaskStatusFailed, domain.TaskStatusCancelled:
		return to == domain.TaskStatusRunning || to == domain.TaskStatusIdle
	case domain.TaskStatusRunning:
		return to == domain.TaskStatusDone || to == domain.TaskStatusFailed || to == domain.TaskStatusCancelled
	default:
		return false
	}
}
