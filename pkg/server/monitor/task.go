package monitor

import (
	"sync"
	"time"
)

// MaxConsecutiveFailures is how many failed runs in a row a task may have
// before it is reported unhealthy.
const MaxConsecutiveFailures = 3

// TaskMonitor tracks the outcome of a recurring background task such as
// badger GC or the live summary broadcast.
type TaskMonitor struct {
	Name string

	mu                sync.RWMutex
	lastSuccess       time.Time
	lastAttempt       time.Time
	consecutiveErrors int
	lastError         string
	now               func() time.Time
}

// NewTaskMonitor creates a monitor for the named task.
func NewTaskMonitor(name string) *TaskMonitor {
	return &TaskMonitor{Name: name, now: time.Now}
}

// RecordSuccess records a successful run.
func (m *TaskMonitor) RecordSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.lastSuccess = now
	m.lastAttempt = now
	m.consecutiveErrors = 0
	m.lastError = ""
}

// RecordFailure records a failed run.
func (m *TaskMonitor) RecordFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastAttempt = m.now()
	m.consecutiveErrors++
	if err != nil {
		m.lastError = err.Error()
	}
}

// ConsecutiveErrors returns the current failure streak.
func (m *TaskMonitor) ConsecutiveErrors() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.consecutiveErrors
}

// IsHealthy reports false once the task failed more than
// MaxConsecutiveFailures times in a row. A task that has not run yet is healthy.
func (m *TaskMonitor) IsHealthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.healthy()
}

func (m *TaskMonitor) healthy() bool {
	return m.consecutiveErrors <= MaxConsecutiveFailures
}

// TaskStatus is the health-check view of a task.
type TaskStatus struct {
	Name              string `json:"name"`
	Healthy           bool   `json:"healthy"`
	LastSuccess       string `json:"last_success,omitempty"`
	TimeSinceSuccess  string `json:"time_since_success,omitempty"`
	LastAttempt       string `json:"last_attempt,omitempty"`
	ConsecutiveErrors int    `json:"consecutive_errors,omitempty"`
	LastError         string `json:"last_error,omitempty"`
}

// Status returns the current task status.
func (m *TaskMonitor) Status() TaskStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := TaskStatus{Name: m.Name, Healthy: m.healthy()}
	if !m.lastSuccess.IsZero() {
		status.LastSuccess = m.lastSuccess.Format(time.RFC3339)
		status.TimeSinceSuccess = m.now().Sub(m.lastSuccess).Round(time.Second).String()
	}
	if !m.lastAttempt.IsZero() {
		status.LastAttempt = m.lastAttempt.Format(time.RFC3339)
	}
	if m.consecutiveErrors > 0 {
		status.ConsecutiveErrors = m.consecutiveErrors
		status.LastError = m.lastError
	}
	return status
}
