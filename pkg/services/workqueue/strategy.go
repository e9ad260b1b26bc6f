package workqueue

import "sync"

// ConcurrencyStrategy controls how tasks are allowed to start concurrently.
// The strategy is responsible for tracking running tasks and determining
// if a new task can start based on the current state.
type ConcurrencyStrategy interface {
	// CanStartHeavy returns true if a heavy task can start given current state
	CanStartHeavy() bool
	// CanStartControl returns true if a control task can start given current state
	CanStartControl() bool
	// OnStartHeavy is called when a heavy task starts
	OnStartHeavy()
	// OnStartControl is called when a control task starts
	OnStartControl()
	// OnCompleteHeavy is called when a heavy task completes
	OnCompleteHeavy()
	// OnCompleteControl is called when a control task completes
	OnCompleteControl()
}

// SerializedStrategy serializes both classes. Only one heavy task and one
// control task can run at a time, but one of each can run in parallel.
type SerializedStrategy struct {
	mu             sync.Mutex
	heavyRunning   bool
	controlRunning bool
}

// NewSerializedStrategy creates a strategy that serializes heavy tasks (only
// one at a time) and serializes control tasks (only one at a time).
func NewSerializedStrategy() *SerializedStrategy {
	return &SerializedStrategy{}
}

func (s *SerializedStrategy) CanStartHeavy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.heavyRunning
}

func (s *SerializedStrategy) CanStartControl() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.controlRunning
}

func (s *SerializedStrategy) OnStartHeavy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heavyRunning = true
}

func (s *SerializedStrategy) OnStartControl() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controlRunning = true
}

func (s *SerializedStrategy) OnCompleteHeavy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heavyRunning = false
}

func (s *SerializedStrategy) OnCompleteControl() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controlRunning = false
}

// ThrottledStrategy allows up to maxConcurrent heavy tasks to run in
// parallel. Control tasks are still serialized (only one at a time). This is
// the strategy used for per-file cleaning jobs.
type ThrottledStrategy struct {
	mu             sync.Mutex
	maxConcurrent  int
	heavyRunning   int
	controlRunning bool
}

// NewThrottledStrategy creates a strategy that allows up to maxConcurrent
// heavy tasks to run in parallel while serializing control tasks.
func NewThrottledStrategy(maxConcurrent int) *ThrottledStrategy {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &ThrottledStrategy{
		maxConcurrent: maxConcurrent,
	}
}

func (s *ThrottledStrategy) CanStartHeavy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heavyRunning < s.maxConcurrent
}

func (s *ThrottledStrategy) CanStartControl() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.controlRunning
}

func (s *ThrottledStrategy) OnStartHeavy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heavyRunning++
}

func (s *ThrottledStrategy) OnStartControl() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controlRunning = true
}

func (s *ThrottledStrategy) OnCompleteHeavy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.heavyRunning > 0 {
		s.heavyRunning--
	}
}

func (s *ThrottledStrategy) OnCompleteControl() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controlRunning = false
}
