package scheduler

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// ErrTaskRunning is returned by RunNow while a run is in progress.
var ErrTaskRunning = errors.New("task is already running")

// TaskFunc is one unit of scheduled work. The returned count is reported in
// the task status (e.g. number of imported items).
type TaskFunc func(ctx context.Context) (int, error)

// TaskStatus is the in-memory state of the scheduled task.
type TaskStatus struct {
	Name          string     `json:"name"`
	Interval      string     `json:"interval"`
	Running       bool       `json:"running"`
	LastRunAt     *time.Time `json:"lastRunAt,omitempty"`
	LastStatus    string     `json:"lastStatus,omitempty"` // success | error
	LastError     string     `json:"lastError,omitempty"`
	ItemsImported int        `json:"itemsImported"`
}

// Service runs a single task periodically. Runs never overlap.
type Service struct {
	name     string
	interval time.Duration
	task     TaskFunc

	// Runtime state
	mu      sync.RWMutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	statusMu sync.RWMutex
	status   TaskStatus
}

// NewService creates a scheduler for task. An interval below one second
// falls back to one hour.
func NewService(name string, interval time.Duration, task TaskFunc) *Service {
	if interval < time.Second {
		interval = time.Hour
	}
	return &Service{
		name:     name,
		interval: interval,
		task:     task,
		status:   TaskStatus{Name: name, Interval: interval.String()},
	}
}

// Start begins the scheduler background loop
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	s.wg.Add(1)
	go s.loop()

	log.Printf("[scheduler] %s scheduled every %s", s.name, s.interval)
	return nil
}

// Stop cancels the loop and waits for a running task until ctx expires.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("[scheduler] Scheduler service stopped gracefully")
	case <-ctx.Done():
		log.Println("[scheduler] Scheduler service stopped (timeout)")
	}

	s.running = false
	return nil
}

func (s *Service) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.RunNow(); err != nil && !errors.Is(err, ErrTaskRunning) {
				log.Printf("[scheduler] %s: %v", s.name, err)
			}
		}
	}
}

// RunNow triggers an immediate run in the background.
func (s *Service) RunNow() error {
	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()
	if ctx == nil {
		return errors.New("scheduler not started")
	}

	s.statusMu.Lock()
	if s.status.Running {
		s.statusMu.Unlock()
		return ErrTaskRunning
	}
	s.status.Running = true
	s.statusMu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(ctx)
	}()
	return nil
}

func (s *Service) execute(ctx context.Context) {
	log.Printf("[scheduler] Executing task: %s", s.name)
	items, err := s.task(ctx)

	now := time.Now().UTC()
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.status.Running = false
	s.status.LastRunAt = &now
	s.status.ItemsImported = items
	if err != nil {
		s.status.LastStatus = "error"
		s.status.LastError = err.Error()
		log.Printf("[scheduler] Task %s failed: %v", s.name, err)
		return
	}
	s.status.LastStatus = "success"
	s.status.LastError = ""
	log.Printf("[scheduler] Task %s completed successfully, imported %d items", s.name, items)
}

// Status returns a copy of the task state.
func (s *Service) Status() TaskStatus {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status
}
