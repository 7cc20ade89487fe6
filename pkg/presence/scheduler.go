package presence

import (
	"sync"
	"time"
)

// scheduler owns the three presence timers so teardown has a single cancel
// point. A scheduler is single-use: the service builds a fresh one on each
// Initialize.
type scheduler struct {
	heartbeatInterval time.Duration
	pagePollInterval  time.Duration
	inactivityDelay   time.Duration

	onHeartbeat  func()
	onPagePoll   func()
	onInactivity func()

	mu         sync.Mutex
	inactivity *time.Timer
	stopCh     chan struct{}
	running    bool
}

func newScheduler(heartbeat, inactivity, pagePoll time.Duration, onHeartbeat, onInactivity, onPagePoll func()) *scheduler {
	return &scheduler{
		heartbeatInterval: heartbeat,
		inactivityDelay:   inactivity,
		pagePollInterval:  pagePoll,
		onHeartbeat:       onHeartbeat,
		onInactivity:      onInactivity,
		onPagePoll:        onPagePoll,
		stopCh:            make(chan struct{}),
	}
}

func (s *scheduler) start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.inactivity = time.AfterFunc(s.inactivityDelay, s.fireInactivity)
	s.mu.Unlock()

	go s.run()
}

func (s *scheduler) run() {
	heartbeat := time.NewTicker(s.heartbeatInterval)
	defer heartbeat.Stop()
	page := time.NewTicker(s.pagePollInterval)
	defer page.Stop()

	for {
		select {
		case <-heartbeat.C:
			s.onHeartbeat()
		case <-page.C:
			s.onPagePoll()
		case <-s.stopCh:
			return
		}
	}
}

// fireInactivity re-checks running under the lock so a timer that races
// with stop does not fire after teardown.
func (s *scheduler) fireInactivity() {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if running {
		s.onInactivity()
	}
}

// resetInactivity re-arms the quiet-period timer after user activity.
func (s *scheduler) resetInactivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.inactivity.Stop()
	s.inactivity.Reset(s.inactivityDelay)
}

// stop cancels all timers. Safe to call more than once.
func (s *scheduler) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	s.inactivity.Stop()
	close(s.stopCh)
}
