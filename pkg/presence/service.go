package presence

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"beacon/pkg/types"
)

// Default timer settings, overridable through Options.
const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultInactivityDelay   = 5 * time.Minute
	DefaultPagePollInterval  = 2 * time.Second
)

const pushTimeout = 10 * time.Second

// Identity describes the local user the service tracks presence for.
type Identity struct {
	UserID     string
	Name       string
	Email      string
	AvatarRef  string
	Role       string
	Department string
}

// Subscriber receives the full sorted presence list on every change.
type Subscriber func(users []types.PresenceRecord)

// Options configures a Service.
type Options struct {
	Sync   SyncClient
	Logger *zap.Logger

	// PageProvider reports the host's current location. Optional; when nil
	// the current page is never tracked. Polled rather than event-driven
	// because host navigation frameworks rarely expose a universal change
	// hook.
	PageProvider func() string

	HeartbeatInterval time.Duration
	InactivityDelay   time.Duration
	PagePollInterval  time.Duration
}

// Service is the local presence view: a map of user id to record, kept fresh
// by heartbeats and server snapshots, observable through subscriptions.
// Construct one per consumer scope; there is no package-level instance.
type Service struct {
	sync         SyncClient
	logger       *zap.Logger
	pageProvider func() string

	heartbeatInterval time.Duration
	inactivityDelay   time.Duration
	pagePollInterval  time.Duration

	mu          sync.Mutex
	initialized bool
	stopped     bool
	identity    Identity
	records     map[string]*types.PresenceRecord
	subscribers map[int]Subscriber
	nextSubID   int
	sched       *scheduler
}

func NewService(opts Options) (*Service, error) {
	if opts.Sync == nil {
		return nil, ErrNilSyncClient
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if opts.InactivityDelay <= 0 {
		opts.InactivityDelay = DefaultInactivityDelay
	}
	if opts.PagePollInterval <= 0 {
		opts.PagePollInterval = DefaultPagePollInterval
	}

	return &Service{
		sync:              opts.Sync,
		logger:            logger,
		pageProvider:      opts.PageProvider,
		heartbeatInterval: opts.HeartbeatInterval,
		inactivityDelay:   opts.InactivityDelay,
		pagePollInterval:  opts.PagePollInterval,
		records:           make(map[string]*types.PresenceRecord),
		subscribers:       make(map[int]Subscriber),
	}, nil
}

// Initialize seeds the local user's record, starts the timers, and performs
// one immediate heartbeat push and snapshot fetch. Calling it again while
// already initialized is a no-op.
func (s *Service) Initialize(ctx context.Context, identity Identity) error {
	if identity.UserID == "" {
		return ErrMissingIdentity
	}

	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		return nil
	}
	s.initialized = true
	s.stopped = false
	s.identity = identity

	page := ""
	if s.pageProvider != nil {
		page = s.pageProvider()
	}
	s.records[identity.UserID] = &types.PresenceRecord{
		UserID:      identity.UserID,
		Name:        identity.Name,
		Email:       identity.Email,
		AvatarRef:   identity.AvatarRef,
		Role:        identity.Role,
		Department:  identity.Department,
		Status:      types.StatusOnline,
		LastSeen:    time.Now(),
		CurrentPage: page,
		IsActive:    true,
	}

	s.sched = newScheduler(
		s.heartbeatInterval, s.inactivityDelay, s.pagePollInterval,
		s.heartbeatTick, s.inactivityFired, s.pagePollTick,
	)
	s.sched.start()
	s.mu.Unlock()

	if err := s.sync.PushHeartbeat(ctx, s.localHeartbeat()); err != nil {
		s.logger.Warn("initial heartbeat push failed", zap.Error(err))
	}
	if users, err := s.sync.FetchSnapshot(ctx); err != nil {
		s.logger.Warn("initial snapshot fetch failed", zap.Error(err))
	} else {
		s.mergeSnapshot(users)
	}

	s.notify()
	return nil
}

// Subscribe registers a listener, invokes it immediately with the current
// sorted list, and returns a function that removes it. Unsubscribing one
// listener does not affect the others.
func (s *Service) Subscribe(fn Subscriber) func() {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	snapshot := s.sortedLocked()
	s.mu.Unlock()

	s.invoke(id, fn, snapshot)

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

// GetUsers returns all known records sorted online before away before
// offline, then by name ascending, case-insensitive.
func (s *Service) GetUsers() []types.PresenceRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked()
}

// GetOnlineCount counts records currently online.
func (s *Service) GetOnlineCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, r := range s.records {
		if r.Status == types.StatusOnline {
			count++
		}
	}
	return count
}

// GetUsersByStatus returns records in the given status, name-sorted.
func (s *Service) GetUsersByStatus(status types.Status) []types.PresenceRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.PresenceRecord, 0)
	for _, r := range s.records {
		if r.Status == status {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

// RecordActivity marks the local user online and active and re-arms the
// inactivity timer. Hosts call this from their interaction signals such as
// key presses, pointer movement, and scrolling.
func (s *Service) RecordActivity() {
	s.mu.Lock()
	if !s.initialized || s.stopped {
		s.mu.Unlock()
		return
	}
	if rec, ok := s.records[s.identity.UserID]; ok {
		rec.IsActive = true
		rec.Status = types.StatusOnline
		rec.LastSeen = time.Now()
	}
	s.sched.resetInactivity()
	s.mu.Unlock()

	s.notify()
}

// SetOffline transitions the local user to offline, pushes the transition to
// the server, and stops all timers. Calling it again after the timers are
// already stopped is a no-op.
func (s *Service) SetOffline(ctx context.Context) {
	s.mu.Lock()
	if !s.initialized || s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	if rec, ok := s.records[s.identity.UserID]; ok {
		rec.Status = types.StatusOffline
		rec.IsActive = false
	}
	s.sched.stop()
	userID := s.identity.UserID
	s.mu.Unlock()

	if err := s.sync.PushStatus(ctx, userID, types.StatusOffline); err != nil {
		s.logger.Warn("offline status push failed", zap.Error(err))
	}
	s.notify()
}

// Cleanup is a hard reset: cancels timers, drops all subscribers, and empties
// the record map. Initialize may be called again afterwards.
func (s *Service) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sched != nil {
		s.sched.stop()
		s.sched = nil
	}
	s.records = make(map[string]*types.PresenceRecord)
	s.subscribers = make(map[int]Subscriber)
	s.initialized = false
	s.stopped = false
}

// heartbeatTick refreshes the local record, pushes a heartbeat, and pulls a
// snapshot. Network failures are logged and swallowed; the next tick retries.
func (s *Service) heartbeatTick() {
	s.mu.Lock()
	if !s.initialized || s.stopped {
		s.mu.Unlock()
		return
	}
	if rec, ok := s.records[s.identity.UserID]; ok {
		rec.LastSeen = time.Now()
		if s.pageProvider != nil {
			rec.CurrentPage = s.pageProvider()
		}
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()

	if err := s.sync.PushHeartbeat(ctx, s.localHeartbeat()); err != nil {
		s.logger.Warn("heartbeat push failed", zap.Error(err))
	}

	users, err := s.sync.FetchSnapshot(ctx)
	if err != nil {
		s.logger.Warn("snapshot fetch failed", zap.Error(err))
	} else {
		s.mergeSnapshot(users)
	}

	s.notify()
}

// inactivityFired marks the local user away after the quiet period and
// pushes the transition immediately, outside the heartbeat cadence.
func (s *Service) inactivityFired() {
	s.mu.Lock()
	if !s.initialized || s.stopped {
		s.mu.Unlock()
		return
	}
	if rec, ok := s.records[s.identity.UserID]; ok {
		rec.IsActive = false
		rec.Status = types.StatusAway
	}
	userID := s.identity.UserID
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()
	if err := s.sync.PushStatus(ctx, userID, types.StatusAway); err != nil {
		s.logger.Warn("away status push failed", zap.Error(err))
	}

	s.notify()
}

// pagePollTick checks the host location and records a change.
func (s *Service) pagePollTick() {
	if s.pageProvider == nil {
		return
	}
	page := s.pageProvider()

	s.mu.Lock()
	if !s.initialized || s.stopped {
		s.mu.Unlock()
		return
	}
	rec, ok := s.records[s.identity.UserID]
	if !ok || rec.CurrentPage == page {
		s.mu.Unlock()
		return
	}
	rec.CurrentPage = page
	rec.LastSeen = time.Now()
	s.mu.Unlock()

	s.notify()
}

// mergeSnapshot folds server rows into the local map. Remote users get their
// status and activity derived from last-active age. The local user's status,
// activity, last-seen, and current page stay locally driven; only profile
// fields refresh from the server.
func (s *Service) mergeSnapshot(users []*types.UserPresence) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range users {
		if u.UserID == s.identity.UserID {
			rec, ok := s.records[u.UserID]
			if !ok {
				continue
			}
			refreshProfile(rec, u)
			continue
		}

		rec, ok := s.records[u.UserID]
		if !ok {
			rec = &types.PresenceRecord{UserID: u.UserID}
			s.records[u.UserID] = rec
		}
		refreshProfile(rec, u)
		rec.CurrentPage = u.CurrentPage
		rec.LastSeen = u.LastActive

		age := now.Sub(u.LastActive)
		rec.Status = DetermineStatus(age)
		rec.IsActive = IsUserActive(age)
	}
}

func refreshProfile(rec *types.PresenceRecord, u *types.UserPresence) {
	if u.Name != "" {
		rec.Name = u.Name
	}
	if u.Email != "" {
		rec.Email = u.Email
	}
	if u.AvatarRef != "" {
		rec.AvatarRef = u.AvatarRef
	}
	if u.Role != "" {
		rec.Role = u.Role
	}
	if u.Department != "" {
		rec.Department = u.Department
	}
}

func (s *Service) localHeartbeat() *types.Heartbeat {
	s.mu.Lock()
	defer s.mu.Unlock()

	hb := &types.Heartbeat{
		UserID:     s.identity.UserID,
		Name:       s.identity.Name,
		Email:      s.identity.Email,
		AvatarRef:  s.identity.AvatarRef,
		Role:       s.identity.Role,
		Department: s.identity.Department,
	}
	if rec, ok := s.records[s.identity.UserID]; ok {
		hb.CurrentPage = rec.CurrentPage
		hb.IsActive = rec.IsActive
	}
	return hb
}

// notify delivers the current sorted snapshot to every subscriber. Each
// callback runs behind its own recover so one failing listener cannot
// starve the rest.
func (s *Service) notify() {
	s.mu.Lock()
	snapshot := s.sortedLocked()
	subs := make(map[int]Subscriber, len(s.subscribers))
	for id, fn := range s.subscribers {
		subs[id] = fn
	}
	s.mu.Unlock()

	for id, fn := range subs {
		s.invoke(id, fn, snapshot)
	}
}

func (s *Service) invoke(id int, fn Subscriber, snapshot []types.PresenceRecord) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("presence subscriber panicked",
				zap.Int("subscriber_id", id), zap.Any("panic", r))
		}
	}()
	fn(snapshot)
}

func (s *Service) sortedLocked() []types.PresenceRecord {
	out := make([]types.PresenceRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := out[i].Status.Rank(), out[j].Status.Rank()
		if ri != rj {
			return ri < rj
		}
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}
