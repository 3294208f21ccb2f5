package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"taskhub/internal/model"
)

const (
	DefaultSyncInterval   = time.Hour
	DefaultSyncRetryDelay = time.Minute
)

// ErrSchedulerStarted is returned by Run when the loop is already active.
var ErrSchedulerStarted = errors.New("sync scheduler already started")

// SchedulerState is the lifecycle state of a SyncScheduler.
type SchedulerState string

const (
	StateIdle     SchedulerState = "idle"
	StateRunning  SchedulerState = "running"
	StateSleeping SchedulerState = "sleeping"
)

// UserLister lists the users a sync pass covers.
type UserLister interface {
	ListAll(ctx context.Context) ([]model.User, error)
}

// UserSyncer syncs one user.
type UserSyncer interface {
	Sync(ctx context.Context, userID uint, scope *model.Source) (SyncReport, error)
}

// SyncScheduler re-syncs every user periodically. Passes run one at a time
// on the goroutine that called Run.
type SyncScheduler struct {
	users      UserLister
	syncer     UserSyncer
	interval   time.Duration
	retryDelay time.Duration

	mu      sync.Mutex
	state   SchedulerState
	started bool
	stop    chan struct{}
}

func NewSyncScheduler(users UserLister, syncer UserSyncer, interval, retryDelay time.Duration) *SyncScheduler {
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	if retryDelay <= 0 {
		retryDelay = DefaultSyncRetryDelay
	}
	return &SyncScheduler{
		users:      users,
		syncer:     syncer,
		interval:   interval,
		retryDelay: retryDelay,
		state:      StateIdle,
		stop:       make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (s *SyncScheduler) State() SchedulerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *SyncScheduler) setState(state SchedulerState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Run starts a pass immediately, then sleeps the interval after a completed
// pass or the retry delay after a failed one. It returns once Stop is called
// or ctx is done, always at a sleep boundary: a pass in flight finishes
// first.
func (s *SyncScheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrSchedulerStarted
	}
	s.started = true
	stop := s.stop
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.started = false
		s.state = StateIdle
		s.mu.Unlock()
	}()

	log.Printf("[info] sync scheduler started (interval %s, retry %s)", s.interval, s.retryDelay)
	passCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-stop:
			log.Printf("[info] sync scheduler stopped")
			return nil
		case <-ctx.Done():
			log.Printf("[info] sync scheduler stopped: %v", ctx.Err())
			return nil
		default:
		}

		s.setState(StateRunning)
		delay := s.interval
		if err := s.safePass(passCtx); err != nil {
			log.Printf("[warn] sync pass failed: %v", err)
			delay = s.retryDelay
		}

		s.setState(StateSleeping)
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-stop:
			timer.Stop()
		case <-ctx.Done():
			timer.Stop()
		}
	}
}

// Stop ends the loop at its next sleep boundary. It is safe to call more
// than once. Once stopped the scheduler cannot be restarted: a Run that
// starts after Stop returns without running a pass.
func (s *SyncScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
}

func (s *SyncScheduler) safePass(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in sync pass: %v", r)
		}
	}()
	return s.RunPass(ctx)
}

// RunPass syncs every user once, sequentially. A failing user is logged and
// does not fail the pass; only failing to list users does.
func (s *SyncScheduler) RunPass(ctx context.Context) error {
	users, err := s.users.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	log.Printf("[info] syncing %d user(s)", len(users))
	for _, user := range users {
		report, err := s.syncer.Sync(ctx, user.ID, nil)
		if err != nil {
			log.Printf("[warn] sync user %d: %v", user.ID, err)
			continue
		}
		log.Printf("[info] synced %d record(s) for user %d", report.Fetched, user.ID)
	}
	return nil
}
