package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskhub/internal/connector"
	"taskhub/internal/model"
	"taskhub/internal/repository"
)

var (
	// ErrSyncInProgress is returned when the user already has a sync
	// running. The caller may retry later.
	ErrSyncInProgress = errors.New("sync already in progress")
	// ErrCredentialExpired marks a source skipped because its token expired
	// and could not be refreshed.
	ErrCredentialExpired = errors.New("credential expired")
	// ErrNotSyncable is returned for a scope that has no connector.
	ErrNotSyncable = errors.New("source is not syncable")
)

// DefaultSourceTimeout bounds one connector fetch.
const DefaultSourceTimeout = 60 * time.Second

// SourceState is the per-source outcome of a sync run.
type SourceState string

const (
	SourceSynced  SourceState = "synced"
	SourceSkipped SourceState = "skipped"
	SourceFailed  SourceState = "failed"
)

// SourceResult describes one source of a sync run.
type SourceResult struct {
	Source    model.Source
	State     SourceState
	Fetched   int
	Malformed int
	Reconcile ReconcileReport
	Err       error
}

// SyncReport is the in-memory record of one sync run.
type SyncReport struct {
	RunID      string
	UserID     uint
	Scope      *model.Source
	StartedAt  time.Time
	FinishedAt time.Time
	Sources    []SourceResult
	// Fetched counts records normalized across successful sources, before
	// deduplication.
	Fetched int
}

// Result returns the entry for source, if the run covered it.
func (r SyncReport) Result(source model.Source) (SourceResult, bool) {
	for _, res := range r.Sources {
		if res.Source == source {
			return res, true
		}
	}
	return SourceResult{}, false
}

// ConnectorLookup resolves the connector for a source.
type ConnectorLookup interface {
	Lookup(source model.Source) (connector.Connector, bool)
}

// SyncOptions tune a SyncService. Zero values use defaults.
type SyncOptions struct {
	SourceTimeout time.Duration
	Refresher     TokenRefresher
	Now           func() time.Time
}

// SyncService pulls every eligible source of a user and merges the result.
type SyncService struct {
	connectors    ConnectorLookup
	credentials   repository.CredentialStore
	merge         *MergeService
	refresher     TokenRefresher
	sourceTimeout time.Duration
	now           func() time.Time
	locks         scopeLocks
}

func NewSyncService(connectors ConnectorLookup, credentials repository.CredentialStore, merge *MergeService, opts SyncOptions) *SyncService {
	timeout := opts.SourceTimeout
	if timeout <= 0 {
		timeout = DefaultSourceTimeout
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &SyncService{
		connectors:    connectors,
		credentials:   credentials,
		merge:         merge,
		refresher:     opts.Refresher,
		sourceTimeout: timeout,
		now:           now,
		locks:         scopeLocks{held: make(map[uint]struct{})},
	}
}

// Sync runs one sync for the user, limited to scope when it is not nil.
// Source failures are reported per source; only store failures are
// returned as errors. A second call for a user whose sync is still running
// fails fast with ErrSyncInProgress.
func (s *SyncService) Sync(ctx context.Context, userID uint, scope *model.Source) (SyncReport, error) {
	report := SyncReport{RunID: uuid.NewString(), UserID: userID, Scope: scope, StartedAt: s.now().UTC()}

	sources := model.SyncSources
	if scope != nil {
		if !scope.Syncable() {
			return report, fmt.Errorf("%w: %s", ErrNotSyncable, *scope)
		}
		sources = []model.Source{*scope}
	}

	if !s.locks.tryAcquire(userID) {
		return report, ErrSyncInProgress
	}
	defer s.locks.release(userID)

	log.Printf("[info] sync %s: user %d, %d source(s)", report.RunID, userID, len(sources))
	for _, source := range sources {
		res, records, err := s.pull(ctx, report.RunID, userID, source)
		if err != nil {
			res.State = SourceFailed
			res.Err = err
			report.Sources = append(report.Sources, res)
			report.FinishedAt = s.now().UTC()
			log.Printf("[warn] sync %s: user %d aborted: %v", report.RunID, userID, err)
			return report, err
		}
		if res.State == SourceSynced {
			rec, err := s.merge.Reconcile(ctx, userID, source, records)
			res.Reconcile = rec
			if err != nil {
				res.State = SourceFailed
				res.Err = err
				report.Sources = append(report.Sources, res)
				report.FinishedAt = s.now().UTC()
				return report, err
			}
			report.Fetched += res.Fetched
		}
		report.Sources = append(report.Sources, res)
	}
	report.FinishedAt = s.now().UTC()

	log.Printf("[info] sync %s: user %d done, %d record(s) fetched", report.RunID, userID, report.Fetched)
	return report, nil
}

// pull resolves the credential, fetches and normalizes one source. The
// returned error is a credential store failure; everything else is recorded
// on the result.
func (s *SyncService) pull(ctx context.Context, runID string, userID uint, source model.Source) (SourceResult, []model.Record, error) {
	res := SourceResult{Source: source, State: SourceSkipped}

	cred, err := s.credential(ctx, userID, source)
	if err != nil {
		if !errors.Is(err, ErrCredentialExpired) {
			return res, nil, err
		}
		res.Err = err
		log.Printf("[warn] sync %s: %s: %v", runID, source, err)
		return res, nil, nil
	}
	if cred == nil {
		return res, nil, nil
	}

	conn, ok := s.connectors.Lookup(source)
	if !ok {
		res.Err = fmt.Errorf("%w: no connector for %s", ErrNotSyncable, source)
		log.Printf("[warn] sync %s: %v", runID, res.Err)
		return res, nil, nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.sourceTimeout)
	items, err := conn.Fetch(fetchCtx, *cred)
	cancel()
	if err != nil {
		res.State = SourceFailed
		res.Err = err
		log.Printf("[warn] sync %s: %s fetch failed: %v", runID, source, err)
		return res, nil, nil
	}

	now := s.now().UTC()
	records := make([]model.Record, 0, len(items))
	for _, item := range items {
		rec, err := conn.Normalize(item, now)
		if err != nil {
			res.Malformed++
			log.Printf("[warn] sync %s: %s: skip item: %v", runID, source, err)
			continue
		}
		rec.UserID = userID
		rec.Source = source
		records = append(records, rec)
	}
	res.State = SourceSynced
	res.Fetched = len(records)
	return res, records, nil
}

// credential returns the usable credential for source, refreshing it when
// it expired and a refresher is configured. It returns nil, nil when the
// user never connected the source.
func (s *SyncService) credential(ctx context.Context, userID uint, source model.Source) (*model.Credential, error) {
	cred, err := s.credentials.Get(ctx, userID, source)
	if err != nil {
		return nil, fmt.Errorf("load %s credential: %w", source, err)
	}
	if cred == nil || !cred.Expired(s.now()) {
		return cred, nil
	}
	if s.refresher == nil || cred.RefreshToken == "" {
		return nil, fmt.Errorf("%w: %s", ErrCredentialExpired, source)
	}

	refreshed, err := s.refresher.Refresh(ctx, *cred)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCredentialExpired, source, err)
	}
	if err := s.credentials.Put(ctx, refreshed); err != nil {
		return nil, fmt.Errorf("store refreshed credential: %w", err)
	}
	return refreshed, nil
}

// scopeLocks admits at most one sync per user at a time.
type scopeLocks struct {
	mu   sync.Mutex
	held map[uint]struct{}
}

func (l *scopeLocks) tryAcquire(userID uint) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[userID]; busy {
		return false
	}
	l.held[userID] = struct{}{}
	return true
}

func (l *scopeLocks) release(userID uint) {
	l.mu.Lock()
	delete(l.held, userID)
	l.mu.Unlock()
}
