package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"taskhub/internal/connector"
	"taskhub/internal/model"
	"taskhub/internal/repository"
)

var errStoreDown = errors.New("store down")

// memRecordStore is an in-memory RecordStore and TaskStore.
type memRecordStore struct {
	mu      sync.Mutex
	nextID  uint
	records map[uint]model.Record

	failInsertAt int
	inserts      int
	failList     error
}

func newMemRecordStore() *memRecordStore {
	return &memRecordStore{records: make(map[uint]model.Record)}
}

func (m *memRecordStore) FindByIdentity(ctx context.Context, userID uint, source model.Source, externalID string) (*model.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec.UserID == userID && rec.Source == source && rec.ExternalID != nil && *rec.ExternalID == externalID {
			out := rec
			return &out, nil
		}
	}
	return nil, nil
}

func (m *memRecordStore) Insert(ctx context.Context, record *model.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserts++
	if m.failInsertAt > 0 && m.inserts == m.failInsertAt {
		return errStoreDown
	}
	if record.HasIdentity() {
		for _, rec := range m.records {
			if rec.UserID == record.UserID && rec.Source == record.Source && rec.ExternalID != nil && *rec.ExternalID == *record.ExternalID {
				return fmt.Errorf("unique constraint failed")
			}
		}
	}
	if record.Status == "" {
		record.Status = model.StatusPending
	}
	m.nextID++
	record.ID = m.nextID
	m.records[record.ID] = *record
	return nil
}

func (m *memRecordStore) Update(ctx context.Context, record *model.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.records[record.ID]
	if !ok {
		return fmt.Errorf("record %d not found", record.ID)
	}
	stored.Title = record.Title
	stored.Description = record.Description
	stored.Kind = record.Kind
	stored.DueAt = record.DueAt
	stored.StartAt = record.StartAt
	stored.Priority = record.Priority
	stored.Metadata = record.Metadata
	m.records[record.ID] = stored
	return nil
}

func (m *memRecordStore) UpdateStatus(ctx context.Context, id uint, from, to model.Status) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.records[id]
	if !ok || stored.Status != from {
		return false, nil
	}
	stored.Status = to
	m.records[id] = stored
	return true, nil
}

func (m *memRecordStore) List(ctx context.Context, userID uint, statuses ...model.Status) ([]model.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failList != nil {
		return nil, m.failList
	}
	var out []model.Record
	for _, rec := range m.records {
		if rec.UserID != userID {
			continue
		}
		if len(statuses) > 0 && !containsStatus(statuses, rec.Status) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func containsStatus(statuses []model.Status, s model.Status) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}

func (m *memRecordStore) ListOverdueCandidates(ctx context.Context, userID uint, now time.Time) ([]model.Record, error) {
	pending, err := m.List(ctx, userID, model.StatusPending)
	if err != nil {
		return nil, err
	}
	var out []model.Record
	for _, rec := range pending {
		if rec.DueAt != nil && rec.DueAt.Before(now) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memRecordStore) InTx(ctx context.Context, fn func(tx repository.RecordStore) error) error {
	m.mu.Lock()
	snapshot := make(map[uint]model.Record, len(m.records))
	for id, rec := range m.records {
		snapshot[id] = rec
	}
	nextID := m.nextID
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.records = snapshot
		m.nextID = nextID
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memRecordStore) FindByID(ctx context.Context, userID, recordID uint) (*model.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[recordID]
	if !ok || rec.UserID != userID {
		return nil, nil
	}
	return &rec, nil
}

func (m *memRecordStore) Delete(ctx context.Context, userID, recordID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[recordID]; ok && rec.UserID == userID {
		delete(m.records, recordID)
	}
	return nil
}

func (m *memRecordStore) all() []model.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// memCredentialStore is an in-memory ConnectionStore.
type memCredentialStore struct {
	mu      sync.Mutex
	creds   map[string]model.Credential
	puts    int
	failGet error
	failPut error
}

func newMemCredentialStore(creds ...model.Credential) *memCredentialStore {
	m := &memCredentialStore{creds: make(map[string]model.Credential)}
	for _, c := range creds {
		m.creds[credKey(c.UserID, c.Source)] = c
	}
	return m
}

func credKey(userID uint, source model.Source) string {
	return fmt.Sprintf("%d/%s", userID, source)
}

func (m *memCredentialStore) Get(ctx context.Context, userID uint, source model.Source) (*model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet != nil {
		return nil, m.failGet
	}
	c, ok := m.creds[credKey(userID, source)]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *memCredentialStore) Put(ctx context.Context, cred *model.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPut != nil {
		return m.failPut
	}
	m.puts++
	m.creds[credKey(cred.UserID, cred.Source)] = *cred
	return nil
}

func (m *memCredentialStore) ListByUser(ctx context.Context, userID uint) ([]model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Credential
	for _, c := range m.creds {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out, nil
}

// fakeItem is the raw item produced by fakeConnector.
type fakeItem struct {
	ID        string
	Title     string
	DueAt     *time.Time
	Malformed bool
}

type fakeConnector struct {
	source model.Source
	items  []connector.RawItem
	err    error

	// started is signalled when Fetch begins; Fetch then waits on release.
	started chan struct{}
	release chan struct{}

	mu     sync.Mutex
	tokens []string
}

func (f *fakeConnector) Source() model.Source { return f.source }

func (f *fakeConnector) Fetch(ctx context.Context, cred model.Credential) ([]connector.RawItem, error) {
	f.mu.Lock()
	f.tokens = append(f.tokens, cred.AccessToken)
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

func (f *fakeConnector) Normalize(item connector.RawItem, now time.Time) (model.Record, error) {
	it, ok := item.(fakeItem)
	if !ok || it.Malformed {
		return model.Record{}, fmt.Errorf("%w: bad item", connector.ErrMalformedRecord)
	}
	return model.Record{
		Source:     f.source,
		ExternalID: model.StringPtr(it.ID),
		Title:      it.Title,
		Kind:       model.KindAssignment,
		DueAt:      it.DueAt,
		Priority:   1,
		Status:     model.StatusPending,
	}, nil
}

func (f *fakeConnector) seenTokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.tokens...)
}

type fakeRefresher struct {
	token string
	err   error
	calls int
}

func (f *fakeRefresher) Refresh(ctx context.Context, cred model.Credential) (*model.Credential, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := cred
	out.AccessToken = f.token
	out.ExpiresAt = nil
	return &out, nil
}

func timeAt(t time.Time) *time.Time {
	return &t
}
