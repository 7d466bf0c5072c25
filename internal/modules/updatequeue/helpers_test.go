package updatequeue

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/fttrader/contest-sync/internal/clients/broker"
	"github.com/fttrader/contest-sync/internal/events"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db")+"?_pragma=busy_timeout(5000)")
	require.NoError(t, err)
	require.NoError(t, InitSchema(db))
	return db
}

func testEvents() *events.Manager {
	return events.NewManager(zerolog.Nop())
}

// mockAccounts resolves account ids from a fixed table. onLookup, when set, is
// called before returning so tests can synchronize on dispatch progress.
type mockAccounts struct {
	accounts map[int64]*BrokerAccount
	onLookup func(accountID int64)
	failFor  map[int64]bool
}

func (m *mockAccounts) BrokerAccount(accountID int64) (*BrokerAccount, error) {
	if m.onLookup != nil {
		m.onLookup(accountID)
	}
	if m.failFor[accountID] {
		return nil, fmt.Errorf("mock lookup error")
	}
	return m.accounts[accountID], nil
}

func newMockAccounts(contestID int64, ids ...int64) *mockAccounts {
	accounts := make(map[int64]*BrokerAccount, len(ids))
	for _, id := range ids {
		accounts[id] = &BrokerAccount{
			ID:        id,
			ContestID: contestID,
			Credentials: broker.Credentials{
				AccountNumber: fmt.Sprintf("%d", id),
				Password:      "secret",
				Server:        "Demo",
			},
		}
	}
	return &mockAccounts{accounts: accounts}
}

// mockGate marks contests closed by id.
type mockGate struct {
	finished map[int64]bool
	archived map[int64]bool
	err      error
}

func (m *mockGate) IsClosed(contestID int64) (bool, bool, error) {
	if m.err != nil {
		return false, false, m.err
	}
	return m.finished[contestID], m.archived[contestID], nil
}

// mockBroker returns a canned snapshot, or an error for accounts in failFor.
// When proceed is set, FetchSnapshot blocks until it is closed.
type mockBroker struct {
	mu      sync.Mutex
	calls   []string
	failFor map[string]bool
	proceed chan struct{}
}

func (m *mockBroker) FetchSnapshot(creds broker.Credentials) (*broker.Snapshot, error) {
	m.mu.Lock()
	m.calls = append(m.calls, creds.AccountNumber)
	m.mu.Unlock()
	if m.proceed != nil {
		<-m.proceed
	}
	if m.failFor[creds.AccountNumber] {
		return nil, fmt.Errorf("mock broker error")
	}
	return &broker.Snapshot{
		Balance:          10000,
		Equity:           10250,
		ConnectionStatus: broker.StatusConnected,
	}, nil
}

func (m *mockBroker) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// mockSink records applied snapshots.
type mockSink struct {
	mu      sync.Mutex
	applied map[int64]*broker.Snapshot
	err     error
}

func (m *mockSink) ApplySnapshot(accountID int64, snapshot *broker.Snapshot) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.applied == nil {
		m.applied = make(map[int64]*broker.Snapshot)
	}
	m.applied[accountID] = snapshot
	return nil
}

// newTestEngine wires a store, limiter, worker, reclaimer and driver over the
// given mocks with a short stale timeout.
type testEngine struct {
	store     *Store
	limiter   *Limiter
	worker    *Worker
	reclaimer *Reclaimer
	driver    *Driver
	manager   *Manager
	sink      *mockSink
}

func newTestEngine(t *testing.T, db *sql.DB, maxRequests int, accounts AccountSource, gate ContestGate, brokerClient BrokerClient) *testEngine {
	t.Helper()
	log := zerolog.Nop()
	ev := testEvents()
	store := NewStore(db, log)
	limiter := NewLimiter(maxRequests)
	sink := &mockSink{}
	worker := NewWorker(store, limiter, accounts, gate, brokerClient, sink, ev, log)
	reclaimer := NewReclaimer(store, 30*time.Minute, ev, log)
	driver := NewDriver(store, worker, reclaimer, ev, 24*time.Hour, log)
	manager := NewManager(store, limiter, ev, 30*time.Minute, log)
	return &testEngine{
		store:     store,
		limiter:   limiter,
		worker:    worker,
		reclaimer: reclaimer,
		driver:    driver,
		manager:   manager,
		sink:      sink,
	}
}

func jobStatuses(t *testing.T, store *Store, queueID string) map[int64]JobStatus {
	t.Helper()
	jobs, err := store.GetJobs(queueID)
	require.NoError(t, err)
	statuses := make(map[int64]JobStatus, len(jobs))
	for _, job := range jobs {
		statuses[job.AccountID] = job.Status
	}
	return statuses
}
