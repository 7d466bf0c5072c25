package updatequeue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriver_ProcessesUpToLimitPerTick(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	accounts := newMockAccounts(1, 10, 20, 30)
	gate := &mockGate{}
	brokerMock := &mockBroker{proceed: make(chan struct{})}
	engine := newTestEngine(t, db, 2, accounts, gate, brokerMock)

	handle, err := engine.manager.CreateQueue([]int64{10, 20, 30}, nil, false)
	require.NoError(t, err)

	// Release the broker mock only after the dispatch loop has looked at the
	// last job, so the first two jobs still hold their slots at that point.
	lastSeen := make(chan struct{})
	var lastSeenOnce sync.Once
	accounts.onLookup = func(accountID int64) {
		if accountID == 30 {
			lastSeenOnce.Do(func() { close(lastSeen) })
		}
	}
	go func() {
		<-lastSeen
		time.Sleep(100 * time.Millisecond)
		close(brokerMock.proceed)
	}()

	require.NoError(t, engine.driver.Tick())

	// Exactly two jobs ran; the third stayed pending for the next tick
	assert.Equal(t, 2, brokerMock.callCount())
	statuses := jobStatuses(t, engine.store, handle.QueueID)
	assert.Equal(t, JobSuccess, statuses[10])
	assert.Equal(t, JobSuccess, statuses[20])
	assert.Equal(t, JobPending, statuses[30])

	queue, err := engine.store.GetQueue(handle.QueueID)
	require.NoError(t, err)
	assert.Equal(t, 2, queue.Completed)
	assert.Nil(t, queue.CompletedAt)
	assert.Equal(t, 0, engine.limiter.InFlight(), "slots released after the tick")

	// Second tick picks up the remaining job and closes the queue
	require.NoError(t, engine.driver.Tick())

	statuses = jobStatuses(t, engine.store, handle.QueueID)
	assert.Equal(t, JobSuccess, statuses[30])

	queue, err = engine.store.GetQueue(handle.QueueID)
	require.NoError(t, err)
	assert.Equal(t, 3, queue.Completed)
	require.NotNil(t, queue.CompletedAt)

	records, err := engine.store.ListHistory(0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, handle.QueueID, records[0].QueueID)
	assert.Equal(t, 3, records[0].Success)
}

func TestDriver_BlocksClosedContestEvenWhenLimiterExhausted(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	accounts := newMockAccounts(5, 10)
	gate := &mockGate{finished: map[int64]bool{5: true}}
	brokerMock := &mockBroker{}
	engine := newTestEngine(t, db, 1, accounts, gate, brokerMock)

	handle, err := engine.manager.CreateQueue([]int64{10}, nil, false)
	require.NoError(t, err)

	// Saturate the limiter so no slot is available
	require.True(t, engine.limiter.TryAcquire())

	require.NoError(t, engine.driver.Tick())

	statuses := jobStatuses(t, engine.store, handle.QueueID)
	assert.Equal(t, JobBlocked, statuses[10])
	assert.Equal(t, 0, brokerMock.callCount(), "no broker call for a blocked job")

	jobs, err := engine.store.GetJobs(handle.QueueID)
	require.NoError(t, err)
	assert.Equal(t, BlockedMessage, jobs[0].ErrorDescription)

	// Blocked counts as terminal so the queue closed
	queue, err := engine.store.GetQueue(handle.QueueID)
	require.NoError(t, err)
	require.NotNil(t, queue.CompletedAt)
	assert.Equal(t, 1, queue.Completed)
}

func TestDriver_ArchivedContestBlocksToo(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	accounts := newMockAccounts(3, 10)
	gate := &mockGate{archived: map[int64]bool{3: true}}
	brokerMock := &mockBroker{}
	engine := newTestEngine(t, db, 2, accounts, gate, brokerMock)

	handle, err := engine.manager.CreateQueue([]int64{10}, nil, false)
	require.NoError(t, err)
	require.NoError(t, engine.driver.Tick())

	statuses := jobStatuses(t, engine.store, handle.QueueID)
	assert.Equal(t, JobBlocked, statuses[10])
}

func TestDriver_BrokerFailureFailsJob(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	accounts := newMockAccounts(1, 10, 20)
	gate := &mockGate{}
	brokerMock := &mockBroker{failFor: map[string]bool{"20": true}}
	engine := newTestEngine(t, db, 2, accounts, gate, brokerMock)

	handle, err := engine.manager.CreateQueue([]int64{10, 20}, nil, false)
	require.NoError(t, err)
	require.NoError(t, engine.driver.Tick())

	statuses := jobStatuses(t, engine.store, handle.QueueID)
	assert.Equal(t, JobSuccess, statuses[10])
	assert.Equal(t, JobFailed, statuses[20])

	// Failures are terminal, the queue still closes
	queue, err := engine.store.GetQueue(handle.QueueID)
	require.NoError(t, err)
	require.NotNil(t, queue.CompletedAt)
	assert.Equal(t, 2, queue.Completed)
	assert.Equal(t, 0, engine.limiter.InFlight(), "slot released after a failed call")

	records, err := engine.store.ListHistory(0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 1, records[0].Success)
	assert.Equal(t, 1, records[0].Failed)
}

func TestDriver_UnknownAccountFailsJob(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	accounts := newMockAccounts(1, 10)
	gate := &mockGate{}
	brokerMock := &mockBroker{}
	engine := newTestEngine(t, db, 2, accounts, gate, brokerMock)

	handle, err := engine.manager.CreateQueue([]int64{10, 99}, nil, false)
	require.NoError(t, err)
	require.NoError(t, engine.driver.Tick())

	statuses := jobStatuses(t, engine.store, handle.QueueID)
	assert.Equal(t, JobSuccess, statuses[10])
	assert.Equal(t, JobFailed, statuses[99])
	assert.Equal(t, 1, brokerMock.callCount())
}

func TestDriver_ReclaimsStaleProcessingJobs(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	accounts := newMockAccounts(1, 10, 20)
	gate := &mockGate{}
	brokerMock := &mockBroker{}
	engine := newTestEngine(t, db, 2, accounts, gate, brokerMock)

	// A queue created an hour ago with one job stuck in processing, slot never
	// released (simulates a crashed worker)
	old := time.Now().Add(-time.Hour)
	queue := &Queue{ID: "qstuck000", CreatedAt: old}
	require.NoError(t, engine.store.CreateQueue(queue, []int64{10, 20}))
	_, err := engine.store.MarkProcessing("qstuck000", 10, old)
	require.NoError(t, err)

	require.NoError(t, engine.driver.Tick())

	statuses := jobStatuses(t, engine.store, "qstuck000")
	assert.Equal(t, JobFailed, statuses[10], "stuck job reclaimed as failed")
	assert.Equal(t, JobSuccess, statuses[20], "pending job in the stale queue still ran")

	q, err := engine.store.GetQueue("qstuck000")
	require.NoError(t, err)
	require.NotNil(t, q.CompletedAt)
	assert.Equal(t, 2, q.Completed)
}

func TestDriver_PrunesOldCompletedQueues(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	accounts := newMockAccounts(1, 10)
	gate := &mockGate{}
	brokerMock := &mockBroker{}
	engine := newTestEngine(t, db, 2, accounts, gate, brokerMock)

	// Queue finished two days ago
	old := time.Now().Add(-48 * time.Hour)
	queue := &Queue{ID: "qancient0", CreatedAt: old}
	require.NoError(t, engine.store.CreateQueue(queue, []int64{10}))
	require.NoError(t, engine.store.FinishJob("qancient0", 10, JobSuccess, "connected", "", old))
	_, _, err := engine.store.RecountCompleted("qancient0", old)
	require.NoError(t, err)

	require.NoError(t, engine.driver.Tick())

	got, err := engine.store.GetQueue("qancient0")
	require.NoError(t, err)
	assert.Nil(t, got, "queue past retention removed")
}
