package updatequeue

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_CreateAndGetQueue(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	store := NewStore(db, zerolog.Nop())

	contestID := int64(7)
	queue := &Queue{ID: "q1a2b3c4d", ContestID: &contestID, CreatedAt: time.Now()}
	require.NoError(t, store.CreateQueue(queue, []int64{10, 20, 30}))
	assert.Equal(t, 3, queue.Total)

	got, err := store.GetQueue("q1a2b3c4d")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 3, got.Total)
	assert.Equal(t, 0, got.Completed)
	assert.Nil(t, got.CompletedAt)
	require.NotNil(t, got.ContestID)
	assert.Equal(t, int64(7), *got.ContestID)

	jobs, err := store.GetJobs("q1a2b3c4d")
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	for _, job := range jobs {
		assert.Equal(t, JobPending, job.Status)
	}
}

func TestStore_GetQueue_NotFound(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	store := NewStore(db, zerolog.Nop())

	got, err := store.GetQueue("qmissing0")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_ListPendingJobs_Order(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	store := NewStore(db, zerolog.Nop())

	// Two queues created in order; pending jobs must come back oldest queue
	// first, account id order inside each queue.
	now := time.Now()
	require.NoError(t, store.CreateQueue(&Queue{ID: "qfirst000", CreatedAt: now}, []int64{30, 10}))
	require.NoError(t, store.CreateQueue(&Queue{ID: "qsecond00", CreatedAt: now}, []int64{5}))

	pending, err := store.ListPendingJobs()
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, "qfirst000", pending[0].QueueID)
	assert.Equal(t, int64(10), pending[0].AccountID)
	assert.Equal(t, "qfirst000", pending[1].QueueID)
	assert.Equal(t, int64(30), pending[1].AccountID)
	assert.Equal(t, "qsecond00", pending[2].QueueID)
	assert.Equal(t, int64(5), pending[2].AccountID)
}

func TestStore_MarkProcessing_OnlyOnce(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	store := NewStore(db, zerolog.Nop())

	require.NoError(t, store.CreateQueue(&Queue{ID: "qmark0000", CreatedAt: time.Now()}, []int64{1}))

	started, err := store.MarkProcessing("qmark0000", 1, time.Now())
	require.NoError(t, err)
	assert.True(t, started)

	// Second transition must report the job was already taken
	started, err = store.MarkProcessing("qmark0000", 1, time.Now())
	require.NoError(t, err)
	assert.False(t, started)
}

func TestStore_FinishJob_TerminalIsFinal(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	store := NewStore(db, zerolog.Nop())

	require.NoError(t, store.CreateQueue(&Queue{ID: "qfin00000", CreatedAt: time.Now()}, []int64{1}))
	require.NoError(t, store.FinishJob("qfin00000", 1, JobBlocked, "", BlockedMessage, time.Now()))

	// A later finish must not overwrite the terminal status
	require.NoError(t, store.FinishJob("qfin00000", 1, JobSuccess, "connected", "", time.Now()))

	statuses := jobStatuses(t, store, "qfin00000")
	assert.Equal(t, JobBlocked, statuses[1])
}

func TestStore_FinishJob_RejectsNonTerminal(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	store := NewStore(db, zerolog.Nop())

	require.NoError(t, store.CreateQueue(&Queue{ID: "qbad00000", CreatedAt: time.Now()}, []int64{1}))
	err := store.FinishJob("qbad00000", 1, JobProcessing, "", "", time.Now())
	assert.Error(t, err)
}

func TestStore_RecountCompleted_ClosesQueueOnce(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	store := NewStore(db, zerolog.Nop())

	require.NoError(t, store.CreateQueue(&Queue{ID: "qcnt00000", CreatedAt: time.Now()}, []int64{1, 2}))
	require.NoError(t, store.FinishJob("qcnt00000", 1, JobSuccess, "connected", "", time.Now()))

	queue, closed, err := store.RecountCompleted("qcnt00000", time.Now())
	require.NoError(t, err)
	assert.False(t, closed)
	assert.Equal(t, 1, queue.Completed)
	assert.Nil(t, queue.CompletedAt)

	require.NoError(t, store.FinishJob("qcnt00000", 2, JobFailed, "", "broker down", time.Now()))

	queue, closed, err = store.RecountCompleted("qcnt00000", time.Now())
	require.NoError(t, err)
	assert.True(t, closed)
	assert.Equal(t, 2, queue.Completed)
	require.NotNil(t, queue.CompletedAt)

	// A second recount of a finished queue must not report it closed again
	_, closed, err = store.RecountCompleted("qcnt00000", time.Now())
	require.NoError(t, err)
	assert.False(t, closed)
}

func TestStore_FailStaleProcessing(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	store := NewStore(db, zerolog.Nop())

	old := time.Now().Add(-time.Hour)
	require.NoError(t, store.CreateQueue(&Queue{ID: "qstale000", CreatedAt: old}, []int64{1, 2}))
	require.NoError(t, store.CreateQueue(&Queue{ID: "qfresh000", CreatedAt: time.Now()}, []int64{3}))

	_, err := store.MarkProcessing("qstale000", 1, old)
	require.NoError(t, err)
	_, err = store.MarkProcessing("qfresh000", 3, time.Now())
	require.NoError(t, err)

	touched, err := store.FailStaleProcessing(time.Now().Add(-30*time.Minute), StaleTimeoutMessage, time.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{"qstale000"}, touched)

	// Processing job in the stale queue failed, pending job untouched
	statuses := jobStatuses(t, store, "qstale000")
	assert.Equal(t, JobFailed, statuses[1])
	assert.Equal(t, JobPending, statuses[2])

	// Fresh queue untouched
	statuses = jobStatuses(t, store, "qfresh000")
	assert.Equal(t, JobProcessing, statuses[3])

	jobs, err := store.GetJobs("qstale000")
	require.NoError(t, err)
	assert.Equal(t, StaleTimeoutMessage, jobs[0].ErrorDescription)
}

func TestStore_ClearAll(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	store := NewStore(db, zerolog.Nop())

	require.NoError(t, store.CreateQueue(&Queue{ID: "qone00000", CreatedAt: time.Now()}, []int64{1}))
	require.NoError(t, store.CreateQueue(&Queue{ID: "qtwo00000", CreatedAt: time.Now()}, []int64{2}))

	cleared, err := store.ClearAll()
	require.NoError(t, err)
	assert.Equal(t, 2, cleared)

	queues, err := store.ListQueues(nil)
	require.NoError(t, err)
	assert.Empty(t, queues)

	pending, err := store.ListPendingJobs()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestStore_PruneCompleted(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	store := NewStore(db, zerolog.Nop())

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, store.CreateQueue(&Queue{ID: "qold00000", CreatedAt: old}, []int64{1}))
	require.NoError(t, store.FinishJob("qold00000", 1, JobSuccess, "connected", "", old))
	_, _, err := store.RecountCompleted("qold00000", old)
	require.NoError(t, err)

	require.NoError(t, store.CreateQueue(&Queue{ID: "qnew00000", CreatedAt: time.Now()}, []int64{2}))

	pruned, err := store.PruneCompleted(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	queues, err := store.ListQueues(nil)
	require.NoError(t, err)
	require.Len(t, queues, 1)
	assert.Equal(t, "qnew00000", queues[0].ID)

	// An unfinished queue is never pruned no matter how old
	pruned, err = store.PruneCompleted(time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)
	queues, err = store.ListQueues(nil)
	require.NoError(t, err)
	assert.Empty(t, queues)
}

func TestStore_HistoryCapped(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	store := NewStore(db, zerolog.Nop())

	now := time.Now()
	for i := 0; i < historyLimit+5; i++ {
		rec := HistoryRecord{
			QueueID:    fmt.Sprintf("q%08d", i),
			Total:      1,
			Success:    1,
			StartedAt:  now,
			FinishedAt: now,
		}
		require.NoError(t, store.AppendHistory(rec))
	}

	records, err := store.ListHistory(0)
	require.NoError(t, err)
	require.Len(t, records, historyLimit)

	// Newest first, and the oldest five rows were trimmed
	assert.Equal(t, fmt.Sprintf("q%08d", historyLimit+4), records[0].QueueID)
	assert.Equal(t, fmt.Sprintf("q%08d", 5), records[len(records)-1].QueueID)
}

func TestStore_ListQueues_ByContest(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	store := NewStore(db, zerolog.Nop())

	c1, c2 := int64(1), int64(2)
	require.NoError(t, store.CreateQueue(&Queue{ID: "qc1000000", ContestID: &c1, CreatedAt: time.Now()}, []int64{1}))
	require.NoError(t, store.CreateQueue(&Queue{ID: "qc2000000", ContestID: &c2, CreatedAt: time.Now()}, []int64{2}))
	require.NoError(t, store.CreateQueue(&Queue{ID: "qnil00000", CreatedAt: time.Now()}, []int64{3}))

	queues, err := store.ListQueues(&c1)
	require.NoError(t, err)
	require.Len(t, queues, 1)
	assert.Equal(t, "qc1000000", queues[0].ID)

	queues, err = store.ListQueues(nil)
	require.NoError(t, err)
	assert.Len(t, queues, 3)
}
