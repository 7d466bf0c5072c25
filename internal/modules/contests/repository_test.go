package contests

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, InitSchema(db))
	return db
}

func TestRepository_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	repo := NewRepository(db, zerolog.Nop())

	contest, err := repo.Create(&Contest{Name: "Spring Cup", Status: StatusActive})
	require.NoError(t, err)
	assert.NotZero(t, contest.ID)

	got, err := repo.GetByID(contest.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Spring Cup", got.Name)
	assert.Equal(t, StatusActive, got.Status)
	assert.False(t, got.Archived)
}

func TestRepository_GetByID_NotFound(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	repo := NewRepository(db, zerolog.Nop())

	got, err := repo.GetByID(99)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRepository_ListActive(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	repo := NewRepository(db, zerolog.Nop())

	_, err := repo.Create(&Contest{Name: "Running", Status: StatusActive})
	require.NoError(t, err)
	_, err = repo.Create(&Contest{Name: "Done", Status: StatusFinished})
	require.NoError(t, err)
	archived, err := repo.Create(&Contest{Name: "Old", Status: StatusActive})
	require.NoError(t, err)
	require.NoError(t, repo.SetArchived(archived.ID, true))

	active, err := repo.ListActive()
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Running", active[0].Name)
}

func TestRepository_IsClosed(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	repo := NewRepository(db, zerolog.Nop())

	running, err := repo.Create(&Contest{Name: "Running", Status: StatusActive})
	require.NoError(t, err)
	done, err := repo.Create(&Contest{Name: "Done", Status: StatusFinished})
	require.NoError(t, err)
	old, err := repo.Create(&Contest{Name: "Old", Status: StatusActive})
	require.NoError(t, err)
	require.NoError(t, repo.SetArchived(old.ID, true))

	finished, archived, err := repo.IsClosed(running.ID)
	require.NoError(t, err)
	assert.False(t, finished)
	assert.False(t, archived)

	finished, archived, err = repo.IsClosed(done.ID)
	require.NoError(t, err)
	assert.True(t, finished)
	assert.False(t, archived)

	finished, archived, err = repo.IsClosed(old.ID)
	require.NoError(t, err)
	assert.False(t, finished)
	assert.True(t, archived)

	// Unknown contests read as closed
	finished, archived, err = repo.IsClosed(12345)
	require.NoError(t, err)
	assert.True(t, finished)
	assert.False(t, archived)
}

func TestContest_Closed(t *testing.T) {
	assert.False(t, (&Contest{Status: StatusActive}).Closed())
	assert.True(t, (&Contest{Status: StatusFinished}).Closed())
	assert.True(t, (&Contest{Status: StatusActive, Archived: true}).Closed())
}
