package testsession

import (
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// Shared-cache DSN so goroutines started by the engine see the same database.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&SessionRecord{}))
	return db
}

func finishedSession(status SessionStatus, completedAt time.Time) Session {
	s := newIdleSession(uuid.New().String())
	started := completedAt.Add(-time.Minute)
	s.Status = status
	s.StartedAt = &started
	s.CompletedAt = &completedAt
	for i := range s.Modules {
		s.Modules[i].Status = ModuleCompleted
		s.Modules[i].Progress = 100
		s.Modules[i].Results = Results{TestsRun: 2, Passed: 2}.normalize()
	}
	if status == SessionCompleted {
		s.Summary = &Summary{TotalTests: 12, TotalPassed: 12, TotalDuration: time.Minute}
	}
	return s.Clone()
}

func TestHistoryStore_SaveAndGet(t *testing.T) {
	store := NewHistoryStore(setupTestDB(t))

	sess := finishedSession(SessionCompleted, time.Now().UTC().Truncate(time.Second))
	require.NoError(t, store.Save(sess))

	got, err := store.Get(sess.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, SessionCompleted, got.Status)
	assert.Len(t, got.Modules, 6)
	assert.Equal(t, 2, got.Modules[3].Results.Passed)
	require.NotNil(t, got.Summary)
	assert.Equal(t, 12, got.Summary.TotalTests)

	missing, err := store.Get("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestHistoryStore_RejectsNonTerminal(t *testing.T) {
	store := NewHistoryStore(setupTestDB(t))

	sess := newIdleSession("s-1").Clone()
	assert.Error(t, store.Save(sess))
}

func TestHistoryStore_LatestAndList(t *testing.T) {
	store := NewHistoryStore(setupTestDB(t))

	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	var ids []string
	for i := 0; i < 3; i++ {
		sess := finishedSession(SessionFailed, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, store.Save(sess))
		ids = append(ids, sess.ID)
	}

	latest, err := store.Latest()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, ids[2], latest.ID)

	page1, total, err := store.List(1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page1, 2)
	assert.Equal(t, ids[2], page1[0].ID)
	assert.Equal(t, ids[1], page1[1].ID)

	page2, _, err := store.List(2, 2)
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Equal(t, ids[0], page2[0].ID)
}

func TestHistoryStore_LatestEmpty(t *testing.T) {
	store := NewHistoryStore(setupTestDB(t))

	latest, err := store.Latest()
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestHistoryStore_DeleteOlderThan(t *testing.T) {
	store := NewHistoryStore(setupTestDB(t))

	now := time.Now().UTC()
	require.NoError(t, store.Save(finishedSession(SessionCancelled, now.Add(-40*24*time.Hour))))
	require.NoError(t, store.Save(finishedSession(SessionCompleted, now.Add(-time.Hour))))

	deleted, err := store.DeleteOlderThan(now.Add(-30 * 24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, total, err := store.List(1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}
