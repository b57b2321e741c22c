package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestLoadFreshState(t *testing.T) {
	db := openTestDB(t)

	before := float64(time.Now().Unix())
	s, err := db.Load()
	require.NoError(t, err)
	after := float64(time.Now().Unix())

	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.Users())
	assert.GreaterOrEqual(t, s.Checkpoint(), before)
	assert.LessOrEqual(t, s.Checkpoint(), after)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	db := openTestDB(t)

	s := New(1234.5)
	s.Append(testCase("alice", "modA", 1000))
	s.Append(testCase("bob", "modB", 1100))
	s.Append(testCase("alice", "modA", 1200))
	s.SetMessageID(0, "msg-0")
	s.SetMessageID(1, "msg-1")
	s.SetMessageID(2, "msg-2")
	s.Justify(1, "rule 4")
	s.Strike(2)

	require.NoError(t, db.Save(s))

	loaded, err := db.Load()
	require.NoError(t, err)

	assert.Equal(t, 1234.5, loaded.Checkpoint())
	assert.Equal(t, 3, loaded.Len())

	c0 := loaded.Get(0)
	require.NotNil(t, c0)
	assert.Equal(t, "alice", c0.Author)
	assert.Equal(t, "modA", c0.Moderator)
	assert.Equal(t, "msg-0", c0.MessageID)
	assert.Equal(t, DefaultReason, c0.Reason)

	c1 := loaded.Get(1)
	require.NotNil(t, c1)
	assert.Equal(t, "rule 4", c1.Reason)

	assert.Nil(t, loaded.Get(2), "stricken slot stays a tombstone")

	assert.Equal(t, []int{0}, loaded.UserCases("alice"))
	assert.Equal(t, []int{1}, loaded.UserCases("bob"))
}

func TestSaveIsRepeatable(t *testing.T) {
	db := openTestDB(t)

	s := New(10)
	s.Append(testCase("alice", "mod", 5))
	require.NoError(t, db.Save(s))

	s.Justify(0, "updated")
	s.AdvanceCheckpoint(20)
	require.NoError(t, db.Save(s))

	loaded, err := db.Load()
	require.NoError(t, err)
	assert.Equal(t, float64(20), loaded.Checkpoint())
	assert.Equal(t, "updated", loaded.Get(0).Reason)
	assert.Equal(t, 1, loaded.Len())
}

func TestTombstoneRowCarriesNoData(t *testing.T) {
	db := openTestDB(t)

	s := New(10)
	s.Append(testCase("alice", "mod", 5))
	s.SetMessageID(0, "msg-0")
	require.NoError(t, db.Save(s))

	s.Strike(0)
	require.NoError(t, db.Save(s))

	var row CaseRow
	require.NoError(t, db.db.Where("number = ?", 0).First(&row).Error)
	assert.True(t, row.Stricken)
	assert.Empty(t, row.Author)
	assert.Empty(t, row.Title)
	assert.Empty(t, row.MessageID)
}

func TestUpdaterMarker(t *testing.T) {
	db := openTestDB(t)

	marker, err := db.UpdaterMarker()
	require.NoError(t, err)
	assert.Nil(t, marker)

	want := &UpdaterMarker{ChannelID: "chan", MessageID: "msg", RemoteVersion: "v1.2.3"}
	require.NoError(t, db.SetUpdaterMarker(want))

	got, err := db.UpdaterMarker()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, *want, *got)

	require.NoError(t, db.SetUpdaterMarker(nil))
	got, err = db.UpdaterMarker()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestReopenKeepsState(t *testing.T) {
	dir := t.TempDir()

	db, err := Open(dir)
	require.NoError(t, err)
	s := New(42)
	s.Append(testCase("alice", "mod", 40))
	require.NoError(t, db.Save(s))
	require.NoError(t, db.Close())

	db2, err := Open(dir)
	require.NoError(t, err)
	defer db2.Close()

	loaded, err := db2.Load()
	require.NoError(t, err)
	assert.Equal(t, float64(42), loaded.Checkpoint())
	assert.Equal(t, 1, loaded.Len())
}
