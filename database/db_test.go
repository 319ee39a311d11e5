package database

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomchat/models"
)

// setupTestDB creates an in-memory SQLite database for testing.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func strPtr(s string) *string { return &s }

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open("mysql", "whatever")
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	pg := &DB{driver: DriverPostgres}
	lite := &DB{driver: DriverSQLite}

	query := "SELECT * FROM t WHERE a = ? AND b = ?"
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", pg.rebind(query))
	assert.Equal(t, query, lite.rebind(query))
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	user, err := db.CreateUser(ctx, "a@example.com", "hash")
	require.NoError(t, err)
	assert.NotZero(t, user.ID)
	assert.Equal(t, "a@example.com", user.Email)
	assert.False(t, user.CreatedAt.IsZero())

	byEmail, err := db.GetUserByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)
	assert.Equal(t, "hash", byEmail.Password)

	_, err = db.GetUserByEmail(ctx, "missing@example.com")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = db.CreateUser(ctx, "a@example.com", "other")
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestSessions(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	user, err := db.CreateUser(ctx, "s@example.com", "hash")
	require.NoError(t, err)

	require.NoError(t, db.CreateSession(ctx, "live", user.ID, time.Now().Add(time.Hour)))
	require.NoError(t, db.CreateSession(ctx, "stale", user.ID, time.Now().Add(-time.Hour)))

	session, err := db.GetSession(ctx, "live")
	require.NoError(t, err)
	assert.Equal(t, user.ID, session.UserID)

	_, err = db.GetSession(ctx, "stale")
	assert.ErrorIs(t, err, ErrNotFound)

	removed, err := db.DeleteExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	require.NoError(t, db.DeleteSession(ctx, "live"))
	_, err = db.GetSession(ctx, "live")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMessages_OrderedByCreatedAt(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	stamps := []time.Time{base, base.Add(time.Second), base.Add(time.Second)}
	i := 0
	db.now = func() time.Time {
		ts := stamps[i]
		i++
		return ts
	}

	first := &models.Message{Text: "hi", User: "a@example.com", UserID: "1"}
	second := &models.Message{User: "b@example.com", UserID: "2", ImageURL: strPtr("data:image/png;base64,AAAA")}
	third := &models.Message{Text: "tie", User: "a@example.com", UserID: "1"}
	for _, m := range []*models.Message{first, second, third} {
		require.NoError(t, db.CreateMessage(ctx, m))
		assert.NotEmpty(t, m.ID)
	}

	messages, err := db.ListMessages(ctx)
	require.NoError(t, err)
	require.Len(t, messages, 3)

	assert.Equal(t, first.ID, messages[0].ID)
	assert.Equal(t, second.ID, messages[1].ID)
	assert.Equal(t, third.ID, messages[2].ID, "ties keep insertion order")

	assert.Nil(t, messages[0].ImageURL)
	require.NotNil(t, messages[1].ImageURL)
	assert.Equal(t, "data:image/png;base64,AAAA", *messages[1].ImageURL)
	assert.True(t, messages[1].CreatedAt.Equal(base.Add(time.Second)))

	count, err := db.CountMessages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestListMessages_Empty(t *testing.T) {
	db := setupTestDB(t)

	messages, err := db.ListMessages(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, messages)
	assert.Empty(t, messages)
}

func TestCreateMessage_ConcurrentAppendsKeepOrder(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	// A clock that yields after every read lets a later reader insert first
	// unless reading and inserting happen together.
	var tick atomic.Int64
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	db.now = func() time.Time {
		ts := base.Add(time.Duration(tick.Add(1)) * time.Millisecond)
		runtime.Gosched()
		return ts
	}

	const writers = 200
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, db.CreateMessage(ctx, &models.Message{Text: "x", User: "a@example.com"}))
		}()
	}
	wg.Wait()

	rows, err := db.conn.QueryContext(ctx, "SELECT id FROM messages ORDER BY seq ASC")
	require.NoError(t, err)
	defer rows.Close()
	var bySeq []string
	for rows.Next() {
		var id string
		require.NoError(t, rows.Scan(&id))
		bySeq = append(bySeq, id)
	}
	require.NoError(t, rows.Err())
	// the pool holds one connection
	rows.Close()

	messages, err := db.ListMessages(ctx)
	require.NoError(t, err)
	require.Len(t, messages, writers)
	for i, m := range messages {
		assert.Equal(t, bySeq[i], m.ID, "position %d", i)
	}
}

func TestCreateMessage_ClockGoingBackwards(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	stamps := []time.Time{base, base.Add(-time.Minute)}
	i := 0
	db.now = func() time.Time {
		ts := stamps[i]
		i++
		return ts
	}

	first := &models.Message{Text: "first"}
	second := &models.Message{Text: "second"}
	require.NoError(t, db.CreateMessage(ctx, first))
	require.NoError(t, db.CreateMessage(ctx, second))

	assert.True(t, second.CreatedAt.Equal(first.CreatedAt))
	messages, err := db.ListMessages(ctx)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, first.ID, messages[0].ID)
	assert.Equal(t, second.ID, messages[1].ID)
}
