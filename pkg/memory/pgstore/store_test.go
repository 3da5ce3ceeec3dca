package pgstore

import (
	"context"
	"errors"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/agentrun/pkg/chat"
	"github.com/harun/agentrun/pkg/memory"
	"github.com/harun/agentrun/pkg/memory/memorytest"
)

const dsnEnv = "AGENTRUN_TEST_POSTGRES_DSN"

func TestContract(t *testing.T) {
	dsn := os.Getenv(dsnEnv)
	if dsn == "" {
		t.Skipf("%s not set", dsnEnv)
	}

	clock := memorytest.NewClock()
	memorytest.Run(t, memorytest.Harness{
		NewStore: func(t *testing.T) memory.Store {
			table := "chat_memory_test_" + regexp.MustCompile(`[^a-z0-9]`).ReplaceAllString(uuid.New().String(), "")
			s, err := New(Config{DSN: dsn, Table: table, Now: clock.Now})
			require.NoError(t, err)
			t.Cleanup(func() {
				_, _ = s.db.Exec("DROP TABLE IF EXISTS " + table)
				s.Close()
			})
			return s
		},
		Advance: func(t *testing.T, d time.Duration) { clock.Advance(d) },
	})
}

func setupMockStore(t *testing.T, now func() time.Time) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s, err := NewWithDB(db, "", now)
	require.NoError(t, err)
	return s, mock
}

func TestStoreSQL(t *testing.T) {
	ctx := context.Background()
	clock := memorytest.NewClock()

	t.Run("should create the table once and upsert", func(t *testing.T) {
		s, mock := setupMockStore(t, clock.Now)

		mock.ExpectExec(`CREATE TABLE IF NOT EXISTS chat_memory`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`INSERT INTO chat_memory .* ON CONFLICT \(memory_id\) DO UPDATE`).
			WithArgs("a", `[{"role":"USER","content":"hi"}]`, clock.Now().Add(time.Minute)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO chat_memory`).
			WithArgs("a", `[]`, nil).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, s.Put(ctx, "a", []chat.Message{chat.User("hi")}, time.Minute))
		require.NoError(t, s.Put(ctx, "a", nil, 0))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("should delete an expired row on read", func(t *testing.T) {
		s, mock := setupMockStore(t, clock.Now)

		mock.ExpectExec(`CREATE TABLE IF NOT EXISTS`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT message_payload, expires_at FROM chat_memory WHERE memory_id = \$1`).
			WithArgs("a").
			WillReturnRows(sqlmock.NewRows([]string{"message_payload", "expires_at"}).
				AddRow([]byte(`[{"role":"USER","content":"hi"}]`), clock.Now().Add(-time.Second)))
		mock.ExpectExec(`DELETE FROM chat_memory WHERE memory_id = \$1 AND expires_at <= \$2`).
			WithArgs("a", clock.Now()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		rec, err := s.Get(ctx, "a")
		require.NoError(t, err)
		assert.Nil(t, rec)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("should return live rows", func(t *testing.T) {
		s, mock := setupMockStore(t, clock.Now)

		mock.ExpectExec(`CREATE TABLE IF NOT EXISTS`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT message_payload, expires_at`).
			WithArgs("a").
			WillReturnRows(sqlmock.NewRows([]string{"message_payload", "expires_at"}).
				AddRow([]byte(`[{"role":"USER","content":"hi"},{"role":"AI","content":"yo"}]`), nil))

		rec, err := s.Get(ctx, "a")
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Nil(t, rec.ExpiresAt)
		assert.Equal(t, []chat.Message{chat.User("hi"), chat.AI("yo")}, rec.Messages)
	})

	t.Run("should retry schema creation after a failure", func(t *testing.T) {
		s, mock := setupMockStore(t, clock.Now)

		mock.ExpectExec(`CREATE TABLE IF NOT EXISTS`).WillReturnError(errors.New("connection refused"))
		mock.ExpectExec(`CREATE TABLE IF NOT EXISTS`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`DELETE FROM chat_memory WHERE memory_id = \$1`).WithArgs("a").WillReturnResult(sqlmock.NewResult(0, 0))

		require.Error(t, s.Delete(ctx, "a"))
		require.NoError(t, s.Delete(ctx, "a"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("should propagate query failures as memory io errors", func(t *testing.T) {
		s, mock := setupMockStore(t, clock.Now)

		mock.ExpectExec(`CREATE TABLE IF NOT EXISTS`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`INSERT INTO chat_memory`).WillReturnError(errors.New("disk full"))

		m, err := memory.NewManager(memory.Config{Store: s, TTL: time.Hour})
		require.NoError(t, err)

		err = m.Save(ctx, "a", []chat.Message{chat.User("hi"), chat.AI("yo")})
		var ioErr *memory.IOError
		require.ErrorAs(t, err, &ioErr)
		assert.Equal(t, "postgres", ioErr.Backend)
		assert.Equal(t, "save", ioErr.Op)
		assert.Contains(t, err.Error(), "disk full")
	})
}
