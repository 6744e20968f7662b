package audit

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/platinummonkey/groundwork/pkg/apperr"
	"github.com/platinummonkey/groundwork/pkg/db/dbtest"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDBLogger_LogAndSearch(t *testing.T) {
	conn := dbtest.New(t)
	logger := NewDBLogger(conn)
	ctx := context.Background()

	base := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	tick := 0
	logger.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	require.NoError(t, logger.Log(ctx, Entry{UserID: "u1", ProjectID: "p1", Action: ActionCreate, Entity: "Task", EntityID: "t1",
		Metadata: map[string]interface{}{"title": "Pour slab"}}))
	require.NoError(t, logger.Log(ctx, Entry{UserID: "u1", ProjectID: "p1", Action: ActionPolicyDeny, Entity: "module", EntityID: "BUDGET"}))
	require.NoError(t, logger.Log(ctx, Entry{ProjectID: "p2", Action: ActionWebhook, Entity: "Bid", EntityID: "b1"}))

	store := NewStore(conn)

	records, total, err := store.Search(ctx, SearchFilter{ProjectID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, records, 2)
	assert.Equal(t, ActionPolicyDeny, records[0].Action, "newest first")
	assert.JSONEq(t, `{"title":"Pour slab"}`, string(records[1].Metadata))

	records, total, err = store.Search(ctx, SearchFilter{Action: ActionWebhook})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Nil(t, records[0].UserID)

	got, err := store.Get(ctx, records[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "b1", got.EntityID)

	_, err = store.Get(ctx, "missing")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestDBLogger_RequiresActionAndEntity(t *testing.T) {
	conn := dbtest.New(t)
	assert.Error(t, NewDBLogger(conn).Log(context.Background(), Entry{Entity: "Task"}))
}

func TestDBLogger_InsertFailure(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectExec("INSERT INTO audit_logs").WillReturnError(errors.New("disk full"))

	err = NewDBLogger(conn).Log(context.Background(), Entry{Action: ActionCreate, Entity: "Task"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	require.NoError(t, mock.ExpectationsWereMet())
}

type failingLogger struct{ err error }

func (f failingLogger) Log(context.Context, Entry) error { return f.err }

func TestMultiLogger_AttemptsAll(t *testing.T) {
	var buf bytes.Buffer
	base := logrus.New()
	base.SetOutput(&buf)
	base.SetFormatter(&logrus.JSONFormatter{})

	multi := NewMultiLogger(failingLogger{errors.New("db down")}, NewLogrusLogger(base))
	err := multi.Log(context.Background(), Entry{UserID: "u1", Action: ActionDelete, Entity: "Task", EntityID: "t9"})

	require.Error(t, err)
	assert.Contains(t, buf.String(), `"entity_id":"t9"`)
	assert.NoError(t, NoOpLogger{}.Log(context.Background(), Entry{}))
}

func TestExport(t *testing.T) {
	conn := dbtest.New(t)
	ctx := context.Background()
	require.NoError(t, NewDBLogger(conn).Log(ctx, Entry{UserID: "u1", ProjectID: "p1", Action: ActionInvite, Entity: "ProjectMember", EntityID: "m1"}))

	store := NewStore(conn)

	csvOut, err := store.Export(ctx, SearchFilter{}, ExportFormatCSV)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(csvOut)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "ID,CreatedAt"))
	assert.Contains(t, lines[1], "ProjectMember")

	ndjson, err := store.Export(ctx, SearchFilter{}, ExportFormatNDJSON)
	require.NoError(t, err)
	assert.Contains(t, string(ndjson), `"action":"invite"`)

	_, err = store.Export(ctx, SearchFilter{}, ExportFormat("xml"))
	assert.Error(t, err)
	assert.Equal(t, "text/csv", ExportFormatCSV.ContentType())
}
