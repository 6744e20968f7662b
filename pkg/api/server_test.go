package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/platinummonkey/groundwork/pkg/apperr"
	"github.com/platinummonkey/groundwork/pkg/audit"
	"github.com/platinummonkey/groundwork/pkg/db/dbtest"
	"github.com/platinummonkey/groundwork/pkg/projects"
	"github.com/platinummonkey/groundwork/pkg/rbac"
	"github.com/platinummonkey/groundwork/pkg/storage"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWebhookSecret = "hook-secret"

// tokenVerifier accepts a seeded user id as the bearer token
type tokenVerifier struct{}

func (tokenVerifier) Verify(_ context.Context, token string) (*projects.Identity, error) {
	if token == "" || token == "bad" {
		return nil, apperr.Unauthenticated("Invalid token")
	}
	return &projects.Identity{ExternalID: "ext-" + token}, nil
}

type fakeStore struct {
	deleted []string
}

func (f *fakeStore) PresignUpload(_ context.Context, key, contentType string) (*storage.PresignedRequest, error) {
	return &storage.PresignedRequest{
		URL:       "https://bucket.example.com/" + key,
		Method:    http.MethodPut,
		Headers:   map[string]string{"Content-Type": contentType},
		ExpiresAt: dbtest.Now.Add(15 * time.Minute),
	}, nil
}

func (f *fakeStore) PresignDownload(_ context.Context, key, _ string) (*storage.PresignedRequest, error) {
	return &storage.PresignedRequest{URL: "https://bucket.example.com/" + key, Method: http.MethodGet}, nil
}

func (f *fakeStore) DeleteObject(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

type fixture struct {
	conn       *sql.DB
	handler    http.Handler
	store      *fakeStore
	admin      string
	manager    string
	contractor string
	outsider   string
	project    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.New(t)
	logger, _ := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	auditLogger := audit.NewDBLogger(conn)
	engine := rbac.NewEngine(conn, auditLogger, logger)
	clock := func() time.Time { return dbtest.Now }
	f := &fixture{conn: conn, store: &fakeStore{}}

	srv := NewServer(Deps{
		DB:            conn,
		Engine:        engine,
		Projects:      projects.NewService(conn, engine, auditLogger, logger, projects.WithClock(clock)),
		Audit:         auditLogger,
		Verifier:      tokenVerifier{},
		Documents:     f.store,
		Logger:        logger,
		WebhookSecret: testWebhookSecret,
		Clock:         clock,
	})
	f.handler = srv.Handler()

	f.admin = dbtest.SeedUser(t, conn, "admin@example.com", "ADMIN")
	f.manager = dbtest.SeedUser(t, conn, "pm@example.com", "STAFF")
	f.contractor = dbtest.SeedUser(t, conn, "framer@example.com", "CONTRACTOR")
	f.outsider = dbtest.SeedUser(t, conn, "other@example.com", "VIEWER")

	f.project = dbtest.SeedProject(t, conn, "Riverside Duplex", f.manager)
	dbtest.SeedMember(t, conn, f.project, f.manager, "MANAGER")
	for _, m := range rbac.AllModules {
		dbtest.SeedModuleAccess(t, conn, f.project, f.manager, string(m), true, true, true, true)
	}
	dbtest.SeedMember(t, conn, f.project, f.contractor, "CONTRACTOR")
	dbtest.SeedModuleAccess(t, conn, f.project, f.contractor, "BUDGET", true, false, false, false)
	dbtest.SeedModuleAccess(t, conn, f.project, f.contractor, "SCHEDULE", true, false, false, true)
	return f
}

type envelope struct {
	Success    bool                   `json:"success"`
	Data       json.RawMessage        `json:"data"`
	Error      string                 `json:"error"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details"`
	Pagination *struct {
		Total int64 `json:"total"`
	} `json:"pagination"`
}

func (f *fixture) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func (f *fixture) projectPath(suffix string) string {
	return APIPrefix + "/projects/" + f.project + suffix
}

func TestAuthentication(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(t, http.MethodGet, APIPrefix+"/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", env.Error)

	rec, _ = f.do(t, http.MethodGet, APIPrefix+"/me", "bad", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, env = f.do(t, http.MethodGet, APIPrefix+"/me", f.manager, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), "pm@example.com")
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture(t)
	rec, env := f.do(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", env.Error)
}

func TestModuleAccessIsEnforced(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.do(t, http.MethodGet, f.projectPath("/tasks"), f.outsider, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Contractor has no TASKS row.
	rec, _ = f.do(t, http.MethodGet, f.projectPath("/tasks"), f.contractor, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = f.do(t, http.MethodPost, f.projectPath("/budget"), f.contractor, map[string]interface{}{
		"category": "Framing", "description": "Lumber",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = f.do(t, http.MethodGet, f.projectPath("/tasks"), f.manager, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 3, dbtest.Count(t, f.conn, "audit_logs", "action = ?", audit.ActionPolicyDeny))
}

func TestTaskLifecycle(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(t, http.MethodPost, f.projectPath("/tasks"), f.manager, map[string]interface{}{
		"title": "Pour footings", "priority": "HIGH",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var task struct {
		ID        string `json:"id"`
		Status    string `json:"status"`
		ProjectID string `json:"projectId"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &task))
	assert.Equal(t, f.project, task.ProjectID)

	rec, env = f.do(t, http.MethodPatch, f.projectPath("/tasks/"+task.ID), f.manager, map[string]interface{}{"status": "DONE"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, string(env.Data), `"DONE"`)

	rec, env = f.do(t, http.MethodGet, f.projectPath("/tasks"), f.manager, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, int64(1), env.Pagination.Total)

	assert.Equal(t, 1, dbtest.Count(t, f.conn, "audit_logs", "action = ? AND entity = ?", audit.ActionCreate, "task"))
	assert.Equal(t, 1, dbtest.Count(t, f.conn, "audit_logs", "action = ? AND entity = ?", audit.ActionUpdate, "task"))
}

func TestBulkDeleteTasksReportsMissingIDs(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(t, http.MethodPost, f.projectPath("/tasks"), f.manager, map[string]interface{}{"title": "Frame walls"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var task struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &task))

	rec, env = f.do(t, http.MethodPost, f.projectPath("/tasks/bulk-delete"), f.manager, map[string]interface{}{
		"ids": []string{task.ID, "missing-id"},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "TASKS_NOT_FOUND", env.Error)
	assert.Equal(t, 1, dbtest.Count(t, f.conn, "tasks", ""))

	rec, _ = f.do(t, http.MethodPost, f.projectPath("/tasks/bulk-delete"), f.manager, map[string]interface{}{
		"ids": []string{task.ID},
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, dbtest.Count(t, f.conn, "tasks", ""))
}

func TestBudgetCostsAreRedactedForContractors(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.do(t, http.MethodPost, f.projectPath("/budget"), f.admin, map[string]interface{}{
		"category": "Framing", "description": "Lumber package", "quantity": "1", "unitCost": "18250.50", "estTotal": "18250.50",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec, env := f.do(t, http.MethodGet, f.projectPath("/budget"), f.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"18250.5"`)

	rec, env = f.do(t, http.MethodGet, f.projectPath("/budget"), f.contractor, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, string(env.Data), "18250")
	assert.Contains(t, string(env.Data), "Lumber package")
}

func TestContractorScheduleRequestIsForcedToRequested(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(t, http.MethodPost, f.projectPath("/schedule"), f.contractor, map[string]interface{}{
		"title":   "Framing inspection",
		"startAt": "2026-03-10T08:00:00Z",
		"endAt":   "2026-03-10T10:00:00Z",
		"status":  "APPROVED",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var event struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &event))
	assert.Equal(t, "REQUESTED", event.Status)

	rec, _ = f.do(t, http.MethodPost, f.projectPath("/schedule/bulk-approve"), f.contractor, map[string]interface{}{"ids": []string{event.ID}})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, env = f.do(t, http.MethodPost, f.projectPath("/schedule/bulk-approve"), f.manager, map[string]interface{}{"ids": []string{event.ID}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, string(env.Data), `"APPROVED"`)
}

func TestValidationErrorsUseEnvelope(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(t, http.MethodPost, f.projectPath("/schedule"), f.manager, map[string]interface{}{
		"title":   "Backwards",
		"startAt": "2026-03-10T10:00:00Z",
		"endAt":   "2026-03-10T08:00:00Z",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error)
	assert.Contains(t, env.Details, "endAt")
}

func TestProjectCreateAndList(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.do(t, http.MethodPost, APIPrefix+"/projects", f.outsider, map[string]interface{}{"name": "Not allowed"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, env := f.do(t, http.MethodPost, APIPrefix+"/projects", f.manager, map[string]interface{}{
		"name": "Hillside ADU", "budgetTotal": "95000",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var project struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &project))

	rec, env = f.do(t, http.MethodGet, APIPrefix+"/projects", f.manager, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), project.ID)

	rec, env = f.do(t, http.MethodGet, APIPrefix+"/projects", f.contractor, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), f.project)
	assert.NotContains(t, string(env.Data), project.ID)
}

func TestDocumentUploadAndDelete(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(t, http.MethodPost, f.projectPath("/documents"), f.manager, map[string]interface{}{
		"name": "plans.pdf", "contentType": "application/pdf", "sizeBytes": 2048,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		Document struct {
			ID         string `json:"id"`
			StorageKey string `json:"storageKey"`
		} `json:"document"`
		Upload struct {
			URL    string `json:"url"`
			Method string `json:"method"`
		} `json:"upload"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, http.MethodPut, created.Upload.Method)
	assert.Contains(t, created.Document.StorageKey, f.project)

	rec, _ = f.do(t, http.MethodGet, f.projectPath("/documents/"+created.Document.ID+"/download"), f.manager, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = f.do(t, http.MethodDelete, f.projectPath("/documents/"+created.Document.ID), f.manager, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{created.Document.StorageKey}, f.store.deleted)
	assert.Equal(t, 0, dbtest.Count(t, f.conn, "documents", ""))
}

func TestBidWebhook(t *testing.T) {
	f := newFixture(t)

	post := func(path string, body interface{}) map[string]interface{} {
		rec, env := f.do(t, http.MethodPost, f.projectPath(path), f.manager, body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var out map[string]interface{}
		require.NoError(t, json.Unmarshal(env.Data, &out))
		return out
	}
	contact := post("/contacts", map[string]interface{}{"name": "Ada Framing", "type": "CONTRACTOR"})
	post("/vendors", map[string]interface{}{"name": "Ada Framing LLC", "contactId": contact["id"]})
	rfp := post("/rfps", map[string]interface{}{"title": "Framing package"})

	rec, env := f.do(t, http.MethodPost, f.projectPath("/rfps/"+rfp["id"].(string)+"/invite"), f.manager, map[string]interface{}{
		"contactIds": []string{contact["id"].(string)},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var invited struct {
		Invited []struct {
			ID string `json:"id"`
		} `json:"invited"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &invited))
	require.Len(t, invited.Invited, 1)

	send := func(secret string) *httptest.ResponseRecorder {
		raw, _ := json.Marshal(map[string]interface{}{"invitationId": invited.Invited[0].ID, "amount": "42000"})
		req := httptest.NewRequest(http.MethodPost, APIPrefix+"/webhooks/bids", bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-project-id", f.project)
		req.Header.Set("x-webhook-secret", secret)
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusUnauthorized, send("wrong").Code)
	rec = send(testWebhookSecret)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 1, dbtest.Count(t, f.conn, "bids", "project_id = ?", f.project))

	rec = send(testWebhookSecret)
	assert.Equal(t, http.StatusConflict, rec.Code, "retried delivery")
	assert.Equal(t, 1, dbtest.Count(t, f.conn, "bids", "project_id = ?", f.project))
	assert.Equal(t, 1, dbtest.Count(t, f.conn, "audit_logs", "action = ?", audit.ActionWebhook))
}

func TestAdminAuditSearch(t *testing.T) {
	f := newFixture(t)

	f.do(t, http.MethodPost, f.projectPath("/tasks"), f.manager, map[string]interface{}{"title": "Order windows"})

	rec, _ := f.do(t, http.MethodGet, APIPrefix+"/admin/audit", f.manager, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, env := f.do(t, http.MethodGet, APIPrefix+"/admin/audit?entity=task&action=create", f.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, env.Pagination)
	assert.Equal(t, int64(1), env.Pagination.Total)

	rec, _ = f.do(t, http.MethodGet, APIPrefix+"/admin/audit/export?format=csv&entity=task", f.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, rec.Body.String(), ",task,")
}
