package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/content-pipeline/internal/config"
	"github.com/jonathan/content-pipeline/internal/copystore"
	"github.com/jonathan/content-pipeline/internal/jobstore"
	"github.com/jonathan/content-pipeline/internal/outbox"
)

const testAPIToken = "intake-token"

type fakeDeliveries struct {
	byID      map[uuid.UUID]*outbox.Delivery
	listErr   error
	readyFrom map[uuid.UUID]bool
}

func newFakeDeliveries(ds ...*outbox.Delivery) *fakeDeliveries {
	f := &fakeDeliveries{byID: map[uuid.UUID]*outbox.Delivery{}, readyFrom: map[uuid.UUID]bool{}}
	for _, d := range ds {
		f.byID[d.ID] = d
		f.readyFrom[d.ID] = true
	}
	return f
}

func (f *fakeDeliveries) List(_ context.Context, filters outbox.Filters) ([]*outbox.Delivery, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*outbox.Delivery
	for _, d := range f.byID {
		if filters.Status != "" && d.Status != filters.Status {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeDeliveries) Get(_ context.Context, id uuid.UUID) (*outbox.Delivery, error) {
	return f.byID[id], nil
}

func (f *fakeDeliveries) SetOverrideURL(_ context.Context, id uuid.UUID, url string) error {
	if d := f.byID[id]; d != nil {
		if url == "" {
			d.OverrideTargetURL = nil
		} else {
			d.OverrideTargetURL = &url
		}
	}
	return nil
}

func (f *fakeDeliveries) MarkReady(_ context.Context, id uuid.UUID) (bool, error) {
	if !f.readyFrom[id] {
		return false, nil
	}
	f.byID[id].Status = outbox.StatusReadyToSend
	return true, nil
}

func (f *fakeDeliveries) Schedule(_ context.Context, id uuid.UUID, at *time.Time) error {
	if d := f.byID[id]; d != nil {
		d.ScheduledFor = at
	}
	return nil
}

type fakeSender struct {
	outcome string
	won     bool
	err     error
	sent    []uuid.UUID
}

func (f *fakeSender) Send(_ context.Context, id uuid.UUID) (string, bool, error) {
	f.sent = append(f.sent, id)
	return f.outcome, f.won, f.err
}

type fakeCopies struct {
	byJob   map[string]*copystore.Copy
	deleted []*copystore.DeletedCopy
}

func newFakeCopies(cs ...*copystore.Copy) *fakeCopies {
	f := &fakeCopies{byJob: map[string]*copystore.Copy{}}
	for _, c := range cs {
		f.byJob[c.JobID] = c
	}
	return f
}

func (f *fakeCopies) ListCopies(_ context.Context, client string, _, _ int) ([]*copystore.Copy, error) {
	var out []*copystore.Copy
	for _, c := range f.byJob {
		if client != "" && !strings.Contains(c.ClientName, client) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeCopies) GetCopy(_ context.Context, jobID string) (*copystore.Copy, error) {
	return f.byJob[jobID], nil
}

func (f *fakeCopies) DeleteCopy(_ context.Context, jobID string, hold time.Duration) (bool, error) {
	c, ok := f.byJob[jobID]
	if !ok {
		return false, nil
	}
	delete(f.byJob, jobID)
	f.deleted = append(f.deleted, &copystore.DeletedCopy{
		JobID:        c.JobID,
		ClientName:   c.ClientName,
		Document:     c.Document,
		DestroyAfter: time.Now().Add(hold),
	})
	return true, nil
}

func (f *fakeCopies) RestoreCopy(_ context.Context, jobID string) (bool, error) {
	for i, d := range f.deleted {
		if d.JobID != jobID {
			continue
		}
		f.byJob[jobID] = &copystore.Copy{
			JobID:      d.JobID,
			ClientName: d.ClientName,
			Document:   d.Document,
		}
		f.deleted = append(f.deleted[:i], f.deleted[i+1:]...)
		return true, nil
	}
	return false, nil
}

func (f *fakeCopies) ListDeleted(_ context.Context, _ int) ([]*copystore.DeletedCopy, error) {
	return f.deleted, nil
}

type testEnv struct {
	server     *Server
	jobs       *jobstore.Store
	deliveries *fakeDeliveries
	copies     *fakeCopies
	sender     *fakeSender
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	pool := jobstore.NewPool("redis://" + mr.Addr())
	jobs := jobstore.New(pool, jobstore.Options{})
	t.Cleanup(func() { jobs.Close() })

	passwords := &config.PasswordConfig{BcryptCost: 10}
	adminHash, err := passwords.HashPassword("hunter2")
	require.NoError(t, err)

	deliveries := newFakeDeliveries()
	copies := newFakeCopies()
	sender := &fakeSender{}

	s := newServer(Config{
		APIBearerToken:    testAPIToken,
		AdminPasswordHash: adminHash,
	}, jobs, deliveries, copies, sender)
	s.passwords = passwords
	s.jwtService = NewJWTService(&config.JWTConfig{Secret: "test-secret", ExpirationHours: 1})

	return &testEnv{server: s, jobs: jobs, deliveries: deliveries, copies: copies, sender: sender}
}

func (e *testEnv) request(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) adminToken(t *testing.T) string {
	t.Helper()
	token, err := e.server.jwtService.GenerateToken("admin")
	require.NoError(t, err)
	return token
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodGet, "/healthz", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestWebhookRegistersQueuedJob(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodPost, "/webhook/content-request", testAPIToken, map[string]any{
		"client_name": "Acme Plumbing",
		"metadata":    map[string]any{"industry": "plumbing"},
	})

	require.Equal(t, http.StatusAccepted, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "queued", body["status"])
	jobID, _ := body["job_id"].(string)
	require.NotEmpty(t, jobID)

	status, err := env.jobs.Status(jobID)
	require.NoError(t, err)
	assert.Equal(t, jobstore.StatusQueued, status)

	payload, err := env.jobs.Payload(jobID)
	require.NoError(t, err)
	assert.Contains(t, string(payload), "Acme Plumbing")
}

func TestWebhookRejectsMissingClientName(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodPost, "/webhook/content-request", testAPIToken, map[string]any{
		"metadata": map[string]any{},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookRequiresAPIToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodPost, "/webhook/content-request", "wrong-token", map[string]any{
		"client_name": "Acme",
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestResultEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodGet, "/result/missing-job", testAPIToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, env.jobs.Register("job-1"))
	require.NoError(t, env.jobs.SetStatus("job-1", jobstore.StatusCompleted))
	require.NoError(t, env.jobs.SetResult("job-1", map[string]any{"pages_done": 5}))

	rec = env.request(t, http.MethodGet, "/result/job-1", testAPIToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "completed", body["status"])
	result, _ := body["result"].(map[string]any)
	assert.EqualValues(t, 5, result["pages_done"])
}

func TestLoginIssuesUsableToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodPost, "/auth/login", "", map[string]string{"password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.request(t, http.MethodPost, "/auth/login", "", map[string]string{"password": "hunter2"})
	require.Equal(t, http.StatusOK, rec.Code)
	token, _ := decodeBody(t, rec)["token"].(string)
	require.NotEmpty(t, token)

	rec = env.request(t, http.MethodGet, "/jobs", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestControlSurfaceRequiresJWT(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/jobs", "/deliveries", "/copies", "/queue-logs/2026-07"} {
		rec := env.request(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}

	// The static intake token is not a session token
	rec := env.request(t, http.MethodGet, "/jobs", testAPIToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListJobsReturnsSummaries(t *testing.T) {
	env := newTestEnv(t)
	token := env.adminToken(t)

	for _, id := range []string{"job-a", "job-b"} {
		require.NoError(t, env.jobs.Register(id))
		require.NoError(t, env.jobs.SetStatus(id, jobstore.StatusQueued))
	}
	require.NoError(t, env.jobs.MergeProgress("job-a", map[string]any{"stage": "copy"}))

	rec := env.request(t, http.MethodGet, "/jobs", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.EqualValues(t, 2, body["count"])
	jobs, _ := body["jobs"].([]any)
	require.Len(t, jobs, 2)
	first, _ := jobs[0].(map[string]any)
	assert.Equal(t, "job-a", first["job_id"])
	progress, _ := first["progress"].(map[string]any)
	assert.Equal(t, "copy", progress["stage"])
}

func TestGetJobDetail(t *testing.T) {
	env := newTestEnv(t)
	token := env.adminToken(t)

	require.NoError(t, env.jobs.Register("job-1"))
	require.NoError(t, env.jobs.SetStatus("job-1", jobstore.StatusRunning))
	require.NoError(t, env.jobs.AppendLog("job-1", "[I] starting sitemap"))

	rec := env.request(t, http.MethodGet, "/jobs/job-1", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "running", body["status"])
	tail, _ := body["log_tail"].([]any)
	require.Len(t, tail, 1)
	assert.Contains(t, tail[0], "sitemap")

	rec = env.request(t, http.MethodGet, "/jobs/missing", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPauseConflictFromTerminal(t *testing.T) {
	env := newTestEnv(t)
	token := env.adminToken(t)

	require.NoError(t, env.jobs.Register("job-1"))
	require.NoError(t, env.jobs.SetStatus("job-1", jobstore.StatusCompleted))

	rec := env.request(t, http.MethodPost, "/jobs/job-1/pause", token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPauseResumeCancelCycle(t *testing.T) {
	env := newTestEnv(t)
	token := env.adminToken(t)

	require.NoError(t, env.jobs.Register("job-1"))
	require.NoError(t, env.jobs.SetStatus("job-1", jobstore.StatusQueued))

	rec := env.request(t, http.MethodPost, "/jobs/job-1/pause", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "paused", decodeBody(t, rec)["status"])

	rec = env.request(t, http.MethodPost, "/jobs/job-1/resume", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "queued", decodeBody(t, rec)["status"])

	rec = env.request(t, http.MethodPost, "/jobs/job-1/cancel", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "canceled", decodeBody(t, rec)["status"])
}

func TestReorderValidatesDirection(t *testing.T) {
	env := newTestEnv(t)
	token := env.adminToken(t)

	require.NoError(t, env.jobs.Register("job-1"))
	require.NoError(t, env.jobs.SetStatus("job-1", jobstore.StatusQueued))

	rec := env.request(t, http.MethodPost, "/jobs/job-1/reorder", token, map[string]string{"direction": "sideways"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.request(t, http.MethodPost, "/jobs/job-1/reorder", token, map[string]string{"direction": "top"})
	assert.Equal(t, http.StatusOK, rec.Code)
}
