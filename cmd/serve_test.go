package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/council-scraper/internal/catalogue"
	"github.com/sells-group/council-scraper/internal/model"
	"github.com/sells-group/council-scraper/internal/monitoring"
	"github.com/sells-group/council-scraper/internal/queue"
	"github.com/sells-group/council-scraper/internal/store"
)

type testAPI struct {
	handler http.Handler
	queue   *queue.RedisQueue
	store   *store.SQLiteStore
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	cat, err := catalogue.New(
		model.CouncilDescriptor{Code: "KIR", Name: "Kirklees", Kind: model.KindHTML, BaseURL: "https://www.kirklees.gov.uk/councillors", ListPage: model.ListPage{Item: "li"}},
		model.CouncilDescriptor{Code: "CAM", Name: "Cambridgeshire", Kind: model.KindCMIS, BaseURL: "https://democracy.cambridgeshire.gov.uk/Councillors.aspx"},
		model.CouncilDescriptor{Code: "ADU", Name: "Adur", Kind: model.KindHTML, BaseURL: "https://www.adur-worthing.gov.uk", ListPage: model.ListPage{Item: "li"}, Disabled: true},
	)
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() }) //nolint:errcheck
	q := queue.NewRedisQueue(rdb, queue.Options{Namespace: "test", VisibilityTimeout: time.Minute, MaxDeliveries: 1})

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	h := newRouter(api{
		cat:       cat,
		queue:     q,
		store:     st,
		collector: monitoring.NewCollector(st, q),
		lookback:  24,
	}, []string{"https://dash.example.org"})

	return &testAPI{handler: h, queue: q, store: st}
}

func (a *testAPI) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)
	return rr
}

func TestRouter_Health(t *testing.T) {
	a := newTestAPI(t)
	rr := a.do(t, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestRouter_Metrics(t *testing.T) {
	a := newTestAPI(t)
	rr := a.do(t, http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}

func TestRouter_CORSPreflight(t *testing.T) {
	a := newTestAPI(t)
	req := httptest.NewRequest(http.MethodOptions, "/dispatch", nil)
	req.Header.Set("Origin", "https://dash.example.org")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)

	assert.Equal(t, "https://dash.example.org", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_ListCouncils(t *testing.T) {
	a := newTestAPI(t)
	rr := a.do(t, http.MethodGet, "/councils/", "")

	require.Equal(t, http.StatusOK, rr.Code)
	var descs []model.CouncilDescriptor
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &descs))
	require.Len(t, descs, 3)
	assert.Equal(t, "ADU", descs[0].Code)
	assert.True(t, descs[0].Disabled)
}

func TestRouter_Councillors(t *testing.T) {
	a := newTestAPI(t)
	alice, err := model.NewCouncillor("https://www.kirklees.gov.uk/councillors/101", "101", "Alice Smith", "Labour", "Almondbury")
	require.NoError(t, err)
	require.NoError(t, a.store.SaveOutcome(context.Background(), "KIR", []model.Councillor{alice}, nil))

	rr := a.do(t, http.MethodGet, "/councils/kir/councillors", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Alice Smith")

	rr = a.do(t, http.MethodGet, "/councils/NOPE/councillors", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouter_DispatchPublishesTasks(t *testing.T) {
	a := newTestAPI(t)
	rr := a.do(t, http.MethodPost, "/dispatch", `{"councils":["KIR","CAM"]}`)

	require.Equal(t, http.StatusAccepted, rr.Code)
	var resp struct {
		Dispatched int                `json:"dispatched"`
		Tasks      []model.QueuedTask `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Dispatched)

	depth, err := a.queue.Depth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), depth.Pending)
}

func TestRouter_DispatchBadRequests(t *testing.T) {
	a := newTestAPI(t)

	rr := a.do(t, http.MethodPost, "/dispatch", `not json`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = a.do(t, http.MethodPost, "/dispatch", `{"councils":["ZZZ"]}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "ZZZ")
}

func TestRouter_RunsAndStatus(t *testing.T) {
	a := newTestAPI(t)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, a.store.RecordRun(ctx, model.RunLogEntry{Council: "KIR", Status: model.RunStatusCompleted, Records: 69, StartedAt: now.Add(-time.Minute), FinishedAt: now}))
	require.NoError(t, a.store.RecordRun(ctx, model.RunLogEntry{Council: "CAM", Status: model.RunStatusFailed, Error: "boom", StartedAt: now.Add(-time.Minute), FinishedAt: now}))

	rr := a.do(t, http.MethodGet, "/runs/latest", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var latest []model.RunLogEntry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &latest))
	assert.Len(t, latest, 2)

	rr = a.do(t, http.MethodGet, "/runs/failing", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var failing []model.RunLogEntry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &failing))
	require.Len(t, failing, 1)
	assert.Equal(t, "CAM", failing[0].Council)

	rr = a.do(t, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var snap monitoring.Snapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	assert.Equal(t, 2, snap.RunsTotal)
	assert.Equal(t, []string{"CAM"}, snap.Failing)
}

func TestRouter_DeadLettersAndRequeue(t *testing.T) {
	a := newTestAPI(t)
	ctx := context.Background()
	require.NoError(t, a.queue.Publish(ctx, model.NewTask("CAM", model.TaskOptions{})))
	d, err := a.queue.Receive(ctx)
	require.NoError(t, err)
	dead, err := a.queue.Nack(ctx, d)
	require.NoError(t, err)
	require.True(t, dead, "max deliveries is 1")

	rr := a.do(t, http.MethodGet, "/queue/dead", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var tasks []model.QueuedTask
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &tasks))
	require.Len(t, tasks, 1)
	assert.Equal(t, "CAM", tasks[0].Council)

	rr = a.do(t, http.MethodPost, "/queue/dead/requeue", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"requeued":1}`, rr.Body.String())

	depth, err := a.queue.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, queue.Depth{Pending: 1}, depth)
}

func TestWriteError(t *testing.T) {
	rr := httptest.NewRecorder()
	writeError(rr, http.StatusTeapot, "short and stout")
	assert.Equal(t, http.StatusTeapot, rr.Code)
	assert.JSONEq(t, `{"error":"short and stout"}`, rr.Body.String())
}

