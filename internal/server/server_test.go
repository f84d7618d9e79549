package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadline/internal/config"
	"leadline/internal/db"
	"leadline/internal/engine"
	"leadline/internal/kanban"
	"leadline/internal/migrate"
	"leadline/internal/repo"
	leadlinesdk "leadline/sdk/go"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, secret string) *testServer {
	t.Helper()
	workspace := t.TempDir()
	cfg := config.Default(config.VariantContacts)
	conn, err := db.Open(db.Config{Workspace: workspace})
	require.NoError(t, err)
	require.NoError(t, migrate.Migrate(conn))
	e := engine.New(conn, cfg)
	require.NoError(t, e.Repo.UpsertConfig(context.Background(), cfg))
	handler, err := New(Config{Engine: e, BasePath: "/api", Auth: AuthConfig{JWTSecret: secret}})
	require.NoError(t, err)
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	ts := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{Timeout: 5 * time.Second},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader = bytes.NewReader(nil)
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

func devToken(t *testing.T, srv *testServer, actor string) string {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/auth/dev/login", map[string]any{"actor_id": actor}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var out DevLoginResponse
	require.NoError(t, json.Unmarshal(data, &out))
	require.NotEmpty(t, out.Token)
	return out.Token
}

func repoFilter(evtType string) repo.EventFilters {
	return repo.EventFilters{Type: evtType}
}

func sdkClient(srv *testServer, token string) *leadlinesdk.Client {
	c := leadlinesdk.New(srv.URL+"/api", token)
	c.HTTPClient = srv.Client()
	return c
}

func TestHealthIsPublic(t *testing.T) {
	srv := newTestServer(t, testSecret)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/health", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(data))
}

func TestRequiresBearerToken(t *testing.T) {
	srv := newTestServer(t, testSecret)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/v1/contacts/kanban", nil, nil)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	var envelope struct {
		Message string       `json:"message"`
		Error   apiErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(data, &envelope))
	assert.Equal(t, "unauthorized", envelope.Error.Code)
	assert.Equal(t, "authentication required", envelope.Message)

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/v1/contacts/kanban", nil, map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	_, err := sdkClient(srv, "").KanbanCounts(context.Background())
	var apiErr *leadlinesdk.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "authentication required", apiErr.Message)
}

func TestAnonymousWithoutSecret(t *testing.T) {
	srv := newTestServer(t, "")
	client := sdkClient(srv, "")
	l, err := client.CreateLead(context.Background(), leadlinesdk.CreateLeadRequest{Name: "Ana"})
	require.NoError(t, err)
	assert.Equal(t, "lead", l.Status())

	evts, err := srv.Engine.Repo.LatestEvents(context.Background(), repoFilter("contact.create"))
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Equal(t, AnonymousActor, evts[0].ActorID)
}

func TestContactContract(t *testing.T) {
	srv := newTestServer(t, testSecret)
	ctx := context.Background()
	client := sdkClient(srv, devToken(t, srv, "ana"))

	created, err := client.CreateLead(ctx, leadlinesdk.CreateLeadRequest{Name: "Maria", Phone: "(11) 98765-4321"})
	require.NoError(t, err)
	assert.Equal(t, "+5511987654321", created.Phone)

	got, err := client.Lead(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Maria", got.Name)

	moved, err := client.UpdateLeadStatus(ctx, created.ID, "completed")
	require.NoError(t, err)
	assert.Equal(t, "completed", moved.Status())

	counts, err := client.KanbanCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, leadlinesdk.KanbanCounts{"lead": 0, "in_progress": 0, "completed": 1}, counts)

	_, err = client.UpdateLeadStatus(ctx, created.ID, "archived")
	var apiErr *leadlinesdk.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "archived")

	_, err = client.UpdateLeadStatus(ctx, "missing", "lead")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)

	convs, err := client.LeadConversations(ctx, created.ID)
	require.NoError(t, err)
	assert.Empty(t, convs)
	sims, err := client.LeadSimulations(ctx, created.ID)
	require.NoError(t, err)
	assert.Empty(t, sims)

	st, err := client.SetAIStatus(ctx, "(11) 98765-4321", false)
	require.NoError(t, err)
	assert.Equal(t, leadlinesdk.AIStatus{Phone: "+5511987654321", Active: false, Updated: true}, st)

	evts, err := srv.Engine.Repo.LatestEvents(ctx, repoFilter("contact.status"))
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Equal(t, "ana", evts[0].ActorID)
}

func TestKanbanPagingOverHTTP(t *testing.T) {
	srv := newTestServer(t, testSecret)
	ctx := context.Background()
	client := sdkClient(srv, devToken(t, srv, "ana"))
	for _, name := range []string{"A", "B", "C"} {
		_, err := client.CreateLead(ctx, leadlinesdk.CreateLeadRequest{Name: name})
		require.NoError(t, err)
	}

	page1, err := client.Kanban(ctx, 1, 2)
	require.NoError(t, err)
	assert.Len(t, page1["lead"], 2)
	assert.NotNil(t, page1["completed"])
	page2, err := client.Kanban(ctx, 2, 2)
	require.NoError(t, err)
	assert.Len(t, page2["lead"], 1)
}

func TestOptimisticMoveEndToEnd(t *testing.T) {
	srv := newTestServer(t, testSecret)
	ctx := context.Background()
	client := sdkClient(srv, devToken(t, srv, "ana"))
	l, err := client.CreateLead(ctx, leadlinesdk.CreateLeadRequest{Name: "Ana"})
	require.NoError(t, err)

	cfg := config.Default(config.VariantContacts)
	store := kanban.NewStore(client, cfg, nil)
	require.NoError(t, store.Load(ctx, true))
	ctrl := kanban.NewController(store, client, nil, nil, nil)

	p := ctrl.ChangeStatus(ctx, l.ID, "in_progress")
	require.True(t, p.Applied())
	require.NoError(t, p.Wait(ctx))
	snap := store.Snapshot()
	require.Len(t, snap.Board["in_progress"], 1)
	assert.Equal(t, 1, snap.Counts["in_progress"])
	assert.Equal(t, 0, snap.Counts["lead"])

	remote, err := client.KanbanCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, remote["in_progress"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, testSecret)
	doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/health", nil, nil)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/metrics", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(data), "leadline_http_requests_total")
}

func TestOpenAPIIsServed(t *testing.T) {
	srv := newTestServer(t, testSecret)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/openapi.json", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	paths, _ := doc["paths"].(map[string]any)
	assert.Contains(t, paths, "/api/v1/contacts/kanban")
	assert.Contains(t, paths, "/api/v1/conversations/ai-status")
}
