package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgchart/internal/dialog"
	"orgchart/internal/metrics"
	"orgchart/internal/repository/sqlite"
	"orgchart/internal/service"
	"orgchart/internal/session"
)

const testAccount = "acct"

type testServer struct {
	svc      *service.GraphService
	sessions *session.Registry
	srv      *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	repo, err := sqlite.New(":memory:", sqlite.Options{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	bus := service.NewEventBus()
	svc := service.NewGraphService(repo, bus, nil)
	sessions := session.NewRegistry(session.Options{
		Account:       testAccount,
		Threshold:     50,
		FrameInterval: time.Millisecond,
	}, session.Deps{Backend: svc, Bus: bus}, nil)
	t.Cleanup(sessions.CloseAll)

	h := New(svc, sessions, nil, metrics.New("orgchart_test"), Options{Account: testAccount}, nil)
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)

	return &testServer{svc: svc, sessions: sessions, srv: srv}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()
	var rdr *bytes.Reader
	switch b := body.(type) {
	case nil:
		rdr = bytes.NewReader(nil)
	case string:
		rdr = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, ts.srv.URL+path, rdr)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (ts *testServer) seed(t *testing.T) {
	t.Helper()
	fragment := `
nodes:
  - id: a
    label: Alpha
  - id: b
    label: Beta
links:
  - id: L1
    parent_id: a
    child_id: b
`
	_, err := ts.svc.Import(context.Background(), testAccount, "yaml", strings.NewReader(fragment), "")
	require.NoError(t, err)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNodeRoutes(t *testing.T) {
	ts := newTestServer(t)

	t.Run("create", func(t *testing.T) {
		resp := ts.do(t, http.MethodPost, "/api/nodes", map[string]string{"id": "a", "label": "Alpha"})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.Equal(t, "a", decode[map[string]string](t, resp)["id"])
	})

	t.Run("get", func(t *testing.T) {
		resp := ts.do(t, http.MethodGet, "/api/nodes/a", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		node := decode[map[string]interface{}](t, resp)
		assert.Equal(t, "Alpha", node["label"])
	})

	t.Run("update", func(t *testing.T) {
		resp := ts.do(t, http.MethodPut, "/api/nodes/a", map[string]string{"label": "Alef"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "Alef", decode[map[string]interface{}](t, resp)["label"])
	})

	t.Run("unknown field is rejected", func(t *testing.T) {
		resp := ts.do(t, http.MethodPut, "/api/nodes/a", map[string]string{"colour": "red"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "invalid", decode[ErrorResponse](t, resp).Kind)
	})

	t.Run("duplicate id conflicts", func(t *testing.T) {
		resp := ts.do(t, http.MethodPost, "/api/nodes", map[string]string{"id": "a", "label": "Again"})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("malformed body", func(t *testing.T) {
		resp := ts.do(t, http.MethodPost, "/api/nodes", "{not json")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("delete", func(t *testing.T) {
		resp := ts.do(t, http.MethodDelete, "/api/nodes/a", nil)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)

		resp = ts.do(t, http.MethodGet, "/api/nodes/a", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "not_found", decode[ErrorResponse](t, resp).Kind)
	})
}

func TestLinkRoutes(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t)

	t.Run("self link is invalid", func(t *testing.T) {
		resp := ts.do(t, http.MethodPost, "/api/links", map[string]string{"parent_id": "a", "child_id": "a"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown endpoint", func(t *testing.T) {
		resp := ts.do(t, http.MethodPost, "/api/links", map[string]string{"parent_id": "a", "child_id": "zz"})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("create and delete", func(t *testing.T) {
		resp := ts.do(t, http.MethodPost, "/api/links", map[string]string{"parent_id": "b", "child_id": "a"})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		id := decode[map[string]string](t, resp)["id"]
		require.NotEmpty(t, id)

		resp = ts.do(t, http.MethodDelete, "/api/links/"+id, nil)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	})

	t.Run("relabel", func(t *testing.T) {
		resp := ts.do(t, http.MethodPut, "/api/links/L1", map[string]string{"label": "reports to"})
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	})
}

func TestGraphRoute(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t)

	resp := ts.do(t, http.MethodGet, "/api/graph", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	g := decode[GraphResponse](t, resp)
	assert.Equal(t, testAccount, g.Account)
	assert.Len(t, g.Nodes, 2)
	require.Len(t, g.Edges, 1)
	assert.Equal(t, "a", g.Edges[0].Source)
	assert.Equal(t, "b", g.Edges[0].Target)

	t.Run("other account is empty", func(t *testing.T) {
		resp := ts.do(t, http.MethodGet, "/api/graph?account=nobody", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Empty(t, decode[GraphResponse](t, resp).Nodes)
	})
}

func TestRecordRoutes(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPut, "/api/records/r1", map[string]string{"name": "Ada Lovelace", "title": "Analyst"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, http.MethodPut, "/api/records/r2", map[string]string{"title": "Nameless"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/records?q=ada", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	records := decode[[]map[string]interface{}](t, resp)
	require.Len(t, records, 1)
	assert.Equal(t, "r1", records[0]["id"])

	resp = ts.do(t, http.MethodGet, "/api/records?q=ada&limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPositionRoutes(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t)

	resp := ts.do(t, http.MethodPut, "/api/positions/a", map[string]float64{"x": 12, "y": 34})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/positions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	positions := decode[map[string]map[string]interface{}](t, resp)
	assert.Equal(t, 12.0, positions["a"]["x"])

	resp = ts.do(t, http.MethodPut, "/api/positions/ghost", map[string]float64{"x": 1, "y": 1})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestImportExport(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+"/api/import?strategy=replace",
		strings.NewReader(`{"nodes":[{"id":"x","label":"Ex"}]}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decode[service.ImportResult](t, resp)
	assert.Equal(t, 1, result.Nodes)
	assert.Equal(t, service.StrategyReplace, result.Strategy)

	t.Run("unknown fields are rejected", func(t *testing.T) {
		resp := ts.do(t, http.MethodPost, "/api/import?format=json", `{"hosts":[]}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("export toml", func(t *testing.T) {
		resp := ts.do(t, http.MethodGet, "/api/export?format=toml", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/toml", resp.Header.Get("Content-Type"))
		assert.Contains(t, resp.Header.Get("Content-Disposition"), "orgchart.toml")

		var buf bytes.Buffer
		_, err := buf.ReadFrom(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, buf.String(), "Ex")
	})

	t.Run("export unknown format", func(t *testing.T) {
		resp := ts.do(t, http.MethodGet, "/api/export?format=xml", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestSessionRoutes(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t)

	resp := ts.do(t, http.MethodPost, "/api/sessions", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	view := decode[session.View](t, resp)
	assert.Equal(t, session.StateReady, view.State)
	assert.Len(t, view.Canvas.Elements, 3)
	base := "/api/sessions/" + view.ID

	t.Run("list", func(t *testing.T) {
		resp := ts.do(t, http.MethodGet, "/api/sessions", nil)
		list := decode[[]SessionSummary](t, resp)
		require.Len(t, list, 1)
		assert.Equal(t, view.ID, list[0].ID)
	})

	t.Run("invalid pointer event", func(t *testing.T) {
		resp := ts.do(t, http.MethodPost, base+"/pointer", PointerRequest{Type: "hover", Key: "a"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("pointer on unknown node", func(t *testing.T) {
		resp := ts.do(t, http.MethodPost, base+"/pointer", PointerRequest{Type: PointerGrab, Key: "ghost"})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("tap edge and confirm", func(t *testing.T) {
		resp := ts.do(t, http.MethodPost, base+"/pointer", PointerRequest{Type: PointerTap, Key: "L1"})
		require.Equal(t, http.StatusAccepted, resp.StatusCode)

		var prompt dialog.Prompt
		require.Eventually(t, func() bool {
			s, err := ts.sessions.Get(view.ID)
			if err != nil {
				return false
			}
			prompts := s.View().Prompts
			if len(prompts) == 0 {
				return false
			}
			prompt = prompts[0]
			return true
		}, time.Second, 5*time.Millisecond)
		assert.Equal(t, dialog.PromptConfirm, prompt.Kind)

		resp = ts.do(t, http.MethodPost, base+"/prompts/"+prompt.ID, dialog.Response{Answer: "maybe"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		resp = ts.do(t, http.MethodPost, base+"/prompts/"+prompt.ID, dialog.Response{Answer: dialog.AnswerConfirm})
		require.Equal(t, http.StatusNoContent, resp.StatusCode)

		require.Eventually(t, func() bool {
			snap, err := ts.svc.Fetch(context.Background(), testAccount)
			return err == nil && len(snap.Links) == 0
		}, 2*time.Second, 5*time.Millisecond)
	})

	t.Run("selection", func(t *testing.T) {
		resp := ts.do(t, http.MethodPut, base+"/selection", SelectRequest{Text: "New Hire"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		sel := decode[dialog.Selection](t, resp)
		assert.Equal(t, "New Hire", sel.Name)
		assert.False(t, sel.IsRecord)

		resp = ts.do(t, http.MethodPut, base+"/selection", SelectRequest{})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		resp = ts.do(t, http.MethodPut, base+"/selection", SelectRequest{Text: "   "})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		resp = ts.do(t, http.MethodDelete, base+"/selection", nil)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	})

	t.Run("delete", func(t *testing.T) {
		resp := ts.do(t, http.MethodDelete, base, nil)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)

		resp = ts.do(t, http.MethodGet, base, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodGet, "/health", nil)

	resp := ts.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var buf bytes.Buffer
	_, err := buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "orgchart_test_http_requests_total")
}
