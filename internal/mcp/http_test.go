package mcp

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func newHTTPFixture(cors string) *HTTPServer {
	reg := NewRegistry()
	reg.Register(&echoTool{name: "echo"})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(reg, ServerInfo{Name: "taskorchestrator", Version: "test"}, logger)
	return NewHTTPServer(srv, cors, logger)
}

func doRequest(h http.Handler, method, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHTTP_InitializeCreatesSession(t *testing.T) {
	h := newHTTPFixture("")
	handler := h.Handler()

	rec := doRequest(handler, http.MethodPost,
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05"}}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	sessionID := rec.Header().Get("Mcp-Session-Id")
	assert.NotEmpty(t, sessionID)

	body := rec.Body.Bytes()
	assert.Equal(t, ProtocolVersion, gjson.GetBytes(body, "result.protocolVersion").String())
	assert.Equal(t, "taskorchestrator", gjson.GetBytes(body, "result.serverInfo.name").String())

	// the issued session terminates cleanly exactly once
	rec = doRequest(handler, http.MethodDelete, "", map[string]string{"Mcp-Session-Id": sessionID})
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = doRequest(handler, http.MethodDelete, "", map[string]string{"Mcp-Session-Id": sessionID})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHTTP_PostSingleRequest(t *testing.T) {
	h := newHTTPFixture("")

	rec := doRequest(h.Handler(), http.MethodPost, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.Bytes()
	tools := gjson.GetBytes(body, "result.tools")
	require.True(t, tools.IsArray())
	assert.Equal(t, "echo", tools.Array()[0].Get("name").String())
}

func TestHTTP_SessionHeaderMustBeLive(t *testing.T) {
	h := newHTTPFixture("")
	handler := h.Handler()

	rec := doRequest(handler, http.MethodPost, `{"jsonrpc":"2.0","id":3,"method":"tools/list"}`,
		map[string]string{"Mcp-Session-Id": "stale"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "session not found")

	// omitting the header entirely is fine
	rec = doRequest(handler, http.MethodPost, `{"jsonrpc":"2.0","id":4,"method":"tools/list"}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHTTP_NotificationAccepted(t *testing.T) {
	h := newHTTPFixture("")

	rec := doRequest(h.Handler(), http.MethodPost, `{"jsonrpc":"2.0","method":"notifications/initialized"}`, nil)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestHTTP_Batch(t *testing.T) {
	h := newHTTPFixture("")

	rec := doRequest(h.Handler(), http.MethodPost,
		`[{"jsonrpc":"2.0","id":1,"method":"ping"},{"jsonrpc":"2.0","id":2,"method":"tools/list"}]`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.Bytes()
	require.EqualValues(t, 2, gjson.GetBytes(body, "#").Int())
	assert.True(t, gjson.GetBytes(body, "1.result.tools").IsArray())
}

func TestHTTP_BatchCapped(t *testing.T) {
	h := newHTTPFixture("")

	msgs := make([]string, maxBatchMessages+1)
	for i := range msgs {
		msgs[i] = fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"method":"ping"}`, i+1)
	}
	rec := doRequest(h.Handler(), http.MethodPost, "["+strings.Join(msgs, ",")+"]", nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := rec.Body.Bytes()
	assert.EqualValues(t, ErrCodeInvalidRequest, gjson.GetBytes(body, "error.code").Int())
	assert.Contains(t, gjson.GetBytes(body, "error.message").String(), "100")
}

func TestHTTP_BatchOfNotifications(t *testing.T) {
	h := newHTTPFixture("")

	rec := doRequest(h.Handler(), http.MethodPost,
		`[{"jsonrpc":"2.0","method":"notifications/initialized"}]`, nil)

	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestHTTP_MalformedBodies(t *testing.T) {
	h := newHTTPFixture("")
	handler := h.Handler()

	rec := doRequest(handler, http.MethodPost, "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(handler, http.MethodPost, `{bad`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.EqualValues(t, ErrCodeParse, gjson.GetBytes(rec.Body.Bytes(), "error.code").Int())

	rec = doRequest(handler, http.MethodPost, `[{]`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.EqualValues(t, ErrCodeParse, gjson.GetBytes(rec.Body.Bytes(), "error.code").Int())

	rec = doRequest(handler, http.MethodPost, `[]`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.EqualValues(t, ErrCodeInvalidRequest, gjson.GetBytes(rec.Body.Bytes(), "error.code").Int())
}

func TestHTTP_GetRequiresEventStreamAccept(t *testing.T) {
	h := newHTTPFixture("")
	handler := h.Handler()

	rec := doRequest(handler, http.MethodGet, "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(handler, http.MethodGet, "", map[string]string{"Accept": "text/event-stream"})
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Contains(t, rec.Body.String(), "SSE stream not supported")
}

func TestHTTP_DeleteRequiresHeader(t *testing.T) {
	h := newHTTPFixture("")

	rec := doRequest(h.Handler(), http.MethodDelete, "", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Mcp-Session-Id header required")
}

func TestHTTP_MethodHandling(t *testing.T) {
	h := newHTTPFixture("")
	handler := h.Handler()

	rec := doRequest(handler, http.MethodOptions, "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(handler, http.MethodPut, "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "GET, POST, DELETE, OPTIONS", rec.Header().Get("Allow"))
}

func TestHTTP_Health(t *testing.T) {
	h := newHTTPFixture("")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", gjson.GetBytes(rec.Body.Bytes(), "status").String())
}

func TestHTTP_CORS(t *testing.T) {
	wildcard := newHTTPFixture("*")
	rec := doRequest(wildcard.Handler(), http.MethodOptions, "", map[string]string{"Origin": "http://a.example"})
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Mcp-Session-Id", rec.Header().Get("Access-Control-Expose-Headers"))

	allowlist := newHTTPFixture("http://a.example, http://b.example")
	rec = doRequest(allowlist.Handler(), http.MethodOptions, "", map[string]string{"Origin": "http://b.example"})
	assert.Equal(t, "http://b.example", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = doRequest(allowlist.Handler(), http.MethodOptions, "", map[string]string{"Origin": "http://evil.example"})
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	disabled := newHTTPFixture("")
	rec = doRequest(disabled.Handler(), http.MethodOptions, "", map[string]string{"Origin": "http://a.example"})
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Methods"))
}
