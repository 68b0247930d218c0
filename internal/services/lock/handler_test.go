package lock

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tableside/internal/httpserver"
	"tableside/internal/logger"
)

func newLockServer(t *testing.T) *httptest.Server {
	t.Helper()
	svc, _, _ := newTestService(t)
	mux := http.NewServeMux()
	NewHandler(svc, logger.Discard()).Register(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func lockRequest(t *testing.T, server *httptest.Server, method, path, user, session string) (*http.Response, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(method, server.URL+path, nil)
	require.NoError(t, err)
	if user != "" {
		req.Header.Set(httpserver.HeaderUserID, user)
	}
	if session != "" {
		req.Header.Set(httpserver.HeaderSessionID, session)
	}
	resp, err := server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body := map[string]interface{}{}
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	}
	return resp, body
}

func TestHandler_LockLifecycle(t *testing.T) {
	server := newLockServer(t)
	const path = "/locks/menu/dinner"

	resp, body := lockRequest(t, server, http.MethodPost, path, "emp-1", "tab-1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "acquired", body["result"])

	resp, body = lockRequest(t, server, http.MethodPost, path, "emp-1", "tab-1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "already_held", body["result"])

	resp, body = lockRequest(t, server, http.MethodPost, path, "emp-2", "tab-2")
	require.Equal(t, http.StatusLocked, resp.StatusCode)
	assert.Equal(t, "held_by_other", body["result"])
	assert.Equal(t, "emp-1", body["lock"].(map[string]interface{})["owner_id"])

	resp, body = lockRequest(t, server, http.MethodGet, path, "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "tab-1", body["session_id"])

	resp, _ = lockRequest(t, server, http.MethodDelete, path, "emp-1", "tab-1")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = lockRequest(t, server, http.MethodGet, path, "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandler_MissingIdentity(t *testing.T) {
	server := newLockServer(t)

	resp, _ := lockRequest(t, server, http.MethodPost, "/locks/menu/dinner", "", "tab-1")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = lockRequest(t, server, http.MethodDelete, "/locks/menu/dinner", "emp-1", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

