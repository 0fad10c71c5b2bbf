package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

const testSecret = "test-admin-key"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	server, err := NewServer(testSecret, nil)
	require.NoError(t, err)
	require.NoError(t, server.Register("echo", func(ctx context.Context, kwargs map[string]any) (string, error) {
		name, _ := kwargs["name"].(string)
		return fmt.Sprintf("hello %s", name), nil
	}))
	require.NoError(t, server.Register("fail", func(ctx context.Context, kwargs map[string]any) (string, error) {
		return "", errors.New("command blew up")
	}))
	return server
}

func postCommand(t *testing.T, server *Server, name, secret string, kwargs map[string]any) (*httptest.ResponseRecorder, commandResponse) {
	t.Helper()
	body, err := json.Marshal(map[string]any{"kwargs": kwargs})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/commands/"+name, bytes.NewReader(body))
	if secret != "" {
		req.Header.Set(AuthHeader, secret)
	}
	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, req)

	var resp commandResponse
	if recorder.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	}
	return recorder, resp
}

func TestNewServerRequiresSecret(t *testing.T) {
	_, err := NewServer("", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "secret is required")
}

func TestCommandExecution(t *testing.T) {
	server := newTestServer(t)
	recorder, resp := postCommand(t, server, "echo", testSecret, map[string]any{"name": "operator"})
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, "hello operator", resp.Result)
	require.Empty(t, resp.Error)
}

func TestCommandErrorIsStructured(t *testing.T) {
	server := newTestServer(t)
	recorder, resp := postCommand(t, server, "fail", testSecret, nil)

	// Handler failures are reported in the body, not as an HTTP error.
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Empty(t, resp.Result)
	require.Equal(t, "command blew up", resp.Error)
}

func TestUnknownCommand(t *testing.T) {
	server := newTestServer(t)
	recorder, resp := postCommand(t, server, "nope", testSecret, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, "unknown command: nope", resp.Error)
}

func TestMissingSecretIsForbidden(t *testing.T) {
	server := newTestServer(t)
	recorder, _ := postCommand(t, server, "echo", "", nil)
	require.Equal(t, http.StatusForbidden, recorder.Code)
}

func TestWrongSecretIsForbidden(t *testing.T) {
	server := newTestServer(t)
	recorder, _ := postCommand(t, server, "echo", "wrong-key", nil)
	require.Equal(t, http.StatusForbidden, recorder.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	server := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/commands/echo", nil)
	req.Header.Set(AuthHeader, testSecret)
	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, req)
	require.Equal(t, http.StatusMethodNotAllowed, recorder.Code)
}

func TestEmptyBodyIsAllowed(t *testing.T) {
	server := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/commands/echo", nil)
	req.Header.Set(AuthHeader, testSecret)
	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, req)
	require.Equal(t, http.StatusOK, recorder.Code)
}

func TestRegisterValidation(t *testing.T) {
	server := newTestServer(t)
	require.Error(t, server.Register("", nil))
	require.Error(t, server.Register("echo", func(ctx context.Context, kwargs map[string]any) (string, error) {
		return "", nil
	}))
}
