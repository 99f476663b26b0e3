package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func makeServer(t *testing.T) *Server {
	t.Helper()

	rs := miniredis.RunT(t)

	var c Config
	c.Store.Backend = "redis"
	c.Redis.Addrs = []string{rs.Addr()}
	c.Redis.Prefix = "test"
	c.Auth.Secret = "test-secret"
	c.Auth.TTL = time.Hour

	s, err := Init(c)
	require.NoError(t, err)
	t.Cleanup(s.Shutdown)
	return s
}

func (s *Server) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}

func TestCreateRoom_HTTP(t *testing.T) {
	s := makeServer(t)

	w := s.do(t, http.MethodPost, "/create-room", `{"clientId":"host-1"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var created createRoomResponse
	decodeBody(t, w, &created)
	require.NotEmpty(t, created.RoomID)
	require.NotEmpty(t, created.Token)

	clientID, err := s.service.auth.Verify(created.Token)
	require.NoError(t, err)
	require.Equal(t, "host-1", clientID)

	var isHost struct {
		IsHost bool `json:"isHost"`
	}

	w = s.do(t, http.MethodGet, "/api/is-host/"+created.RoomID+"/host-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	decodeBody(t, w, &isHost)
	require.True(t, isHost.IsHost)

	w = s.do(t, http.MethodGet, "/api/is-host/"+created.RoomID+"/someone-else", "")
	require.Equal(t, http.StatusOK, w.Code)
	decodeBody(t, w, &isHost)
	require.False(t, isHost.IsHost)
}

func TestCreateRoom_HTTPValidation(t *testing.T) {
	s := makeServer(t)

	var resp struct {
		Error string `json:"error"`
	}

	w := s.do(t, http.MethodPost, "/create-room", `{}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	decodeBody(t, w, &resp)
	require.Equal(t, "Client ID is required", resp.Error)

	w = s.do(t, http.MethodPost, "/create-room", `{broken`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIsHost_MissingRoom(t *testing.T) {
	s := makeServer(t)

	w := s.do(t, http.MethodGet, "/api/is-host/missing/someone", "")
	require.Equal(t, http.StatusOK, w.Code)

	var isHost struct {
		IsHost bool `json:"isHost"`
	}
	decodeBody(t, w, &isHost)
	require.False(t, isHost.IsHost)
}
