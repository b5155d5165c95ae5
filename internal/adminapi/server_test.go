package adminapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vavrusa/usbproxy/internal/session"
)

type fakeSource struct {
	sessions []session.Info
	snapshot session.Snapshot
}

func (f *fakeSource) Sessions() []session.Info       { return f.sessions }
func (f *fakeSource) MetricsSnapshot() session.Snapshot { return f.snapshot }

func TestHealthzReportsOK(t *testing.T) {
	router := NewRouter(&fakeSource{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ok", body["status"])
}

func TestSessionsListsOpenHandles(t *testing.T) {
	src := &fakeSource{sessions: []session.Info{
		{ID: "11111111-1111-1111-1111-111111111111", RemoteAddr: "10.0.0.5:55123", OpenedAt: time.Unix(0, 0).UTC(), OpenHandles: 3},
	}}
	router := NewRouter(src)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Sessions []sessionView `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Sessions, 1)
	require.Equal(t, "11111111-1111-1111-1111-111111111111", body.Sessions[0].ID)
	require.Equal(t, "10.0.0.5:55123", body.Sessions[0].RemoteAddr)
	require.Equal(t, 3, body.Sessions[0].OpenHandles)
}

func TestMetricsReturnsSnapshot(t *testing.T) {
	src := &fakeSource{snapshot: session.Snapshot{
		FramesReceived: 10,
		FramesReplied:  9,
		SessionsTotal:  2,
		SessionsActive: 1,
		DispatchErrors: 1,
	}}
	router := NewRouter(src)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var snap session.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.Equal(t, src.snapshot, snap)
}
