package adminhttp

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandleHealth(t *testing.T) {
	srv := New("", func() Stats { return Stats{} })
	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, req)

	require.Equal(t, 200, w.Code)
	require.Equal(t, "ok", w.Body.String())
}

func TestHandleStats(t *testing.T) {
	want := Stats{Engine: "kvs", SizeBytes: 1024, SegmentCount: 3}
	srv := New("", func() Stats { return want })
	req := httptest.NewRequest("GET", "/stats", nil)
	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, req)

	require.Equal(t, 200, w.Code)
	var got Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Equal(t, want, got)
}
