// Package adminhttp exposes an operational HTTP surface alongside the raw
// TCP key-value protocol: a liveness probe and a small stats endpoint.
// Adapted from the teacher's internal/server/http.go (which served
// produce/consume over JSON) - that role is now filled by internal/wire's
// binary protocol, so this package keeps gorilla/mux for operational
// endpoints instead of the key-value traffic itself.
package adminhttp

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

// Stats is a point-in-time snapshot of store size, reported by whichever
// engine backs the server.
type Stats struct {
	Engine       string `json:"engine"`
	SizeBytes    uint64 `json:"size_bytes"`
	SegmentCount int    `json:"segment_count"`
}

// StatsFunc produces a fresh Stats snapshot on demand.
type StatsFunc func() Stats

type handler struct {
	stats StatsFunc
}

// New returns an *http.Server exposing GET /healthz and GET /stats on addr.
func New(addr string, stats StatsFunc) *http.Server {
	h := &handler{stats: stats}
	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/stats", h.handleStats).Methods(http.MethodGet)
	return &http.Server{
		Addr:    addr,
		Handler: r,
	}
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *handler) handleStats(w http.ResponseWriter, r *http.Request) {
	if err := json.NewEncoder(w).Encode(h.stats()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
