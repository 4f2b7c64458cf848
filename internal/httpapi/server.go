// Package httpapi serves the agent's health and status over HTTP.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"vitals-agent/internal/acquisition"
)

// Sources is what the handlers read. All of it is safe for concurrent use.
type Sources struct {
	Snapshot func() acquisition.Snapshot
	Links    func() map[string]bool
	// Lines is the current display content; nil when nothing mirrors it.
	Lines func() []string
}

func NewMux(src Sources, logger *slog.Logger) *http.ServeMux {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	h := &handlers{src: src, logger: logger}
	route(mux, "GET /healthz", logger, h.handleHealthz)
	route(mux, "GET /status", logger, h.handleStatus)
	return mux
}

func NewServer(addr string, mux *http.ServeMux) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
