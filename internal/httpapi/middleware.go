package httpapi

import (
	"log/slog"
	"net/http"
	"time"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// route registers h under pattern and logs each request labelled with the
// pattern.
func route(mux *http.ServeMux, pattern string, logger *slog.Logger, h http.HandlerFunc) {
	mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(sr, r)

		logger.Debug("status request served",
			"route", pattern,
			"remote", r.RemoteAddr,
			"status", sr.status,
			"duration", time.Since(start),
		)
	}))
}
