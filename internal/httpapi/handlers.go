package httpapi

import (
	"log/slog"
	"net/http"

	"vitals-agent/internal/acquisition"
)

type handlers struct {
	src    Sources
	logger *slog.Logger
}

type healthResponse struct {
	Status string `json:"status"`
	MQTT   string `json:"mqtt"`
}

type statusResponse struct {
	acquisition.Snapshot
	Links   map[string]bool `json:"links"`
	Display []string        `json:"display,omitempty"`
}

func (h *handlers) handleHealthz(w http.ResponseWriter, r *http.Request) {
	links := h.links()
	state := "disconnected"
	if len(links) > 0 {
		state = "connected"
	}
	for _, up := range links {
		if !up {
			state = "disconnected"
			break
		}
	}
	writeJSON(w, h.logger, http.StatusOK, healthResponse{Status: "ok", MQTT: state})
}

func (h *handlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Links: h.links()}
	if h.src.Snapshot != nil {
		resp.Snapshot = h.src.Snapshot()
	}
	if h.src.Lines != nil {
		resp.Display = h.src.Lines()
	}
	writeJSON(w, h.logger, http.StatusOK, resp)
}

func (h *handlers) links() map[string]bool {
	if h.src.Links == nil {
		return map[string]bool{}
	}
	return h.src.Links()
}
