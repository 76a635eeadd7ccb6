package api

import (
	"encoding/json"
	"net/http"

	"inverter-drive/internal/simulator"
)

// Handler serves the live view.
type Handler struct {
	Status func() simulator.Status
	Hub    *Hub
}

// RegisterRoutes adds all API routes to the given ServeMux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /status", h.getStatus)
	if h.Hub != nil {
		mux.HandleFunc("GET /ws", h.Hub.HandleWebSocket)
	}
}

type statusResponse struct {
	simulator.Status
	WSClients int `json:"ws_clients"`
}

func (h *Handler) getStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Status: h.Status()}
	if h.Hub != nil {
		resp.WSClients = h.Hub.ClientCount()
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
