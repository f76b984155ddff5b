package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/plugmeter/plugmeter/pkg/log"
	"github.com/plugmeter/plugmeter/pkg/plug"
	"github.com/plugmeter/plugmeter/pkg/session"
)

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := s.sessions.Dashboard()
	if errors.Is(err, session.ErrNoDevice) {
		writeJSONError(w, err.Error(), http.StatusNotFound)
		return
	} else if err != nil {
		writeJSONError(w, "failed to get dashboard", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleSwitchDevice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req struct {
		DeviceID string `json:"deviceId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	device, err := s.sessions.Switch(ctx, req.DeviceID)
	switch {
	case errors.Is(err, plug.ErrNotFound):
		writeJSONError(w, err.Error(), http.StatusNotFound)
		return
	case errors.Is(err, session.ErrStale):
		log.Ctx(ctx).InfoContext(ctx, "device switch superseded", slog.String("deviceID", device.ID))
		writeJSONError(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		log.Ctx(ctx).ErrorContext(ctx, "failed to switch device", slog.Any("error", err))
		writeJSONError(w, "failed to switch device", http.StatusInternalServerError)
		return
	}

	d, err := s.sessions.Dashboard()
	if err != nil {
		writeJSONError(w, "failed to get dashboard", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
