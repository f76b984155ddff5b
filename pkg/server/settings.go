package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/plugmeter/plugmeter/pkg/log"
	"github.com/plugmeter/plugmeter/pkg/rate"
	"github.com/plugmeter/plugmeter/pkg/storage"
)

func (s *Server) handleGetRate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	deviceID := r.URL.Query().Get("deviceId")
	if deviceID == "" {
		writeJSONError(w, "Device ID is required", http.StatusBadRequest)
		return
	}

	settings, err := s.rates.Settings(ctx, deviceID)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to get settings, using default rate", slog.String("deviceID", deviceID), slog.Any("error", err))
		settings.RatePerKWh = s.rates.Default()
	}

	writeJSON(w, http.StatusOK, struct {
		ElectricityRate float64 `json:"electricityRate"`
		Currency        string  `json:"currency,omitempty"`
	}{
		ElectricityRate: settings.RatePerKWh,
		Currency:        settings.Currency,
	})
}

func (s *Server) handleUpdateRate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	deviceID := r.URL.Query().Get("deviceId")
	if deviceID == "" {
		writeJSONError(w, "Device ID is required", http.StatusBadRequest)
		return
	}

	var req struct {
		Rate *float64 `json:"rate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Rate == nil {
		writeJSONError(w, "Invalid rate value", http.StatusBadRequest)
		return
	}

	if _, err := s.rates.Set(ctx, deviceID, *req.Rate); err != nil {
		switch {
		case errors.Is(err, rate.ErrInvalidRate):
			writeJSONError(w, "Invalid rate value", http.StatusBadRequest)
		case errors.Is(err, storage.ErrInvalidDevice):
			writeJSONError(w, "Device ID is required", http.StatusBadRequest)
		default:
			log.Ctx(ctx).ErrorContext(ctx, "failed to update rate", slog.String("deviceID", deviceID), slog.Any("error", err))
			writeJSONError(w, "Internal server error", storageStatus(err))
		}
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Message string `json:"message"`
	}{Message: "Rate updated successfully"})
}
