package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/plugmeter/plugmeter/pkg/log"
	"github.com/plugmeter/plugmeter/pkg/plug"
	"github.com/plugmeter/plugmeter/pkg/session"
	"github.com/plugmeter/plugmeter/pkg/types"
)

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.plugs.Devices())
}

type plugDevice struct {
	types.Device
	Online        bool    `json:"online"`
	IsOn          bool    `json:"isOn"`
	RawPowerValue float64 `json:"rawPowerValue"`
	PowerCode     string  `json:"powerPropertyCode,omitempty"`
	SwitchCode    string  `json:"switchPropertyCode,omitempty"`
}

type plugResponse struct {
	Watts     float64              `json:"watts"`
	Device    plugDevice           `json:"device"`
	Timestamp int64                `json:"timestamp"`
	Energy    types.CostProjection `json:"energy"`
}

func (s *Server) handleGetPlug(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	device, err := s.plugs.Device(r.URL.Query().Get("deviceId"))
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusNotFound)
		return
	}
	ctx = log.WithDevice(ctx, device.ID)

	readCtx, cancel := context.WithTimeout(ctx, session.ReadTimeout)
	defer cancel()
	reading, err := s.plugs.ReadPower(readCtx, device.ID)
	s.metrics.Poll(device.ID, err)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to read plug", slog.Any("error", err))
		code := http.StatusBadGateway
		if errors.Is(err, context.DeadlineExceeded) {
			code = http.StatusGatewayTimeout
		}
		writeJSONError(w, "failed to read device", code)
		return
	}

	rate, err := s.rates.Get(ctx, device.ID)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, plugResponse{
		Watts: reading.Watts,
		Device: plugDevice{
			Device:        device,
			Online:        true,
			IsOn:          reading.IsOn,
			RawPowerValue: reading.RawPowerValue,
			PowerCode:     reading.PowerCode,
			SwitchCode:    reading.SwitchCode,
		},
		Timestamp: reading.Timestamp.UnixMilli(),
		Energy:    types.ProjectCost(reading.Watts, rate),
	})
}

type toggleRequest struct {
	DeviceID string `json:"deviceId"`
	Action   string `json:"action"`
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Action != "toggle" {
		writeJSONError(w, "Invalid action", http.StatusBadRequest)
		return
	}
	if req.DeviceID == "" {
		req.DeviceID = r.URL.Query().Get("deviceId")
	}
	device, err := s.plugs.Device(req.DeviceID)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusNotFound)
		return
	}

	toggleCtx, cancel := context.WithTimeout(ctx, 8*time.Second)
	defer cancel()
	on, err := s.sessions.Toggle(toggleCtx, device.ID)
	switch {
	case errors.Is(err, plug.ErrNoSwitch), errors.Is(err, plug.ErrNotFound):
		writeJSONError(w, err.Error(), http.StatusNotFound)
		return
	case err != nil:
		log.Ctx(ctx).ErrorContext(ctx, "failed to toggle device", slog.String("deviceID", device.ID), slog.Any("error", err))
		writeJSONError(w, "Failed to toggle device", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success  bool   `json:"success"`
		State    bool   `json:"state"`
		DeviceID string `json:"deviceId"`
	}{
		Success:  true,
		State:    on,
		DeviceID: device.ID,
	})
}
