package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/plugmeter/plugmeter/pkg/log"
	"github.com/plugmeter/plugmeter/pkg/storage"
	"github.com/plugmeter/plugmeter/pkg/types"
)

// readingTime accepts either RFC3339 strings or unix milliseconds.
type readingTime struct {
	time.Time
}

func (t *readingTime) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var ms int64
	if err := json.Unmarshal(b, &ms); err == nil {
		t.Time = time.UnixMilli(ms)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp must be a string or number: %w", err)
	}
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

type readingInput struct {
	DeviceID  string      `json:"deviceId"`
	Watts     float64     `json:"watts"`
	KWh       float64     `json:"kWh"`
	Cost      float64     `json:"cost"`
	Timestamp readingTime `json:"timestamp"`
}

func (in readingInput) reading() types.Reading {
	return types.Reading{
		DeviceID: in.DeviceID,
		Sample: types.Sample{
			Timestamp: in.Timestamp.Time,
			Watts:     in.Watts,
			KWh:       in.KWh,
			Cost:      in.Cost,
		},
	}
}

// storeRequest is either a single reading or a batch under "readings".
type storeRequest struct {
	readingInput
	Readings []readingInput `json:"readings"`
}

func nonNegative(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0)
}

func (s *Server) handleStoreReadings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req storeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var readings []types.Reading
	if req.Readings != nil {
		if len(req.Readings) > storage.MaxReadings {
			writeJSONError(w, fmt.Sprintf("at most %d readings per request", storage.MaxReadings), http.StatusBadRequest)
			return
		}
		for _, in := range req.Readings {
			readings = append(readings, in.reading())
		}
	} else {
		readings = []types.Reading{req.reading()}
	}
	for _, rd := range readings {
		if rd.DeviceID == "" {
			writeJSONError(w, storage.ErrInvalidDevice.Error(), http.StatusBadRequest)
			return
		}
		if !nonNegative(rd.Watts) || !nonNegative(rd.KWh) || !nonNegative(rd.Cost) {
			writeJSONError(w, "watts, kWh and cost must be non-negative", http.StatusBadRequest)
			return
		}
	}

	if len(readings) > 0 {
		if err := s.storage.AppendReadings(ctx, readings); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to store readings", slog.Int("count", len(readings)), slog.Any("error", err))
			writeJSONError(w, "failed to store readings", storageStatus(err))
			return
		}
	}

	writeJSON(w, http.StatusOK, struct {
		Message string `json:"message"`
		Count   int    `json:"count"`
	}{
		Message: "Reading stored successfully",
		Count:   len(readings),
	})
}
