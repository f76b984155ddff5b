package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/plugmeter/plugmeter/pkg/log"
	"github.com/plugmeter/plugmeter/pkg/session"
	"github.com/plugmeter/plugmeter/pkg/storage"
	"github.com/plugmeter/plugmeter/pkg/types"
)

// maxRange bounds every history query.
const maxRange = 31 * 24 * time.Hour

func (s *Server) handleGetReadings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	deviceID := r.URL.Query().Get("deviceId")
	if deviceID == "" {
		writeJSONError(w, "deviceId is required", http.StatusBadRequest)
		return
	}
	start, end, err := s.parseTimeRange(r, 24*time.Hour)
	if err != nil {
		writeJSONError(w, "invalid time range: "+err.Error(), http.StatusBadRequest)
		return
	}

	readCtx, cancel := context.WithTimeout(ctx, session.ReadTimeout)
	defer cancel()
	readings, err := s.storage.GetReadings(readCtx, deviceID, start, end, storage.MaxReadings)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get readings", slog.String("deviceID", deviceID), slog.Any("error", err))
		writeJSONError(w, "failed to get readings", storageStatus(err))
		return
	}
	if readings == nil {
		readings = []types.Reading{}
	}

	s.setCacheControl(w, end)
	writeJSON(w, http.StatusOK, readings)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	deviceID := q.Get("deviceId")
	if deviceID == "" {
		writeJSONError(w, "deviceId is required", http.StatusBadRequest)
		return
	}
	if q.Get("type") == "" {
		s.handleGetReadings(w, r)
		return
	}
	kind, err := storage.ParseAggregateKind(q.Get("type"))
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var start, end time.Time
	switch kind {
	case storage.AggregateHourly:
		start, end, err = s.parseDay(r)
	case storage.AggregateDaily:
		start, end, err = s.parseTimeRange(r, 7*24*time.Hour)
	default:
		start, end, err = s.parseTimeRange(r, 24*time.Hour)
	}
	if err != nil {
		writeJSONError(w, "invalid time range: "+err.Error(), http.StatusBadRequest)
		return
	}

	readCtx, cancel := context.WithTimeout(ctx, session.ReadTimeout)
	defer cancel()
	history, err := storage.Aggregate(readCtx, s.storage, deviceID, kind, start, end, s.sessions.Location())
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to aggregate readings", slog.String("deviceID", deviceID), slog.String("type", string(kind)), slog.Any("error", err))
		writeJSONError(w, "failed to get history", storageStatus(err))
		return
	}

	s.setCacheControl(w, end)
	switch kind {
	case storage.AggregateHourly:
		if history.Hourly == nil {
			history.Hourly = []types.HourlyStat{}
		}
		writeJSON(w, http.StatusOK, history.Hourly)
	case storage.AggregateDaily:
		if history.Daily == nil {
			history.Daily = []types.DailyStat{}
		}
		writeJSON(w, http.StatusOK, history.Daily)
	default:
		writeJSON(w, http.StatusOK, history.Stats)
	}
}

// setCacheControl caches ranges that ended before today for a day and
// anything else for a minute.
func (s *Server) setCacheControl(w http.ResponseWriter, end time.Time) {
	now := s.now().In(s.sessions.Location())
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if end.Before(today) {
		w.Header().Set("Cache-Control", "private, max-age=86400")
	} else {
		w.Header().Set("Cache-Control", "private, max-age=60")
	}
}

func queryTime(r *http.Request, names ...string) (time.Time, bool, error) {
	for _, n := range names {
		v := r.URL.Query().Get(n)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, true, fmt.Errorf("invalid %s time: %w", n, err)
		}
		return t, true, nil
	}
	return time.Time{}, false, nil
}

// parseTimeRange reads start and end, defaulting to the span ending now.
func (s *Server) parseTimeRange(r *http.Request, defaultSpan time.Duration) (time.Time, time.Time, error) {
	end, ok, err := queryTime(r, "end", "endTime")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !ok {
		end = s.now()
	}
	start, ok, err := queryTime(r, "start", "startTime")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !ok {
		start = end.Add(-defaultSpan)
	}

	if end.Before(start) {
		return time.Time{}, time.Time{}, errors.New("start time must be before end time")
	}
	if end.Sub(start) > maxRange {
		return time.Time{}, time.Time{}, errors.New("time range cannot exceed 31 days")
	}
	return start, end, nil
}

// parseDay returns the local calendar day containing start, today by default.
func (s *Server) parseDay(r *http.Request) (time.Time, time.Time, error) {
	t, ok, err := queryTime(r, "start", "startTime")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !ok {
		t = s.now()
	}
	t = t.In(s.sessions.Location())
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1), nil
}
