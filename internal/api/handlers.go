package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"CyberGuard/internal/engine/ledger"
	"CyberGuard/internal/engine/pipeline"
	"CyberGuard/internal/enrichment"
	"CyberGuard/internal/model"
	"CyberGuard/internal/query"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
)

const (
	defaultPacketLimit = 100
	maxSimulateCount   = 1000
)

type errorResponse struct {
	Error string `json:"error"`
}

type analysisResponse struct {
	ID       string `json:"id"`
	Analysis string `json:"aiAnalysis"`
}

type captureResponse struct {
	Capturing bool `json:"capturing"`
}

type simulateResponse struct {
	Attack   string        `json:"attack"`
	Injected int           `json:"injected"`
	Admitted []model.Alert `json:"admitted"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to marshal response: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	alerts := s.engine.Alerts()
	if alerts == nil {
		alerts = []model.Alert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) getAlert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	alert, ok := s.engine.Alert(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("alert %q not found", id))
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

// analyzeAlert returns the cached analysis or requests one. ?refresh=true
// forces a new request.
func (s *Server) analyzeAlert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if s.enricher == nil {
		writeError(w, http.StatusServiceUnavailable, enrichment.ErrDisabled.Error())
		return
	}
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))

	text, err := s.enricher.Enrich(r.Context(), id, refresh)
	switch {
	case errors.Is(err, ledger.ErrAlertNotFound):
		writeError(w, http.StatusNotFound, fmt.Sprintf("alert %q not found", id))
		return
	case errors.Is(err, enrichment.ErrDisabled):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, analysisResponse{ID: id, Analysis: text})
}

func (s *Server) listPackets(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", defaultPacketLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Packets(limit))
}

func (s *Server) getSeries(w http.ResponseWriter, r *http.Request) {
	series := s.engine.Series()
	if series == nil {
		series = []model.TrafficBucket{}
	}
	writeJSON(w, http.StatusOK, series)
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Stats())
}

func (s *Server) pauseCapture(w http.ResponseWriter, r *http.Request) {
	s.engine.Pause()
	s.log.Info().Msg("Capture paused via API")
	writeJSON(w, http.StatusOK, captureResponse{Capturing: !s.engine.Paused()})
}

func (s *Server) resumeCapture(w http.ResponseWriter, r *http.Request) {
	s.engine.Resume()
	s.log.Info().Msg("Capture resumed via API")
	writeJSON(w, http.StatusOK, captureResponse{Capturing: !s.engine.Paused()})
}

// simulate injects a forced attack burst. ?count=N overrides the burst size.
func (s *Server) simulate(w http.ResponseWriter, r *http.Request) {
	attack, err := model.ParseAttackType(mux.Vars(r)["attack"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	count, err := intParam(r, "count", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if count > maxSimulateCount {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("count must be at most %d", maxSimulateCount))
		return
	}

	res, err := s.engine.InjectAttack(attack, count)
	switch {
	case errors.Is(err, pipeline.ErrNoInjector):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, pipeline.ErrNothingToInject):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	admitted := res.Admitted
	if admitted == nil {
		admitted = []model.Alert{}
	}
	writeJSON(w, http.StatusOK, simulateResponse{
		Attack:   attack.String(),
		Injected: len(res.Batch),
		Admitted: admitted,
	})
}

func (s *Server) historyAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f query.AlertFilter
	var err error

	if v := q.Get("type"); v != "" {
		if f.Attack, err = model.ParseAttackType(v); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		f.HasAttack = true
	}
	if v := q.Get("severity"); v != "" {
		if f.MinSeverity, err = model.ParseSeverity(v); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	f.SrcAddr = q.Get("src")
	if f.Since, f.Until, err = timeRange(r); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if f.Limit, err = intParam(r, "limit", query.DefaultLimit); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	alerts, err := s.history.QueryAlerts(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to query alerts: %v", err))
		return
	}
	if alerts == nil {
		alerts = []model.Alert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) historyCounts(w http.ResponseWriter, r *http.Request) {
	since, until, err := timeRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	counts, err := s.history.CountByAttack(r.Context(), since, until)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to aggregate alerts: %v", err))
		return
	}
	if counts == nil {
		counts = []query.AttackCount{}
	}
	writeJSON(w, http.StatusOK, counts)
}

func (s *Server) historyTraffic(w http.ResponseWriter, r *http.Request) {
	since, until, err := timeRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	buckets, err := s.history.TrafficSeries(r.Context(), since, until)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to query traffic: %v", err))
		return
	}
	if buckets == nil {
		buckets = []model.TrafficBucket{}
	}
	writeJSON(w, http.StatusOK, buckets)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"capturing": !s.engine.Paused(),
	})
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q", name, v)
	}
	return n, nil
}

// timeRange reads RFC 3339 "since" and "until" query parameters.
func timeRange(r *http.Request) (since, until time.Time, err error) {
	q := r.URL.Query()
	if v := q.Get("since"); v != "" {
		if since, err = time.Parse(time.RFC3339, v); err != nil {
			return since, until, fmt.Errorf("invalid since: %w", err)
		}
	}
	if v := q.Get("until"); v != "" {
		if until, err = time.Parse(time.RFC3339, v); err != nil {
			return since, until, fmt.Errorf("invalid until: %w", err)
		}
	}
	if !since.IsZero() && !until.IsZero() && until.Before(since) {
		return since, until, errors.New("until is before since")
	}
	return since, until, nil
}
