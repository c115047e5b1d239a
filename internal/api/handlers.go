package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/acquisition-cli/internal/discovery"
	"github.com/sells-group/acquisition-cli/internal/fetcher"
	"github.com/sells-group/acquisition-cli/internal/model"
	"github.com/sells-group/acquisition-cli/internal/proxypool"
	"github.com/sells-group/acquisition-cli/internal/reconcile"
	"github.com/sells-group/acquisition-cli/internal/tracker"
)

var errBadRequest = eris.New("bad request")

const maxBodyBytes = 4 << 20

type handlers struct {
	svc  Acquisition
	pool Pool
	db   Pinger
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			zap.L().Warn("api: health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type importRequest struct {
	Values   []string       `json:"values"`
	Platform model.Platform `json:"platform,omitempty"`
	Country  string         `json:"country,omitempty"`
	Source   string         `json:"source,omitempty"`
}

func (h *handlers) startRun(w http.ResponseWriter, r *http.Request) {
	var req model.RunConfig
	if !decode(w, r, &req) {
		return
	}
	// Listings named over HTTP must be remote; local paths are for the CLI.
	for _, src := range req.ExternalSources {
		if fetcher.IsLocal(src.URL) {
			writeError(w, eris.Wrapf(model.ErrInvalidConfig, "external source %q must be an http, https or ftp url", src.URL))
			return
		}
	}
	run, err := h.svc.StartDiscoveryRun(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, run)
}

func (h *handlers) startEnrichment(w http.ResponseWriter, r *http.Request) {
	var req discovery.EnrichmentRequest
	if !decode(w, r, &req) {
		return
	}
	run, err := h.svc.StartEnrichmentBatch(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, run)
}

func (h *handlers) listRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := tracker.RunFilter{
		Status: model.RunStatus(q.Get("status")),
		Kind:   model.RunKind(q.Get("kind")),
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit"), 50); err != nil {
		writeError(w, err)
		return
	}
	if filter.Offset, err = intParam(q.Get("offset"), 0); err != nil {
		writeError(w, err)
		return
	}
	runs, err := h.svc.ListRuns(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *handlers) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.svc.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *handlers) runStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.svc.GetRunStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *handlers) listAttempts(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query().Get("limit"), 100)
	if err != nil {
		writeError(w, err)
		return
	}
	attempts, err := h.svc.ListAttempts(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if attempts == nil {
		attempts = []model.Attempt{}
	}
	writeJSON(w, http.StatusOK, attempts)
}

func (h *handlers) cancelRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.CancelRun(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	status, err := h.svc.GetRunStatus(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *handlers) stats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	stats, err := h.svc.GetStats(r.Context(), model.StatsScope{
		Platform: model.Platform(q.Get("platform")),
		Country:  q.Get("country"),
		Source:   q.Get("source"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *handlers) importHandles(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Values) == 0 {
		writeError(w, eris.Wrap(errBadRequest, "values is required"))
		return
	}
	res, err := h.svc.ImportHandles(r.Context(), reconcile.ImportRequest{
		Values:   req.Values,
		Platform: req.Platform,
		Country:  req.Country,
		Source:   req.Source,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) findDuplicates(w http.ResponseWriter, r *http.Request) {
	var obs model.ObservedIdentity
	if !decode(w, r, &obs) {
		return
	}
	set, err := h.svc.FindDuplicates(r.Context(), obs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

type detectionRequest struct {
	Layer    model.Layer            `json:"layer"`
	RecordID int64                  `json:"record_id"`
	Identity model.ObservedIdentity `json:"identity"`
	Auto     bool                   `json:"auto"`
}

func (h *handlers) detectDuplicates(w http.ResponseWriter, r *http.Request) {
	var req detectionRequest
	if !decode(w, r, &req) {
		return
	}
	origin := reconcile.Origin{Layer: req.Layer, ID: req.RecordID}
	set, err := h.svc.DetectDuplicates(r.Context(), origin, req.Identity, req.Auto)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func (h *handlers) listEndpoints(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.pool.Snapshot())
}

func (h *handlers) resetEndpoint(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, eris.Wrap(errBadRequest, "endpoint id must be an integer"))
		return
	}
	ep, err := h.pool.Reset(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ep)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, eris.Wrapf(errBadRequest, "invalid request body: %v", err))
		return false
	}
	return true
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, eris.Wrapf(errBadRequest, "invalid integer %q", raw)
	}
	return n, nil
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, model.ErrInvalidConfig), errors.Is(err, discovery.ErrInvalidOrigin):
		return http.StatusBadRequest
	case errors.Is(err, tracker.ErrRunNotFound), errors.Is(err, proxypool.ErrEndpointNotFound):
		return http.StatusNotFound
	case errors.Is(err, tracker.ErrRunTerminal):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		zap.L().Error("api: request failed", zap.Error(err))
		msg = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}
