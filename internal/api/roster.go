package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/toolhive-roster/internal/logger"
	"github.com/stacklok/toolhive-roster/internal/projection"
	"github.com/stacklok/toolhive-roster/internal/reconcile"
)

const maxBodyBytes = 1 << 20

// ConnectRequest is the optional body of a connect call
type ConnectRequest struct {
	DisplayName string `json:"displayName,omitempty"`
	FamilyID    string `json:"familyId,omitempty"`
}

// LiveRosterRequest is the body of a live roster update
type LiveRosterRequest struct {
	IDs []string `json:"ids"`
}

// OutcomeResponse reports the effect of a mutation
type OutcomeResponse struct {
	Changed   bool `json:"changed"`
	Persisted bool `json:"persisted"`
}

// ActiveCountResponse is returned by GET /v1/active/count
type ActiveCountResponse struct {
	Active int `json:"active"`
}

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error string `json:"error"`
}

type rosterRoutes struct {
	engine *reconcile.Engine
	view   *projection.View
}

// RosterRouter serves the client lifecycle and projection endpoints
func RosterRouter(engine *reconcile.Engine, view *projection.View) http.Handler {
	rr := &rosterRoutes{engine: engine, view: view}

	r := chi.NewRouter()
	r.Post("/clients/{id}/connect", rr.connect)
	r.Post("/clients/{id}/disconnect", rr.disconnect)
	r.Put("/live", rr.reconcileLive)
	r.Get("/rows", rr.rows)
	r.Get("/active/count", rr.activeCount)
	return r
}

func (rr *rosterRoutes) connect(w http.ResponseWriter, r *http.Request) {
	id, ok := clientID(w, r)
	if !ok {
		return
	}
	var req ConnectRequest
	if err := decodeBody(r, &req, true); err != nil {
		writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	out := rr.engine.Connect(r.Context(), id,
		reconcile.WithDisplayName(req.DisplayName),
		reconcile.WithFamilyID(req.FamilyID),
	)
	writeOutcome(w, out)
}

func (rr *rosterRoutes) disconnect(w http.ResponseWriter, r *http.Request) {
	id, ok := clientID(w, r)
	if !ok {
		return
	}
	writeOutcome(w, rr.engine.Disconnect(r.Context(), id))
}

func (rr *rosterRoutes) reconcileLive(w http.ResponseWriter, r *http.Request) {
	var req LiveRosterRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeOutcome(w, rr.engine.ReconcileLiveRoster(r.Context(), req.IDs))
}

// currentRows projects the persisted roster. Other processes may write the
// file, so every read goes back to storage.
func (rr *rosterRoutes) currentRows(r *http.Request) []projection.Row {
	return rr.view.Refresh(r.Context(), rr.engine.Snapshot(r.Context()))
}

func (rr *rosterRoutes) rows(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, rr.currentRows(r), http.StatusOK)
}

func (rr *rosterRoutes) activeCount(w http.ResponseWriter, r *http.Request) {
	active := projection.ActiveCount(rr.currentRows(r))
	writeJSONResponse(w, ActiveCountResponse{Active: active}, http.StatusOK)
}

// clientID returns the decoded id path segment. chi matches on RawPath when
// the request carried encoded slashes and on the already decoded Path
// otherwise, so only the former needs unescaping.
func clientID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if r.URL.RawPath == "" {
		return id, true
	}
	id, err := url.PathUnescape(id)
	if err != nil {
		writeErrorResponse(w, "invalid URL encoding in id", http.StatusBadRequest)
		return "", false
	}
	return id, true
}

// decodeBody reads a JSON body into dst. An empty body is accepted only when
// optional is set.
func decodeBody(r *http.Request, dst any, optional bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) && optional {
			return nil
		}
		return errors.New("invalid request body: " + err.Error())
	}
	return nil
}

func writeOutcome(w http.ResponseWriter, out reconcile.Outcome) {
	if out.Rejected {
		writeErrorResponse(w, "client id is empty", http.StatusBadRequest)
		return
	}
	writeJSONResponse(w, OutcomeResponse{Changed: out.Changed, Persisted: out.Persisted}, http.StatusOK)
}

func writeJSONResponse(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("Failed to encode JSON response: %v", err)
	}
}

func writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	writeJSONResponse(w, ErrorResponse{Error: message}, statusCode)
}
