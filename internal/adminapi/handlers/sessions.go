package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"github.com/marmos91/smbconn/internal/logger"
	"github.com/marmos91/smbconn/pkg/conn"
	"github.com/marmos91/smbconn/pkg/smbconn"
)

// SessionHandler exposes the connection manager's listing and forget
// operations.
type SessionHandler struct {
	mgr *smbconn.Manager
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(mgr *smbconn.Manager) *SessionHandler {
	return &SessionHandler{mgr: mgr}
}

// List handles GET /api/v1/sessions. Shares follow their session.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.mgr.Snapshot(r.Context())
	if err != nil {
		ConnProblem(w, err)
		return
	}
	WriteJSONOK(w, records)
}

// Get handles GET /api/v1/sessions/{id}: the session and its shares.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	records, err := h.mgr.Snapshot(r.Context())
	if err != nil {
		ConnProblem(w, err)
		return
	}
	// Shares are numbered from the same sequence, so an id only names a
	// session when its record is at session level.
	isSession := func(rec smbconn.Record) bool {
		return rec.Level == conn.LevelSession.String() && rec.ID == id
	}
	if !lo.ContainsBy(records, isSession) {
		NotFound(w, "session "+strconv.FormatUint(id, 10))
		return
	}
	WriteJSONOK(w, lo.Filter(records, func(rec smbconn.Record, _ int) bool {
		return isSession(rec) || (rec.Level == conn.LevelShare.String() && rec.ParentID == id)
	}))
}

// Delete handles DELETE /api/v1/sessions/{id}.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	if err := h.mgr.ForgetSession(r.Context(), id); err != nil {
		ConnProblem(w, err)
		return
	}
	logger.InfoCtx(r.Context(), "Session forgotten via admin API", logger.SessionID(id))
	WriteNoContent(w)
}

// DeleteShare handles DELETE /api/v1/sessions/{id}/shares/{name}.
func (h *SessionHandler) DeleteShare(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")
	if err := h.mgr.ForgetShare(r.Context(), id, name); err != nil {
		ConnProblem(w, err)
		return
	}
	logger.InfoCtx(r.Context(), "Share forgotten via admin API", logger.SessionID(id), logger.Share(name))
	WriteNoContent(w)
}

// Reconnect handles POST /api/v1/sessions/{id}/reconnect.
func (h *SessionHandler) Reconnect(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	s, err := h.mgr.SessionByID(r.Context(), id)
	if err != nil {
		ConnProblem(w, err)
		return
	}
	defer func() { _ = s.Rele() }()

	if err := s.Reconnect(r.Context()); err != nil {
		ConnProblem(w, err)
		return
	}
	WriteNoContent(w)
}

func sessionID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		BadRequest(w, "Invalid session id")
		return 0, false
	}
	return id, true
}
