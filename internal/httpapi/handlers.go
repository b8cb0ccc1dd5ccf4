package httpapi

import (
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/crf-paris15/crf.tools/internal/lockcrf/service"
	"github.com/crf-paris15/crf.tools/internal/lockcrf/store"
	"github.com/crf-paris15/crf.tools/internal/nuki"
)

// secretMatches compares against the configured API secret.  An unset
// secret never matches.
func (s *Server) secretMatches(got string) bool {
	if s.apiSecret == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.apiSecret)) == 1
}

// lockIDParam reads {id}.  Anything that is not a lock id cannot name a lock.
func lockIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, service.ErrLockNotFound
	}
	return id, nil
}

// parseAction keeps non-numeric input as 0 so the orchestrator rejects it
// with INVALID_ACTION.
func parseAction(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func (s *Server) handleDashboardAction(w http.ResponseWriter, r *http.Request) {
	lockID, err := lockIDParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var form dashboardActionForm
	if err := s.bindForm(w, r, &form); err != nil {
		s.fail(w, r, err)
		return
	}
	staff, _ := staffFromContext(r.Context())

	req, err := s.actions.Issue(r.Context(), service.ActionCommand{
		Action: parseAction(form.Action),
		LockID: lockID,
		UserID: staff.ID,
		Source: store.SourceAdminPanel,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusCreated, map[string]any{
		"message": "Request created successfully",
		"request": requestBody(req),
	})
}

func (s *Server) handleLockState(w http.ResponseWriter, r *http.Request) {
	lockID, err := lockIDParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	doc, err := s.actions.LockState(r.Context(), lockID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, map[string]any{"state": doc})
}

func (s *Server) handlePhoneCheck(w http.ResponseWriter, r *http.Request) {
	var form phoneForm
	if err := s.bindForm(w, r, &form); err != nil {
		s.fail(w, r, err)
		return
	}
	if !s.secretMatches(form.APISecret) {
		s.fail(w, r, errInvalidSecret)
		return
	}
	s.respond(w, r, http.StatusOK, map[string]any{"message": "Ok"})
}

func (s *Server) handlePhoneAction(w http.ResponseWriter, r *http.Request) {
	var form phoneActionForm
	if err := s.bindForm(w, r, &form); err != nil {
		s.fail(w, r, err)
		return
	}
	if !s.secretMatches(form.APISecret) {
		s.fail(w, r, errInvalidSecret)
		return
	}

	grant, err := s.evaluator.EvaluatePhone(r.Context(), form.From, form.To)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	authID := grant.AuthorizationID
	req, err := s.actions.Issue(r.Context(), service.ActionCommand{
		Action:          parseAction(form.Action),
		LockID:          grant.LockID,
		UserID:          grant.UserID,
		AuthorizationID: &authID,
		Source:          store.SourcePhone,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusCreated, map[string]any{
		"message": "Request created successfully",
		"request": requestBody(req),
	})
}

// handleRequestRead serves the settlement poller (apiSecret) and the
// dashboard (staff session).
func (s *Server) handleRequestRead(w http.ResponseWriter, r *http.Request) {
	var form requestReadForm
	if err := s.bindForm(w, r, &form); err != nil {
		s.fail(w, r, err)
		return
	}
	if !s.secretMatches(form.APISecret) {
		u, err := s.sessionUser(r)
		if err != nil || !isStaff(u) {
			s.fail(w, r, errUnauthorized)
			return
		}
	}

	req, err := s.actions.Request(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, map[string]any{"request": requestBody(req)})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		s.fail(w, r, service.ErrMalformedBody.With(err))
		return
	}
	sig := r.Header.Get(nuki.SignatureHeader)
	if sig == "" {
		sig = r.Header.Get(nuki.LegacySignatureHeader)
	}

	res, err := s.webhooks.Ingest(r.Context(), body, sig)
	if err != nil {
		// The vendor retries on 5xx; an unknown request id may still be
		// in flight on our side.
		if errors.Is(err, service.ErrRequestNotFound) {
			s.failWithStatus(w, r, err, http.StatusInternalServerError)
			return
		}
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, map[string]any{"message": res.Message})
}
