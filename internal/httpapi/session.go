package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/sessions"

	"github.com/crf-paris15/crf.tools/internal/lockcrf/store"
)

const (
	sessionName   = "lockcrf_session"
	sessionUserID = "user_id"
)

// Staff groups.  Members (group 1) have no dashboard access.
const (
	groupManager       int64 = 2
	groupAdministrator int64 = 3
)

// NewSessionStore returns the cookie store shared with the dashboard login.
func NewSessionStore(secret string, secure bool) *sessions.CookieStore {
	cs := sessions.NewCookieStore([]byte(secret))
	cs.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   7 * 24 * 3600,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return cs
}

// SaveStaffSession marks the session on r as belonging to userID.
func SaveStaffSession(st sessions.Store, w http.ResponseWriter, r *http.Request, userID string) error {
	sess, err := st.Get(r, sessionName)
	if err != nil && sess == nil {
		return err
	}
	sess.Values[sessionUserID] = userID
	return sess.Save(r, w)
}

type staffKey struct{}

// staffFromContext returns the staff user attached by requireStaff.
func staffFromContext(ctx context.Context) (store.UserRecord, bool) {
	u, ok := ctx.Value(staffKey{}).(store.UserRecord)
	return u, ok
}

var errNoSession = errors.New("no session")

// sessionUser resolves the user behind the session cookie.  A tampered or
// expired cookie reads as no session.
func (s *Server) sessionUser(r *http.Request) (store.UserRecord, error) {
	if s.sessions == nil {
		return store.UserRecord{}, errNoSession
	}
	sess, err := s.sessions.Get(r, sessionName)
	if err != nil || sess == nil {
		return store.UserRecord{}, errNoSession
	}
	id, _ := sess.Values[sessionUserID].(string)
	if id == "" {
		return store.UserRecord{}, errNoSession
	}
	u, err := s.users.GetUser(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		return store.UserRecord{}, errNoSession
	}
	return u, err
}

func isStaff(u store.UserRecord) bool {
	return u.GroupID == groupManager || u.GroupID == groupAdministrator
}

// requireStaff lets through only sessions of managers and administrators.
func (s *Server) requireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := s.sessionUser(r)
		switch {
		case errors.Is(err, errNoSession):
			s.fail(w, r, errUnauthorized)
			return
		case err != nil:
			s.fail(w, r, err)
			return
		case !isStaff(u):
			s.fail(w, r, errForbidden)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), staffKey{}, u)))
	})
}
