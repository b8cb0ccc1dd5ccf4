// Package memory is an in-process implementation of every store interface.
// It is intended for tests and dev environments.
package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crf-paris15/crf.tools/internal/lockcrf/store"
)

var (
	_ store.LockStore          = (*Store)(nil)
	_ store.UserStore          = (*Store)(nil)
	_ store.AuthorizationStore = (*Store)(nil)
	_ store.LogStore           = (*Store)(nil)
	_ store.RequestStore       = (*Store)(nil)
)

type Store struct {
	mu sync.RWMutex

	locks    map[int64]store.LockRecord
	users    map[string]store.UserRecord
	auths    map[int64]store.AuthorizationRecord
	logs     []store.LogRecord
	requests map[string]store.RequestRecord

	nextLockID int64
	nextAuthID int64
	nextLogID  int64
}

func New() *Store {
	return &Store{
		locks:    make(map[int64]store.LockRecord),
		users:    make(map[string]store.UserRecord),
		auths:    make(map[int64]store.AuthorizationRecord),
		requests: make(map[string]store.RequestRecord),
	}
}

func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

// Locks

func (s *Store) CreateLock(_ context.Context, rec store.LockRecord) (store.LockRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l := range s.locks {
		if l.NukiID == rec.NukiID || (rec.PhoneNumber != "" && l.PhoneNumber == rec.PhoneNumber) {
			return store.LockRecord{}, store.ErrConflict
		}
	}
	s.nextLockID++
	rec.ID = s.nextLockID
	rec.CreatedAt = stamp(rec.CreatedAt)
	s.locks[rec.ID] = rec
	return rec, nil
}

func (s *Store) GetLock(_ context.Context, id int64) (store.LockRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.locks[id]
	if !ok {
		return store.LockRecord{}, store.ErrNotFound
	}
	return l, nil
}

func (s *Store) FindLockByPhoneNumber(_ context.Context, phone string) (store.LockRecord, error) {
	return s.findLock(func(l store.LockRecord) bool { return phone != "" && l.PhoneNumber == phone })
}

func (s *Store) FindLockByNukiID(_ context.Context, nukiID string) (store.LockRecord, error) {
	return s.findLock(func(l store.LockRecord) bool { return l.NukiID == nukiID })
}

func (s *Store) findLock(match func(store.LockRecord) bool) (store.LockRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, l := range s.locks {
		if match(l) {
			return l, nil
		}
	}
	return store.LockRecord{}, store.ErrNotFound
}

func (s *Store) DeleteLock(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.locks[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.locks, id)
	for aid, a := range s.auths {
		if a.LockID == id {
			delete(s.auths, aid)
		}
	}
	for rid, r := range s.requests {
		if r.LockID == id {
			delete(s.requests, rid)
		}
	}
	s.logs = slices.DeleteFunc(s.logs, func(l store.LogRecord) bool { return l.LockID == id })
	return nil
}

// Users

func (s *Store) CreateUser(_ context.Context, rec store.UserRecord) (store.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Email == "" {
		rec.Email = store.PlaceholderEmail()
	}
	for _, u := range s.users {
		if u.ID == rec.ID || strings.EqualFold(u.Email, rec.Email) ||
			(rec.PhoneNumber != "" && u.PhoneNumber == rec.PhoneNumber) {
			return store.UserRecord{}, store.ErrConflict
		}
	}
	rec.CreatedAt = stamp(rec.CreatedAt)
	s.users[rec.ID] = rec
	return rec, nil
}

func (s *Store) GetUser(_ context.Context, id string) (store.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return store.UserRecord{}, store.ErrNotFound
	}
	return u, nil
}

func (s *Store) FindUserByPhoneNumber(_ context.Context, phone string) (store.UserRecord, error) {
	return s.findUser(func(u store.UserRecord) bool { return phone != "" && u.PhoneNumber == phone })
}

// FindUserByNukiAccountID returns the earliest-created user linked to the
// vendor account; the account id is not unique.
func (s *Store) FindUserByNukiAccountID(_ context.Context, accountID string) (store.UserRecord, error) {
	if accountID == "" {
		return store.UserRecord{}, store.ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		best  store.UserRecord
		found bool
	)
	for _, u := range s.users {
		if u.NukiAccountID != accountID {
			continue
		}
		if !found || u.CreatedAt.Before(best.CreatedAt) ||
			(u.CreatedAt.Equal(best.CreatedAt) && u.ID < best.ID) {
			best, found = u, true
		}
	}
	if !found {
		return store.UserRecord{}, store.ErrNotFound
	}
	return best, nil
}

func (s *Store) findUser(match func(store.UserRecord) bool) (store.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if match(u) {
			return u, nil
		}
	}
	return store.UserRecord{}, store.ErrNotFound
}

func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.users, id)
	for aid, a := range s.auths {
		switch {
		case a.UserID == id:
			delete(s.auths, aid)
		case a.CreatedByID == id:
			a.CreatedByID = ""
			s.auths[aid] = a
		}
	}
	for i := range s.logs {
		if s.logs[i].UserID == id {
			s.logs[i].UserID = ""
		}
	}
	for rid, r := range s.requests {
		if r.UserID == id {
			r.UserID = ""
			s.requests[rid] = r
		}
	}
	return nil
}

// Authorizations

func (s *Store) CreateAuthorization(_ context.Context, rec store.AuthorizationRecord) (store.AuthorizationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.locks[rec.LockID]; !ok {
		return store.AuthorizationRecord{}, store.ErrNotFound
	}
	if _, ok := s.users[rec.UserID]; !ok {
		return store.AuthorizationRecord{}, store.ErrNotFound
	}
	s.nextAuthID++
	rec.ID = s.nextAuthID
	rec.CreatedAt = stamp(rec.CreatedAt)
	s.auths[rec.ID] = rec
	return rec, nil
}

func (s *Store) ListAuthorizations(_ context.Context, lockID int64, userID string) ([]store.AuthorizationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.AuthorizationRecord
	for _, a := range s.auths {
		if a.LockID == lockID && a.UserID == userID {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b store.AuthorizationRecord) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out, nil
}

func (s *Store) SetAuthorizationActive(_ context.Context, id int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.auths[id]
	if !ok {
		return store.ErrNotFound
	}
	a.Active = active
	s.auths[id] = a
	return nil
}

func (s *Store) DeleteAuthorization(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.auths[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.auths, id)
	for i := range s.logs {
		if a := s.logs[i].AuthorizationID; a != nil && *a == id {
			s.logs[i].AuthorizationID = nil
		}
	}
	return nil
}

// Logs

func (s *Store) CreateLog(_ context.Context, rec store.LogRecord) (store.LogRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLogLocked(rec)
}

func (s *Store) appendLogLocked(rec store.LogRecord) (store.LogRecord, error) {
	if _, ok := s.locks[rec.LockID]; !ok {
		return store.LogRecord{}, store.ErrNotFound
	}
	s.nextLogID++
	rec.ID = s.nextLogID
	rec.CreatedAt = stamp(rec.CreatedAt)
	s.logs = append(s.logs, rec)
	return rec, nil
}

func (s *Store) GetLog(_ context.Context, id int64) (store.LogRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, l := range s.logs {
		if l.ID == id {
			return l, nil
		}
	}
	return store.LogRecord{}, store.ErrNotFound
}

// ListLogs returns the newest logs for lockID first.  limit <= 0 means all.
func (s *Store) ListLogs(_ context.Context, lockID int64, limit int) ([]store.LogRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.LogRecord
	for i := len(s.logs) - 1; i >= 0; i-- {
		if s.logs[i].LockID != lockID {
			continue
		}
		out = append(out, s.logs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Logs returns a copy of every log row.  Test-only helper.
func (s *Store) Logs() []store.LogRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.logs)
}

// Requests

func (s *Store) CreateRequestWithLog(_ context.Context, log store.LogRecord, req store.RequestRecord) (store.RequestRecord, store.LogRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.requests[req.ID]; dup {
		return store.RequestRecord{}, store.LogRecord{}, store.ErrConflict
	}
	if _, ok := s.locks[req.LockID]; !ok {
		return store.RequestRecord{}, store.LogRecord{}, store.ErrNotFound
	}
	l, err := s.appendLogLocked(log)
	if err != nil {
		return store.RequestRecord{}, store.LogRecord{}, err
	}
	logID := l.ID
	req.LogID = &logID
	req.CreatedAt = stamp(req.CreatedAt)
	s.requests[req.ID] = req
	return req, l, nil
}

func (s *Store) GetRequest(_ context.Context, id string) (store.RequestRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[id]
	if !ok {
		return store.RequestRecord{}, store.ErrNotFound
	}
	return r, nil
}

func (s *Store) SettleRequest(_ context.Context, id string, st store.Settlement) (store.RequestRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[id]
	if !ok {
		return store.RequestRecord{}, store.ErrNotFound
	}
	success := st.Success
	r.Success = &success
	r.Error = st.ErrorCode
	s.requests[id] = r

	if r.LogID != nil {
		for i := range s.logs {
			if s.logs[i].ID == *r.LogID {
				ls := st.Success
				s.logs[i].Success = &ls
				s.logs[i].Details = st.ErrorCode
				break
			}
		}
	}
	return r, nil
}

func (s *Store) CountRequestsSince(_ context.Context, lockID int64, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.requests {
		if r.LockID == lockID && r.CreatedAt.After(since) {
			n++
		}
	}
	return n, nil
}

func (s *Store) DeleteRequestsOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, r := range s.requests {
		if r.CreatedAt.Before(cutoff) {
			delete(s.requests, id)
			n++
		}
	}
	return n, nil
}

// Requests returns a copy of every request row.  Test-only helper.
func (s *Store) Requests() []store.RequestRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.RequestRecord, 0, len(s.requests))
	for _, r := range s.requests {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b store.RequestRecord) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out
}
