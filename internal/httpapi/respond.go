package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/crf-paris15/crf.tools/internal/lockcrf/service"
	"github.com/crf-paris15/crf.tools/internal/lockcrf/store"
)

// respond writes the envelope {success: status < 400, ...data}.  Every
// response with status >= 400 is reported.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, status int, data map[string]any) {
	body := make(map[string]any, len(data)+1)
	for k, v := range data {
		body[k] = v
	}
	body["success"] = status < http.StatusBadRequest

	if status >= http.StatusBadRequest {
		tags := map[string]string{
			"status": strconv.Itoa(status),
			"path":   r.URL.Path,
		}
		msg := http.StatusText(status)
		if e, ok := data["error"].(map[string]any); ok {
			if m, ok := e["message"].(string); ok {
				msg = m
			}
			if c, ok := e["code"].(string); ok {
				tags["code"] = c
			}
		}
		s.reporter.CaptureMessage(msg, tags)
	}

	if wantsProtobuf(r) {
		err := writeProto(w, status, body)
		if err == nil {
			return
		}
		s.log.Error("protobuf response", zap.Error(err))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// fail renders err.  Errors that are not domain errors become INTERNAL and
// are never shown to the caller.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	s.failWithStatus(w, r, err, 0)
}

func (s *Server) failWithStatus(w http.ResponseWriter, r *http.Request, err error, status int) {
	var de *service.Error
	if !errors.As(err, &de) {
		de = service.ErrInternal.With(err)
	}
	if status == 0 {
		status = statusFor(de)
	}
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("path", r.URL.Path), zap.String("code", de.Code), zap.Error(err))
	}
	s.respond(w, r, status, map[string]any{
		"error": map[string]any{"message": de.Message, "code": de.Code},
	})
}

// requestBody renders a Request row with explicit nulls for unset fields.
func requestBody(req store.RequestRecord) map[string]any {
	out := map[string]any{
		"id":        req.ID,
		"lockId":    req.LockID,
		"userId":    nil,
		"action":    int64(req.Action),
		"success":   nil,
		"error":     nil,
		"logId":     nil,
		"createdAt": req.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if req.UserID != "" {
		out["userId"] = req.UserID
	}
	if req.Success != nil {
		out["success"] = *req.Success
	}
	if req.Error != "" {
		out["error"] = req.Error
	}
	if req.LogID != nil {
		out["logId"] = *req.LogID
	}
	return out
}
