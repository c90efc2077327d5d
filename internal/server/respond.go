package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/audit-engine/internal/lifecycle"
	"github.com/sells-group/audit-engine/internal/pipeline"
	"github.com/sells-group/audit-engine/internal/session"
)

// apiError is the body of every failed request.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorBody struct {
	Error    apiError           `json:"error"`
	Log      []session.LogEntry `json:"log,omitempty"`
	Redirect string             `json:"redirect,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("server: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: apiError{Code: code, Message: message}})
}

// writeRedirect tells the client the requested view no longer exists and it
// should go back to search.
func writeRedirect(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusNotFound, errorBody{
		Error:    apiError{Code: "not_found", Message: message},
		Redirect: "/",
	})
}

// classify maps a session error to a status code and error code.
func classify(err error) (int, string) {
	var re *pipeline.ResolutionError
	switch {
	case errors.Is(err, lifecycle.ErrBusy):
		return http.StatusConflict, "busy"
	case pipeline.IsConfigError(err):
		return http.StatusInternalServerError, "config"
	case errors.As(err, &re):
		return http.StatusUnprocessableEntity, string(re.Reason)
	case errors.Is(err, lifecycle.ErrTimedOut), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, session.ErrNoChannel), errors.Is(err, session.ErrNoCreator):
		return http.StatusConflict, "no_creator"
	case errors.Is(err, session.ErrAlreadyAudited):
		return http.StatusConflict, "already_audited"
	case errors.Is(err, session.ErrNotVerifiable):
		return http.StatusConflict, "not_verifiable"
	case errors.Is(err, session.ErrVideoNotFound), errors.Is(err, session.ErrClaimNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, session.ErrUnknownSort):
		return http.StatusBadRequest, "bad_sort"
	}
	var pe *pipeline.ParseError
	if errors.As(err, &pe) {
		return http.StatusBadGateway, "bad_answer"
	}
	return http.StatusBadGateway, "provider"
}

// writeSessionError renders err, attaching the console log for failures the
// user sees there.
func writeSessionError(w http.ResponseWriter, sess *session.Session, err error) {
	status, code := classify(err)
	body := errorBody{Error: apiError{Code: code, Message: err.Error()}}
	switch {
	case errors.Is(err, session.ErrClaimNotFound):
		body.Redirect = "/"
	case status == http.StatusUnprocessableEntity, status == http.StatusBadGateway,
		status == http.StatusGatewayTimeout, code == "config":
		body.Log = sess.Log()
	}
	if status >= http.StatusInternalServerError {
		zap.L().Warn("server: request failed", zap.String("session", sess.ID), zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, body)
}
