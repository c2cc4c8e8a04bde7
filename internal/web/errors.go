package web

// errors.go turns errors into JSON responses. The technical error is logged
// (the logger carries the request ID) and the client gets the apperr message.

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/csvmapper/internal/apperr"
	"github.com/JonMunkholm/csvmapper/internal/logging"
)

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// codeStatus gives the HTTP status for each user-facing code. Codes not
// listed use the status the handler passes in.
var codeStatus = map[string]int{
	"PARSE001": http.StatusConflict,
	"PARSE002": http.StatusBadRequest,
	"PARSE003": http.StatusBadRequest,
	"FILE001":  http.StatusRequestEntityTooLarge,
	"FILE004":  http.StatusBadRequest,
	"FILE005":  http.StatusBadRequest,
	"MAP001":   http.StatusConflict,
	"MAP002":   http.StatusBadRequest,
	"VAL001":   http.StatusUnprocessableEntity,
	"VAL002":   http.StatusBadRequest,
	"VAL003":   http.StatusNotFound,
	"SES001":   http.StatusNotFound,
	"SES002":   http.StatusTooManyRequests,
	"SES003":   http.StatusConflict,
}

// respondError logs err and writes its user message. fallback is the
// status used when err has no specific code, usually 400 for bad input or
// 500 for everything else.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, fallback int) {
	msg := apperr.MapError(err)
	status := fallback
	if st, ok := codeStatus[msg.Code]; ok {
		status = st
	}

	logger := logging.FromContext(r.Context())
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logger.Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	)

	body := errorBody(msg)
	// Bad input the mapper does not know still tells the client what was wrong.
	if msg.Code == "ERR000" && status < http.StatusInternalServerError {
		body.Error = err.Error()
	}
	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "5")
	}
	writeJSONStatus(w, status, body)
}

func errorBody(msg apperr.UserMessage) ErrorResponse {
	return ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	}
}

// writeJSON encodes v with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

// writeJSONStatus encodes v as JSON. Encoding errors are only logged since
// the header is already sent.
func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
