package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/csvmapper/internal/apperr"
	"github.com/JonMunkholm/csvmapper/internal/csvparse"
	"github.com/JonMunkholm/csvmapper/internal/export"
	"github.com/JonMunkholm/csvmapper/internal/logging"
	"github.com/JonMunkholm/csvmapper/internal/mapping"
	"github.com/JonMunkholm/csvmapper/internal/schema"
	"github.com/JonMunkholm/csvmapper/internal/session"
)

// multipartMemory is how much of a multipart form is held in memory before
// spilling to disk.
const multipartMemory = 32 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":   "ok",
		"sessions": s.svc.Len(),
		"parses":   s.svc.Limiter().Status(),
	})
}

type schemaResponse struct {
	Name    string          `json:"name"`
	Columns []schema.Column `json:"columns"`
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	sc := s.svc.Schema()
	writeJSON(w, schemaResponse{Name: sc.Name, Columns: sc.Columns()})
}

// pasteRequest is the JSON form of a new session.
type pasteRequest struct {
	Text      string `json:"text"`
	Delimiter string `json:"delimiter"`
	Quote     string `json:"quote"`
	Encoding  string `json:"encoding"`
}

// parseOptions converts request strings to parser options. Empty values
// keep the service defaults.
func parseOptions(delimiter, quote, encoding string) (csvparse.Options, error) {
	var opts csvparse.Options
	if delimiter != "" {
		d, err := csvparse.ParseDelimiter(delimiter)
		if err != nil {
			return opts, err
		}
		opts.Delimiter = d
	}
	if quote != "" {
		if utf8.RuneCountInString(quote) != 1 {
			return opts, fmt.Errorf("quote must be a single character, got %q", quote)
		}
		opts.Quote, _ = utf8.DecodeRuneInString(quote)
	}
	opts.Encoding = encoding
	return opts, nil
}

// handleCreateSession accepts a multipart "file" upload or a JSON body with
// pasted text and starts parsing it.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var (
		in   csvparse.Input
		opts csvparse.Options
		err  error
	)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		in, opts, err = s.readUpload(w, r)
	} else {
		in, opts, err = s.readPaste(w, r)
	}
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	id, err := s.svc.Open(r.Context(), in, opts)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	logging.FromContext(logging.WithSession(r.Context(), id)).Info("session opened")
	writeJSONStatus(w, http.StatusAccepted, map[string]string{
		"session_id": id,
		"step":       string(session.StepParsing),
	})
}

// readUpload buffers the uploaded file. The parse runs after the request
// ends, when the form's temporary files are gone.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (csvparse.Input, csvparse.Options, error) {
	maxSize := s.cfg.Parse.MaxInputSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, csvparse.Options{}, tooLarge(err, "invalid form")
	}

	opts, err := parseOptions(r.FormValue("delimiter"), r.FormValue("quote"), r.FormValue("encoding"))
	if err != nil {
		return nil, opts, err
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, opts, apperr.ErrNoInput
		}
		return nil, opts, fmt.Errorf("read upload: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxSize+1))
	if err != nil {
		return nil, opts, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > maxSize {
		return nil, opts, fmt.Errorf("%w: over %d bytes", csvparse.ErrInputTooLarge, maxSize)
	}
	return csvparse.ReaderInput(bytes.NewReader(data)), opts, nil
}

func (s *Server) readPaste(w http.ResponseWriter, r *http.Request) (csvparse.Input, csvparse.Options, error) {
	var req pasteRequest
	// JSON escaping can double the size of the text.
	if err := decodeJSON(w, r, &req, 2*s.cfg.Parse.MaxInputSize+maxJSONBody); err != nil {
		return nil, csvparse.Options{}, tooLarge(err, "")
	}
	if req.Text == "" {
		return nil, csvparse.Options{}, apperr.ErrNoInput
	}
	opts, err := parseOptions(req.Delimiter, req.Quote, req.Encoding)
	if err != nil {
		return nil, opts, err
	}
	// Pasted text is already decoded.
	opts.Encoding = ""
	return csvparse.TextInput(req.Text), opts, nil
}

// tooLarge reports a body cut off by MaxBytesReader as ErrInputTooLarge.
func tooLarge(err error, what string) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return fmt.Errorf("%w: over %d bytes", csvparse.ErrInputTooLarge, mbe.Limit)
	}
	if what != "" {
		return fmt.Errorf("%s: %w", what, err)
	}
	return err
}

// stateResponse is a session snapshot with its last parse outcome rendered
// for the client. A cancelled parse sets Cancelled instead of Error.
type stateResponse struct {
	session.Snapshot
	Cancelled bool           `json:"cancelled,omitempty"`
	Error     *ErrorResponse `json:"error,omitempty"`
}

func newStateResponse(snap session.Snapshot) stateResponse {
	resp := stateResponse{Snapshot: snap}
	resp.Error, resp.Cancelled = parseOutcome(snap.Error)
	return resp
}

// parseOutcome splits a parse error into the client error body and the
// cancelled flag. Cancellation is not reported as an error.
func parseOutcome(err error) (*ErrorResponse, bool) {
	switch {
	case err == nil:
		return nil, false
	case errors.Is(err, csvparse.ErrParseCancelled):
		return nil, true
	}
	body := errorBody(apperr.MapError(err))
	return &body, false
}

func (s *Server) handleSessionState(w http.ResponseWriter, r *http.Request) {
	snap, err := s.svc.State(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, newStateResponse(snap))
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Close(chi.URLParam(r, "id")); err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// progressEvent is the data of one SSE frame.
type progressEvent struct {
	csvparse.Progress
	Step      session.Step   `json:"step"`
	Done      bool           `json:"done"`
	Cancelled bool           `json:"cancelled,omitempty"`
	Error     *ErrorResponse `json:"error,omitempty"`
}

// handleProgress streams parse progress as server-sent events. Each
// progress frame carries the percentage as its id. A final "complete"
// frame carries the step the session landed on and any parse error, or
// cancelled when the parse was cancelled.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	events, unsubscribe, err := s.svc.SubscribeProgress(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	logger := logging.FromContext(r.Context())

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			data := progressEvent{Progress: ev.Progress, Step: ev.Step, Done: ev.Done}
			data.Error, data.Cancelled = parseOutcome(ev.Err)
			payload, err := json.Marshal(data)
			if err != nil {
				logger.Error("encode progress event", "error", err)
				return
			}

			if ev.Done {
				fmt.Fprintf(w, "event: complete\ndata: %s\n\n", payload)
			} else {
				fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", ev.Progress.Percent, payload)
			}
			if err := rc.Flush(); err != nil {
				logger.Debug("progress stream closed", "error", err)
				return
			}
			if ev.Done {
				return
			}

		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) handleCancelParse(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.CancelParse(chi.URLParam(r, "id")); err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]bool{"cancelled": true})
}

func (s *Server) handleRows(w http.ResponseWriter, r *http.Request) {
	offset, limit := pageParams(r)
	page, err := s.svc.Rows(chi.URLParam(r, "id"), offset, limit)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, page)
}

type headerRequest struct {
	Row int `json:"row"`
}

func (s *Server) handleSelectHeader(w http.ResponseWriter, r *http.Request) {
	var req headerRequest
	if err := decodeJSON(w, r, &req, maxJSONBody); err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	st, err := s.svc.SelectHeader(chi.URLParam(r, "id"), req.Row)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	writeJSON(w, st)
}

func (s *Server) handleGetMapping(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Mapping(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, st)
}

func (s *Server) handleSetMapping(w http.ResponseWriter, r *http.Request) {
	var assign mapping.Mapping
	if err := decodeJSON(w, r, &assign, maxJSONBody); err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	st, err := s.svc.SetMapping(chi.URLParam(r, "id"), assign)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	writeJSON(w, st)
}

type toggleRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleToggleColumn(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := decodeJSON(w, r, &req, maxJSONBody); err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	st, err := s.svc.ToggleColumn(chi.URLParam(r, "id"), chi.URLParam(r, "key"), req.Enabled)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	writeJSON(w, st)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	sum, err := s.svc.Validate(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, sum)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	offset, limit := pageParams(r)
	onlyInvalid, _ := strconv.ParseBool(r.URL.Query().Get("invalid"))

	page, err := s.svc.Results(chi.URLParam(r, "id"), offset, limit, onlyInvalid)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, page)
}

type editRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (s *Server) handleEditCell(w http.ResponseWriter, r *http.Request) {
	row, err := rowParam(r)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	var req editRequest
	if err := decodeJSON(w, r, &req, maxJSONBody); err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	res, err := s.svc.EditCell(chi.URLParam(r, "id"), row, req.Key, req.Value)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	writeJSON(w, session.RowResult{Row: row, Result: res})
}

func (s *Server) handleRemoveRow(w http.ResponseWriter, r *http.Request) {
	row, err := rowParam(r)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.svc.RemoveRow(id, row); err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	sum, err := s.svc.Summary(id)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, sum)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	records, err := s.svc.Submit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{
		"count":   len(records),
		"records": records,
	})
}

func (s *Server) handleBack(w http.ResponseWriter, r *http.Request) {
	step, err := s.svc.Back(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]session.Step{"step": step})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	data, err := s.svc.Export(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	// Build the file first so a failure can still be reported as JSON.
	var buf bytes.Buffer
	if err := export.Write(&buf, format, data.Columns, data.Records); err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	filename := fmt.Sprintf("import-%s.%s", data.Created.Format("20060102-150405"), format)
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	if _, err := buf.WriteTo(w); err != nil {
		logging.FromContext(r.Context()).Warn("export write failed", "error", err)
	}
}
