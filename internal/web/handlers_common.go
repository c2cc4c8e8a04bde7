package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// Page size limits for row and result listings.
const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

// maxJSONBody bounds JSON request bodies other than pasted CSV text.
const maxJSONBody = 1 << 20

// parseIntParam parses a non-negative integer query parameter with a
// default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 0 {
		return defaultVal
	}
	return i
}

// pageParams reads offset and limit, clamping limit to maxPageSize.
func pageParams(r *http.Request) (offset, limit int) {
	offset = parseIntParam(r, "offset", 0)
	limit = parseIntParam(r, "limit", defaultPageSize)
	if limit == 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	return offset, limit
}

// rowParam reads the {row} URL parameter.
func rowParam(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "row")
	row, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid row %q", raw)
	}
	return row, nil
}

// decodeJSON reads a JSON body into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, limit int64) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
