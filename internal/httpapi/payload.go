package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"permit-board/internal/modal"
)

// payload is a loosely typed JSON object body. A body that is absent or not a
// JSON object decodes to an empty payload, so handlers report the first
// missing field instead of a parse error.
type payload map[string]json.RawMessage

func decodePayload(r *http.Request) payload {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		requestLogger(r.Context()).Debug("http.request.body_unreadable", "error", err)
		return payload{}
	}
	var p payload
	if err := json.Unmarshal(bytes.TrimSpace(body), &p); err != nil || p == nil {
		if len(body) > 0 {
			requestLogger(r.Context()).Debug("http.request.body_ignored", "error", err)
		}
		return payload{}
	}
	return p
}

// String returns the field as text. Strings are returned as-is, numbers by
// their literal, anything else as "".
func (p payload) String(key string) string {
	raw, ok := p[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func (p payload) JobID(key string) modal.JobID {
	raw, ok := p[key]
	if !ok {
		return ""
	}
	var id modal.JobID
	if err := json.Unmarshal(raw, &id); err != nil {
		return ""
	}
	return modal.JobID(strings.TrimSpace(string(id)))
}

// WholeNumber returns the field when it holds an integral value.
func (p payload) WholeNumber(key string) (int, bool) {
	raw, ok := p[key]
	if !ok {
		return 0, false
	}
	return modal.ParseWholeNumber(raw)
}
