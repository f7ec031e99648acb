package store

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"time"

	"pkt.systems/pslog"

	"permit-board/internal/modal"
)

// document is the on-disk shape including fields written by older releases.
// Everything below the top level is read leniently because the file is edited
// by hand.
type document struct {
	UpdatedAt      json.RawMessage `json:"updatedAt"`
	OverdueMinutes json.RawMessage `json:"overdueMinutes"`
	OverdueHours   json.RawMessage `json:"overdueHours"`
	Jobs           json.RawMessage `json:"jobs"`
}

// decodeDocument parses raw and backfills anything missing. The legacy
// overdueHours field is converted to minutes when overdueMinutes is absent.
// Only a document that is not a JSON object is an error; a job entry that is
// not an object is skipped and mistyped job fields are coerced to text.
func decodeDocument(raw []byte, now time.Time, logger pslog.Logger) (modal.AppState, error) {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return modal.AppState{}, err
	}
	state := modal.NewAppState(now)
	state.Jobs = decodeJobs(doc.Jobs, logger)
	if ts, ok := decodeTimestamp(doc.UpdatedAt); ok {
		state.UpdatedAt = ts
	} else if len(doc.UpdatedAt) > 0 && !isNull(doc.UpdatedAt) {
		logger.Warn("store.file.updated_at_unreadable", "value", string(doc.UpdatedAt))
	}
	switch {
	case len(doc.OverdueMinutes) > 0:
		if v, ok := modal.ParseWholeNumber(doc.OverdueMinutes); ok {
			state.OverdueMinutes = modal.ClampOverdueMinutes(v)
		}
	case len(doc.OverdueHours) > 0:
		if v, ok := modal.ParseWholeNumber(doc.OverdueHours); ok {
			state.OverdueMinutes = modal.ClampOverdueMinutes(v * 60)
		}
	}
	return state, nil
}

func decodeJobs(raw json.RawMessage, logger pslog.Logger) []modal.Job {
	jobs := []modal.Job{}
	if len(raw) == 0 || isNull(raw) {
		return jobs
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		logger.Warn("store.file.jobs_unreadable", "error", err)
		return jobs
	}
	for i, entry := range entries {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(entry, &fields); err != nil || fields == nil {
			logger.Warn("store.file.job_skipped", "index", i, "value", string(entry))
			continue
		}
		jobs = append(jobs, modal.Job{
			ID:           modal.JobID(scalarText(fields["id"])),
			RiskType:     modal.RiskType(scalarText(fields["riskType"])),
			Department:   scalarText(fields["department"]),
			Point:        scalarText(fields["point"]),
			Control:      scalarText(fields["control"]),
			Requester:    scalarText(fields["requester"]),
			OpenedBy:     scalarText(fields["openedBy"]),
			Details:      scalarText(fields["details"]),
			StartedAtISO: scalarText(fields["startedAtISO"]),
		})
	}
	return jobs
}

// scalarText returns strings as-is and numbers and booleans by their literal.
// Absent, null and structured values read as "".
func scalarText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return ""
	}
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		if x {
			return "true"
		}
		return "false"
	}
	return ""
}

// decodeTimestamp accepts RFC 3339 text, zone-less ISO text (read as UTC) and
// numeric Unix times in milliseconds or seconds.
func decodeTimestamp(raw json.RawMessage) (time.Time, bool) {
	if len(raw) == 0 {
		return time.Time{}, false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return time.Time{}, false
	}
	switch x := v.(type) {
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999"} {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, true
			}
		}
	case float64:
		if x <= 0 || math.IsInf(x, 0) || math.IsNaN(x) {
			return time.Time{}, false
		}
		if x >= 1e11 {
			return time.UnixMilli(int64(x)).UTC(), true
		}
		return time.Unix(int64(x), 0).UTC(), true
	}
	return time.Time{}, false
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
