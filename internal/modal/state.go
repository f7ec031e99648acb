package modal

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultOverdueMinutes = 120
	MinOverdueMinutes     = 1
	MaxOverdueMinutes     = 9999
)

// AppState is the single persisted document. Jobs are ordered newest first.
type AppState struct {
	UpdatedAt      time.Time `json:"updatedAt"`
	OverdueMinutes int       `json:"overdueMinutes"`
	Jobs           []Job     `json:"jobs"`
}

// NewAppState returns the document used when nothing usable is on disk.
func NewAppState(now time.Time) AppState {
	return AppState{
		UpdatedAt:      now,
		OverdueMinutes: DefaultOverdueMinutes,
		Jobs:           []Job{},
	}
}

// Clone returns a copy that shares no job slice with s.
func (s AppState) Clone() AppState {
	out := s
	out.Jobs = make([]Job, len(s.Jobs))
	copy(out.Jobs, s.Jobs)
	return out
}

// FindJob returns the index of the job with id, or -1.
func (s AppState) FindJob(id JobID) int {
	for i, j := range s.Jobs {
		if j.ID == id {
			return i
		}
	}
	return -1
}

// OverdueCount counts jobs that are overdue at now.
func (s AppState) OverdueCount(now time.Time) int {
	n := 0
	for _, j := range s.Jobs {
		if j.Overdue(now, s.OverdueMinutes) {
			n++
		}
	}
	return n
}

// ClampOverdueMinutes forces v into [MinOverdueMinutes, MaxOverdueMinutes].
func ClampOverdueMinutes(v int) int {
	return max(MinOverdueMinutes, min(MaxOverdueMinutes, v))
}

// ParseWholeNumber reads an integer from a raw JSON value. Numbers with no
// fractional part and strings holding an integer are accepted.
func ParseWholeNumber(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}
	switch x := v.(type) {
	case float64:
		if x != math.Trunc(x) || math.Abs(x) > math.MaxInt32 {
			return 0, false
		}
		return int(x), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}
