package modal

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// JobID is a job identifier. Older state files and some clients send numeric
// ids; they are kept as their decimal text.
type JobID string

func (id *JobID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = JobID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = JobID(n.String())
	return nil
}

type Job struct {
	ID           JobID    `json:"id"`
	RiskType     RiskType `json:"riskType"`
	Department   string   `json:"department"`
	Point        string   `json:"point"`
	Control      string   `json:"control"`
	Requester    string   `json:"requester"`
	OpenedBy     string   `json:"openedBy"`
	Details      string   `json:"details"`
	StartedAtISO string   `json:"startedAtISO"`
}

// Owner returns the user allowed to close the job besides admins.
func (j Job) Owner() string {
	if owner := strings.TrimSpace(j.OpenedBy); owner != "" {
		return owner
	}
	return strings.TrimSpace(j.Requester)
}

// SameSlot reports whether j occupies the department/point/risk slot of other.
func (j Job) SameSlot(department, point string, risk RiskType) bool {
	return j.Department == department && NormalizePoint(j.Point) == NormalizePoint(point) && j.RiskType == risk
}

// StartedAt parses StartedAtISO. Browsers send RFC 3339 with milliseconds;
// legacy entries may lack a zone and are read as UTC.
func (j Job) StartedAt() (time.Time, bool) {
	s := strings.TrimSpace(j.StartedAtISO)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02T15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Overdue reports whether the job has been open for at least overdueMinutes
// at now. Jobs with an unreadable start time are never overdue.
func (j Job) Overdue(now time.Time, overdueMinutes int) bool {
	started, ok := j.StartedAt()
	if !ok {
		return false
	}
	return now.Sub(started) >= time.Duration(overdueMinutes)*time.Minute
}

// NormalizePoint folds a point label for duplicate detection.
func NormalizePoint(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
