package modal

import (
	"encoding/json"
	"testing"
	"time"
)

func TestJobIDAcceptsNumbersAndStrings(t *testing.T) {
	var jobs []Job
	raw := `[{"id":"1700000000000"},{"id":1700000000001},{"id":null}]`
	if err := json.Unmarshal([]byte(raw), &jobs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := []JobID{"1700000000000", "1700000000001", ""}
	for i, w := range want {
		if jobs[i].ID != w {
			t.Fatalf("job %d id = %q, want %q", i, jobs[i].ID, w)
		}
	}
}

func TestOwnerFallsBackToRequester(t *testing.T) {
	if got := (Job{OpenedBy: "somchai", Requester: "x"}).Owner(); got != "somchai" {
		t.Fatalf("owner = %q", got)
	}
	if got := (Job{Requester: " malee "}).Owner(); got != "malee" {
		t.Fatalf("owner = %q", got)
	}
}

func TestSameSlotNormalizesPoint(t *testing.T) {
	j := Job{Department: "Kiln1", Point: "Cyclone 4", RiskType: RiskConfined}
	cases := []struct {
		dept  string
		point string
		risk  RiskType
		want  bool
	}{
		{"Kiln1", "  cyclone 4 ", RiskConfined, true},
		{"Kiln1", "CYCLONE 4", RiskConfined, true},
		{"Kiln1", "Cyclone 4", RiskHeight, false},
		{"Kiln2", "Cyclone 4", RiskConfined, false},
		{"Kiln1", "Cyclone 5", RiskConfined, false},
	}
	for _, tc := range cases {
		if got := j.SameSlot(tc.dept, tc.point, tc.risk); got != tc.want {
			t.Fatalf("SameSlot(%q,%q,%q) = %v, want %v", tc.dept, tc.point, tc.risk, got, tc.want)
		}
	}
}

func TestOverdue(t *testing.T) {
	start := time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC)
	j := Job{StartedAtISO: "2024-05-02T08:00:00.000Z"}
	if j.Overdue(start.Add(119*time.Minute), 120) {
		t.Fatal("job should not be overdue before threshold")
	}
	if !j.Overdue(start.Add(120*time.Minute), 120) {
		t.Fatal("job should be overdue at threshold")
	}
	if (Job{StartedAtISO: "yesterday"}).Overdue(start, 1) {
		t.Fatal("unparsable start must not be overdue")
	}
	local := Job{StartedAtISO: "2024-05-02T08:00"}
	if !local.Overdue(start.Add(time.Hour), 60) {
		t.Fatal("zone-less timestamps should parse")
	}
}

func TestParseWholeNumber(t *testing.T) {
	cases := []struct {
		raw  string
		want int
		ok   bool
	}{
		{`50`, 50, true},
		{`"50"`, 50, true},
		{`" 75 "`, 75, true},
		{`50.0`, 50, true},
		{`50.5`, 0, false},
		{`"abc"`, 0, false},
		{`null`, 0, false},
		{`true`, 0, false},
		{``, 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseWholeNumber(json.RawMessage(tc.raw))
		if got != tc.want || ok != tc.ok {
			t.Fatalf("ParseWholeNumber(%s) = %d,%v want %d,%v", tc.raw, got, ok, tc.want, tc.ok)
		}
	}
}

func TestClampOverdueMinutes(t *testing.T) {
	if ClampOverdueMinutes(0) != 1 || ClampOverdueMinutes(10000) != 9999 || ClampOverdueMinutes(50) != 50 {
		t.Fatal("clamp out of range")
	}
}

func TestValidDepartment(t *testing.T) {
	if !ValidDepartment("Petcoke Mill") {
		t.Fatal("expected Petcoke Mill to be valid")
	}
	if ValidDepartment("petcoke mill") || ValidDepartment("Warehouse") {
		t.Fatal("department match must be exact")
	}
}
