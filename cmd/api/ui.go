package main

import (
	"html/template"
	"net/http"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"

	"permit-board/internal/clock"
	"permit-board/internal/modal"
	"permit-board/internal/registry"
)

const (
	defaultBoardRefresh = 30
	minBoardRefresh     = 5
	maxBoardRefresh     = 600
)

type uiServer struct {
	registry *registry.Registry
	clock    clock.Clock
	t        *template.Template
}

type uiJobRow struct {
	Job     modal.Job
	Age     string
	Overdue bool
}

type uiBoardData struct {
	Department     string
	Risk           string
	Departments    []string
	Refresh        int
	UpdatedAt      string
	OverdueMinutes int
	Rows           []uiJobRow
	Confined       int
	Height         int
	OverdueCount   int
	Error          string
}

func registerBoardRoutes(r chi.Router, reg *registry.Registry, clk clock.Clock) {
	t := template.Must(template.New("base").Parse(uiTemplates))
	s := &uiServer{registry: reg, clock: clock.OrReal(clk), t: t}

	r.Get("/board", s.handleBoard)
}

// handleBoard renders the kiosk view of open jobs. It supports narrowing by
// department and risk type through the query string.
func (s *uiServer) handleBoard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	data := uiBoardData{
		Department:  q.Get("department"),
		Risk:        q.Get("risk"),
		Departments: modal.Departments,
		Refresh:     boardRefresh(q.Get("refresh")),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")

	state, err := s.registry.Status(r.Context())
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		data.Error = "board unavailable"
		_ = s.t.ExecuteTemplate(w, "board", data)
		return
	}
	now := s.clock.Now()
	data.UpdatedAt = humanize.RelTime(state.UpdatedAt, now, "ago", "from now")
	data.OverdueMinutes = state.OverdueMinutes

	for _, job := range state.Jobs {
		if data.Department != "" && job.Department != data.Department {
			continue
		}
		if data.Risk != "" && string(job.RiskType) != data.Risk {
			continue
		}
		row := uiJobRow{Job: job, Age: "-", Overdue: job.Overdue(now, state.OverdueMinutes)}
		if started, ok := job.StartedAt(); ok {
			row.Age = humanize.RelTime(started, now, "ago", "from now")
		}
		switch job.RiskType {
		case modal.RiskConfined:
			data.Confined++
		case modal.RiskHeight:
			data.Height++
		}
		if row.Overdue {
			data.OverdueCount++
		}
		data.Rows = append(data.Rows, row)
	}
	_ = s.t.ExecuteTemplate(w, "board", data)
}

func boardRefresh(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return defaultBoardRefresh
	}
	return max(minBoardRefresh, min(maxBoardRefresh, n))
}

func (d uiBoardData) Total() int { return len(d.Rows) }

const uiTemplates = `
{{define "board"}}
<!doctype html>
<html>
<head>
  <meta charset="utf-8"/>
  <meta http-equiv="refresh" content="{{.Refresh}}"/>
  <title>Permit-to-Work Board</title>
  <style>
    body { font-family: sans-serif; margin: 24px; background: #111; color: #eee; }
    .filters a { margin-right: 12px; color: #9cf; }
    .kpi { display: inline-block; margin-right: 24px; font-size: 1.4em; }
    table { border-collapse: collapse; width: 100%; margin-top: 12px; }
    th, td { border: 1px solid #444; padding: 8px; text-align: left; }
    tr.overdue td { background: #5a1010; }
    .badge { padding: 2px 6px; border-radius: 4px; background: #b00020; color: #fff; }
    .err { color: #ff6b6b; }
    .muted { color: #999; }
  </style>
</head>
<body>
  <h2>Permit-to-Work Board</h2>

  <div class="filters">
    <a href="/board">All</a>
    <a href="/board?risk=confined">Confined space</a>
    <a href="/board?risk=height">Work at height</a>
    {{range .Departments}}<a href="/board?department={{.}}">{{.}}</a>{{end}}
  </div>

  {{if .Error}}<p class="err">{{.Error}}</p>{{else}}
  <p>
    <span class="kpi">Open: {{.Total}}</span>
    <span class="kpi">Confined: {{.Confined}}</span>
    <span class="kpi">Height: {{.Height}}</span>
    <span class="kpi">Overdue: {{.OverdueCount}}</span>
  </p>
  <p class="muted">Overdue after {{.OverdueMinutes}} min. Updated {{.UpdatedAt}}.</p>

  <table>
    <thead><tr><th>Risk</th><th>Department</th><th>Point</th><th>Control</th><th>Opened by</th><th>Started</th><th>Details</th></tr></thead>
    <tbody>
    {{range .Rows}}
      <tr{{if .Overdue}} class="overdue"{{end}}>
        <td>{{.Job.RiskType}}</td>
        <td>{{.Job.Department}}</td>
        <td>{{.Job.Point}}</td>
        <td>{{.Job.Control}}</td>
        <td>{{.Job.Owner}}</td>
        <td>{{.Age}}{{if .Overdue}} <span class="badge">OVERDUE</span>{{end}}</td>
        <td>{{.Job.Details}}</td>
      </tr>
    {{else}}
      <tr><td colspan="7" class="muted">No open jobs</td></tr>
    {{end}}
    </tbody>
  </table>
  {{end}}
</body>
</html>
{{end}}
`
