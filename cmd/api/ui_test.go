package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"permit-board/internal/clock"
	"permit-board/internal/modal"
	"permit-board/internal/registry"
	"permit-board/internal/store"
)

func newBoardRouter(t *testing.T) (chi.Router, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC))
	reg := registry.New(store.New(store.NewMemoryBackend(clk), store.WithClock(clk)), clk, nil)
	caller := modal.Identity{User: "somchai", Role: modal.RoleUser}
	for _, p := range []registry.OpenParams{
		{ID: "k1", RiskType: "confined", Department: "Kiln1", Point: "Riser duct", StartedAtISO: "2024-07-01T08:00:00Z"},
		{ID: "r1", RiskType: "height", Department: "RM1", Point: "Separator <top>", StartedAtISO: "2024-07-01T11:30:00Z"},
	} {
		if _, err := reg.Open(context.Background(), caller, p); err != nil {
			t.Fatal(err)
		}
	}
	r := chi.NewRouter()
	registerBoardRoutes(r, reg, clk)
	return r, clk
}

func getBoard(r http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestBoardShowsOpenJobs(t *testing.T) {
	r, _ := newBoardRouter(t)
	rec := getBoard(r, "/board")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"Riser duct",
		"Separator &lt;top&gt;",
		"Open: 2",
		"Overdue: 1",
		"4 hours ago",
		"30 minutes ago",
		`content="30"`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("board missing %q", want)
		}
	}
	if strings.Count(body, `class="overdue"`) != 1 {
		t.Fatal("expected exactly one overdue row")
	}
}

func TestBoardFilters(t *testing.T) {
	r, _ := newBoardRouter(t)
	body := getBoard(r, "/board?risk=height").Body.String()
	if strings.Contains(body, "Riser duct") || !strings.Contains(body, "Open: 1") {
		t.Fatal("risk filter not applied")
	}
	body = getBoard(r, "/board?department=Kiln2").Body.String()
	if !strings.Contains(body, "No open jobs") {
		t.Fatal("department filter should leave the board empty")
	}
}

func TestBoardRefreshBounds(t *testing.T) {
	cases := map[string]int{"": 30, "abc": 30, "1": 5, "60": 60, "100000": 600}
	for raw, want := range cases {
		if got := boardRefresh(raw); got != want {
			t.Fatalf("boardRefresh(%q) = %d, want %d", raw, got, want)
		}
	}
}
