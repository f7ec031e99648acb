package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
	"pkt.systems/pslog"

	"permit-board/internal/clock"
	"permit-board/internal/config"
	"permit-board/internal/modal"
	"permit-board/internal/pinhash"
)

func executeRootCommand(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand(pslog.NoopLogger())
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func clearPermitEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"PORT", "RW_SECRET_KEY", "PERMIT_PORT", "PERMIT_SECRET_KEY", "PERMIT_HOST", "PERMIT_DATA_FILE", "PERMIT_CONFIG"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestHashPinArgument(t *testing.T) {
	clearPermitEnv(t)
	stdout, _, err := executeRootCommand(t, "", "hash-pin", "--iterations", "1000", "246810")
	if err != nil {
		t.Fatalf("hash-pin: %v", err)
	}
	hash := strings.TrimSpace(stdout)
	if !strings.HasPrefix(hash, "pbkdf2:sha256:1000$") {
		t.Fatalf("unexpected hash %q", hash)
	}
	ok, err := pinhash.Verify(hash, "246810")
	if err != nil || !ok {
		t.Fatalf("generated hash does not verify: %v", err)
	}
}

func TestHashPinStdinRecord(t *testing.T) {
	clearPermitEnv(t)
	stdout, _, err := executeRootCommand(t, "135790\n", "hash-pin", "--iterations", "1000", "--user", "admin", "--role", "admin")
	if err != nil {
		t.Fatalf("hash-pin: %v", err)
	}
	var rec modal.UserRecord
	if err := json.Unmarshal([]byte(stdout), &rec); err != nil {
		t.Fatalf("decode record %q: %v", stdout, err)
	}
	if rec.User != "admin" || rec.Role != "admin" || rec.ResolvedRole() != modal.RoleAdmin {
		t.Fatalf("record = %+v", rec)
	}
	if !strings.Contains(stdout, `"role":"admin"`) {
		t.Fatalf("record line %q lacks the admin role", stdout)
	}
	if ok, _ := pinhash.Verify(rec.PinHash, "135790"); !ok {
		t.Fatal("record hash does not verify")
	}
}

func TestHashPinUserRecordOmitsDefaultRole(t *testing.T) {
	clearPermitEnv(t)
	stdout, _, err := executeRootCommand(t, "", "hash-pin", "--iterations", "1000", "--user", "malee", "--role", "user", "246801")
	if err != nil {
		t.Fatalf("hash-pin: %v", err)
	}
	if strings.Contains(stdout, `"role"`) {
		t.Fatalf("plain user record should not carry a role: %q", stdout)
	}
}

func TestBaseLoggerWritesStructuredLines(t *testing.T) {
	var buf bytes.Buffer
	newBaseLogger(&buf).Info("startup check", "port", 8080)
	out := buf.String()
	if !strings.Contains(out, "startup check") || !strings.Contains(out, "permit-board") {
		t.Fatalf("log output = %q", out)
	}
}

func TestHashPinRejectsBadInput(t *testing.T) {
	clearPermitEnv(t)
	if _, _, err := executeRootCommand(t, "", "hash-pin", "12345"); err == nil {
		t.Fatal("expected error for 5-digit PIN")
	}
	if _, _, err := executeRootCommand(t, "", "hash-pin"); err == nil {
		t.Fatal("expected error for empty stdin")
	}
	if _, _, err := executeRootCommand(t, "", "hash-pin", "--user", "x", "--role", "root", "123456"); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestJobsCommand(t *testing.T) {
	clearPermitEnv(t)
	path := filepath.Join(t.TempDir(), "status.json")
	started := time.Now().UTC().Add(-3 * time.Hour).Format(time.RFC3339)
	fresh := time.Now().UTC().Add(-10 * time.Minute).Format(time.RFC3339)
	doc := `{"updatedAt":"` + fresh + `","overdueMinutes":120,"jobs":[
  {"id":"a1","riskType":"confined","department":"Kiln1","point":"Cyclone 2","openedBy":"somchai","startedAtISO":"` + started + `"},
  {"id":1719820000000,"riskType":"height","department":"RM2","point":"Bag filter","requester":"malee","startedAtISO":"` + fresh + `"}
]}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	stdout, _, err := executeRootCommand(t, "", "jobs", "--data-file", path)
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}
	for _, want := range []string{"a1", "1719820000000", "somchai", "malee", "OVERDUE", "3 hours ago", "2 job(s) listed"} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("output missing %q:\n%s", want, stdout)
		}
	}

	stdout, _, err = executeRootCommand(t, "", "jobs", "--data-file", path, "--overdue")
	if err != nil {
		t.Fatalf("jobs --overdue: %v", err)
	}
	if strings.Contains(stdout, "malee") || !strings.Contains(stdout, "1 job(s) listed") {
		t.Fatalf("overdue filter output:\n%s", stdout)
	}
}

func TestConfigShowPrecedence(t *testing.T) {
	clearPermitEnv(t)
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "permit.yaml")
	if err := os.WriteFile(cfgPath, []byte("host: 127.0.0.1\nport: 7000\nlogin-burst: 9\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PORT", "9100")
	t.Setenv("RW_SECRET_KEY", "a-very-long-secret-value")

	stdout, _, err := executeRootCommand(t, "", "config", "show", "-c", cfgPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal([]byte(stdout), &fc); err != nil {
		t.Fatalf("decode yaml: %v\n%s", err, stdout)
	}
	if fc.Host != "127.0.0.1" {
		t.Fatalf("host from config file = %q", fc.Host)
	}
	if fc.Port != 9100 {
		t.Fatalf("PORT env should win over config file, got %d", fc.Port)
	}
	if fc.LoginBurst != 9 {
		t.Fatalf("login burst = %d", fc.LoginBurst)
	}
	if fc.SecretKey != "<redacted>" {
		t.Fatalf("secret not redacted: %q", fc.SecretKey)
	}
	if fc.SessionTTL != "8h0m0s" {
		t.Fatalf("session ttl = %q", fc.SessionTTL)
	}
}

func TestConfigGenRoundTrip(t *testing.T) {
	clearPermitEnv(t)
	out := filepath.Join(t.TempDir(), "permit.yaml")
	if _, _, err := executeRootCommand(t, "", "config", "gen", "--out", out); err != nil {
		t.Fatalf("config gen: %v", err)
	}
	if _, _, err := executeRootCommand(t, "", "config", "gen", "--out", out); err == nil {
		t.Fatal("expected refusal to overwrite without --force")
	}
	stdout, _, err := executeRootCommand(t, "", "config", "show", "-c", out)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !strings.Contains(stdout, "port: 8080") || !strings.Contains(stdout, "data-file: status.json") {
		t.Fatalf("unexpected effective config:\n%s", stdout)
	}
}

func TestMissingConfigFileFails(t *testing.T) {
	clearPermitEnv(t)
	if _, _, err := executeRootCommand(t, "", "config", "show", "-c", filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func newTestServerHandler(t *testing.T) (http.Handler, string) {
	t.Helper()
	dir := t.TempDir()
	hash, err := pinhash.Generate("222222", 1000)
	if err != nil {
		t.Fatal(err)
	}
	usersPath := filepath.Join(dir, "users.json")
	if err := os.WriteFile(usersPath, []byte(`[{"user":"somchai","pin_hash":"`+hash+`"}]`), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>front</h1>"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.DataFile = filepath.Join(dir, "status.json")
	cfg.UsersFile = usersPath
	cfg.WebRoot = dir
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	clk := clock.NewManual(time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC))
	h, err := buildHandler(cfg, filepath.Join(dir, "permit.yaml"), clk, pslog.NoopLogger())
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	return h, dir
}

func TestServerWiring(t *testing.T) {
	h, dir := newTestServerHandler(t)
	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	login := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{"user":"somchai","pin":"222222"}`))
	req.RemoteAddr = "192.0.2.1:4000"
	h.ServeHTTP(login, req)
	if login.Code != http.StatusOK {
		t.Fatalf("login: %d %s", login.Code, login.Body.String())
	}
	cookies := login.Result().Cookies()
	open := httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/open", strings.NewReader(`{"riskType":"height","department":"Pfister","point":"Hopper","startedAtISO":"2024-07-01T09:00"}`))
	for _, c := range cookies {
		req.AddCookie(c)
	}
	h.ServeHTTP(open, req)
	if open.Code != http.StatusOK {
		t.Fatalf("open: %d %s", open.Code, open.Body.String())
	}
	if _, err := os.Stat(filepath.Join(dir, "status.json")); err != nil {
		t.Fatalf("state file not written: %v", err)
	}

	if rec := get("/"); rec.Code != http.StatusOK || rec.Body.String() != "<h1>front</h1>" {
		t.Fatalf("index: %d %q", rec.Code, rec.Body.String())
	}
	for _, hidden := range []string{"/users.json", "/status.json", "/permit.yaml"} {
		if rec := get(hidden); rec.Code != http.StatusNotFound {
			t.Fatalf("%s: status %d", hidden, rec.Code)
		}
	}
	if rec := get("/metrics"); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "permit_board_open_jobs 1") {
		t.Fatalf("metrics: %d", rec.Code)
	}
	board := get("/board")
	if board.Code != http.StatusOK {
		t.Fatalf("board: %d", board.Code)
	}
	if body := board.Body.String(); !strings.Contains(body, "Hopper") || !strings.Contains(body, "somchai") {
		t.Fatalf("board missing job:\n%s", body)
	}
}

func TestDenyListFromConfig(t *testing.T) {
	cfg := config.Config{DataFile: "/var/lib/permit/state.json", UsersFile: "/etc/permit/people.json"}
	deny := denyList(cfg, "/etc/permit/permit.yaml")
	for _, rel := range []string{"state.json", "state.json.tmp-1", "people.json", "permit.yaml"} {
		if !deny.Denies(rel) {
			t.Fatalf("%s should be hidden", rel)
		}
	}
	if deny.Denies("index.html") {
		t.Fatal("index.html should be served")
	}
	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("executable: %v", err)
	}
	if name := filepath.Base(exe); !deny.Denies(name) {
		t.Fatalf("server executable %s should be hidden", name)
	}
}

func TestServerExecutableNotServed(t *testing.T) {
	h, dir := newTestServerHandler(t)
	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("executable: %v", err)
	}
	name := filepath.Base(exe)
	if err := os.WriteFile(filepath.Join(dir, name), []byte("\x7fELF"), 0o755); err != nil {
		t.Fatal(err)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/"+url.PathEscape(name), nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("GET /%s: status %d, want 404", name, rec.Code)
	}
}

func TestResolveSecret(t *testing.T) {
	got, err := resolveSecret("configured-secret-value", pslog.NoopLogger())
	if err != nil || string(got) != "configured-secret-value" {
		t.Fatalf("configured secret = %q, %v", got, err)
	}
	a, err := resolveSecret("", pslog.NoopLogger())
	if err != nil {
		t.Fatal(err)
	}
	b, _ := resolveSecret("", pslog.NoopLogger())
	if len(a) != 32 || bytes.Equal(a, b) {
		t.Fatal("generated secrets should be random 32-byte keys")
	}
}
